package results

import (
	"fmt"
	"io"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// Charts returns one line chart per graph of the system and of the
// external actors, in document order.
func Charts(doc *Document) []*charts.Line {
	periods := make([]string, doc.Periods)
	for t := range periods {
		periods[t] = strconv.Itoa(t + 1)
	}
	var out []*charts.Line
	add := func(owner string, g Graph) {
		title := g.Title
		if title == "" {
			title = g.ID
		}
		if owner != "" {
			title = owner + " " + title
		}
		line := charts.NewLine()
		line.SetGlobalOptions(
			charts.WithTitleOpts(opts.Title{Title: title}),
			charts.WithXAxisOpts(opts.XAxis{Name: "Period"}),
			charts.WithYAxisOpts(opts.YAxis{Name: g.YLabel}),
			charts.WithLegendOpts(opts.Legend{Top: "bottom"}),
		)
		line.SetXAxis(periods)
		for _, s := range g.Data {
			data := make([]opts.LineData, len(s.Values))
			for i, v := range s.Values {
				data[i] = opts.LineData{Value: v}
			}
			line.AddSeries(s.ID, data)
		}
		out = append(out, line)
	}
	for _, g := range doc.General.Graphs {
		add("", g)
	}
	for _, e := range doc.Externals {
		for _, g := range e.Graphs {
			add(e.Name, g)
		}
	}
	return out
}

// WriteHTML renders the charts of doc as a standalone page.
func WriteHTML(w io.Writer, doc *Document) error {
	page := components.NewPage()
	page.PageTitle = "Simulation results"
	for _, c := range Charts(doc) {
		page.AddCharts(c)
	}
	if err := page.Render(w); err != nil {
		return fmt.Errorf("render charts: %w", err)
	}
	return nil
}
