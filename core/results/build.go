package results

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/flexmarket/core/actors"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/roles"
)

// Day gathers the state of a finished day.
type Day struct {
	Data      *market.Data
	DSO       *actors.DSO
	TSO       *actors.TSO
	Producers []*actors.Producer
	Retailers []*actors.Retailer
	Criteria  *actors.Criteria
	Solved    time.Time
}

var labels = map[string]string{
	"I": "Imbalance", "O": "Opposite usage of flexibility", "TU": "Total usage of flexibility",
	"R+": "Requirement of upward flexibility", "R-": "Requirement of downward flexibility",
	"S+": "Submitted upward flexibility", "S-": "Submitted downward flexibility",
	"A+": "Upward flexibility contracted", "A-": "Downward flexibility contracted",
	"U+": "Activated upward flexibility", "U-": "Activated downward flexibility",
	"pi^E": "Energy price", "pi^I+": "Upward imbalance price", "pi^I-": "Downward imbalance price",
	"C": "Line capacity", "dC": "Max. capacity upgrade",
	"g": "Downward access request bound", "G": "Upward access request bound",
	"b": "Safe downward access bound", "B": "Safe upward access bound",
	"k": "Downward flexible access bound", "K": "Upward flexible access bound",
	"l": "Downward full access bound", "L": "Upward full access bound",
	"v": "Voltage", "phi": "Voltage angle",
	"v^r": "Corrected voltage", "phi^r": "Corrected voltage angle",
	"v^b": "Baseline voltage", "phi^b": "Baseline voltage angle",
	"p^b": "Local baseline", "p^r": "Local corrected baseline", "p": "Local realization", "p^p": "Baseline proposal",
	"P^b": "Global baseline", "P^r": "Global corrected baseline", "P": "Global realization",
	"H": "Flexibility request", "U": "Flexibility activation",
	"f^b": "Announced flow", "f^r": "Corrected flow", "f": "Flow realization",
	"d": "Downward periodic access bound", "D": "Upward periodic access bound",
}

// Label translates a symbol, or returns it unchanged.
func Label(symbol string) string {
	if l, ok := labels[symbol]; ok {
		return l
	}
	return symbol
}

// Style colors.
const (
	colorShed      = "#A20025"
	colorUpgrade   = "#1BA1E2"
	colorNone      = "#000000"
	colorOver      = "#FFED69"
	colorUnder     = "#9D7BFC"
	colorIssue     = "#656565"
	colorOpposite  = "#FA6800"
	colorActivated = "#A4C400"
)

func num(v float64) string     { return strconv.FormatFloat(v, 'g', -1, 64) }
func fixed(v float64) string   { return fmt.Sprintf("%.5f", v) }
func datum(id, v string) Datum { return Datum{ID: id, Value: v} }

func series(symbol string, v []float64) Series {
	return Series{ID: Label(symbol), Values: append(Floats(nil), v...)}
}

// maxAbs returns the entry of largest magnitude and its period from 1.
func maxAbs(v []float64) (float64, int) {
	if len(v) == 0 {
		return 0, 0
	}
	i := 0
	for j := range v {
		if math.Abs(v[j]) > math.Abs(v[i]) {
			i = j
		}
	}
	return v[i], i + 1
}

func periods(d *market.Data, pred func(t int) bool) []string {
	var out []string
	for t := 0; t < d.T; t++ {
		if pred(t) {
			out = append(out, strconv.Itoa(t+1))
		}
	}
	return out
}

// Build assembles the document of day.
func Build(day Day) *Document {
	d := day.Data
	doc := &Document{Periods: d.T}
	if day.DSO != nil {
		doc.Externals = append(doc.Externals, dsoElement(d, day.DSO))
	}
	if day.TSO != nil {
		doc.Externals = append(doc.Externals, tsoElement(d, day.TSO))
	}
	for _, p := range day.Producers {
		doc.Externals = append(doc.Externals, providerElement(d, p.Name(), p.Costs(), p.BRP(), p.FSU(), p.FSP()))
	}
	for _, r := range day.Retailers {
		doc.Externals = append(doc.Externals, providerElement(d, r.Name(), r.Costs(), r.BRP(), r.FSU(), r.FSP()))
	}
	doc.General = general(day)
	if day.DSO != nil && day.DSO.Network != nil {
		doc.Elements = append(doc.Elements, lineElements(d, day.DSO)...)
	}
	doc.Elements = append(doc.Elements, busElements(d, day.DSO)...)
	return doc
}

func fsuData(d *market.Data, e *Element, f *roles.FSU) {
	if f == nil {
		return
	}
	e.Data = append(e.Data,
		datum("Flexibility accepted", num((floats.Sum(f.ContractedUp)-floats.Sum(f.ContractedDown))*d.Dt)),
		datum("Flexibility used", num((floats.Sum(f.ActivatedUp)-floats.Sum(f.ActivatedDown))*d.Dt)),
	)
	e.TimeData = append(e.TimeData, series("U+", f.ActivatedUp), series("U-", f.ActivatedDown))
	e.Graphs = append(e.Graphs, Graph{ID: "fsu", YLabel: "Power [MW]", Data: []Series{
		series("U", f.ActivatedNet), series("A+", f.ContractedUp), series("A-", f.ContractedDown),
	}})
}

func dsoElement(d *market.Data, o *actors.DSO) Element {
	e := Element{ID: o.Name(), Name: o.Name()}
	e.Data = append(e.Data,
		datum("costs", num(o.Costs())),
		datum("Protections cost", num(o.ProtectionsCost)),
		datum("Total imbalance", num(o.TotalImbalance(d))),
	)
	e.Graphs = append(e.Graphs, Graph{ID: "brp", YLabel: "Power [MW]", Data: []Series{
		series("R+", o.UpNeeds), series("R-", o.DownNeeds), series("I", o.Imbalance),
	}})
	fsuData(d, &e, o.FSU())
	return e
}

func tsoElement(d *market.Data, o *actors.TSO) Element {
	e := Element{ID: o.Name(), Name: o.Name()}
	e.Data = append(e.Data, datum("costs", num(o.Costs())))
	fsuData(d, &e, o.FSU())
	var u []float64
	if f := o.FSU(); f != nil {
		u = f.ActivatedNet
	}
	e.Graphs = append(e.Graphs, Graph{ID: "service", YLabel: "Power [MW]", Data: []Series{
		series("R+", o.UpNeeds), series("R-", o.DownNeeds), series("E", o.Imbalance), series("U", u),
	}})
	return e
}

func providerElement(d *market.Data, name string, costs float64, brp *roles.BRP, fsu *roles.FSU, fsp *roles.FSP) Element {
	e := Element{ID: name, Name: name}
	e.Data = append(e.Data, datum("costs", num(costs)))
	if brp != nil {
		e.Data = append(e.Data,
			datum("Total imbalance", num(brp.TotalImbalance(d))),
			datum("Realization energy", num(floats.Sum(brp.RealizedTotal)*d.Dt)),
			datum("Baseline energy", num(floats.Sum(brp.BaselineTotal)*d.Dt)),
		)
		e.Graphs = append(e.Graphs, Graph{ID: "brp", YLabel: "Power [MW]", Data: []Series{
			series("P^b", brp.BaselineTotal), series("P^r", brp.CorrectedTotal),
			series("P", brp.RealizedTotal), series("I", brp.Imbalance),
		}})
	}
	fsuData(d, &e, fsu)
	if fsp != nil {
		e.Graphs = append(e.Graphs, Graph{ID: "fsp", YLabel: "Power [MW]", Data: []Series{series("H", fsp.ProvidedTotal)}})
	}
	return e
}

func flexibility(d *market.Data) []Series {
	return []Series{
		series("R+", d.UpRequired.Periods()), series("R-", d.DownRequired.Periods()),
		series("S+", d.UpSubmitted.Periods()), series("S-", d.DownSubmitted.Periods()),
		series("A+", d.UpReserved.Periods()), series("A-", d.DownReserved.Periods()),
		series("U+", d.UpActivated.Periods()), series("U-", d.DownActivated.Periods()),
	}
}

func general(day Day) General {
	d := day.Data
	var g General
	c := day.Criteria
	if c == nil {
		c = &actors.Criteria{}
	}
	protections := 0.0
	if day.DSO != nil {
		protections = day.DSO.ProtectionsCost
	}
	maxImbalance, _ := maxAbs(d.Imbalance)
	solved := ""
	if !day.Solved.IsZero() {
		solved = day.Solved.Format("15:04:05 02/01/2006")
	}
	s := c.Surpluses()
	g.Data = []Datum{
		datum("Solved", solved),
		datum("Time", num(d.Elapsed)),
		datum("Iterations", strconv.Itoa(d.Iterations)),
		datum("OPF method", d.OPF.String()),
		datum("Welfare", fixed(c.Welfare)),
		datum("DSOs costs", fixed(c.DSOsCosts)),
		datum("Protections cost", fixed(protections)),
		datum("TSOs surplus", fixed(s[1])),
		datum("Producers surplus", fixed(s[2])),
		datum("Retailers surplus", fixed(s[3])),
		datum("Total energy shed", fixed(floats.Sum(d.ShedQuantities))),
		datum("Total production", fixed(floats.Sum(d.Production))),
		datum("Total consumption", fixed(floats.Sum(d.Consumption))),
		datum("Max. imbalance", fixed(maxImbalance)),
		datum("Total imbalance", fixed(floats.Norm(d.Imbalance, 1)*d.Dt)),
		datum("Total opp. usage of flex.", fixed(floats.Sum(d.OppositeUsage)*d.Dt)),
		datum("Total usage of flex.", fixed(floats.Sum(d.TotalUsage)*d.Dt)),
	}
	g.TimeData = []Series{
		series("I", d.Imbalance), series("O", d.OppositeUsage), series("TU", d.TotalUsage), series("U", d.FlexEffect),
	}
	g.TimeData = append(g.TimeData, flexibility(d)...)
	g.Graphs = []Graph{
		{ID: "prices", Title: "Prices", YLabel: "Price [euro/MW period]", Data: []Series{
			series("pi^E", d.EnergyPrice), series("pi^I+", d.UpImbalancePrice), series("pi^I-", d.DownImbalancePrice),
		}},
		{ID: "sheddings", YLabel: "Shed quantities [MWh]", Data: []Series{series("Shed quantities", d.ShedQuantities)}},
		{ID: "fs", YLabel: "Power [MW]", Data: flexibility(d)},
	}
	return g
}

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func lineElements(d *market.Data, o *actors.DSO) []Element {
	nw := o.Network
	var out []Element
	for l := 1; l <= nw.L; l++ {
		i := l - 1
		capacity := nw.Capacity[i]
		upgrade, at := maxAbs(o.Lines.CapacityNeed[i])
		e := Element{ID: fmt.Sprintf("LINE%d", l), Name: fmt.Sprintf("Line %d", l)}
		e.Data = append(e.Data, datum(Label("C"), num(capacity)))
		if upgrade > d.Eps {
			e.Data = append(e.Data, datum(Label("dC"), fmt.Sprintf("%.5f in period %d", upgrade, at)))
		} else {
			e.Data = append(e.Data, datum(Label("dC"), fixed(upgrade)))
		}
		e.Graphs = append(e.Graphs, Graph{ID: "baseline", YLabel: "Power [MW]", Data: []Series{
			{ID: "Line capacity", Values: constant(d.T, capacity)},
			{ID: "- Line capacity", Values: constant(d.T, -capacity)},
			series("f^b", o.Lines.BaselineFlow[i]), series("f^r", o.Lines.CorrectedFlow[i]),
			series("f", o.Lines.Flow[i]), series("flow violation", o.Lines.FlowViolation[i]),
		}})

		style := func(violation, need float64) string {
			switch {
			case violation > d.Eps:
				return "fill:" + colorShed + ";stroke:" + colorShed + ";stroke-width:2"
			case need > d.Eps:
				return "fill:" + colorUpgrade + ";stroke:" + colorUpgrade + ";stroke-width:2"
			}
			return "fill:" + colorNone + ";stroke:" + colorNone + ";stroke-width:2"
		}
		styles := make([]string, d.T)
		texts := make([]string, d.T)
		for t := 0; t < d.T; t++ {
			styles[t] = style(o.Lines.FlowViolation[i][t], o.Lines.CapacityNeed[i][t])
			texts[t] = fmt.Sprintf("%.1f/%.1f", o.Lines.Flow[i][t], capacity)
		}
		e.Style = &TimeStyle{Default: style(floats.Max(o.Lines.FlowViolation[i]), upgrade), Periods: strings.Join(styles, ",")}
		e.Text = &TimeStyle{Periods: strings.Join(texts, ",")}
		out = append(out, e)
	}
	return out
}

func busElements(d *market.Data, o *actors.DSO) []Element {
	linear := d.OPF == market.OPFLinear && o != nil && o.Network != nil && o.Buses.V != nil
	var out []Element
	for n := 0; n < d.N; n++ {
		e := Element{ID: fmt.Sprintf("BUS%d", n), Name: fmt.Sprintf("Bus %d", n)}
		up, down := d.UpActivated[n], d.DownActivated[n]
		shed := periods(d, func(t int) bool { return d.IsShed(n, t) })
		used := periods(d, func(t int) bool { return math.Abs(up[t])+math.Abs(down[t]) > d.Eps })
		opposite := periods(d, func(t int) bool { return up[t] > d.Eps && math.Abs(down[t]) > d.Eps })
		if len(shed) > 0 {
			e.Data = append(e.Data, datum("Shed", "in period(s) "+strings.Join(shed, ", ")))
		}
		if len(used) > 0 {
			e.Data = append(e.Data, datum("Flexibility used", "in period(s) "+strings.Join(used, ",")))
		}
		if len(opposite) > 0 {
			e.Data = append(e.Data, datum("Opposite flex usage", "in period(s) "+strings.Join(opposite, ",")))
		}
		e.Data = append(e.Data,
			datum(Label("g"), num(d.RequestedLow[n])), datum(Label("G"), num(d.RequestedHigh[n])),
			datum(Label("b"), num(d.AgreedLow[n])), datum(Label("B"), num(d.AgreedHigh[n])),
		)
		e.TimeData = append(e.TimeData, series("R+", d.UpRequired[n]), series("R-", d.DownRequired[n]))

		var issues, under, over map[int]bool
		if linear {
			nw := o.Network
			vMin, vMax := nw.VMin[n]*nw.BaseVoltage, nw.VMax[n]*nw.BaseVoltage
			issues, under, over = map[int]bool{}, map[int]bool{}, map[int]bool{}
			for t := 0; t < d.T; t++ {
				vb, v := o.Buses.BaselineV[n][t], o.Buses.V[n][t]
				issues[t] = vb < vMin+d.Eps || vb > vMax+d.Eps
				under[t] = v < vMin+d.Eps
				over[t] = v > vMax-d.Eps
			}
			e.Graphs = append(e.Graphs,
				Graph{ID: "voltage", YLabel: "Voltage [kV]", Data: []Series{
					{ID: "Min. voltage", Values: constant(d.T, vMin)},
					{ID: "Max. voltage", Values: constant(d.T, vMax)},
					series("v^b", o.Buses.BaselineV[n]), series("v^r", o.Buses.CorrectedV[n]),
					series("v", o.Buses.V[n]), series("voltage violation", o.Buses.VoltageViolation[n]),
				}},
				Graph{ID: "voltageAngle", YLabel: "Voltage angle [deg]", Data: []Series{
					series("phi^b", o.Buses.BaselinePhi[n]), series("phi^r", o.Buses.CorrectedPhi[n]), series("phi", o.Buses.Phi[n]),
				}},
			)
		}

		baseline := Graph{ID: "baseline", YLabel: "Power [MW]"}
		if d.Proposed != nil {
			baseline.Data = append(baseline.Data, series("p^p", d.Proposed[n]))
		}
		baseline.Data = append(baseline.Data,
			series("p^b", d.Baseline[n]), series("p^r", d.Corrected[n]), series("p", d.Realized[n]),
			series("d", d.DynamicLow[n]), series("D", d.DynamicHigh[n]),
		)
		e.Graphs = append(e.Graphs, baseline, Graph{ID: "fs", YLabel: "Power [MW]", Data: []Series{
			series("S+", d.UpSubmitted[n]), series("S-", d.DownSubmitted[n]),
			series("A+", d.UpReserved[n]), series("A-", d.DownReserved[n]),
			series("U+", up), series("U-", down),
		}})

		anyTrue := func(m map[int]bool) bool {
			for _, v := range m {
				if v {
					return true
				}
			}
			return false
		}
		fill := colorNone
		switch {
		case len(shed) > 0:
			fill = colorShed
		case anyTrue(over):
			fill = colorOver
		case anyTrue(under):
			fill = colorUnder
		case anyTrue(issues):
			fill = colorIssue
		case len(opposite) > 0:
			fill = colorOpposite
		case len(used) > 0:
			fill = colorActivated
		}
		stroke := colorNone
		if linear {
			switch {
			case anyTrue(under) && anyTrue(over):
				stroke = colorShed
			case anyTrue(under):
				stroke = colorUnder
			case anyTrue(over):
				stroke = colorOver
			}
		}
		styles := make([]string, d.T)
		for t := 0; t < d.T; t++ {
			switch {
			case d.IsShed(n, t):
				styles[t] = "fill:" + colorShed + ";stroke:" + colorNone
			case over[t]:
				styles[t] = "fill:" + colorOver + ";stroke:" + colorOver
			case under[t]:
				styles[t] = "fill:" + colorUnder + ";stroke:" + colorUnder
			case issues[t]:
				styles[t] = "fill:" + colorIssue + ";stroke:" + colorNone
			case up[t] > d.Eps && math.Abs(down[t]) > d.Eps:
				styles[t] = "fill:" + colorOpposite + ";stroke:" + colorNone
			case up[t]+math.Abs(down[t]) > d.Eps:
				styles[t] = "fill:" + colorActivated + ";stroke:" + colorNone
			default:
				styles[t] = "fill:" + colorNone + ";stroke:" + colorNone
			}
		}
		e.Style = &TimeStyle{Default: "fill:" + fill + ";stroke:" + stroke, Periods: strings.Join(styles, ",")}
		out = append(out, e)
	}
	return out
}
