package cmd

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/kilianp07/flexmarket/app"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed, color.Bold)
	cyan   = color.New(color.FgCyan)
)

func printResult(w io.Writer, res *app.Result) {
	if res.Converged {
		green.Fprintf(w, "✓ %s converged in %d iteration(s)\n", res.Instance, res.Iterations)
	} else {
		yellow.Fprintf(w, "⚠ %s stopped after %d iteration(s): %s\n", res.Instance, res.Iterations, res.Reason)
	}
	fmt.Fprintf(w, "  welfare  %.4f\n", res.Welfare)
	fmt.Fprintf(w, "  elapsed  %s\n", res.Elapsed.Round(time.Millisecond))
	if res.Output != "" {
		cyan.Fprintf(w, "  result   %s\n", res.Output)
	}
}

func printBatch(w io.Writer, r *app.BatchReport) {
	for _, d := range r.Days {
		switch d.Status {
		case app.DaySolved:
			green.Fprintf(w, "✓ %-20s %s\n", d.Day, d.Output)
		case app.DayCapped:
			yellow.Fprintf(w, "⚠ %-20s not converged, %s\n", d.Day, d.Output)
		case app.DaySkipped:
			cyan.Fprintf(w, "- %-20s skipped\n", d.Day)
		default:
			red.Fprintf(w, "✗ %-20s see %s\n", d.Day, d.Output)
		}
	}
	fmt.Fprintf(w, "%d solved, %d capped, %d failed, %d skipped\n",
		r.Count(app.DaySolved), r.Count(app.DayCapped), r.Count(app.DayFailed), r.Count(app.DaySkipped))
	if r.SummaryPath != "" {
		cyan.Fprintf(w, "summary  %s\n", r.SummaryPath)
	}
}

func printError(w io.Writer, err error) {
	red.Fprintf(w, "Error: %v\n", err)
}
