package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/flexmarket/core/results"
)

// ErrNoDays is returned when the days directory holds no instance folder.
var ErrNoDays = errors.New("no day to simulate")

// DayStatus is the state of one day after a batch.
type DayStatus string

const (
	DaySolved  DayStatus = "solved"
	DayCapped  DayStatus = "capped"
	DayFailed  DayStatus = "failed"
	DaySkipped DayStatus = "skipped"
)

// DayReport describes one day of a batch.
type DayReport struct {
	Day    string
	Status DayStatus
	Result *Result
	Err    error
	// Output is the result file, or the error file of a failed day.
	Output string
}

// BatchReport gathers the days in directory order.
type BatchReport struct {
	Days    []DayReport
	Summary *results.Summary
	// SummaryPath is the CSV file written, empty when disabled.
	SummaryPath string
}

// Count returns the number of days with status st.
func (r *BatchReport) Count(st DayStatus) int {
	n := 0
	for _, d := range r.Days {
		if d.Status == st {
			n++
		}
	}
	return n
}

// Days lists the instance folders of dir in lexical order.
func Days(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var days []string
	for _, e := range entries {
		if e.IsDir() && !strings.HasPrefix(e.Name(), ".") {
			days = append(days, e.Name())
		}
	}
	sort.Strings(days)
	return days, nil
}

// Batch simulates every day folder of daysDir with a bounded number of
// workers. A failing day does not stop the others: its error is written to
// <day>-error.txt. Days whose result file exists are skipped when
// configured, as are the days not reached before cancellation. The
// multi-day summary covers the days simulated successfully in this batch.
func (a *App) Batch(ctx context.Context, daysDir string) (*BatchReport, error) {
	days, err := Days(daysDir)
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoDays, daysDir)
	}
	bc := a.cfg.Batch
	outDir := bc.OutputDir
	if outDir == "" {
		outDir = daysDir
	}
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return nil, err
	}

	report := &BatchReport{Days: make([]DayReport, len(days))}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(bc.Workers)
	for i, day := range days {
		output := filepath.Join(outDir, day+bc.Format)
		report.Days[i] = DayReport{Day: day, Status: DaySkipped}
		if bc.SkipExisting {
			if _, err := os.Stat(output); err == nil {
				a.log.Infof("%s already solved, skipping", day)
				report.Days[i] = DayReport{Day: day, Status: DaySkipped, Output: output}
				continue
			}
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.Run(gctx, filepath.Join(daysDir, day), output)
			dr := DayReport{Day: day, Result: res, Err: err, Output: output}
			switch {
			case err != nil:
				dr.Status = DayFailed
				dr.Output = filepath.Join(outDir, day+"-error.txt")
				if werr := os.WriteFile(dr.Output, []byte(err.Error()+"\n"), 0o644); werr != nil {
					a.log.Errorf("write %s: %v", dr.Output, werr)
				}
			case res.Converged:
				dr.Status = DaySolved
			default:
				dr.Status = DayCapped
			}
			mu.Lock()
			report.Days[i] = dr
			mu.Unlock()
			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return report, err
	}

	var names []string
	var docs []*results.Document
	for _, d := range report.Days {
		if d.Result != nil && d.Result.Document != nil {
			names = append(names, d.Day)
			docs = append(docs, d.Result.Document)
		}
	}
	if len(docs) == 0 {
		return report, nil
	}
	if report.Summary, err = results.Summarize(names, docs); err != nil {
		return report, err
	}
	if bc.Summary != "" {
		path := bc.Summary
		if !filepath.IsAbs(path) {
			path = filepath.Join(outDir, path)
		}
		f, err := os.Create(path)
		if err != nil {
			return report, err
		}
		if err := report.Summary.WriteCSV(f); err != nil {
			f.Close()
			return report, err
		}
		if err := f.Close(); err != nil {
			return report, err
		}
		report.SummaryPath = path
	}
	return report, nil
}
