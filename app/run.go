package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/events"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/monitoring"
	"github.com/kilianp07/flexmarket/core/results"
	"github.com/kilianp07/flexmarket/core/runlog"
	"github.com/kilianp07/flexmarket/core/simulation"
	"github.com/kilianp07/flexmarket/core/solver"
	"github.com/kilianp07/flexmarket/infra/runstore"
)

// Result is the outcome of one simulated day.
type Result struct {
	RunID    string
	Instance string
	agent.Outcome
	Welfare  float64
	Elapsed  time.Duration
	Document *results.Document
	// Output is the exported result file, empty when none was written.
	Output string
}

// Run simulates the instance folder dir and exports the result document to
// output when it is not empty.
func (a *App) Run(ctx context.Context, dir, output string) (*Result, error) {
	res := &Result{RunID: uuid.NewString(), Instance: filepath.Base(filepath.Clean(dir))}
	run := events.Run{RunID: res.RunID, Instance: res.Instance}
	log := a.log
	start := time.Now()

	err := a.simulate(ctx, dir, output, run, res)
	res.Elapsed = time.Since(start)

	fin := events.RunFinished{
		Run:        a.stamp(run),
		Converged:  res.Converged,
		Reason:     res.Reason,
		Iterations: res.Iterations,
		Welfare:    res.Welfare,
		Elapsed:    res.Elapsed,
	}
	sum := runstore.Summary{
		RunID:      res.RunID,
		Instance:   res.Instance,
		Converged:  res.Converged,
		Reason:     res.Reason,
		Iterations: res.Iterations,
		Welfare:    res.Welfare,
		Elapsed:    res.Elapsed,
		Output:     res.Output,
		Finished:   fin.Time,
	}
	if err != nil {
		fin.Err, sum.Err = err.Error(), err.Error()
		if !errors.Is(err, context.Canceled) {
			monitoring.CaptureRun(err, res.RunID, res.Instance)
		}
		log.Errorf("instance %s: %v", res.Instance, err)
	}
	a.bus.Publish(fin)
	if a.runs != nil {
		if serr := a.runs.Save(context.WithoutCancel(ctx), sum); serr != nil {
			log.Warnf("runstore: %v", serr)
		}
	}
	return res, err
}

func (a *App) stamp(run events.Run) events.Run {
	run.Time = time.Now()
	return run
}

func (a *App) simulate(ctx context.Context, dir, output string, run events.Run, res *Result) error {
	in, err := instance.Load(dir)
	if err != nil {
		return err
	}
	opf, err := a.cfg.Simulation.OPFMethod()
	if err != nil {
		return err
	}

	ws, err := solver.NewWorkspace(a.cfg.Simulation.WorkspaceDir, a.cfg.Simulation.ModelDir)
	if err != nil {
		return err
	}
	if a.cfg.Simulation.KeepWorkspace {
		ws.Keep()
		a.log.Infof("workspace of %s kept in %s", res.Instance, ws.Dir())
	}
	defer func() {
		if err := ws.Close(); err != nil {
			a.log.Warnf("workspace cleanup: %v", err)
		}
	}()
	if err := ws.CopyFile(filepath.Join(dir, instance.PricesFile), instance.PricesFile); err != nil {
		return err
	}

	s := solver.Observe(a.solver, func(c solver.Call) {
		ev := events.SolverCalled{Run: a.stamp(run), Model: c.Model, Duration: c.Duration}
		if c.Err != nil {
			ev.Err = c.Err.Error()
		}
		a.bus.Publish(ev)
	})
	sim, err := simulation.New(in, s, ws, simulation.Config{
		MaxIterations: a.cfg.Simulation.MaxIterations,
		Tolerance:     a.cfg.Simulation.Tolerance,
		OPF:           opf,
	}, a.log)
	if err != nil {
		return err
	}
	welfare := func() float64 { return sim.Criteria.Welfare }
	rec := &runlog.Recorder{Store: a.store, RunID: run.RunID, Instance: run.Instance, Welfare: welfare, Log: a.log}
	sim.System.Observe(rec.Observer(context.WithoutCancel(ctx)))
	sim.System.Observe(func(r agent.IterationReport) {
		a.bus.Publish(events.NewIterationFinished(a.stamp(run), r, welfare()))
	})

	a.bus.Publish(events.RunStarted{Run: a.stamp(run), Periods: sim.Data.T, Nodes: sim.Data.N})
	a.log.Infof("instance %s: %d periods, %d nodes, %d retailers, %d producers",
		res.Instance, sim.Data.T, sim.Data.N, len(sim.Retailers), len(sim.Producers))

	out, err := sim.Run(ctx)
	res.Outcome = out
	res.Welfare = sim.Criteria.Welfare
	if err != nil {
		return err
	}
	res.Document = sim.Document()
	if output != "" {
		if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
			return err
		}
		if err := results.Export(output, res.Document); err != nil {
			return fmt.Errorf("export %s: %w", output, err)
		}
		res.Output = output
	}
	return nil
}
