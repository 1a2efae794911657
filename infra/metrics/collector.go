package metrics

import (
	"context"

	"github.com/kilianp07/flexmarket/core/events"
	"github.com/kilianp07/flexmarket/core/logger"
	coremetrics "github.com/kilianp07/flexmarket/core/metrics"
	"github.com/kilianp07/flexmarket/internal/eventbus"
)

// StartEventCollector subscribes to the event bus and records metrics for
// events. It stops when the context is canceled or the bus is closed; the
// returned channel is closed once the collector returned.
func StartEventCollector(ctx context.Context, bus *eventbus.TypedBus[events.Event], sink coremetrics.Sink, log logger.Logger) <-chan struct{} {
	done := make(chan struct{})
	if bus == nil || sink == nil {
		close(done)
		return done
	}
	log = logger.OrNop(log)
	sub := bus.Subscribe()
	go func() {
		defer close(done)
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := record(sink, ev); err != nil {
					log.Warnf("metrics %s: %v", ev.Kind(), err)
				}
			}
		}
	}()
	return done
}

func record(sink coremetrics.Sink, ev events.Event) error {
	switch e := ev.(type) {
	case events.IterationFinished:
		return sink.RecordIteration(coremetrics.IterationEvent{
			RunID:         e.RunID,
			Instance:      e.Instance,
			Iteration:     e.Iteration,
			MaxDifference: e.MaxDifference,
			Compared:      e.Compared,
			Converged:     e.Converged,
			Welfare:       e.Welfare,
			Elapsed:       e.Elapsed,
			Time:          e.Time,
		})
	case events.RunFinished:
		return sink.RecordRun(coremetrics.RunEvent{
			RunID:      e.RunID,
			Instance:   e.Instance,
			Converged:  e.Converged,
			Failed:     e.Err != "",
			Iterations: e.Iterations,
			Welfare:    e.Welfare,
			Elapsed:    e.Elapsed,
			Time:       e.Time,
		})
	case events.SolverCalled:
		if r, ok := sink.(coremetrics.SolverCallRecorder); ok {
			return r.RecordSolverCall(coremetrics.SolverCallEvent{
				RunID:    e.RunID,
				Instance: e.Instance,
				Model:    e.Model,
				Duration: e.Duration,
				Failed:   e.Err != "",
				Time:     e.Time,
			})
		}
	}
	return nil
}
