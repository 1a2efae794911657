package metrics

import "time"

// IterationEvent is one completed pass of the pipeline.
type IterationEvent struct {
	RunID         string
	Instance      string
	Iteration     int
	MaxDifference float64
	// Compared is false on the first iteration, whose difference is not
	// meaningful.
	Compared  bool
	Converged bool
	Welfare   float64
	Elapsed   time.Duration
	Time      time.Time
}

// RunEvent is a finished day.
type RunEvent struct {
	RunID      string
	Instance   string
	Converged  bool
	Failed     bool
	Iterations int
	Welfare    float64
	Elapsed    time.Duration
	Time       time.Time
}

// Sink records the progress of simulations.
type Sink interface {
	RecordIteration(ev IterationEvent) error
	RecordRun(ev RunEvent) error
}

// SolverCallEvent is one optimization problem handed to the engine.
type SolverCallEvent struct {
	RunID    string
	Instance string
	Model    string
	Duration time.Duration
	Failed   bool
	Time     time.Time
}

// SolverCallRecorder is implemented by sinks able to record solver calls.
type SolverCallRecorder interface {
	RecordSolverCall(ev SolverCallEvent) error
}

// NopSink implements Sink with no-op methods.
type NopSink struct{}

func (NopSink) RecordIteration(IterationEvent) error   { return nil }
func (NopSink) RecordRun(RunEvent) error               { return nil }
func (NopSink) RecordSolverCall(SolverCallEvent) error { return nil }

// MultiSink fans events out to several sinks.
type MultiSink struct {
	Sinks []Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...Sink) *MultiSink { return &MultiSink{Sinks: sinks} }

// RecordIteration forwards the event to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordIteration(ev IterationEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordIteration(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordRun forwards finished runs.
func (m *MultiSink) RecordRun(ev RunEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordRun(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordSolverCall forwards solver calls to the sinks supporting them.
func (m *MultiSink) RecordSolverCall(ev SolverCallEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(SolverCallRecorder); ok {
			if err := rec.RecordSolverCall(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close releases the sinks holding connections.
func Close(s Sink) {
	switch c := s.(type) {
	case *MultiSink:
		for _, sub := range c.Sinks {
			Close(sub)
		}
	case interface{ Close() }:
		c.Close()
	}
}
