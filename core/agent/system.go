package agent

import (
	"context"
	"fmt"
	"math"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/flexmarket/core/logger"
)

const (
	// DefaultMaxIterations caps the convergence loop.
	DefaultMaxIterations = 20
	// DefaultAccuracy is the convergence threshold on status variables.
	DefaultAccuracy = 1e-5
)

// Outcome summarizes a finished run.
type Outcome struct {
	Converged     bool
	Reason        string
	Iterations    int
	MaxDifference float64
}

// IterationReport is handed to observers after every iteration.
type IterationReport struct {
	Iteration     int
	MaxDifference float64
	// Compared is false on the first iteration, when no previous snapshot
	// exists and MaxDifference is meaningless.
	Compared      bool
	Converged     bool
	Elapsed       time.Duration
}

// Observer receives iteration reports. Observers must not mutate the state.
type Observer func(IterationReport)

// Option configures a System.
type Option func(*options)

type options struct {
	maxIterations int
	accuracy      float64
	log           logger.Logger
}

// WithMaxIterations overrides the iteration cap. Values below one are raised
// to one.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		if n < 1 {
			n = 1
		}
		o.maxIterations = n
	}
}

// WithAccuracy overrides the convergence threshold.
func WithAccuracy(eps float64) Option {
	return func(o *options) { o.accuracy = eps }
}

// WithLogger sets the logger used for iteration messages.
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

type snapshot map[string][]float64

// System drives the layers until the declared status variables stop moving.
type System[D any] struct {
	Data D

	stages    []Stage[D]
	global    []StatusVariable
	observers []Observer

	maxIterations int
	accuracy      float64
	log           logger.Logger

	iterations    int
	maxDifference float64
	history       []snapshot
}

// NewSystem builds a system over data.
func NewSystem[D any](data D, opts ...Option) *System[D] {
	o := options{maxIterations: DefaultMaxIterations, accuracy: DefaultAccuracy, log: logger.NopLogger{}}
	for _, opt := range opts {
		opt(&o)
	}
	return &System[D]{
		Data:          data,
		maxIterations: o.maxIterations,
		accuracy:      o.accuracy,
		log:           o.log,
	}
}

// AddStage appends a stage to the pipeline.
func (s *System[D]) AddStage(st Stage[D]) { s.stages = append(s.stages, st) }

// Stages returns the pipeline in execution order.
func (s *System[D]) Stages() []Stage[D] { return s.stages }

// AddStatusVariable registers a variable of the shared state in the
// convergence check.
func (s *System[D]) AddStatusVariable(v StatusVariable) { s.global = append(s.global, v) }

// Observe registers an iteration observer.
func (s *System[D]) Observe(o Observer) { s.observers = append(s.observers, o) }

// Iterations returns the number of completed iterations of the last run.
func (s *System[D]) Iterations() int { return s.iterations }

// MaxDifference returns the last computed difference between snapshots.
func (s *System[D]) MaxDifference() float64 { return s.maxDifference }

// Accuracy returns the convergence threshold.
func (s *System[D]) Accuracy() float64 { return s.accuracy }

// SetAccuracy changes the convergence threshold, used when the instance
// defines its own tolerance.
func (s *System[D]) SetAccuracy(eps float64) { s.accuracy = eps }

// Agents returns the distinct agents of the pipeline in first occurrence
// order.
func (s *System[D]) Agents() []Agent[D] {
	seen := make(map[ID]bool)
	var out []Agent[D]
	for _, st := range s.stages {
		for _, a := range st.Agents() {
			if seen[a.ID()] {
				continue
			}
			seen[a.ID()] = true
			out = append(out, a)
		}
	}
	return out
}

// Run initializes every agent once then iterates until convergence or until
// the iteration cap.
func (s *System[D]) Run(ctx context.Context) (Outcome, error) {
	s.iterations = 0
	s.maxDifference = 0
	s.history = nil
	for _, a := range s.Agents() {
		if err := a.Initialize(ctx, s.Data); err != nil {
			return Outcome{}, fmt.Errorf("initialize %s: %w", a.Name(), err)
		}
	}
	for {
		start := time.Now()
		for _, st := range s.stages {
			if err := st.Act(ctx, s.Data); err != nil {
				return s.outcome(false, ""), err
			}
		}
		reason, err := s.HasConverged()
		if err != nil {
			return s.outcome(false, ""), err
		}
		s.notify(reason != "", time.Since(start))
		if reason != "" {
			return s.outcome(true, reason), nil
		}
		s.iterations++
		if s.iterations >= s.maxIterations {
			return s.outcome(false, fmt.Sprintf("Maximum number of iterations reached (%d).", s.iterations)), nil
		}
	}
}

func (s *System[D]) outcome(converged bool, reason string) Outcome {
	return Outcome{Converged: converged, Reason: reason, Iterations: s.iterations, MaxDifference: s.maxDifference}
}

func (s *System[D]) notify(converged bool, elapsed time.Duration) {
	r := IterationReport{
		Iteration:     s.iterations,
		MaxDifference: s.maxDifference,
		Compared:      len(s.history) >= 2,
		Converged:     converged,
		Elapsed:       elapsed,
	}
	for _, o := range s.observers {
		o(r)
	}
}

// HasConverged snapshots the status variables and compares them with the
// previous snapshot. It returns the convergence message, or an empty string
// while the system keeps moving.
func (s *System[D]) HasConverged() (string, error) {
	snap, err := s.snapshot()
	if err != nil {
		return "", err
	}
	s.history = append(s.history, snap)
	if len(s.history) > 2 {
		s.history = s.history[len(s.history)-2:]
	}
	if len(s.history) < 2 {
		s.log.Infof("Iteration %d", s.iterations+1)
		return "", nil
	}
	last, prev := s.history[1], s.history[0]
	diff := 0.0
	for key, cur := range last {
		old, ok := prev[key]
		if !ok {
			return "", fmt.Errorf("%w: %s missing from previous snapshot", ErrStatusVariable, key)
		}
		if len(old) != len(cur) {
			return "", fmt.Errorf("%w: %s length changed from %d to %d", ErrStatusVariable, key, len(old), len(cur))
		}
		if len(cur) == 0 {
			continue
		}
		diff = math.Max(diff, floats.Distance(cur, old, math.Inf(1)))
	}
	for key := range prev {
		if _, ok := last[key]; !ok {
			return "", fmt.Errorf("%w: %s missing from last snapshot", ErrStatusVariable, key)
		}
	}
	s.maxDifference = diff
	s.log.Infof("Maximum difference : %g", diff)
	if diff <= s.accuracy {
		return fmt.Sprintf("System converged after %d iterations !", s.iterations), nil
	}
	s.log.Infof("Iteration %d", s.iterations+1)
	return "", nil
}

func (s *System[D]) snapshot() (snapshot, error) {
	snap := make(snapshot)
	add := func(owner string, vars []StatusVariable) error {
		for _, v := range vars {
			key := owner + "/" + v.Name
			if _, dup := snap[key]; dup {
				return fmt.Errorf("%w: %s declared twice", ErrStatusVariable, key)
			}
			snap[key] = append([]float64(nil), v.Value()...)
		}
		return nil
	}
	if err := add("general", s.global); err != nil {
		return nil, err
	}
	for _, a := range s.Agents() {
		sa, ok := a.(StateAgent[D])
		if !ok {
			continue
		}
		if err := add(a.Name(), sa.StatusVariables()); err != nil {
			return nil, err
		}
	}
	return snap, nil
}
