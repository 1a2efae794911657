package metrics

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/flexmarket/core/metrics"
)

// PromSink records simulation progress in Prometheus metrics.
type PromSink struct {
	iterations    *prometheus.CounterVec
	maxDifference *prometheus.GaugeVec
	welfare       *prometheus.GaugeVec
	runs          *prometheus.CounterVec
	runIterations prometheus.Histogram
	runDuration   prometheus.Histogram
	solverCalls   *prometheus.CounterVec
	solverLatency *prometheus.HistogramVec
}

// NewPromSink registers the metrics on reg. A nil registerer defaults to the
// global Prometheus registerer. Metrics already registered by another sink
// are shared.
func NewPromSink(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		iterations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flexmarket_iterations_total",
			Help: "Number of completed pipeline iterations",
		}, []string{"instance"}),
		maxDifference: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flexmarket_max_difference",
			Help: "Maximum difference between the last two iterations",
		}, []string{"instance"}),
		welfare: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "flexmarket_welfare",
			Help: "Welfare of the last iteration",
		}, []string{"instance"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flexmarket_runs_total",
			Help: "Number of finished days by outcome",
		}, []string{"outcome"}),
		runIterations: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flexmarket_run_iterations",
			Help:    "Iterations needed by a day",
			Buckets: prometheus.LinearBuckets(1, 2, 10),
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "flexmarket_run_duration_seconds",
			Help:    "Wall time of a day",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}),
		solverCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flexmarket_solver_calls_total",
			Help: "Number of optimization problems by model",
		}, []string{"model", "failed"}),
		solverLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "flexmarket_solver_call_seconds",
			Help:    "Time spent in the optimization engine",
			Buckets: prometheus.DefBuckets,
		}, []string{"model"}),
	}
	var err error
	if s.iterations, err = register(reg, s.iterations); err != nil {
		return nil, err
	}
	if s.maxDifference, err = register(reg, s.maxDifference); err != nil {
		return nil, err
	}
	if s.welfare, err = register(reg, s.welfare); err != nil {
		return nil, err
	}
	if s.runs, err = register(reg, s.runs); err != nil {
		return nil, err
	}
	if s.runIterations, err = register(reg, s.runIterations); err != nil {
		return nil, err
	}
	if s.runDuration, err = register(reg, s.runDuration); err != nil {
		return nil, err
	}
	if s.solverCalls, err = register(reg, s.solverCalls); err != nil {
		return nil, err
	}
	if s.solverLatency, err = register(reg, s.solverLatency); err != nil {
		return nil, err
	}
	return s, nil
}

// register returns the collector already registered under the same
// descriptor when there is one.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	err := reg.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, err
}

// RecordIteration updates the per instance progress metrics.
func (s *PromSink) RecordIteration(ev coremetrics.IterationEvent) error {
	s.iterations.WithLabelValues(ev.Instance).Inc()
	if ev.Compared {
		s.maxDifference.WithLabelValues(ev.Instance).Set(ev.MaxDifference)
	}
	s.welfare.WithLabelValues(ev.Instance).Set(ev.Welfare)
	return nil
}

// RecordRun counts the day under its outcome and observes its size.
func (s *PromSink) RecordRun(ev coremetrics.RunEvent) error {
	s.runs.WithLabelValues(outcome(ev)).Inc()
	s.runIterations.Observe(float64(ev.Iterations))
	s.runDuration.Observe(ev.Elapsed.Seconds())
	return nil
}

// RecordSolverCall counts the call and observes its latency.
func (s *PromSink) RecordSolverCall(ev coremetrics.SolverCallEvent) error {
	s.solverCalls.WithLabelValues(ev.Model, strconv.FormatBool(ev.Failed)).Inc()
	s.solverLatency.WithLabelValues(ev.Model).Observe(ev.Duration.Seconds())
	return nil
}

func outcome(ev coremetrics.RunEvent) string {
	switch {
	case ev.Failed:
		return "failed"
	case ev.Converged:
		return "converged"
	}
	return "capped"
}
