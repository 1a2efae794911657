package events

import (
	"time"

	"github.com/kilianp07/flexmarket/core/agent"
)

// Kind names an event type on the wire.
type Kind string

const (
	KindRunStarted        Kind = "run_started"
	KindIterationFinished Kind = "iteration"
	KindSolverCalled      Kind = "solver_call"
	KindRunFinished       Kind = "run_finished"
)

// Run identifies the run an event belongs to.
type Run struct {
	RunID    string    `json:"run_id"`
	Instance string    `json:"instance"`
	Time     time.Time `json:"time"`
}

// Event is implemented by every event published on the bus.
type Event interface {
	Kind() Kind
	Source() Run
}

// RunStarted is published before the first iteration.
type RunStarted struct {
	Run
	Periods int `json:"periods"`
	Nodes   int `json:"nodes"`
}

func (RunStarted) Kind() Kind    { return KindRunStarted }
func (e RunStarted) Source() Run { return e.Run }

// IterationFinished is published after every iteration.
type IterationFinished struct {
	Run
	Iteration     int           `json:"iteration"`
	MaxDifference float64       `json:"max_difference"`
	Compared      bool          `json:"compared"`
	Converged     bool          `json:"converged"`
	Welfare       float64       `json:"welfare"`
	Elapsed       time.Duration `json:"elapsed"`
}

func (IterationFinished) Kind() Kind    { return KindIterationFinished }
func (e IterationFinished) Source() Run { return e.Run }

// NewIterationFinished copies an engine report.
func NewIterationFinished(run Run, r agent.IterationReport, welfare float64) IterationFinished {
	return IterationFinished{
		Run:           run,
		Iteration:     r.Iteration,
		MaxDifference: r.MaxDifference,
		Compared:      r.Compared,
		Converged:     r.Converged,
		Welfare:       welfare,
		Elapsed:       r.Elapsed,
	}
}

// SolverCalled is published after every optimization problem.
type SolverCalled struct {
	Run
	Model    string        `json:"model"`
	Duration time.Duration `json:"duration"`
	Err      string        `json:"error,omitempty"`
}

func (SolverCalled) Kind() Kind    { return KindSolverCalled }
func (e SolverCalled) Source() Run { return e.Run }

// RunFinished is published once the run returned.
type RunFinished struct {
	Run
	Converged  bool          `json:"converged"`
	Reason     string        `json:"reason"`
	Iterations int           `json:"iterations"`
	Welfare    float64       `json:"welfare"`
	Elapsed    time.Duration `json:"elapsed"`
	Err        string        `json:"error,omitempty"`
}

func (RunFinished) Kind() Kind    { return KindRunFinished }
func (e RunFinished) Source() Run { return e.Run }
