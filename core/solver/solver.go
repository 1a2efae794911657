// Package solver defines the boundary between the market agents and the
// external mathematical programming engine. Agents describe a Problem (a
// model name and the data files the model reads), a Solver materializes it in
// an isolated Workspace and returns the parsed Solution.
package solver

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Input is a data file made available to the model.
type Input struct {
	Name    string
	Content []byte
}

// Problem is one optimization request.
type Problem struct {
	// Model is the model name, resolved as <Model>.zpl in the workspace.
	Model string
	// Solution is the base name of the solution file. Defaults to Model.
	Solution string
	Inputs   []Input
}

// SolutionName returns the solution base name.
func (p Problem) SolutionName() string {
	if p.Solution != "" {
		return p.Solution
	}
	return p.Model
}

// With returns a copy of p with additional inputs.
func (p Problem) With(inputs ...Input) Problem {
	p.Inputs = append(append([]Input(nil), p.Inputs...), inputs...)
	return p
}

// Solver solves problems inside a workspace. Implementations may block for
// the duration of the external process.
type Solver interface {
	Solve(ctx context.Context, ws *Workspace, p Problem) (*Solution, error)
}

// Func adapts a function to Solver.
type Func func(ctx context.Context, ws *Workspace, p Problem) (*Solution, error)

func (f Func) Solve(ctx context.Context, ws *Workspace, p Problem) (*Solution, error) {
	return f(ctx, ws, p)
}

// Solution is the parsed outcome of a solve.
type Solution struct {
	Model     string
	File      string
	Status    string
	Objective float64
	Feasible  bool
	// Debug holds backend specific diagnostics, usually the process output.
	Debug  string
	values map[string]float64
}

// NewSolution builds a solution from variable values.
func NewSolution(model string, feasible bool, objective float64, values map[string]float64) *Solution {
	if values == nil {
		values = map[string]float64{}
	}
	return &Solution{Model: model, Feasible: feasible, Objective: objective, values: values}
}

// Set assigns a variable value.
func (s *Solution) Set(name string, v float64) {
	if s.values == nil {
		s.values = map[string]float64{}
	}
	s.values[name] = v
}

// Value returns the variable value, 0 when the solver did not report it.
func (s *Solution) Value(name string) float64 { return s.values[name] }

// Has reports whether the variable was reported.
func (s *Solution) Has(name string) bool {
	_, ok := s.values[name]
	return ok
}

// Len returns the number of reported variables.
func (s *Solution) Len() int { return len(s.values) }

// Vector returns the dense vector prefix<i>suffix for i in [min, max]. Missing
// entries are zero.
func (s *Solution) Vector(max int, prefix string, min int, suffix string) []float64 {
	if max < min {
		return []float64{}
	}
	out := make([]float64, max-min+1)
	for i := min; i <= max; i++ {
		out[i-min] = s.values[prefix+strconv.Itoa(i)+suffix]
	}
	return out
}

// IsOptimal reports whether the solver proved optimality.
func (s *Solution) IsOptimal() bool { return strings.Contains(strings.ToLower(s.Status), "optimal") }

// CheckFeasible returns an InfeasibleError when no feasible point was found.
func (s *Solution) CheckFeasible() error {
	if s.Feasible {
		return nil
	}
	return &InfeasibleError{Model: s.Model, Solution: s.File, Status: s.Status, Debug: s.Debug}
}

// ErrInfeasible is matched by every InfeasibleError.
var ErrInfeasible = errors.New("solution is not feasible")

// InfeasibleError reports a solve without feasible solution.
type InfeasibleError struct {
	Model    string
	Solution string
	Status   string
	Debug    string
}

func (e *InfeasibleError) Error() string {
	return fmt.Sprintf("Solution is not feasible:\n\tModel: %s\n\tSolution file: %s\n\tStatus: %s\n%s", e.Model, e.Solution, e.Status, e.Debug)
}

func (e *InfeasibleError) Unwrap() error { return ErrInfeasible }

// ErrCall is matched by every CallError.
var ErrCall = errors.New("solver call failed")

// CallError reports a failed invocation of the external engine after every
// retry was spent.
type CallError struct {
	Model    string
	Command  string
	Output   string
	Attempts int
	Err      error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("Error calling the solver with the model %q after %d attempt(s): %v\nCommand: %s\n%s", e.Model, e.Attempts, e.Err, e.Command, e.Output)
}

func (e *CallError) Unwrap() []error { return []error{ErrCall, e.Err} }

// Solve runs p and checks that the solution is feasible.
func Solve(ctx context.Context, s Solver, ws *Workspace, p Problem) (*Solution, error) {
	sol, err := s.Solve(ctx, ws, p)
	if err != nil {
		return nil, err
	}
	if err := sol.CheckFeasible(); err != nil {
		return nil, err
	}
	return sol, nil
}

// Call describes one finished solve.
type Call struct {
	Model    string
	Duration time.Duration
	Err      error
}

// Observe wraps next and reports every call to fn.
func Observe(next Solver, fn func(Call)) Solver {
	return Func(func(ctx context.Context, ws *Workspace, p Problem) (*Solution, error) {
		start := time.Now()
		sol, err := next.Solve(ctx, ws, p)
		fn(Call{Model: p.Model, Duration: time.Since(start), Err: err})
		return sol, err
	})
}
