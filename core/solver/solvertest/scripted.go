// Package solvertest provides an in-process solver double.
package solvertest

import (
	"context"
	"fmt"
	"sync"

	"github.com/kilianp07/flexmarket/core/solver"
)

// Handler computes the solution of a problem.
type Handler func(p solver.Problem) (*solver.Solution, error)

// Scripted answers problems by model name. Models without handler return a
// feasible empty solution. Every call is recorded.
type Scripted struct {
	mu       sync.Mutex
	handlers map[string]Handler
	calls    []solver.Problem
}

// New returns an empty scripted solver.
func New() *Scripted { return &Scripted{handlers: map[string]Handler{}} }

// On sets the handler for model.
func (s *Scripted) On(model string, h Handler) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[model] = h
	return s
}

// Values answers model with a feasible solution holding values.
func (s *Scripted) Values(model string, objective float64, values map[string]float64) *Scripted {
	return s.On(model, func(p solver.Problem) (*solver.Solution, error) {
		cp := make(map[string]float64, len(values))
		for k, v := range values {
			cp[k] = v
		}
		return solver.NewSolution(p.Model, true, objective, cp), nil
	})
}

// Infeasible answers model with an infeasible solution.
func (s *Scripted) Infeasible(model string) *Scripted {
	return s.On(model, func(p solver.Problem) (*solver.Solution, error) {
		return solver.NewSolution(p.Model, false, 0, nil), nil
	})
}

// Solve implements solver.Solver. Inputs are written to the workspace when
// one is given.
func (s *Scripted) Solve(ctx context.Context, ws *solver.Workspace, p solver.Problem) (*solver.Solution, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if ws != nil {
		if err := ws.Write(p.Inputs...); err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	s.calls = append(s.calls, p)
	h := s.handlers[p.Model]
	s.mu.Unlock()
	if h == nil {
		sol := solver.NewSolution(p.Model, true, 0, nil)
		sol.Status = "optimal solution found"
		return sol, nil
	}
	sol, err := h(p)
	if err != nil {
		return nil, err
	}
	if sol == nil {
		return nil, fmt.Errorf("scripted %s: nil solution", p.Model)
	}
	return sol, nil
}

// Calls returns the recorded problems in call order.
func (s *Scripted) Calls() []solver.Problem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]solver.Problem(nil), s.calls...)
}

// Models returns the recorded model names in call order.
func (s *Scripted) Models() []string {
	var out []string
	for _, c := range s.Calls() {
		out = append(out, c.Model)
	}
	return out
}

// Input returns the content of the named input of the last call to model.
func (s *Scripted) Input(model, name string) (string, bool) {
	calls := s.Calls()
	for i := len(calls) - 1; i >= 0; i-- {
		if calls[i].Model != model {
			continue
		}
		for _, in := range calls[i].Inputs {
			if in.Name == name {
				return string(in.Content), true
			}
		}
		return "", false
	}
	return "", false
}
