// Package roles implements the capabilities shared by the market actors:
// imbalance responsibility (BRP), flexibility consumption (FSU) and
// flexibility provision (FSP). Actors compose the roles they need around a
// single Portfolio holding their personal state.
package roles

import (
	"context"
	"fmt"

	"github.com/kilianp07/flexmarket/core/logger"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/solver"
)

// Env gives the roles access to the solver and the trading venue of a run.
type Env struct {
	Solver    solver.Solver
	Workspace *solver.Workspace
	Platform  *market.Platform
	Log       logger.Logger
}

// Solve runs p and requires a feasible solution.
func (e *Env) Solve(ctx context.Context, p solver.Problem) (*solver.Solution, error) {
	e.Logger().Debugf("solving %s", p.Model)
	sol, err := solver.Solve(ctx, e.Solver, e.Workspace, p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", p.Model, err)
	}
	return sol, nil
}

// Logger returns the run logger, never nil.
func (e *Env) Logger() logger.Logger { return logger.OrNop(e.Log) }

// Account receives cost transfers.
type Account interface {
	AddCost(v float64)
}

// Portfolio is the personal state of an actor. Nodal series are indexed by
// bus over the whole grid; only the actor's own buses are meaningful.
type Portfolio struct {
	Name  string
	Nodes []int
	Costs float64

	Baseline  market.NodeSeries // p^b
	Proposed  market.NodeSeries // p^p
	Realized  market.NodeSeries // p
	Provided  market.NodeSeries // h, modulation activated on own offers
	Activated market.NodeSeries // u, modulation activated as buyer

	DynamicLow       market.NodeSeries // d
	DynamicHigh      market.NodeSeries // D
	MaxLowDeviation  market.NodeSeries // dpL^max
	MaxHighDeviation market.NodeSeries // dpU^max

	FlexLow  []float64 // k
	FlexHigh []float64 // K
	FullLow  []float64 // l
	FullHigh []float64 // L
}

// NewPortfolio allocates the state of an actor over a grid of n buses and t
// periods.
func NewPortfolio(name string, nodes []int, t, n int) *Portfolio {
	return &Portfolio{
		Name:             name,
		Nodes:            nodes,
		Baseline:         market.NewNodeSeries(n, t),
		Proposed:         market.NewNodeSeries(n, t),
		Realized:         market.NewNodeSeries(n, t),
		Provided:         market.NewNodeSeries(n, t),
		Activated:        market.NewNodeSeries(n, t),
		DynamicLow:       market.NewNodeSeries(n, t),
		DynamicHigh:      market.NewNodeSeries(n, t),
		MaxLowDeviation:  market.NewNodeSeries(n, t),
		MaxHighDeviation: market.NewNodeSeries(n, t),
		FlexLow:          make([]float64, n),
		FlexHigh:         make([]float64, n),
		FullLow:          make([]float64, n),
		FullHigh:         make([]float64, n),
	}
}

// AddCost implements Account.
func (p *Portfolio) AddCost(v float64) { p.Costs += v }

// header writes the period count and the node set heading every actor file.
func (p *Portfolio) header(f *solver.DataFile, t int) *solver.DataFile {
	return f.Comment("T").Row(t).Comment("N set").Ints(p.Nodes)
}

// rangesBlock writes the access bounds of the own nodes.
func (p *Portfolio) rangesBlock(f *solver.DataFile) {
	f.Comment("n, k, K, l, L")
	for _, n := range p.Nodes {
		f.Row(n, p.FlexLow[n], p.FlexHigh[n], p.FullLow[n], p.FullHigh[n])
	}
}
