package roles

import (
	"context"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/solver"
)

// BRP is the balance responsible party role: it announces baselines and is
// charged for its imbalance.
type BRP struct {
	pf *Portfolio

	Imbalance      []float64 // I
	BaselineTotal  []float64 // P^b
	CorrectedTotal []float64 // P^r
	RealizedTotal  []float64 // P
	ProposedTotal  []float64 // P^p
}

// NewBRP attaches the role to pf.
func NewBRP(pf *Portfolio) *BRP { return &BRP{pf: pf} }

// Initialize allocates the per period totals.
func (b *BRP) Initialize(d *market.Data) {
	b.Imbalance = make([]float64, d.T)
	b.BaselineTotal = make([]float64, d.T)
	b.CorrectedTotal = make([]float64, d.T)
	b.RealizedTotal = make([]float64, d.T)
	b.ProposedTotal = make([]float64, d.T)
}

// StatusVariables returns P^b, P^r and I.
func (b *BRP) StatusVariables() []agent.StatusVariable {
	return []agent.StatusVariable{
		agent.Vector("P^b", &b.BaselineTotal),
		agent.Vector("P^r", &b.CorrectedTotal),
		agent.Vector("I", &b.Imbalance),
	}
}

// OptimizeBaseline solves the baseline problem. A proposal only publishes
// p^p, otherwise the baseline p^b is announced and its energy cost charged.
func (b *BRP) OptimizeBaseline(ctx context.Context, env *Env, d *market.Data, p solver.Problem, proposal bool) error {
	sol, err := env.Solve(ctx, p)
	if err != nil {
		return err
	}
	pf := b.pf
	if proposal {
		b.ProposedTotal = sol.Vector(d.T, "Pa#", 1, "")
		for _, n := range pf.Nodes {
			baseline := sol.Vector(d.T, "pa#"+strconv.Itoa(n)+"#", 1, "")
			copy(pf.Proposed[n], baseline)
			if d.Proposed != nil {
				floats.Add(d.Proposed[n], baseline)
			}
		}
		return nil
	}
	b.BaselineTotal = sol.Vector(d.T, "Pa#", 1, "")
	energy := -floats.Dot(b.BaselineTotal, d.EnergyPrice)
	pf.Costs += energy
	env.Logger().Debugf("%s's energy costs: %g", pf.Name, energy)
	for _, n := range pf.Nodes {
		baseline := sol.Vector(d.T, "pa#"+strconv.Itoa(n)+"#", 1, "")
		copy(pf.Baseline[n], baseline)
		floats.Add(d.Baseline[n], baseline)
	}
	return nil
}

// OptimizeImbalance solves the real time position problem and publishes the
// corrected baseline p^r.
func (b *BRP) OptimizeImbalance(ctx context.Context, env *Env, d *market.Data, p solver.Problem) error {
	sol, err := env.Solve(ctx, p)
	if err != nil {
		return err
	}
	b.Imbalance = sol.Vector(d.T, "I#", 1, "")
	b.CorrectedTotal = sol.Vector(d.T, "P#", 1, "")
	for _, n := range b.pf.Nodes {
		copy(b.pf.Realized[n], sol.Vector(d.T, "p#"+strconv.Itoa(n)+"#", 1, ""))
		floats.Add(d.Corrected[n], b.pf.Realized[n])
	}
	return nil
}

// Settle accounts for shedding and charges the imbalance. Being imbalanced in
// the direction of the system imbalance is charged, the opposite direction is
// rewarded at the same price.
func (b *BRP) Settle(d *market.Data) {
	pf := b.pf
	b.RealizedTotal = make([]float64, d.T)
	for t := 0; t < d.T; t++ {
		for _, n := range pf.Nodes {
			if d.IsShed(n, t) {
				b.Imbalance[t] -= pf.Baseline[n][t] + pf.Provided[n][t] + pf.Activated[n][t]
				pf.Realized[n][t] = 0
				continue
			}
			p := pf.Realized[n][t]
			b.RealizedTotal[t] += p
			if p > 0 {
				d.Production[t] += p
			} else {
				d.Consumption[t] += p
			}
		}
	}
	for t := 0; t < d.T; t++ {
		i := b.Imbalance[t]
		d.Imbalance[t] += i
		si := d.SystemImbalance[t]
		if i >= 0 {
			if si > 0 {
				pf.Costs += i * d.UpImbalancePrice[t]
			} else {
				pf.Costs -= i * d.UpImbalancePrice[t]
			}
		} else {
			if si > 0 {
				pf.Costs += i * d.DownImbalancePrice[t]
			} else {
				pf.Costs -= i * d.DownImbalancePrice[t]
			}
		}
	}
}

// BaselinesFile renders the announced baselines.
func (b *BRP) BaselinesFile(name string, d *market.Data) solver.Input {
	f := solver.NewDataFile(name)
	b.pf.header(f, d.T).Comment("T, Pb")
	for t := 0; t < d.T; t++ {
		f.Row(t+1, b.BaselineTotal[t])
	}
	f.Comment("n, t, pb")
	for _, n := range b.pf.Nodes {
		for t := 0; t < d.T; t++ {
			f.Row(n, t+1, b.pf.Baseline[n][t])
		}
	}
	return f.Input()
}

// TotalImbalance is the absolute imbalance energy.
func (b *BRP) TotalImbalance(d *market.Data) float64 {
	s := 0.0
	for _, v := range b.Imbalance {
		if v < 0 {
			v = -v
		}
		s += v
	}
	return s * d.Dt
}
