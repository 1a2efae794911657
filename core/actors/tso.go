package actors

import (
	"context"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/roles"
	"github.com/kilianp07/flexmarket/core/solver"
)

// TSOName is the name of the transmission system operator.
const TSOName = "TSO"

// TSO is the transmission system operator. It needs reserves on every node
// and buys flexibility to compensate the system imbalance.
type TSO struct {
	agent.Base
	env *roles.Env
	raw []byte

	pf  *roles.Portfolio
	fsu *roles.FSU

	UpReservePrice   float64   // pi^S+
	DownReservePrice float64   // pi^S-
	UpNeeds          []float64 // R+
	DownNeeds        []float64 // R-
	Imbalance        []float64 // E
}

// NewTSO builds the TSO from the content of tso.dat.
func NewTSO(reg *agent.Registry, env *roles.Env, raw []byte) *TSO {
	return &TSO{Base: agent.NewBase(reg, TSOName, nil), env: env, raw: raw}
}

func (o *TSO) Kind() market.Kind { return market.KindTSO }

// Costs returns the costs of the iteration.
func (o *TSO) Costs() float64 { return o.pf.Costs }

// FSU exposes the flexibility purchases.
func (o *TSO) FSU() *roles.FSU { return o.fsu }

func (o *TSO) Initialize(_ context.Context, d *market.Data) error {
	o.SetNodes(d.Nodes())
	o.pf = roles.NewPortfolio(o.Name(), o.Nodes(), d.T, d.N)
	o.fsu = roles.NewFSU(o.pf, o)
	o.fsu.Initialize(d, o.env.Platform, o)

	o.UpNeeds = make([]float64, d.T)
	o.DownNeeds = make([]float64, d.T)
	o.Imbalance = make([]float64, d.T)

	p := instance.ParseBytes(TSODataFile, o.raw)
	row := p.Next()
	o.UpReservePrice = p.Float(row, 1) * d.Dt
	o.DownReservePrice = p.Float(row, 2) * d.Dt
	for i := 0; i < d.T; i++ {
		row := p.Next()
		t := p.Index(row, 0, 1, d.T) - 1
		o.UpNeeds[t] = p.Float(row, 1)
		o.DownNeeds[t] = p.Float(row, 2)
		o.Imbalance[t] = p.Float(row, 3)
		d.SystemImbalance[t] = -o.Imbalance[t]
	}
	return p.Err()
}

// StatusVariables returns the costs.
func (o *TSO) StatusVariables() []agent.StatusVariable {
	return []agent.StatusVariable{agent.Scalar("costs", &o.pf.Costs)}
}

func (o *TSO) Act(ctx context.Context, d *market.Data, phase agent.Phase) error {
	switch phase {
	case agent.FlexibilityNeeds:
		o.pf.Costs = 0
		for _, n := range o.Nodes() {
			for t := 0; t < d.T; t++ {
				d.UpRequired[n][t] += o.UpNeeds[t]
				d.DownRequired[n][t] += o.DownNeeds[t]
			}
		}
		return nil
	case agent.FlexibilityActivationRequesting:
		return o.activate(ctx, d)
	}
	return agent.Unknown(o.Name(), phase)
}

func (o *TSO) activate(ctx context.Context, d *market.Data) error {
	// Reserves are valued on the contracts of the previous call.
	f := o.fsu
	for t := 0; t < d.T; t++ {
		o.pf.Costs -= o.UpReservePrice*min(f.ContractedUp[t], o.UpNeeds[t]) +
			o.DownReservePrice*max(f.ContractedDown[t], o.DownNeeds[t])
	}
	p := solver.Problem{Model: "TSO-flexActivation", Inputs: []solver.Input{raw(TSODataFile, o.raw)}}
	if _, err := f.RequestActivation(ctx, o.env, d, p); err != nil {
		return err
	}
	for t := 0; t < d.T; t++ {
		o.pf.Costs -= d.UpImbalancePrice[t]*f.ActivatedUp[t] + d.DownImbalancePrice[t]*f.ActivatedDown[t]
	}
	return nil
}

// EvaluateFlexibility implements market.FSU.
func (o *TSO) EvaluateFlexibility(ctx context.Context, d *market.Data, books []solver.Input) error {
	p := solver.Problem{
		Model:  "TSO-flexEvaluation",
		Inputs: append([]solver.Input{raw(TSODataFile, o.raw)}, books...),
	}
	return o.fsu.EvaluateAndRequest(ctx, o.env, d, p)
}
