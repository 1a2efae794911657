package actors

import (
	"context"
	"strconv"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/roles"
)

// Producer operates flexible production units. It must offer part of its
// production as downward flexibility when obligations apply.
type Producer struct {
	provider

	// MarginalCost is c and ReservationPrice is pi^r, both multiplied by dt.
	MarginalCost     market.NodeSeries
	ReservationPrice market.NodeSeries
}

// NewProducer builds a producer from the content of its data file. dso
// receives the penalties of the producer.
func NewProducer(reg *agent.Registry, env *roles.Env, dso roles.Account, name string, raw []byte) *Producer {
	return &Producer{provider: newProvider(reg, env, dso, market.KindProducer, "producer", ProducerDataFile, name, raw)}
}

func (o *Producer) Initialize(_ context.Context, d *market.Data) error {
	nodes, k, K, err := o.read(d)
	if err != nil {
		return err
	}
	o.setup(d, o, nodes, k, K, func(n, t int) float64 { return o.ReservationPrice[n][t] })
	for _, n := range nodes {
		for t := 0; t < d.T; t++ {
			o.fsp.Alpha[n][t] = d.Model.ProductionFlexObligations
			o.fsp.Beta[n][t] = 0
		}
	}
	return nil
}

// read parses the data file: a heading row, the node list, one row
// n, t, pmin, pmax, c, pi^r per node and period, one row t, E per period
// and one row n, pmin, pmax of installed capacity per node.
func (o *Producer) read(d *market.Data) (nodes []int, k, K []float64, err error) {
	bounds := d.Model.AccessBoundsComputation
	p := instance.ParseBytes(o.Name(), o.raw)
	p.Next()
	nodes = p.Ints(p.Next())
	if err := p.Err(); err != nil {
		return nil, nil, nil, err
	}

	k = make([]float64, d.N)
	K = make([]float64, d.N)
	o.MarginalCost = market.NewNodeSeries(d.N, d.T)
	o.ReservationPrice = market.NewNodeSeries(d.N, d.T)
	if err := checkNodes(o.Name(), nodes, d.N); err != nil {
		return nil, nil, nil, err
	}
	for _, n := range nodes {
		for t := range o.ReservationPrice[n] {
			o.ReservationPrice[n][t] = d.Eps
		}
	}

	for range nodes {
		for t := 0; t < d.T; t++ {
			row := p.Next()
			n := p.Index(row, 0, 0, d.N-1)
			if bounds != market.BoundsInstalled {
				k[n] = min(k[n], p.Float(row, 2))
				K[n] = max(K[n], p.Float(row, 3))
			}
			o.MarginalCost[n][t] = p.Float(row, 4) * d.Dt
			o.ReservationPrice[n][t] = p.Float(row, 5) * d.Dt
		}
	}
	o.External = make([]float64, d.T)
	for t := 0; t < d.T; t++ {
		o.External[t] = p.Float(p.Next(), 1)
	}
	for range nodes {
		row := p.Next()
		if bounds == market.BoundsInstalled || bounds == market.BoundsPeriodic {
			n := p.Index(row, 0, 0, d.N-1)
			k[n] = p.Float(row, 1)
			K[n] = p.Float(row, 2)
		}
	}
	if err := p.Err(); err != nil {
		return nil, nil, nil, err
	}
	return nodes, k, K, nil
}

func (o *Producer) Act(ctx context.Context, d *market.Data, phase agent.Phase) error {
	if ok, err := o.act(ctx, d, phase); ok {
		return err
	}
	switch phase {
	case agent.FlexibilityOptimization:
		return o.optimizeFlexibility(ctx, d)
	case agent.Settlement:
		o.settle(d)
		for _, n := range o.Nodes() {
			for t := 0; t < d.T; t++ {
				o.pf.Costs += o.pf.Realized[n][t] * o.MarginalCost[n][t]
			}
		}
		return nil
	}
	return agent.Unknown(o.Name(), phase)
}

func (o *Producer) optimizeFlexibility(ctx context.Context, d *market.Data) error {
	sol, err := o.env.Solve(ctx, o.flexibilityProblem(d))
	if err != nil {
		return err
	}
	platform := o.env.Platform
	for _, n := range o.Nodes() {
		bus := strconv.Itoa(n) + "#"
		fM := sol.Vector(d.T, "fM#"+bus, 1, "")
		for t := range fM {
			fM[t] = -fM[t]
		}
		fP := sol.Vector(d.T, "fP#"+bus, 1, "")
		o.fsp.OfferDown[n], o.fsp.OfferUp[n] = fM, fP

		for t := 0; t < d.T; t++ {
			for _, b := range o.bids(d, n, t, fM[t], fP[t]) {
				if err := platform.RegisterSPBid(d, b); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// bids splits the offered modulations fM ≤ 0 and fP ≥ 0 at bus n and period
// t into single period bids. The downward part is first filled with the
// obligation due on the baseline, the rest is offered on the market.
func (o *Producer) bids(d *market.Data, n, t int, fM, fP float64) []*market.SPBid {
	var out []*market.SPBid
	c := o.MarginalCost[n][t]
	piR := o.ReservationPrice[n][t]
	if fM < -d.Eps {
		pb := o.pf.Baseline[n][t]
		obligation := min(0, -o.fsp.Alpha[n][t]*pb, o.pf.FullHigh[n]-pb)
		if obligation < -d.Eps {
			dsoCost := c + d.EnergyPrice[t]
			if d.Model.DSOFlexCost == market.FlexCostImbalance {
				dsoCost = -d.Eps
			}
			costs := market.Costs{ReservationCost: piR, ActivationCost: c, DSOReservationCost: d.Eps, DSOActivationCost: dsoCost}
			out = append(out, market.NewSPObligationBid(o, n, t, obligation, 0, costs))
		}
		if fM-obligation < -d.Eps {
			dsoCost := c + d.EnergyPrice[t]
			if d.Model.DSOFlexCost == market.FlexCostFull {
				dsoCost = c
			}
			costs := market.Costs{ReservationCost: piR, ActivationCost: c, DSOReservationCost: piR, DSOActivationCost: dsoCost}
			out = append(out, market.NewSPBid(o, n, t, fM-obligation, 0, costs))
		}
	}
	if fP > d.Eps {
		costs := market.Costs{ReservationCost: piR, ActivationCost: c, DSOReservationCost: piR, DSOActivationCost: c}
		out = append(out, market.NewSPBid(o, n, t, 0, fP, costs))
	}
	return out
}
