package actors

import (
	"context"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/roles"
	"github.com/kilianp07/flexmarket/core/solver"
)

// SubmittedConsumptionsFile holds the energy of the announced baselines per
// node of a retailer.
const SubmittedConsumptionsFile = "retailer-submittedNodalTotalConsumptions.dat"

// Retailer supplies flexible loads. It offers energy constrained
// modulations of the consumption of each node.
type Retailer struct {
	provider

	// ReservationPrice is pi^r and RetailPrice pi^F, both multiplied by dt.
	ReservationPrice float64
	RetailPrice      float64
}

// NewRetailer builds a retailer from the content of its data file. dso
// receives the penalties of the retailer.
func NewRetailer(reg *agent.Registry, env *roles.Env, dso roles.Account, name string, raw []byte) *Retailer {
	return &Retailer{provider: newProvider(reg, env, dso, market.KindRetailer, "retailer", RetailerDataFile, name, raw)}
}

func (o *Retailer) Initialize(_ context.Context, d *market.Data) error {
	nodes, k, K, err := o.read(d)
	if err != nil {
		return err
	}
	o.setup(d, o, nodes, k, K, func(int, int) float64 { return o.ReservationPrice })
	for _, n := range nodes {
		for t := 0; t < d.T; t++ {
			o.fsp.Alpha[n][t] = 0
			o.fsp.Beta[n][t] = d.Model.ConsumptionFlexObligations
		}
	}
	return nil
}

// read parses the data file: a row _, pi^r, pi^F, the node list, one row
// n, t, pmin, pmax per node and period, one row n, _, pmin, pmax of
// installed capacity per node and one row t, E per period.
func (o *Retailer) read(d *market.Data) (nodes []int, k, K []float64, err error) {
	bounds := d.Model.AccessBoundsComputation
	p := instance.ParseBytes(o.Name(), o.raw)
	row := p.Next()
	o.ReservationPrice = p.Float(row, 1) * d.Dt
	o.RetailPrice = p.Float(row, 2) * d.Dt
	nodes = p.Ints(p.Next())
	if err := p.Err(); err != nil {
		return nil, nil, nil, err
	}
	if err := checkNodes(o.Name(), nodes, d.N); err != nil {
		return nil, nil, nil, err
	}

	k = make([]float64, d.N)
	K = make([]float64, d.N)
	for range nodes {
		for t := 0; t < d.T; t++ {
			row := p.Next()
			if bounds != market.BoundsInstalled {
				n := p.Index(row, 0, 0, d.N-1)
				k[n] = min(k[n], p.Float(row, 2))
				K[n] = max(K[n], p.Float(row, 3))
			}
		}
	}
	for range nodes {
		row := p.Next()
		if bounds == market.BoundsInstalled || bounds == market.BoundsPeriodic {
			n := p.Index(row, 0, 0, d.N-1)
			k[n] = p.Float(row, 2)
			K[n] = p.Float(row, 3)
		}
	}
	o.External = make([]float64, d.T)
	for t := 0; t < d.T; t++ {
		o.External[t] = p.Float(p.Next(), 1)
	}
	if err := p.Err(); err != nil {
		return nil, nil, nil, err
	}
	return nodes, k, K, nil
}

func (o *Retailer) Act(ctx context.Context, d *market.Data, phase agent.Phase) error {
	if ok, err := o.act(ctx, d, phase); ok {
		return err
	}
	switch phase {
	case agent.FlexibilityOptimization:
		return o.optimizeFlexibility(ctx, d)
	case agent.Settlement:
		o.settle(d)
		retailing := floats.Sum(o.brp.RealizedTotal) * o.RetailPrice
		o.env.Logger().Debugf("Retailing benefits of %s: %g", o.Name(), retailing)
		o.pf.Costs += retailing
		return nil
	}
	return agent.Unknown(o.Name(), phase)
}

func (o *Retailer) optimizeFlexibility(ctx context.Context, d *market.Data) error {
	sol, err := o.env.Solve(ctx, o.flexibilityProblem(d, o.submittedConsumptionsFile(d)))
	if err != nil {
		return err
	}
	platform := o.env.Platform
	for _, n := range o.Nodes() {
		bus := strconv.Itoa(n) + "#"
		fM := sol.Vector(d.T, "fM#"+bus, 1, "")
		fP := sol.Vector(d.T, "fP#"+bus, 1, "")
		p0 := sol.Vector(d.T, "p0#"+bus, 1, "")
		obligations := sol.Value("obligations#" + strconv.Itoa(n))

		o.fsp.OfferUp[n] = fP
		o.fsp.OfferDown[n] = make([]float64, d.T)
		floats.ScaleTo(o.fsp.OfferDown[n], -1, fM)

		for _, b := range o.bids(d, n, fM, fP, p0, obligations) {
			if err := platform.RegisterECBid(d, b); err != nil {
				return err
			}
		}
	}
	return nil
}

// bids builds the energy constrained offers of bus n from the modulation
// volumes fM ≥ 0 and fP ≥ 0 and the shifted consumption p0. The
// reservation cost covers the energy shift and is split between the
// obligation and the market offer in proportion to their volume.
func (o *Retailer) bids(d *market.Data, n int, fM, fP, p0 []float64, obligations float64) []*market.ECBid {
	var out []*market.ECBid
	T := float64(d.T)
	volume := floats.Sum(fM) + floats.Sum(fP)
	shift := 0.0
	for t := 0; t < d.T; t++ {
		shift += d.EnergyPrice[t] * (o.pf.Baseline[n][t] - p0[t])
	}
	reservation := max(d.Eps, shift+o.ReservationPrice*volume/2)

	if obligations > d.Eps {
		b := market.NewECObligationBid(o, n, d.T, market.DefaultCosts(d.Eps))
		b.Min = constant(d.T, -obligations)
		b.Max = constant(d.T, obligations)
		b.ReservationCost = max(d.Eps, obligations*2*T/max(volume, d.Eps)*reservation)
		b.DSOReservationCost = d.Eps
		out = append(out, b)
	} else if obligations < 0 {
		obligations = 0
	}

	b := market.NewECBid(o, n, d.T, market.DefaultCosts(d.Eps))
	for t := 0; t < d.T; t++ {
		b.Min[t] = -fM[t] + obligations
		b.Max[t] = fP[t] - obligations
		if b.Min[t] > -d.Eps {
			b.Min[t] = 0
		}
		if b.Max[t] < d.Eps {
			b.Max[t] = 0
		}
	}
	if volume <= d.Eps {
		b.ReservationCost = d.Eps
	} else {
		b.ReservationCost = max(d.Eps, (volume-obligations*2*T)/volume*reservation)
	}
	b.DSOReservationCost = b.ReservationCost
	return append(out, b)
}

func (o *Retailer) submittedConsumptionsFile(d *market.Data) solver.Input {
	f := solver.NewDataFile(SubmittedConsumptionsFile).
		Comment("N set").Ints(o.Nodes()).
		Comment("n, D^b")
	for _, n := range o.Nodes() {
		f.Row(n, floats.Sum(o.pf.Baseline[n])*d.Dt)
	}
	return f.Input()
}
