package actors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/roles"
	"github.com/kilianp07/flexmarket/core/solver"
)

// DSOName is the name of the distribution system operator.
const DSOName = "DSO"

// Solver inputs written by the DSO.
const (
	BaselinesFile      = "baselines.dat"
	BaselinesFullFile  = "baselines-full.dat"
	AccessRequestsFile = "accessRequests.dat"
)

// MinCurtail is the minimal curtailment announced with access requests.
const MinCurtail = 0.1

// ErrIllegalAccessBound is returned when a grid user requests a positive
// lower or a negative upper access bound.
var ErrIllegalAccessBound = errors.New("illegal access bound request")

// LineSeries are per line results. Index l-1 holds line l.
type LineSeries struct {
	CapacityNeed  [][]float64 // dC
	BaselineFlow  [][]float64 // f^b
	Flow          [][]float64 // f
	CorrectedFlow [][]float64 // f^r
	FlowViolation [][]float64

	// Linear OPF only.
	P          [][]float64
	Q          [][]float64
	CorrectedP [][]float64
	CorrectedQ [][]float64
	BaselineP  [][]float64
	BaselineQ  [][]float64
}

// BusSeries are per bus results of the linear OPF.
type BusSeries struct {
	V                market.NodeSeries
	Phi              market.NodeSeries
	CorrectedV       market.NodeSeries
	CorrectedPhi     market.NodeSeries
	BaselineV        market.NodeSeries
	BaselinePhi      market.NodeSeries
	VoltageViolation market.NodeSeries
}

// DSO operates the distribution grid: it negotiates access bounds, computes
// flexibility needs and dynamic ranges, buys flexibility and operates the
// network in real time.
type DSO struct {
	agent.Base
	env           *roles.Env
	network       []byte
	qualifiedFlex []byte
	users         []GridUser

	pf  *roles.Portfolio
	fsu *roles.FSU

	Network   *Network
	UpNeeds   []float64 // R+
	DownNeeds []float64 // R-
	Imbalance []float64 // I

	ProtectionsCost float64
	SheddingCosts   float64

	Lines LineSeries
	Buses BusSeries
}

// NewDSO builds the DSO from the raw network and qualified flexibility
// files.
func NewDSO(reg *agent.Registry, env *roles.Env, network, qualifiedFlex []byte) *DSO {
	return &DSO{Base: agent.NewBase(reg, DSOName, nil), env: env, network: network, qualifiedFlex: qualifiedFlex}
}

func (o *DSO) Kind() market.Kind { return market.KindDSO }

// SetGridUsers sets the actors whose access bounds are negotiated.
func (o *DSO) SetGridUsers(users ...GridUser) { o.users = users }

// GridUsers returns the actors connected to the grid.
func (o *DSO) GridUsers() []GridUser { return o.users }

// Costs returns the costs of the iteration.
func (o *DSO) Costs() float64 { return o.pf.Costs }

// AddCost implements roles.Account.
func (o *DSO) AddCost(v float64) { o.pf.AddCost(v) }

// FSU exposes the flexibility purchases.
func (o *DSO) FSU() *roles.FSU { return o.fsu }

func (o *DSO) Initialize(_ context.Context, d *market.Data) error {
	nw, err := ReadNetwork(o.network)
	if err != nil {
		return err
	}
	if nw.N != d.N {
		return fmt.Errorf("%s: network has %d nodes, instance has %d", o.Name(), nw.N, d.N)
	}
	o.Network = nw
	o.SetNodes(d.Nodes())
	o.pf = roles.NewPortfolio(o.Name(), o.Nodes(), d.T, d.N)
	o.fsu = roles.NewFSU(o.pf, o)
	o.fsu.Initialize(d, o.env.Platform, o)

	o.UpNeeds = make([]float64, d.T)
	o.DownNeeds = make([]float64, d.T)
	o.Imbalance = make([]float64, d.T)

	lines := func() [][]float64 { return market.NewNodeSeries(nw.L, d.T) }
	o.Lines = LineSeries{
		CapacityNeed: lines(), BaselineFlow: lines(), Flow: lines(), CorrectedFlow: lines(), FlowViolation: lines(),
	}
	if d.OPF == market.OPFLinear {
		o.Lines.P, o.Lines.Q = lines(), lines()
		o.Lines.CorrectedP, o.Lines.CorrectedQ = lines(), lines()
		o.Lines.BaselineP, o.Lines.BaselineQ = lines(), lines()
		buses := func() market.NodeSeries { return market.NewNodeSeries(d.N, d.T) }
		o.Buses = BusSeries{
			V: buses(), Phi: buses(), CorrectedV: buses(), CorrectedPhi: buses(),
			BaselineV: buses(), BaselinePhi: buses(), VoltageViolation: buses(),
		}
	}
	return nil
}

// StatusVariables returns R+, R-, costs and I.
func (o *DSO) StatusVariables() []agent.StatusVariable {
	return []agent.StatusVariable{
		agent.Vector("R+", &o.UpNeeds),
		agent.Vector("R-", &o.DownNeeds),
		agent.Scalar("costs", &o.pf.Costs),
		agent.Vector("I", &o.Imbalance),
	}
}

func (o *DSO) Act(ctx context.Context, d *market.Data, phase agent.Phase) error {
	o.env.Logger().Debugf("%s: %s", o.Name(), phase)
	switch phase {
	case agent.AccessAgreement:
		return o.accessAgreement(ctx, d)
	case agent.DynamicRangesComputation:
		if err := o.capacityNeeds(ctx, d, true); err != nil {
			return err
		}
		return o.flexNeedsAndRanges(ctx, d)
	case agent.FlexibilityNeeds:
		o.pf.Costs = 0
		if !d.Model.DynamicBaseline() {
			if err := o.capacityNeeds(ctx, d, false); err != nil {
				return err
			}
		}
		if d.Model.AccessRestriction == market.AccessDynamic {
			return o.flexNeedsAndRanges(ctx, d)
		}
		return o.flexNeeds(ctx, d)
	case agent.FlexibilityActivationRequesting:
		return o.activate(ctx, d)
	case agent.Operation:
		return o.operate(ctx, d)
	case agent.Settlement:
		o.settle(d)
		return nil
	}
	return agent.Unknown(o.Name(), phase)
}

// write stores inputs read by later problems of the iteration.
func (o *DSO) write(inputs ...solver.Input) error {
	if o.env.Workspace == nil {
		return nil
	}
	return o.env.Workspace.Write(inputs...)
}

func (o *DSO) model(d *market.Data, name string) string { return d.OPF.Prefix() + name }

func (o *DSO) inputs(qualified bool) []solver.Input {
	in := []solver.Input{raw(NetworkDataFile, o.network)}
	if qualified {
		in = append(in, raw(QualifiedFlex, o.qualifiedFlex))
	}
	return in
}

func (o *DSO) accessAgreement(ctx context.Context, d *market.Data) error {
	g := make([]float64, d.N)
	G := make([]float64, d.N)
	for _, u := range o.users {
		pf := u.Portfolio()
		for _, n := range u.Nodes() {
			if pf.FlexLow[n] > 0 {
				return fmt.Errorf("%w g of %s: %g", ErrIllegalAccessBound, u.Name(), pf.FlexLow[n])
			}
			if pf.FlexHigh[n] < 0 {
				return fmt.Errorf("%w G of %s: %g", ErrIllegalAccessBound, u.Name(), pf.FlexHigh[n])
			}
			g[n] += pf.FlexLow[n]
			G[n] += pf.FlexHigh[n]
		}
	}
	d.RequestedLow, d.RequestedHigh = g, G
	requests := o.accessRequestsFile(d)
	if err := o.write(requests); err != nil {
		return err
	}

	restriction := d.Model.AccessRestriction
	switch restriction {
	case market.AccessFlexible, market.AccessConservative, market.AccessSafe, market.AccessDynamic, market.AccessDynamicBaseline:
		p := solver.Problem{
			Model:    o.model(d, "accessAgreement"),
			Solution: "DSO-accessAgreement",
			Inputs:   append(o.inputs(false), requests),
		}
		sol, err := o.env.Solve(ctx, p)
		if err != nil {
			return err
		}
		dg := sol.Vector(d.N-1, "dg#", 0, "")
		dG := sol.Vector(d.N-1, "dG#", 0, "")
		d.AgreedLow = make([]float64, d.N)
		d.AgreedHigh = make([]float64, d.N)
		for n := 0; n < d.N; n++ {
			d.AgreedLow[n] = g[n] + dg[n]
			d.AgreedHigh[n] = G[n] - dG[n]
		}
		d.FullLow = append([]float64(nil), d.AgreedLow...)
		d.FullHigh = append([]float64(nil), d.AgreedHigh...)
		if d.Model.RestrictsFlexibility() {
			d.FlexLow = append([]float64(nil), d.AgreedLow...)
			d.FlexHigh = append([]float64(nil), d.AgreedHigh...)
		} else {
			d.FlexLow = append([]float64(nil), g...)
			d.FlexHigh = append([]float64(nil), G...)
		}
	case market.AccessNone:
		for _, dst := range []*[]float64{&d.AgreedLow, &d.FlexLow, &d.FullLow} {
			*dst = append([]float64(nil), g...)
		}
		for _, dst := range []*[]float64{&d.AgreedHigh, &d.FlexHigh, &d.FullHigh} {
			*dst = append([]float64(nil), G...)
		}
	default:
		return fmt.Errorf("%w: accessRestriction %q", market.ErrInvalidOption, restriction)
	}

	for n := 0; n < d.N; n++ {
		for t := 0; t < d.T; t++ {
			d.DynamicLow[n][t] = d.FlexLow[n]
			d.DynamicHigh[n][t] = d.FlexHigh[n]
		}
	}

	restricts := d.Model.RestrictsFlexibility()
	for _, u := range o.users {
		pf := u.Portfolio()
		for _, n := range u.Nodes() {
			if gap := g[n] - d.AgreedLow[n]; gap < -d.Eps && g[n] != 0 {
				// Curtailed in proportion to the share of the node request.
				pf.FullLow[n] = min(0, pf.FlexLow[n]-gap*pf.FlexLow[n]/g[n])
				if restricts {
					pf.FlexLow[n] = pf.FullLow[n]
				}
			} else {
				pf.FullLow[n] = pf.FlexLow[n]
			}
			if gap := G[n] - d.AgreedHigh[n]; gap > d.Eps && G[n] != 0 {
				pf.FullHigh[n] = max(0, pf.FlexHigh[n]-gap*pf.FlexHigh[n]/G[n])
				if restricts {
					pf.FlexHigh[n] = pf.FullHigh[n]
				}
			} else {
				pf.FullHigh[n] = pf.FlexHigh[n]
			}
			for t := 0; t < d.T; t++ {
				pf.DynamicLow[n][t] = pf.FlexLow[n]
				pf.DynamicHigh[n][t] = pf.FlexHigh[n]
			}
		}
	}
	return nil
}

func (o *DSO) capacityNeeds(ctx context.Context, d *market.Data, proposals bool) error {
	nw := o.Network
	linear := d.OPF == market.OPFLinear
	for t := 0; t < d.T; t++ {
		p := solver.Problem{
			Model:    o.model(d, "capaNeeds"),
			Solution: "DSO-capaNeeds-" + strconv.Itoa(t),
			Inputs:   append(o.inputs(true), o.periodBaselinesFile(d, t, proposals)),
		}
		sol, err := o.env.Solve(ctx, p)
		if err != nil {
			return err
		}
		dC := sol.Vector(nw.L, "dC#", 1, "")
		var flow []float64
		if linear {
			e := sol.Vector(d.N, "e#", 0, "")
			f := sol.Vector(d.N, "f#", 0, "")
			pl := sol.Vector(nw.L, "p#", 1, "")
			ql := sol.Vector(nw.L, "q#", 1, "")
			flow = apparent(pl, ql, nw.BasePower)
			for n := 0; n < d.N; n++ {
				o.Buses.BaselineV[n][t] = math.Hypot(e[n], f[n]) * nw.BaseVoltage
				o.Buses.BaselinePhi[n][t] = angle(e[n], f[n], d.Eps)
			}
		} else {
			flow = sol.Vector(nw.L, "f#", 1, "")
		}
		for l := 0; l < nw.L; l++ {
			o.Lines.BaselineFlow[l][t] = flow[l]
			o.Lines.CapacityNeed[l][t] = dC[l]
		}
	}
	return nil
}

func (o *DSO) flexNeeds(ctx context.Context, d *market.Data) error {
	for t := 0; t < d.T; t++ {
		p := solver.Problem{
			Model:    o.model(d, "flexNeeds"),
			Solution: "DSO-flexNeeds-" + strconv.Itoa(t),
			Inputs:   append(o.inputs(true), o.periodBaselinesFile(d, t, false)),
		}
		sol, err := o.env.Solve(ctx, p)
		if err != nil {
			return err
		}
		o.UpNeeds[t], o.DownNeeds[t] = 0, 0
		o.addNeeds(d, sol, t)
	}
	return nil
}

func (o *DSO) addNeeds(d *market.Data, sol *solver.Solution, t int) {
	rL := sol.Vector(d.N-1, "rL#", 0, "")
	rU := sol.Vector(d.N-1, "rU#", 0, "")
	for _, n := range o.Nodes() {
		o.UpNeeds[t] += rU[n]
		o.DownNeeds[t] += rL[n]
		d.UpRequired[n][t] += rU[n]
		d.DownRequired[n][t] -= rL[n]
	}
}

func (o *DSO) flexNeedsAndRanges(ctx context.Context, d *market.Data) error {
	dynamicBaseline := d.Model.DynamicBaseline()
	p := solver.Problem{
		Model:    o.model(d, "flexNeedsAndRanges"),
		Solution: "DSO-flexNeedsAndRanges",
		Inputs:   append(o.inputs(true), o.baselineRangesFile(d)),
	}
	sol, err := o.env.Solve(ctx, p)
	if err != nil {
		return err
	}
	for t := range o.UpNeeds {
		o.UpNeeds[t], o.DownNeeds[t] = 0, 0
	}
	// The needs of the whole horizon are reported on the last period.
	o.addNeeds(d, sol, d.T-1)

	base := d.Baseline
	if dynamicBaseline {
		base = d.Proposed
	}
	dpL := market.NewNodeSeries(d.N, d.T)
	dpU := market.NewNodeSeries(d.N, d.T)
	for _, n := range o.Nodes() {
		dpL[n] = sol.Vector(d.T, "dpL#"+strconv.Itoa(n)+"#", 1, "")
		dpU[n] = sol.Vector(d.T, "dpU#"+strconv.Itoa(n)+"#", 1, "")
		for t := 0; t < d.T; t++ {
			d.DynamicLow[n][t] = min(d.FullLow[n], base[n][t]+dpL[n][t])
			d.DynamicHigh[n][t] = max(d.FullHigh[n], base[n][t]-dpU[n][t])
		}
	}

	share := func(dp, own, total float64) float64 {
		if total > d.Eps {
			return dp * own / total
		}
		return 0
	}
	for _, u := range o.users {
		pf := u.Portfolio()
		own := pf.Baseline
		if dynamicBaseline {
			own = pf.Proposed
		}
		for _, n := range u.Nodes() {
			for t := 0; t < d.T; t++ {
				pf.DynamicLow[n][t] = min(pf.FullLow[n], own[n][t]+share(dpL[n][t], pf.MaxLowDeviation[n][t], d.MaxLowDeviation[n][t]))
				pf.DynamicHigh[n][t] = max(pf.FullHigh[n], own[n][t]-share(dpU[n][t], pf.MaxHighDeviation[n][t], d.MaxHighDeviation[n][t]))
			}
		}
	}
	return nil
}

// EvaluateFlexibility implements market.FSU.
func (o *DSO) EvaluateFlexibility(ctx context.Context, d *market.Data, books []solver.Input) error {
	if !d.Model.DSOIsFSU {
		return nil
	}
	p := solver.Problem{
		Model:  o.model(d, "flexEvaluation"),
		Inputs: append(append(o.inputs(false), o.fullBaselinesFile(d, false)), books...),
	}
	return o.fsu.EvaluateAndRequest(ctx, o.env, d, p)
}

func (o *DSO) activate(ctx context.Context, d *market.Data) error {
	if !d.Model.DSOIsFSU {
		return o.write(o.fullBaselinesFile(d, false))
	}
	p := solver.Problem{
		Model:  o.model(d, "flexActivation"),
		Inputs: append(o.inputs(false), o.fullBaselinesFile(d, false)),
	}
	sol, err := o.fsu.RequestActivation(ctx, o.env, d, p)
	if err != nil {
		return err
	}
	o.Imbalance = sol.Vector(d.T, "I#", 1, "")
	floats.Add(d.Imbalance, o.Imbalance)
	o.pf.Costs += floats.Dot(sol.Vector(d.T, "IP#", 1, ""), d.UpImbalancePrice)
	o.pf.Costs += floats.Dot(sol.Vector(d.T, "IM#", 1, ""), d.DownImbalancePrice)
	return nil
}

func (o *DSO) operate(ctx context.Context, d *market.Data) error {
	nw := o.Network
	p := solver.Problem{
		Model:    o.model(d, "operation"),
		Solution: "DSO-operation",
		Inputs:   append(o.inputs(false), o.realBaselinesFile(d)),
	}
	sol, err := o.env.Solve(ctx, p)
	if err != nil {
		return err
	}
	o.ProtectionsCost = sol.Objective
	d.ShedQuantities = make([]float64, d.T)
	d.Sheddings = make([]float64, d.T)
	d.Production = make([]float64, d.T)
	d.Consumption = make([]float64, d.T)
	linear := d.OPF == market.OPFLinear

	for _, n := range o.Nodes() {
		bus := strconv.Itoa(n) + "#"
		z := sol.Vector(d.T, "z#"+bus, 1, "")
		r := sol.Vector(d.T, "r#"+bus, 1, "")
		for t := 0; t < d.T; t++ {
			d.Shed[n][t] = z[t] > d.Eps
			if d.Shed[n][t] {
				d.Sheddings[t]++
				d.ShedQuantities[t] += d.Corrected[n][t] * d.Dt
			} else {
				d.Realized[n][t] = d.Corrected[n][t]
			}
			if r[t] > d.Eps {
				d.UpActivated[n][t] += r[t]
			} else if r[t] < -d.Eps {
				d.DownActivated[n][t] -= r[t]
			}
		}
		if floats.Max(z) > d.Eps {
			o.env.Logger().Debugf("z[n=%d] : %v", n, z)
		}
		if linear {
			e := sol.Vector(d.T, "e#"+bus, 1, "")
			f := sol.Vector(d.T, "f#"+bus, 1, "")
			er := sol.Vector(d.T, "er#"+bus, 1, "")
			fr := sol.Vector(d.T, "fr#"+bus, 1, "")
			vv := sol.Vector(d.T, "voltageViolation#"+bus, 1, "")
			for t := 0; t < d.T; t++ {
				o.Buses.V[n][t] = math.Hypot(e[t], f[t]) * nw.BaseVoltage
				o.Buses.Phi[n][t] = angle(e[t], f[t], d.Eps)
				o.Buses.CorrectedV[n][t] = math.Hypot(er[t], fr[t]) * nw.BaseVoltage
				o.Buses.CorrectedPhi[n][t] = angle(er[t], fr[t], d.Eps)
				o.Buses.VoltageViolation[n][t] = vv[t] * nw.BaseVoltage
			}
		}
	}

	for l := 1; l <= nw.L; l++ {
		line := strconv.Itoa(l) + "#"
		i := l - 1
		o.Lines.FlowViolation[i] = sol.Vector(d.T, "flowViolation#"+line, 1, "")
		floats.Scale(nw.BasePower, o.Lines.FlowViolation[i])
		if linear {
			o.Lines.CorrectedP[i] = sol.Vector(d.T, "pr#"+line, 1, "")
			o.Lines.CorrectedQ[i] = sol.Vector(d.T, "qr#"+line, 1, "")
			o.Lines.CorrectedFlow[i] = apparent(o.Lines.CorrectedP[i], o.Lines.CorrectedQ[i], nw.BasePower)
			o.Lines.P[i] = sol.Vector(d.T, "p#"+line, 1, "")
			o.Lines.Q[i] = sol.Vector(d.T, "q#"+line, 1, "")
			o.Lines.Flow[i] = apparent(o.Lines.P[i], o.Lines.Q[i], nw.BasePower)
		} else {
			o.Lines.CorrectedFlow[i] = sol.Vector(d.T, "fr#"+line, 1, "")
			o.Lines.Flow[i] = sol.Vector(d.T, "f#"+line, 1, "")
		}
	}
	return nil
}

// settle values the energy shed at the nodal imbalance penalty. The
// flexibility penalties are collected by the providers themselves.
func (o *DSO) settle(d *market.Data) {
	o.SheddingCosts = 0
	for _, q := range d.ShedQuantities {
		o.SheddingCosts += math.Abs(q) * d.ImbalancePenalty
	}
}

// TotalImbalance is the absolute imbalance energy of the DSO.
func (o *DSO) TotalImbalance(d *market.Data) float64 {
	return floats.Norm(o.Imbalance, 1) * d.Dt
}

func (o *DSO) gamma(d *market.Data) float64 { return d.Model.DSOImbalancePriceRatio / 100 }

func (o *DSO) accessRequestsFile(d *market.Data) solver.Input {
	f := solver.NewDataFile(AccessRequestsFile).
		Comment("N, minCurtail, EPS").Spaced(d.N, MinCurtail, d.Eps).
		Comment("n, g, G")
	for _, n := range o.Nodes() {
		f.Row(n, d.RequestedLow[n], d.RequestedHigh[n])
	}
	return f.Input()
}

func (o *DSO) realBaselinesFile(d *market.Data) solver.Input {
	f := solver.NewDataFile(BaselinesFullFile).
		Comment("N, T, gamma, dt, EPS").Row(d.N, d.T, o.gamma(d), d.Dt, d.Eps).
		Comment("n, t, p^r")
	for _, n := range o.Nodes() {
		for t := 0; t < d.T; t++ {
			f.Row(n, t+1, d.Corrected[n][t])
		}
	}
	return f.Input()
}

func (o *DSO) fullBaselinesFile(d *market.Data, proposals bool) solver.Input {
	base := d.Baseline
	if proposals {
		base = d.Proposed
	}
	f := solver.NewDataFile(BaselinesFullFile).
		Comment("N, t, gamma, dt, EPS").Row(d.N, d.T, o.gamma(d), d.Dt, d.Eps).
		Comment("n, t, p^b")
	for _, n := range o.Nodes() {
		for t := 0; t < d.T; t++ {
			f.Row(n, t+1, base[n][t])
		}
	}
	return f.Input()
}

func (o *DSO) periodBaselinesFile(d *market.Data, t int, proposals bool) solver.Input {
	base := d.Baseline
	if proposals {
		base = d.Proposed
	}
	f := solver.NewDataFile(BaselinesFile).
		Comment("N, T, gamma, dt, EPS").Row(d.N, t+1, o.gamma(d), d.Dt, d.Eps).
		Comment("n, p^b")
	for n := 0; n < d.N; n++ {
		f.Row(n, base[n][t])
	}
	return f.Input()
}

// baselineRangesFile aggregates per node the range of baselines the grid
// users may follow and records their largest deviations outside their full
// access range.
func (o *DSO) baselineRangesFile(d *market.Data) solver.Input {
	pL := market.NewNodeSeries(d.N, d.T)
	pU := market.NewNodeSeries(d.N, d.T)
	d.MaxLowDeviation = market.NewNodeSeries(d.N, d.T)
	d.MaxHighDeviation = market.NewNodeSeries(d.N, d.T)
	rel := d.Model.RelativeDeviation

	for _, u := range o.users {
		pf := u.Portfolio()
		pf.MaxLowDeviation.Reset()
		pf.MaxHighDeviation.Reset()
		base := pf.Baseline
		if d.Model.DynamicBaseline() {
			base = pf.Proposed
		}
		for _, n := range u.Nodes() {
			l, L := pf.FullLow[n], pf.FullHigh[n]
			for t := 0; t < d.T; t++ {
				pb := base[n][t]
				if l <= pb && pb <= L {
					pL[n][t] += max(l, pb-rel*math.Abs(pb))
					pU[n][t] += min(L, pb+rel*math.Abs(pb))
					continue
				}
				pL[n][t] += pb
				pU[n][t] += pb
				pf.MaxLowDeviation[n][t] = max(l-pb, 0)
				pf.MaxHighDeviation[n][t] = max(pb-L, 0)
				d.MaxLowDeviation[n][t] += pf.MaxLowDeviation[n][t]
				d.MaxHighDeviation[n][t] += pf.MaxHighDeviation[n][t]
			}
		}
	}

	f := solver.NewDataFile(BaselinesFile).
		Comment("N, T, gamma, dt, EPS").Row(d.N, d.T, o.gamma(d), d.Dt, d.Eps).
		Comment("n, t, pL, pU, dpL max, dpU max")
	for n := 0; n < d.N; n++ {
		for t := 0; t < d.T; t++ {
			f.Row(n, t+1, pL[n][t], pU[n][t], d.MaxLowDeviation[n][t], d.MaxHighDeviation[n][t])
		}
	}
	f.Comment("n, l, L")
	for n := 0; n < d.N; n++ {
		f.Row(n, d.FullLow[n], d.FullHigh[n])
	}
	return f.Input()
}

// apparent returns the signed apparent power of the line flows p + jq
// scaled by base.
func apparent(p, q []float64, base float64) []float64 {
	out := make([]float64, len(p))
	for i := range p {
		s := math.Hypot(p[i], q[i]) * base
		if p[i] < 0 {
			s = -s
		}
		out[i] = s
	}
	return out
}

// angle returns the phase in degrees of e + jf.
func angle(e, f, eps float64) float64 {
	if e > eps {
		return math.Atan(f/e) / math.Pi * 180
	}
	return 0
}
