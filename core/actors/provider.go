package actors

import (
	"context"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/roles"
	"github.com/kilianp07/flexmarket/core/solver"
)

// provider is the part producers and retailers share: a balance
// responsible party offering the flexibility of its nodes and able to buy
// some on the platform.
type provider struct {
	agent.Base
	env  *roles.Env
	dso  roles.Account
	kind market.Kind
	// family prefixes the model and file names, "producer" or "retailer".
	family   string
	dataFile string
	raw      []byte

	pf  *roles.Portfolio
	brp *roles.BRP
	fsp *roles.FSP
	fsu *roles.FSU

	// External is the imbalance E caused outside the portfolio.
	External []float64
}

func newProvider(reg *agent.Registry, env *roles.Env, dso roles.Account, kind market.Kind, family, dataFile, name string, raw []byte) provider {
	return provider{
		Base:     agent.NewBase(reg, name, nil),
		env:      env,
		dso:      dso,
		kind:     kind,
		family:   family,
		dataFile: dataFile,
		raw:      raw,
	}
}

func (o *provider) Kind() market.Kind { return o.kind }

// Portfolio implements GridUser.
func (o *provider) Portfolio() *roles.Portfolio { return o.pf }

// Costs returns the costs of the iteration.
func (o *provider) Costs() float64 { return o.pf.Costs }

// BRP, FSP and FSU expose the roles.
func (o *provider) BRP() *roles.BRP { return o.brp }
func (o *provider) FSP() *roles.FSP { return o.fsp }
func (o *provider) FSU() *roles.FSU { return o.fsu }

// setup allocates the roles once the nodes and bounds are known. self is
// the actor embedding the provider, used as platform identity. flexLow and
// flexHigh are the bounds read from the data file, indexed by bus.
func (o *provider) setup(d *market.Data, self market.FSU, nodes []int, flexLow, flexHigh []float64, reference func(n, t int) float64) {
	o.SetNodes(nodes)
	o.pf = roles.NewPortfolio(o.Name(), nodes, d.T, d.N)
	for _, n := range nodes {
		o.pf.FlexLow[n], o.pf.FlexHigh[n] = flexLow[n], flexHigh[n]
		o.pf.FullLow[n], o.pf.FullHigh[n] = flexLow[n], flexHigh[n]
	}
	o.brp = roles.NewBRP(o.pf)
	o.brp.Initialize(d)
	o.fsp = roles.NewFSP(o.pf, self, reference)
	o.fsp.Initialize(d)
	o.fsu = roles.NewFSU(o.pf, self)
	o.fsu.Initialize(d, o.env.Platform, self)
}

// StatusVariables returns costs, the BRP totals and the needs forecast.
func (o *provider) StatusVariables() []agent.StatusVariable {
	vars := []agent.StatusVariable{agent.Scalar("costs", &o.pf.Costs)}
	vars = append(vars, o.brp.StatusVariables()...)
	return append(vars, o.fsp.StatusVariables()...)
}

func (o *provider) rawInput() solver.Input { return raw(o.dataFile, o.raw) }

func (o *provider) baselinesFile(d *market.Data) solver.Input {
	return o.brp.BaselinesFile(o.family+"-baselines.dat", d)
}

// optimizeBaseline proposes or announces the baselines. Dynamic ranges are
// reset on the first baseline step of the iteration.
func (o *provider) optimizeBaseline(ctx context.Context, d *market.Data, phase agent.Phase) error {
	o.pf.Costs = 0
	dynamic := d.Model.DynamicBaseline()
	proposal := phase == agent.BaselineProposal
	if dynamic == proposal {
		o.fsp.ResetDynamicRanges(d)
	}
	up, down := o.fsp.ForecastedNeeds(d)
	o.fsp.BuildIndicators(d, up, down)
	p := solver.Problem{
		Model:  o.family + "-baseline",
		Inputs: []solver.Input{o.fsp.IndicatorsFile(d), o.fsp.ObligationsFile(d), o.rawInput()},
	}
	return o.brp.OptimizeBaseline(ctx, o.env, d, p, proposal)
}

// flexibilityProblem measures the needs and prepares the flexibility
// optimization on the general needs of the iteration.
func (o *provider) flexibilityProblem(d *market.Data, extra ...solver.Input) solver.Problem {
	o.fsp.UpdateForecast(d)
	o.fsp.BuildIndicators(d, d.UpRequired, d.DownRequired)
	inputs := append(extra, o.fsp.IndicatorsFile(d), o.baselinesFile(d), o.fsp.ObligationsFile(d), o.rawInput())
	return solver.Problem{Model: o.family + "-flexibility", Inputs: inputs}
}

func (o *provider) activate(ctx context.Context, d *market.Data) error {
	p := solver.Problem{
		Model:  o.family + "-flexActivation",
		Inputs: []solver.Input{o.baselinesFile(d), o.fsp.OffersFile(d), o.rawInput()},
	}
	_, err := o.fsu.RequestActivation(ctx, o.env, d, p)
	return err
}

// EvaluateFlexibility implements market.FSU.
func (o *provider) EvaluateFlexibility(ctx context.Context, d *market.Data, books []solver.Input) error {
	p := solver.Problem{
		Model:  o.family + "-flexEvaluation",
		Inputs: append([]solver.Input{o.baselinesFile(d), o.fsp.OffersFile(d), o.rawInput()}, books...),
	}
	return o.fsu.EvaluateAndRequest(ctx, o.env, d, p)
}

func (o *provider) optimizeImbalance(ctx context.Context, d *market.Data) error {
	baselines := o.baselinesFile(d)
	o.fsp.FetchActivation(o.env, d)
	p := solver.Problem{
		Model:  o.family + "-imbalance",
		Inputs: []solver.Input{baselines, o.fsp.ActivationToProvideFile(d), o.fsu.ActivatedFile(d), o.rawInput()},
	}
	return o.brp.OptimizeImbalance(ctx, o.env, d, p)
}

// settle charges the penalties of the provider then its imbalance.
func (o *provider) settle(d *market.Data) {
	o.fsp.Settle(d, o.dso)
	o.brp.Settle(d)
}

// act runs the phases common to every provider. ok is false when the phase
// is left to the actor.
func (o *provider) act(ctx context.Context, d *market.Data, phase agent.Phase) (ok bool, err error) {
	switch phase {
	case agent.BaselineProposal, agent.BaselineOptimization:
		return true, o.optimizeBaseline(ctx, d, phase)
	case agent.FlexibilityActivationRequesting:
		return true, o.activate(ctx, d)
	case agent.ImbalanceOptimization:
		return true, o.optimizeImbalance(ctx, d)
	}
	return false, nil
}
