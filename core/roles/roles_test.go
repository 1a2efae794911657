package roles

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/solver"
	"github.com/kilianp07/flexmarket/core/solver/solvertest"
)

type party struct {
	name  string
	kind  market.Kind
	nodes []int
}

func (p *party) Name() string      { return p.name }
func (p *party) Nodes() []int      { return p.nodes }
func (p *party) Kind() market.Kind { return p.kind }
func (p *party) EvaluateFlexibility(context.Context, *market.Data, []solver.Input) error {
	return nil
}

type account struct{ costs float64 }

func (a *account) AddCost(v float64) { a.costs += v }

func newEnv(t *testing.T, s solver.Solver, d *market.Data) *Env {
	t.Helper()
	p := market.NewPlatform(agent.NewRegistry(), nil)
	require.NoError(t, p.Initialize(context.Background(), d))
	return &Env{Solver: s, Platform: p}
}

func TestBRPBaselineChargesEnergy(t *testing.T) {
	d := market.NewData(2, 2)
	d.EnergyPrice = []float64{10, 20}
	pf := NewPortfolio("prod", []int{1}, d.T, d.N)
	brp := NewBRP(pf)
	brp.Initialize(d)

	s := solvertest.New().Values("baseline", 0, map[string]float64{
		"Pa#1": 2, "Pa#2": 3, "pa#1#1": 2, "pa#1#2": 3,
	})
	env := newEnv(t, s, d)
	require.NoError(t, brp.OptimizeBaseline(context.Background(), env, d, solver.Problem{Model: "baseline"}, false))

	assert.InDelta(t, -80.0, pf.Costs, 1e-9)
	assert.Equal(t, []float64{2, 3}, pf.Baseline[1])
	assert.Equal(t, []float64{2, 3}, d.Baseline[1])
	assert.Equal(t, []float64{0, 0}, d.Baseline[0])
}

func TestBRPProposalLeavesCosts(t *testing.T) {
	d := market.NewData(1, 1)
	d.Model.AccessRestriction = market.AccessDynamicBaseline
	d.ResetIteration()
	pf := NewPortfolio("ret", []int{0}, d.T, d.N)
	brp := NewBRP(pf)
	brp.Initialize(d)
	s := solvertest.New().Values("baseline", 0, map[string]float64{"Pa#1": -4, "pa#0#1": -4})
	env := newEnv(t, s, d)
	require.NoError(t, brp.OptimizeBaseline(context.Background(), env, d, solver.Problem{Model: "baseline"}, true))
	assert.Zero(t, pf.Costs)
	assert.Equal(t, []float64{-4}, pf.Proposed[0])
	assert.Equal(t, []float64{-4}, d.Proposed[0])
}

func TestBRPInfeasibleBaseline(t *testing.T) {
	d := market.NewData(1, 1)
	brp := NewBRP(NewPortfolio("p", []int{0}, d.T, d.N))
	brp.Initialize(d)
	env := newEnv(t, solvertest.New().Infeasible("baseline"), d)
	err := brp.OptimizeBaseline(context.Background(), env, d, solver.Problem{Model: "baseline"}, false)
	require.ErrorIs(t, err, solver.ErrInfeasible)
	assert.Contains(t, err.Error(), "baseline")
}

func TestBRPSettlementSigns(t *testing.T) {
	tests := []struct {
		name      string
		imbalance float64
		system    float64
		want      float64
	}{
		{"long in long system", 2, 1, 2 * 5},
		{"long in short system", 2, -1, -2 * 5},
		{"short in long system", -2, 1, -2 * 7},
		{"short in short system", -2, -1, 2 * 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := market.NewData(1, 1)
			d.UpImbalancePrice = []float64{5}
			d.DownImbalancePrice = []float64{7}
			d.SystemImbalance = []float64{tt.system}
			pf := NewPortfolio("p", []int{0}, d.T, d.N)
			brp := NewBRP(pf)
			brp.Initialize(d)
			brp.Imbalance[0] = tt.imbalance
			brp.Settle(d)
			assert.InDelta(t, tt.want, pf.Costs, 1e-9)
			assert.InDelta(t, tt.imbalance, d.Imbalance[0], 1e-9)
		})
	}
}

func TestBRPSettlementShedNode(t *testing.T) {
	d := market.NewData(1, 2)
	d.Shed[1][0] = true
	pf := NewPortfolio("p", []int{0, 1}, d.T, d.N)
	pf.Baseline[1][0] = 3
	pf.Realized[0][0] = 2
	pf.Realized[1][0] = 3
	brp := NewBRP(pf)
	brp.Initialize(d)
	brp.Settle(d)

	assert.InDelta(t, -3.0, brp.Imbalance[0], 1e-9)
	assert.Zero(t, pf.Realized[1][0])
	assert.Equal(t, []float64{2}, brp.RealizedTotal)
	assert.Equal(t, []float64{2}, d.Production)
}

func TestFSURequestActivation(t *testing.T) {
	d := market.NewData(2, 2)
	seller := &party{name: "prod", kind: market.KindProducer, nodes: []int{1}}
	dso := &party{name: "DSO", kind: market.KindDSO, nodes: []int{0, 1}}
	pf := NewPortfolio("DSO", dso.nodes, d.T, d.N)
	fsu := NewFSU(pf, dso)

	s := solvertest.New().Values("activation", 0, map[string]float64{"v#0": 1.5, "x#0#1": -0.5, "x#0#2": 1})
	env := newEnv(t, s, d)
	fsu.Initialize(d, env.Platform, dso)

	sp := market.NewSPObligationBid(seller, 1, 1, -1, 2, market.Costs{ReservationCost: 1, ActivationCost: 2, DSOReservationCost: 3, DSOActivationCost: 4})
	require.NoError(t, env.Platform.RegisterSPBid(d, sp))
	ec := market.NewECBid(seller, 1, d.T, market.Costs{ReservationCost: 5, ActivationCost: 6, DSOReservationCost: 5, DSOActivationCost: 6})
	ec.Min = []float64{-1, -1}
	ec.Max = []float64{1, 1}
	require.NoError(t, env.Platform.RegisterECBid(d, ec))
	require.NoError(t, env.Platform.RequestSPBid(d, 0, dso, 0, 2))
	require.NoError(t, env.Platform.RequestECBid(d, 0, dso, 1))
	require.NoError(t, env.Platform.Clear(context.Background(), d))

	sol, err := fsu.RequestActivation(context.Background(), env, d, solver.Problem{Model: "activation"})
	require.NoError(t, err)
	assert.Equal(t, 1.5, sol.Value("v#0"))

	// 5 for the ec reservation, 3*2 for the sp one, 1.5*4 and 1.5*6 for activation.
	assert.InDelta(t, 5+6+6+9, pf.Costs, 1e-9)
	assert.InDelta(t, 1.5, sp.Modulation, 1e-9)
	assert.Equal(t, []float64{-0.5, 1}, ec.Modulation)
	assert.Equal(t, []float64{-0.5, 2.5}, pf.Activated[1])
	assert.Equal(t, []float64{0, 2.5}, fsu.ActivatedUp)
	assert.Equal(t, []float64{-0.5, 0}, fsu.ActivatedDown)
	assert.Equal(t, []float64{-0.5, 2.5}, fsu.ActivatedNet)
	assert.Equal(t, []float64{1, 3}, fsu.ContractedUp)

	content, ok := s.Input("activation", AcceptedFlexFile)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(content, "# B, F, T\n2,2,2\n#SPFOs\n"))
	assert.Contains(t, content, "0, 1, 2, 3, 4, 0, 2\n")
	assert.Contains(t, content, "1, 0, 1, 10000, 0, 0, 0\n")
	assert.Contains(t, content, "#ECFOs\n# b, n, pi^r, pi^a\n0,1,5,6\n1,0,10000,0\n")
}

func TestFSUEvaluateAndRequest(t *testing.T) {
	d := market.NewData(1, 1)
	seller := &party{name: "prod", kind: market.KindProducer, nodes: []int{0}}
	tso := &party{name: "TSO", kind: market.KindTSO}
	s := solvertest.New().Values("evaluation", 0, map[string]float64{"W#0": 1, "w#1": -1e-9, "W#1": 0, "y#0": 0.5})
	env := newEnv(t, s, d)
	fsu := NewFSU(NewPortfolio("TSO", nil, d.T, d.N), tso)
	fsu.Initialize(d, env.Platform, tso)

	for i := 0; i < 2; i++ {
		require.NoError(t, env.Platform.RegisterSPBid(d, market.NewSPBid(seller, 0, 0, -1, 1, market.DefaultCosts(d.Eps))))
	}
	ec := market.NewECBid(seller, 0, d.T, market.DefaultCosts(d.Eps))
	require.NoError(t, env.Platform.RegisterECBid(d, ec))

	require.NoError(t, fsu.EvaluateAndRequest(context.Background(), env, d, solver.Problem{Model: "evaluation"}))
	sp := env.Platform.SPBids()
	require.Len(t, sp[0].Requests, 1)
	assert.Equal(t, 1.0, sp[0].Requests[0].Up)
	assert.Empty(t, sp[1].Requests)
	require.Len(t, ec.Requests, 1)
	assert.Equal(t, 0.5, ec.Requests[0].Reservation)
}

func TestFSPIndicators(t *testing.T) {
	d := market.NewData(2, 1)
	pf := NewPortfolio("ret", []int{0}, d.T, d.N)
	fsp := NewFSP(pf, nil, func(int, int) float64 { return 10 })
	fsp.Initialize(d)
	assert.Equal(t, []float64{InitialIndicator, InitialIndicator}, fsp.IndicatorUp[0])

	up := market.NodeSeries{{3, 0}}
	down := market.NodeSeries{{0, -1}}
	fsp.BuildIndicators(d, up, down)
	sumRU := 3 + 2*d.Eps
	assert.InDelta(t, (30+d.Eps)/sumRU, fsp.IndicatorUp[0][0], 1e-12)
	assert.Equal(t, d.Eps, fsp.IndicatorUp[0][1])
	assert.Equal(t, d.Eps, fsp.IndicatorDown[0][0])
	assert.InDelta(t, (10+d.Eps)/(1+2*d.Eps), fsp.IndicatorDown[0][1], 1e-12)
}

func TestFSPForecastRoundTrip(t *testing.T) {
	d := market.NewData(2, 2)
	pf := NewPortfolio("prod", []int{1}, d.T, d.N)
	fsp := NewFSP(pf, nil, nil)
	fsp.Initialize(d)

	d.UpRequired[1] = []float64{1, 2}
	d.DownRequired[1] = []float64{-3, -4}
	fsp.UpdateForecast(d)
	up, down := fsp.ForecastedNeeds(d)
	assert.Equal(t, []float64{1, 2}, up[1])
	assert.Equal(t, []float64{-3, -4}, down[1])
	assert.Equal(t, []float64{0, 0}, up[0])
	assert.Equal(t, []float64{1, 2, -3, -4}, fsp.NeedsForecast)
}

func TestFSPFetchActivation(t *testing.T) {
	d := market.NewData(2, 1)
	seller := &party{name: "prod", kind: market.KindProducer, nodes: []int{0}}
	env := newEnv(t, solvertest.New(), d)
	pf := NewPortfolio("prod", seller.nodes, d.T, d.N)
	fsp := NewFSP(pf, seller, nil)
	fsp.Initialize(d)

	b := market.NewSPBid(seller, 0, 1, 0, 2, market.DefaultCosts(d.Eps))
	b.AcceptedMax = 2
	b.Modulation = 1.5
	b.ReservationBenefits = 4
	b.ActivationBenefits = 3
	require.NoError(t, env.Platform.RegisterSPBid(d, b))

	fsp.FetchActivation(env, d)
	assert.Equal(t, []float64{0, 1.5}, pf.Provided[0])
	assert.Equal(t, []float64{0, 1}, fsp.Provider[0])
	assert.Equal(t, []float64{0, 1.5}, fsp.ProvidedTotal)
	assert.InDelta(t, -7.0, pf.Costs, 1e-9)
}

func TestFSPSettlementIsZeroSum(t *testing.T) {
	d := market.NewData(1, 1)
	d.ImbalancePenalty = 100
	d.ShedQuantities[0] = 1
	d.Shed[0][0] = true
	pf := NewPortfolio("prod", []int{0}, d.T, d.N)
	fsp := NewFSP(pf, nil, nil)
	fsp.Initialize(d)
	fsp.Provider[0][0] = 1
	pf.Provided[0][0] = -0.5
	pf.Realized[0][0] = 3
	pf.DynamicLow[0][0] = 0
	pf.DynamicHigh[0][0] = 2

	dso := &account{}
	fsp.Settle(d, dso)
	assert.InDelta(t, 50+100, pf.Costs, 1e-9)
	assert.InDelta(t, -pf.Costs, dso.costs, 1e-9)
}

func TestFSPFiles(t *testing.T) {
	d := market.NewData(1, 2)
	pf := NewPortfolio("prod", []int{1}, d.T, d.N)
	pf.FlexLow[1], pf.FlexHigh[1], pf.FullLow[1], pf.FullHigh[1] = -1, 2, -3, 4
	fsp := NewFSP(pf, nil, nil)
	fsp.Initialize(d)
	fsp.ResetDynamicRanges(d)
	fsp.OfferUp[1][0] = 0.5

	got := string(fsp.OffersFile(d).Content)
	assert.Equal(t, "# T\n1\n# N set\n1\n# n, t, f^+, f^-, d, D\n1,1,0.5,0,-1,2\n# n, k, K, l, L\n1,-1,2,-3,4\n", got)
	assert.True(t, fsp.Offered(0))

	ind := string(fsp.IndicatorsFile(d).Content)
	assert.Contains(t, ind, "# n,t, pi^f+, pi^f-\n1,1,0.01,0.01\n")
}
