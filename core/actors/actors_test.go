package actors

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/roles"
	"github.com/kilianp07/flexmarket/core/solver"
	"github.com/kilianp07/flexmarket/core/solver/solvertest"
)

const network = `# N, L, _, _, Sb, Vb
2,1,0,0,10,20
# l, from, to, r, x, C
1,0,1,0.1,0.1,5
# n, _, Vmin, Vmax
0,0,0.9,1.1
1,0,0.95,1.05
`

type user struct {
	name  string
	nodes []int
	pf    *roles.Portfolio
}

func newUser(d *market.Data, name string, nodes ...int) *user {
	return &user{name: name, nodes: nodes, pf: roles.NewPortfolio(name, nodes, d.T, d.N)}
}

func (u *user) Name() string                { return u.name }
func (u *user) Nodes() []int                { return u.nodes }
func (u *user) Kind() market.Kind           { return market.KindRetailer }
func (u *user) Portfolio() *roles.Portfolio { return u.pf }

type costed struct {
	kind  market.Kind
	costs float64
}

func (c costed) Name() string      { return c.kind.String() }
func (c costed) Nodes() []int      { return nil }
func (c costed) Kind() market.Kind { return c.kind }
func (c costed) Costs() float64    { return c.costs }

type account struct{ costs float64 }

func (a *account) AddCost(v float64) { a.costs += v }

func newEnv(t *testing.T, s solver.Solver, d *market.Data) *roles.Env {
	t.Helper()
	p := market.NewPlatform(agent.NewRegistry(), nil)
	require.NoError(t, p.Initialize(context.Background(), d))
	return &roles.Env{Solver: s, Platform: p}
}

func newDSO(t *testing.T, s solver.Solver, d *market.Data, users ...GridUser) *DSO {
	t.Helper()
	o := NewDSO(agent.NewRegistry(), newEnv(t, s, d), []byte(network), []byte("# qualified\n"))
	o.SetGridUsers(users...)
	require.NoError(t, o.Initialize(context.Background(), d))
	return o
}

func TestReadNetwork(t *testing.T) {
	nw, err := ReadNetwork([]byte(network))
	require.NoError(t, err)
	assert.Equal(t, 2, nw.N)
	assert.Equal(t, 1, nw.L)
	assert.Equal(t, 10.0, nw.BasePower)
	assert.Equal(t, 20.0, nw.BaseVoltage)
	assert.Equal(t, []float64{5}, nw.Capacity)
	assert.Equal(t, []float64{0.9, 0.95}, nw.VMin)
	assert.Equal(t, []float64{1.1, 1.05}, nw.VMax)
}

func TestReadNetworkRejectsLineIndex(t *testing.T) {
	_, err := ReadNetwork([]byte("2,1,0,0,10,20\n2,0,1,0,0,5\n0,0,1,1\n1,0,1,1\n"))
	require.ErrorIs(t, err, instance.ErrMalformed)
}

func TestDSORejectsNodeCountMismatch(t *testing.T) {
	d := market.NewData(1, 3)
	o := NewDSO(agent.NewRegistry(), newEnv(t, solvertest.New(), d), []byte(network), nil)
	require.Error(t, o.Initialize(context.Background(), d))
}

func TestDSOAccessAgreementNone(t *testing.T) {
	d := market.NewData(2, 2)
	u := newUser(d, "ret", 1)
	u.pf.FlexLow[1], u.pf.FlexHigh[1] = -4, 6
	s := solvertest.New()
	o := newDSO(t, s, d, u)

	require.NoError(t, o.Act(context.Background(), d, agent.AccessAgreement))
	assert.Empty(t, s.Models())
	assert.Equal(t, []float64{0, -4}, d.FullLow)
	assert.Equal(t, []float64{0, 6}, d.FullHigh)
	assert.Equal(t, []float64{-4, -4}, d.DynamicLow[1])
	assert.Equal(t, -4.0, u.pf.FullLow[1])
	assert.Equal(t, []float64{6, 6}, u.pf.DynamicHigh[1])
}

func TestDSOAccessAgreementCurtails(t *testing.T) {
	tests := []struct {
		name     string
		mode     market.AccessRestriction
		flexLow  float64
		flexHigh float64
	}{
		{"flexible keeps the flexible range", market.AccessFlexible, -4, 6},
		{"safe restricts the flexible range", market.AccessSafe, -3, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := market.NewData(2, 2)
			d.Model.AccessRestriction = tt.mode
			u := newUser(d, "ret", 1)
			u.pf.FlexLow[1], u.pf.FlexHigh[1] = -4, 6
			s := solvertest.New().Values("DSO-accessAgreement", 0, map[string]float64{"dg#1": 1, "dG#1": 2})
			o := newDSO(t, s, d, u)

			require.NoError(t, o.Act(context.Background(), d, agent.AccessAgreement))
			assert.Equal(t, []float64{0, -3}, d.AgreedLow)
			assert.Equal(t, []float64{0, 4}, d.AgreedHigh)
			assert.Equal(t, []float64{0, -3}, d.FullLow)
			assert.Equal(t, tt.flexLow, d.FlexLow[1])
			assert.Equal(t, tt.flexHigh, d.DynamicHigh[1][0])

			assert.InDelta(t, -3, u.pf.FullLow[1], 1e-12)
			assert.InDelta(t, 4, u.pf.FullHigh[1], 1e-12)
			assert.InDelta(t, tt.flexLow, u.pf.FlexLow[1], 1e-12)
			assert.InDelta(t, tt.flexHigh, u.pf.DynamicHigh[1][1], 1e-12)

			requests, ok := s.Input("DSO-accessAgreement", AccessRequestsFile)
			require.True(t, ok)
			assert.Equal(t, "# N, minCurtail, EPS\n2, 0.1, 1e-05\n# n, g, G\n0,0,0\n1,-4,6\n", requests)
		})
	}
}

func TestDSOAccessAgreementRejectsIllegalBound(t *testing.T) {
	d := market.NewData(1, 2)
	u := newUser(d, "ret", 0)
	u.pf.FlexLow[0] = 1
	o := newDSO(t, solvertest.New(), d, u)
	err := o.Act(context.Background(), d, agent.AccessAgreement)
	require.ErrorIs(t, err, ErrIllegalAccessBound)
	assert.Contains(t, err.Error(), "g of ret")
}

func TestDSOFlexibilityNeeds(t *testing.T) {
	d := market.NewData(2, 2)
	s := solvertest.New().
		Values("DSO-capaNeeds", 0, map[string]float64{"dC#1": 0.5, "f#1": 3}).
		Values("DSO-flexNeeds", 0, map[string]float64{"rU#1": 2, "rL#0": 1})
	o := newDSO(t, s, d)

	require.NoError(t, o.Act(context.Background(), d, agent.FlexibilityNeeds))
	assert.Equal(t, []string{"DSO-capaNeeds", "DSO-capaNeeds", "DSO-flexNeeds", "DSO-flexNeeds"}, s.Models())
	assert.Equal(t, []float64{2, 2}, o.UpNeeds)
	assert.Equal(t, []float64{1, 1}, o.DownNeeds)
	assert.Equal(t, []float64{2, 2}, d.UpRequired[1])
	assert.Equal(t, []float64{-1, -1}, d.DownRequired[0])
	assert.Equal(t, []float64{0.5, 0.5}, o.Lines.CapacityNeed[0])
	assert.Equal(t, []float64{3, 3}, o.Lines.BaselineFlow[0])

	calls := s.Calls()
	assert.Equal(t, "DSO-flexNeeds-1", calls[3].SolutionName())
}

func TestDSOLinearModelsArePrefixed(t *testing.T) {
	d := market.NewData(1, 2)
	d.OPF = market.OPFLinear
	s := solvertest.New().Values("DSO-linearOpf-capaNeeds", 0, map[string]float64{
		"e#1": 1, "f#1": 1, "p#1": -0.3, "q#1": 0.4,
	})
	o := newDSO(t, s, d)

	require.NoError(t, o.Act(context.Background(), d, agent.FlexibilityNeeds))
	assert.Equal(t, []string{"DSO-linearOpf-capaNeeds", "DSO-linearOpf-flexNeeds"}, s.Models())
	assert.InDelta(t, -5, o.Lines.BaselineFlow[0][0], 1e-12)
	assert.InDelta(t, 20*1.4142135623730951, o.Buses.BaselineV[1][0], 1e-9)
	assert.InDelta(t, 45, o.Buses.BaselinePhi[1][0], 1e-9)
}

func TestDSOOperation(t *testing.T) {
	d := market.NewData(2, 2)
	d.ImbalancePenalty = 2
	d.Corrected[1] = []float64{4, 6}
	s := solvertest.New().Values("DSO-operation", 42, map[string]float64{
		"z#1#2": 1, "r#0#1": 0.5, "r#0#2": -0.25,
		"flowViolation#1#1": 0.1, "f#1#1": 3, "fr#1#2": 2,
	})
	o := newDSO(t, s, d)

	require.NoError(t, o.Act(context.Background(), d, agent.Operation))
	assert.Equal(t, 42.0, o.ProtectionsCost)
	assert.True(t, d.Shed[1][1])
	assert.False(t, d.Shed[1][0])
	assert.Equal(t, []float64{4, 0}, d.Realized[1])
	assert.Equal(t, []float64{0, 6}, d.ShedQuantities)
	assert.Equal(t, []float64{0, 1}, d.Sheddings)
	assert.Equal(t, []float64{0.5, 0}, d.UpActivated[0])
	assert.Equal(t, []float64{0, 0.25}, d.DownActivated[0])
	assert.InDeltaSlice(t, []float64{1, 0}, o.Lines.FlowViolation[0], 1e-12)
	assert.Equal(t, []float64{3, 0}, o.Lines.Flow[0])
	assert.Equal(t, []float64{0, 2}, o.Lines.CorrectedFlow[0])

	baselines, ok := s.Input("DSO-operation", BaselinesFullFile)
	require.True(t, ok)
	assert.Equal(t, "# N, T, gamma, dt, EPS\n2,2,1,1,1e-05\n# n, t, p^r\n0,1,0\n0,2,0\n1,1,4\n1,2,6\n", baselines)

	require.NoError(t, o.Act(context.Background(), d, agent.Settlement))
	assert.Equal(t, 12.0, o.SheddingCosts)
}

func TestDSOActivationWithoutFSU(t *testing.T) {
	d := market.NewData(1, 2)
	d.Model.DSOIsFSU = false
	s := solvertest.New()
	o := newDSO(t, s, d)
	require.NoError(t, o.Act(context.Background(), d, agent.FlexibilityActivationRequesting))
	require.NoError(t, o.EvaluateFlexibility(context.Background(), d, nil))
	assert.Empty(t, s.Models())
}

func TestDSOActivationChargesImbalance(t *testing.T) {
	d := market.NewData(2, 2)
	d.UpImbalancePrice = []float64{3, 3}
	d.DownImbalancePrice = []float64{5, 5}
	s := solvertest.New().Values("DSO-flexActivation", 0, map[string]float64{
		"I#1": 1, "I#2": -2, "IP#1": 1, "IM#2": 2,
	})
	o := newDSO(t, s, d)
	require.NoError(t, o.Act(context.Background(), d, agent.FlexibilityActivationRequesting))
	assert.Equal(t, []float64{1, -2}, o.Imbalance)
	assert.Equal(t, []float64{1, -2}, d.Imbalance)
	assert.Equal(t, 13.0, o.Costs())
	assert.Equal(t, 3.0, o.TotalImbalance(d))
}

func TestDSORejectsUnknownPhase(t *testing.T) {
	d := market.NewData(1, 2)
	o := newDSO(t, solvertest.New(), d)
	require.ErrorIs(t, o.Act(context.Background(), d, agent.Quantification), agent.ErrUnknownPhase)
}

const tsoFile = `# _, piS+, piS-
0,3,4
# t, R+, R-, E
1,1,-1,2
2,0.5,-0.5,-1
`

func TestTSO(t *testing.T) {
	d := market.NewData(2, 2)
	s := solvertest.New()
	o := NewTSO(agent.NewRegistry(), newEnv(t, s, d), []byte(tsoFile))
	require.NoError(t, o.Initialize(context.Background(), d))
	assert.Equal(t, []int{0, 1}, o.Nodes())
	assert.Equal(t, []float64{-2, 1}, d.SystemImbalance)

	require.NoError(t, o.Act(context.Background(), d, agent.FlexibilityNeeds))
	for _, n := range o.Nodes() {
		assert.Equal(t, []float64{1, 0.5}, d.UpRequired[n])
		assert.Equal(t, []float64{-1, -0.5}, d.DownRequired[n])
	}

	// Reserves are valued on the previous contracts.
	o.FSU().ContractedUp = []float64{2, 0}
	require.NoError(t, o.Act(context.Background(), d, agent.FlexibilityActivationRequesting))
	assert.Equal(t, -3.0, o.Costs())
	assert.Equal(t, []string{"TSO-flexActivation"}, s.Models())
	_, ok := s.Input("TSO-flexActivation", TSODataFile)
	assert.True(t, ok)

	require.ErrorIs(t, o.Act(context.Background(), d, agent.Operation), agent.ErrUnknownPhase)
}

const producerFile = `# producer
0
# nodes
1
# n, t, pmin, pmax, c, piR
1,1,0,10,5,1
1,2,2,8,6,2
# t, E
1,0
2,0
# n, pmin, pmax
1,0,12
`

func newProducer(t *testing.T, s solver.Solver, d *market.Data) (*Producer, *account) {
	t.Helper()
	dso := &account{}
	o := NewProducer(agent.NewRegistry(), newEnv(t, s, d), dso, "prod", []byte(producerFile))
	require.NoError(t, o.Initialize(context.Background(), d))
	return o, dso
}

func TestProducerReadsBounds(t *testing.T) {
	tests := []struct {
		bounds market.BoundsComputation
		high   float64
	}{
		{market.BoundsHorizon, 10},
		{market.BoundsInstalled, 12},
		{market.BoundsPeriodic, 12},
	}
	for _, tt := range tests {
		t.Run(string(tt.bounds), func(t *testing.T) {
			d := market.NewData(2, 2)
			d.Model.AccessBoundsComputation = tt.bounds
			o, _ := newProducer(t, solvertest.New(), d)
			assert.Equal(t, []int{1}, o.Nodes())
			assert.Equal(t, tt.high, o.Portfolio().FlexHigh[1])
			assert.Equal(t, tt.high, o.Portfolio().FullHigh[1])
			assert.Equal(t, []float64{5, 6}, o.MarginalCost[1])
			assert.Equal(t, 2.0, o.FSP().Reference(1, 1))
		})
	}
}

func TestProducerRejectsForeignNode(t *testing.T) {
	d := market.NewData(2, 1)
	o := NewProducer(agent.NewRegistry(), newEnv(t, solvertest.New(), d), &account{}, "prod", []byte(producerFile))
	require.ErrorIs(t, o.Initialize(context.Background(), d), instance.ErrMalformed)
}

func TestProducerBidsSplitObligation(t *testing.T) {
	d := market.NewData(2, 2)
	d.Model.ProductionFlexObligations = 0.5
	d.EnergyPrice = []float64{3, 3}
	o, _ := newProducer(t, solvertest.New(), d)
	o.Portfolio().Baseline[1][0] = 10

	bids := o.bids(d, 1, 0, -8, 2)
	require.Len(t, bids, 3)

	assert.True(t, bids[0].Obligation)
	assert.Equal(t, -5.0, bids[0].Min)
	assert.Equal(t, d.Eps, bids[0].DSOReservationCost)
	assert.Equal(t, -d.Eps, bids[0].DSOActivationCost)

	assert.False(t, bids[1].Obligation)
	assert.Equal(t, -3.0, bids[1].Min)
	assert.Equal(t, 8.0, bids[1].DSOActivationCost)
	assert.Equal(t, 1.0, bids[1].ReservationCost)

	assert.Equal(t, 2.0, bids[2].Max)
	assert.Equal(t, 5.0, bids[2].DSOActivationCost)
}

func TestProducerFlexibilityRegistersBids(t *testing.T) {
	d := market.NewData(2, 2)
	s := solvertest.New().Values("producer-flexibility", 0, map[string]float64{"fM#1#1": 8, "fP#1#2": 2})
	o, _ := newProducer(t, s, d)

	require.NoError(t, o.Act(context.Background(), d, agent.FlexibilityOptimization))
	assert.Equal(t, []float64{-8, 0}, o.FSP().OfferDown[1])
	assert.Equal(t, []float64{0, 2}, o.FSP().OfferUp[1])
	bids := o.env.Platform.SPBids()
	require.Len(t, bids, 2)
	assert.Equal(t, -8.0, bids[0].Min)
	assert.Equal(t, 1, bids[1].Period)

	for _, name := range []string{roles.FlexIndicatorsFile, "producer-baselines.dat", roles.FlexObligationsFile, ProducerDataFile} {
		_, ok := s.Input("producer-flexibility", name)
		assert.True(t, ok, name)
	}
}

func TestProducerSettlementChargesProduction(t *testing.T) {
	d := market.NewData(2, 2)
	o, dso := newProducer(t, solvertest.New(), d)
	o.FSP().ResetDynamicRanges(d)
	o.Portfolio().Realized[1] = []float64{2, 3}
	require.NoError(t, o.Act(context.Background(), d, agent.Settlement))
	assert.Equal(t, 2*5.0+3*6.0, o.Costs())
	assert.Zero(t, dso.costs)
}

func TestProducerBaselinePhases(t *testing.T) {
	d := market.NewData(2, 2)
	d.Model.AccessRestriction = market.AccessDynamicBaseline
	d.ResetIteration()
	s := solvertest.New().Values("producer-baseline", 0, map[string]float64{"Pa#1": 4, "pa#1#1": 4})
	o, _ := newProducer(t, s, d)
	o.Portfolio().DynamicLow[1][0] = 7

	require.NoError(t, o.Act(context.Background(), d, agent.BaselineProposal))
	assert.Equal(t, 0.0, o.Portfolio().DynamicLow[1][0])
	assert.Equal(t, []float64{4, 0}, d.Proposed[1])

	o.Portfolio().DynamicLow[1][0] = 7
	require.NoError(t, o.Act(context.Background(), d, agent.BaselineOptimization))
	assert.Equal(t, 7.0, o.Portfolio().DynamicLow[1][0])
	assert.Equal(t, []float64{4, 0}, d.Baseline[1])
}

const retailerFile = `# _, piR, piF
0,2,50
# nodes
0
# n, t, pmin, pmax
0,1,-5,0
0,2,-6,-1
# n, _, pmin, pmax
0,0,-7,0
# t, E
1,0
2,0
`

func newRetailer(t *testing.T, s solver.Solver, d *market.Data) *Retailer {
	t.Helper()
	o := NewRetailer(agent.NewRegistry(), newEnv(t, s, d), &account{}, "ret", []byte(retailerFile))
	require.NoError(t, o.Initialize(context.Background(), d))
	return o
}

func TestRetailerReadsData(t *testing.T) {
	d := market.NewData(2, 1)
	d.Model.ConsumptionFlexObligations = 0.2
	o := newRetailer(t, solvertest.New(), d)
	assert.Equal(t, 2.0, o.ReservationPrice)
	assert.Equal(t, 50.0, o.RetailPrice)
	assert.Equal(t, -6.0, o.Portfolio().FlexLow[0])
	assert.Equal(t, 0.0, o.Portfolio().FlexHigh[0])
	assert.Equal(t, []float64{0.2, 0.2}, o.FSP().Beta[0])

	d = market.NewData(2, 1)
	d.Model.AccessBoundsComputation = market.BoundsInstalled
	o = newRetailer(t, solvertest.New(), d)
	assert.Equal(t, -7.0, o.Portfolio().FlexLow[0])
}

func TestRetailerBids(t *testing.T) {
	d := market.NewData(2, 1)
	d.EnergyPrice = []float64{1, 1}
	o := newRetailer(t, solvertest.New(), d)
	o.Portfolio().Baseline[0] = []float64{-3, -3}

	bids := o.bids(d, 0, []float64{2, 2}, []float64{1, 1}, []float64{-3, -3}, 0.5)
	require.Len(t, bids, 2)

	ob := bids[0]
	assert.True(t, ob.Obligation)
	assert.Equal(t, []float64{-0.5, -0.5}, ob.Min)
	assert.Equal(t, []float64{0.5, 0.5}, ob.Max)
	assert.InDelta(t, 2, ob.ReservationCost, 1e-12)
	assert.Equal(t, d.Eps, ob.DSOReservationCost)

	b := bids[1]
	assert.Equal(t, []float64{-1.5, -1.5}, b.Min)
	assert.Equal(t, []float64{0.5, 0.5}, b.Max)
	assert.InDelta(t, 4, b.ReservationCost, 1e-12)
	assert.Equal(t, b.ReservationCost, b.DSOReservationCost)
}

func TestRetailerBidsWithoutVolume(t *testing.T) {
	d := market.NewData(2, 1)
	o := newRetailer(t, solvertest.New(), d)
	bids := o.bids(d, 0, []float64{0, 0}, []float64{0, 0}, []float64{0, 0}, -1)
	require.Len(t, bids, 1)
	assert.Equal(t, []float64{0, 0}, bids[0].Min)
	assert.Equal(t, []float64{0, 0}, bids[0].Max)
	assert.Equal(t, d.Eps, bids[0].ReservationCost)
}

func TestRetailerFlexibilityInputs(t *testing.T) {
	d := market.NewData(2, 1)
	s := solvertest.New().Values("retailer-flexibility", 0, map[string]float64{"fM#0#1": 1, "fP#0#2": 1})
	o := newRetailer(t, s, d)
	o.Portfolio().Baseline[0] = []float64{-3, -2}

	require.NoError(t, o.Act(context.Background(), d, agent.FlexibilityOptimization))
	require.Len(t, o.env.Platform.ECBids(), 1)
	assert.Equal(t, []float64{-1, 0}, o.FSP().OfferDown[0])

	totals, ok := s.Input("retailer-flexibility", SubmittedConsumptionsFile)
	require.True(t, ok)
	assert.Equal(t, "# N set\n0\n# n, D^b\n0,-5\n", totals)
}

func TestRetailerSettlement(t *testing.T) {
	d := market.NewData(2, 1)
	o := newRetailer(t, solvertest.New(), d)
	o.FSP().ResetDynamicRanges(d)
	o.Portfolio().Realized[0] = []float64{-3, -3}
	require.NoError(t, o.Act(context.Background(), d, agent.Settlement))
	assert.Equal(t, -300.0, o.Costs())
	assert.Equal(t, []float64{-3, -3}, d.Consumption)
}

func TestCriteria(t *testing.T) {
	d := market.NewData(1, 1)
	dso := &DSO{pf: &roles.Portfolio{Costs: 10}, SheddingCosts: 5}
	c := NewCriteria(agent.NewRegistry(), nil,
		dso,
		costed{market.KindTSO, 3},
		costed{market.KindProducer, 7},
	)
	c.Register(costed{market.KindRetailer, -20})
	require.NoError(t, c.Initialize(context.Background(), d))

	require.NoError(t, c.Act(context.Background(), d, agent.Quantification))
	assert.Equal(t, -5.0, c.Welfare)
	assert.Equal(t, 10.0, c.DSOsCosts)
	assert.Equal(t, 5.0, c.SheddingCosts)
	assert.Equal(t, 3.0, c.TSOsCosts)
	assert.Equal(t, 7.0, c.ProducersCosts)
	assert.Equal(t, -20.0, c.RetailersCosts)

	// Acting again does not accumulate.
	require.NoError(t, c.Act(context.Background(), d, agent.Quantification))
	assert.Equal(t, -5.0, c.Welfare)
	assert.Len(t, c.StatusVariables(), 6)
	require.ErrorIs(t, c.Act(context.Background(), d, agent.Operation), agent.ErrUnknownPhase)
}
