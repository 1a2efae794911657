package market

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/solver"
)

type buyer struct {
	name  string
	kind  Kind
	nodes []int
	books []solver.Input
	eval  func(d *Data) error
}

func (b *buyer) Name() string { return b.name }
func (b *buyer) Nodes() []int { return b.nodes }
func (b *buyer) Kind() Kind   { return b.kind }
func (b *buyer) EvaluateFlexibility(_ context.Context, d *Data, books []solver.Input) error {
	b.books = books
	if b.eval == nil {
		return nil
	}
	return b.eval(d)
}

func newPlatform(t *testing.T, periods, nodes int) (*Platform, *Data) {
	t.Helper()
	d := NewData(periods, nodes)
	p := NewPlatform(agent.NewRegistry(), nil)
	require.NoError(t, p.Initialize(context.Background(), d))
	return p, d
}

// withObserver registers a buyer that requests nothing, so Clear runs one
// pass over the pending requests.
func withObserver(p *Platform) {
	p.RegisterFSU(&buyer{name: "observer", kind: KindOther})
}

func TestRegisterAssignsDenseIDs(t *testing.T) {
	p, d := newPlatform(t, 2, 2)
	seller := &buyer{name: "prod", kind: KindProducer, nodes: []int{1}}
	b0 := NewSPBid(seller, 1, 0, -1, 2, DefaultCosts(d.Eps))
	b1 := NewSPBid(seller, 1, 1, 0, 3, DefaultCosts(d.Eps))
	require.NoError(t, p.RegisterSPBid(d, b0))
	require.NoError(t, p.RegisterSPBid(d, b1))
	ec := NewECBid(seller, 0, 2, DefaultCosts(d.Eps))
	ec.Min = []float64{-1, -2}
	ec.Max = []float64{1, 0}
	require.NoError(t, p.RegisterECBid(d, ec))

	assert.Equal(t, 0, b0.ID)
	assert.Equal(t, 1, b1.ID)
	assert.Equal(t, 0, ec.ID)
	assert.Equal(t, []float64{2, 3}, d.UpSubmitted[1])
	assert.Equal(t, []float64{-1, 0}, d.DownSubmitted[1])
	assert.Equal(t, []float64{-1, -2}, d.DownSubmitted[0])

	p.Clean(d)
	assert.Empty(t, p.SPBids())
	assert.Empty(t, p.ECBids())
	assert.Zero(t, d.UpSubmitted.Total())
}

func TestRegisterRejectsBoundsNotEnclosingZero(t *testing.T) {
	p, d := newPlatform(t, 1, 1)
	err := p.RegisterSPBid(d, NewSPBid(nil, 0, 0, 1, 2, DefaultCosts(d.Eps)))
	assert.True(t, errors.Is(err, ErrInvalidBid))
	ec := NewECBid(nil, 0, 1, DefaultCosts(d.Eps))
	ec.Max[0] = -1
	assert.True(t, errors.Is(p.RegisterECBid(d, ec), ErrInvalidBid))
}

func TestRequestsBelowToleranceAreDropped(t *testing.T) {
	p, d := newPlatform(t, 1, 1)
	b := NewSPBid(nil, 0, 0, -1, 1, DefaultCosts(d.Eps))
	require.NoError(t, p.RegisterSPBid(d, b))
	ec := NewECBid(nil, 0, 1, DefaultCosts(d.Eps))
	require.NoError(t, p.RegisterECBid(d, ec))
	tso := &buyer{name: "TSO", kind: KindTSO}

	require.NoError(t, p.RequestSPBid(d, 0, tso, d.Eps, 0))
	require.NoError(t, p.RequestECBid(d, 0, tso, d.Eps/2))
	assert.Empty(t, b.Requests)
	assert.Empty(t, ec.Requests)

	require.NoError(t, p.RequestSPBid(d, 0, tso, 0, 0.5))
	assert.Len(t, b.Requests, 1)

	assert.True(t, errors.Is(p.RequestSPBid(d, 3, tso, 0, 1), ErrUnknownBid))
	assert.True(t, errors.Is(p.RequestECBid(d, 1, tso, 1), ErrUnknownBid))
}

// With capacity for a single request the higher priority buyer is served
// whatever the registration order of the requests.
func TestClearingServesPriorityFirst(t *testing.T) {
	cases := []struct {
		name   string
		first  *buyer
		second *buyer
		winner string
	}{
		{"DSO before TSO", &buyer{name: "TSO", kind: KindTSO}, &buyer{name: "DSO", kind: KindDSO}, "DSO"},
		{"local buyer before TSO", &buyer{name: "TSO", kind: KindTSO}, &buyer{name: "local", kind: KindRetailer, nodes: []int{0}}, "local"},
		{"TSO before remote buyer", &buyer{name: "remote", kind: KindRetailer, nodes: []int{1}}, &buyer{name: "TSO", kind: KindTSO}, "TSO"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p, d := newPlatform(t, 1, 2)
			withObserver(p)
			b := NewSPBid(nil, 0, 0, 0, 1, DefaultCosts(d.Eps))
			require.NoError(t, p.RegisterSPBid(d, b))
			require.NoError(t, p.RequestSPBid(d, 0, tc.first, 0, 1))
			require.NoError(t, p.RequestSPBid(d, 0, tc.second, 0, 1))
			require.NoError(t, p.Clear(context.Background(), d))

			require.Len(t, b.Requests, 2)
			assert.Equal(t, tc.winner, b.Requests[0].Buyer.Name())
			assert.Equal(t, 1.0, b.Requests[0].AcceptedUp)
			assert.Zero(t, b.Requests[1].AcceptedUp)
			assert.Equal(t, 1.0, b.AcceptedMax)
			assert.LessOrEqual(t, b.AcceptedMax, b.Max)
			assert.Equal(t, 1.0, d.UpReserved[0][0])
		})
	}
}

func TestClearingSortsFSUsAndNeverOverAllocates(t *testing.T) {
	p, d := newPlatform(t, 1, 1)
	var order []string
	var sp *SPBid
	retailer := &buyer{name: "retailer", kind: KindRetailer, nodes: []int{0}}
	dso := &buyer{name: "DSO", kind: KindDSO}
	tso := &buyer{name: "TSO", kind: KindTSO}
	for _, f := range []*buyer{retailer, tso, dso} {
		f := f
		f.eval = func(d *Data) error {
			order = append(order, f.name)
			return p.RequestSPBid(d, sp.ID, f, -0.6, 0.6)
		}
		p.RegisterFSU(f)
	}
	sp = NewSPBid(nil, 0, 0, -1, 1, DefaultCosts(d.Eps))
	require.NoError(t, p.RegisterSPBid(d, sp))

	require.NoError(t, p.Clear(context.Background(), d))
	assert.Equal(t, []string{"DSO", "TSO", "retailer"}, order)
	assert.InDelta(t, -0.6, sp.AcceptedMin, 1e-12)
	assert.InDelta(t, 0.6, sp.AcceptedMax, 1e-12)
	assert.GreaterOrEqual(t, sp.AcceptedMin, sp.Min)
	assert.LessOrEqual(t, sp.AcceptedMax, sp.Max)
	assert.Len(t, p.AcceptedSPBidRequests(dso), 1)
	assert.Empty(t, p.AcceptedSPBidRequests(tso))
	assert.Empty(t, p.AcceptedSPBidRequests(retailer))
}

func TestClearingGrantsSidesIndependently(t *testing.T) {
	p, d := newPlatform(t, 1, 1)
	withObserver(p)
	b := NewSPBid(nil, 0, 0, -0.5, 2, Costs{ReservationCost: 3, DSOReservationCost: 7})
	require.NoError(t, p.RegisterSPBid(d, b))
	tso := &buyer{name: "TSO", kind: KindTSO}
	require.NoError(t, p.RequestSPBid(d, 0, tso, -1, 1))
	require.NoError(t, p.Clear(context.Background(), d))

	r := b.Requests[0]
	assert.True(t, r.Accepted)
	assert.Zero(t, r.AcceptedDown)
	assert.Equal(t, 1.0, r.AcceptedUp)
	assert.Equal(t, 3.0, b.ReservationBenefits)
	assert.True(t, b.Accepted(d.Eps))
}

func TestECClearingConsidersFirstRequestOnly(t *testing.T) {
	p, d := newPlatform(t, 2, 2)
	withObserver(p)
	seller := &buyer{name: "prod", kind: KindProducer}
	b := NewECBid(seller, 1, 2, Costs{ReservationCost: 2, DSOReservationCost: 5})
	b.Min = []float64{-1, -1}
	b.Max = []float64{1, 2}
	require.NoError(t, p.RegisterECBid(d, b))
	tso := &buyer{name: "TSO", kind: KindTSO}
	dso := &buyer{name: "DSO", kind: KindDSO}
	require.NoError(t, p.RequestECBid(d, 0, tso, 1))
	require.NoError(t, p.RequestECBid(d, 0, dso, 0.5))
	require.NoError(t, p.Clear(context.Background(), d))

	assert.Equal(t, 0.5, b.Reservation)
	assert.Equal(t, 5.0, b.ReservationBenefits)
	assert.Len(t, p.AcceptedECBidRequests(dso), 1)
	assert.Empty(t, p.AcceptedECBidRequests(tso))
	assert.Equal(t, []float64{1, 2}, d.UpReserved[1])
	assert.Equal(t, []float64{-1, -1}, d.DownReserved[1])
	assert.Len(t, p.AcceptedECBids(d, seller), 1)
}

func TestActivationBenefits(t *testing.T) {
	p, d := newPlatform(t, 2, 1)
	withObserver(p)
	b := NewSPBid(nil, 0, 1, 0, 1, Costs{ActivationCost: 4, DSOActivationCost: 9})
	require.NoError(t, p.RegisterSPBid(d, b))
	dso := &buyer{name: "DSO", kind: KindDSO}
	require.NoError(t, p.RequestSPBid(d, 0, dso, 0, 1))
	require.NoError(t, p.Clear(context.Background(), d))
	r := p.AcceptedSPBidRequests(dso)[0]
	p.ActivateSPBid(d, r, 0.5)
	assert.Equal(t, 0.5, b.Modulation)
	assert.Equal(t, 0.5*9, b.ActivationBenefits)
	assert.Equal(t, 0.5, d.UpActivated[0][1])

	ec := NewECBid(nil, 0, 2, Costs{ActivationCost: 2})
	require.NoError(t, p.RegisterECBid(d, ec))
	er := &ECBidRequest{Bid: ec, Buyer: &buyer{name: "TSO", kind: KindTSO}}
	p.ActivateECBid(d, er, []float64{1, -2})
	assert.Equal(t, 6.0, ec.ActivationBenefits)
	assert.Equal(t, 1.0, d.UpActivated[0][0])
	assert.Equal(t, -2.0, d.DownActivated[0][1])
}

func TestSettlementUsage(t *testing.T) {
	p, d := newPlatform(t, 1, 2)
	d.UpActivated[0][0], d.DownActivated[0][0] = 2, -1
	d.UpActivated[1][0] = 3
	d.Shed[1][0] = true
	p.Settle(d)
	assert.Equal(t, 1.0, d.OppositeUsage[0])
	assert.Equal(t, 6.0, d.TotalUsage[0])
	assert.Equal(t, 4.0, d.FlexEffect[0])
	assert.Equal(t, 3.0, d.TrippedFlex[0])
}

func TestBooksHideMarketBidsFromRestrictedDSO(t *testing.T) {
	p, d := newPlatform(t, 1, 1)
	c := Costs{ReservationCost: 1, ActivationCost: 2, DSOReservationCost: 3, DSOActivationCost: 4}
	require.NoError(t, p.RegisterSPBid(d, NewSPBid(nil, 0, 0, -1, 1, c)))
	require.NoError(t, p.RegisterSPBid(d, NewSPObligationBid(nil, 0, 0, -2, 0, c)))

	books := p.Books(d, true, false)
	require.Len(t, books, 2)
	sp := string(books[0].Content)
	assert.Equal(t, "# B, T\n3,1\n# b, n, t, pi^r, pi^a, m, M\n0,0,1,10000,0,0,0\n1,0,1,3,4,-2,0\n2,0,1,10000,0,0,0\n", sp)

	full := string(p.Books(d, false, true)[0].Content)
	assert.True(t, strings.Contains(full, "0,0,1,1,2,-1,1\n"))
	ec := string(books[1].Content)
	assert.Equal(t, "# B, T\n1,1\n# b, n, pi^r, pi^a\n0,0,10000,0\n# b, t, m, M\n0,1,0,0\n", ec)
}

func TestPlatformRejectsUnknownPhase(t *testing.T) {
	p, d := newPlatform(t, 1, 1)
	err := p.Act(context.Background(), d, agent.Operation)
	assert.True(t, errors.Is(err, agent.ErrUnknownPhase))
}
