package market

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/logger"
	"github.com/kilianp07/flexmarket/core/solver"
)

// PlatformName is the agent name of the flexibility platform.
const PlatformName = "Flexibility platform"

// ErrUnknownBid reports a request or activation referencing a bid that is
// not registered.
var ErrUnknownBid = errors.New("unknown bid")

// Platform is the flexibility trading venue. The FSU registry survives
// cleaning, the bid registries do not.
type Platform struct {
	agent.Base
	log logger.Logger

	fsus   []FSU
	spBids []*SPBid
	ecBids []*ECBid
}

// NewPlatform builds the platform agent.
func NewPlatform(reg *agent.Registry, log logger.Logger) *Platform {
	return &Platform{Base: agent.NewBase(reg, PlatformName, nil), log: logger.OrNop(log)}
}

func (p *Platform) Initialize(_ context.Context, d *Data) error {
	p.Clean(d)
	return nil
}

func (p *Platform) Act(ctx context.Context, d *Data, phase agent.Phase) error {
	p.log.Debugf("%s", phase)
	switch phase {
	case agent.FlexibilityPlatformCleaning:
		p.Clean(d)
	case agent.FlexibilityPlatformClearing:
		return p.Clear(ctx, d)
	case agent.FlexibilityPlatformActivation:
		// Activation is requested by the FSUs themselves.
	case agent.Settlement:
		p.Settle(d)
	default:
		return agent.Unknown(p.Name(), phase)
	}
	return nil
}

// Clean drops every bid and resets the iteration state of d.
func (p *Platform) Clean(d *Data) {
	p.spBids = nil
	p.ecBids = nil
	d.ResetIteration()
}

// RegisterFSU adds a buyer to the clearing.
func (p *Platform) RegisterFSU(f FSU) { p.fsus = append(p.fsus, f) }

// FSUs returns the registered buyers in clearing order once cleared.
func (p *Platform) FSUs() []FSU { return p.fsus }

// SPBids returns the registered single period bids.
func (p *Platform) SPBids() []*SPBid { return p.spBids }

// ECBids returns the registered energy constrained bids.
func (p *Platform) ECBids() []*ECBid { return p.ecBids }

// RegisterSPBid assigns the next id to b and adds it to the submitted
// volumes.
func (p *Platform) RegisterSPBid(d *Data, b *SPBid) error {
	if err := b.Validate(d.Eps); err != nil {
		return err
	}
	if b.Bus < 0 || b.Bus >= d.N || b.Period < 0 || b.Period >= d.T {
		return fmt.Errorf("%w: single period bid at bus %d, period %d is outside the grid", ErrInvalidBid, b.Bus, b.Period)
	}
	b.ID = len(p.spBids)
	p.spBids = append(p.spBids, b)
	d.UpSubmitted[b.Bus][b.Period] += b.Max
	d.DownSubmitted[b.Bus][b.Period] += b.Min
	return nil
}

// RegisterECBid assigns the next id to b and adds it to the submitted
// volumes.
func (p *Platform) RegisterECBid(d *Data, b *ECBid) error {
	if err := b.Validate(d.Eps); err != nil {
		return err
	}
	if b.Bus < 0 || b.Bus >= d.N || b.Periods() != d.T {
		return fmt.Errorf("%w: energy constrained bid at bus %d spans %d periods", ErrInvalidBid, b.Bus, b.Periods())
	}
	b.ID = len(p.ecBids)
	p.ecBids = append(p.ecBids, b)
	for t := 0; t < d.T; t++ {
		d.UpSubmitted[b.Bus][t] += b.Max[t]
		d.DownSubmitted[b.Bus][t] += b.Min[t]
	}
	return nil
}

// RequestSPBid records the interest of buyer for [w, W] of bid id. Requests
// with W ≤ eps and w ≥ eps are dropped.
func (p *Platform) RequestSPBid(d *Data, id int, buyer Participant, w, W float64) error {
	if id < 0 || id >= len(p.spBids) {
		return fmt.Errorf("%w: single period bid %d", ErrUnknownBid, id)
	}
	if !(W > d.Eps || w < d.Eps) {
		return nil
	}
	b := p.spBids[id]
	b.Requests = append(b.Requests, &SPBidRequest{Bid: b, Buyer: buyer, Down: w, Up: W})
	p.log.Debugf("SPF request of %s in node %d and period %d [%g,%g]", buyer.Name(), b.Bus, b.Period, w, W)
	return nil
}

// RequestECBid records the interest of buyer for a reservation of bid id.
// Reservations not above eps are dropped.
func (p *Platform) RequestECBid(d *Data, id int, buyer Participant, reservation float64) error {
	if id < 0 || id >= len(p.ecBids) {
		return fmt.Errorf("%w: energy constrained bid %d", ErrUnknownBid, id)
	}
	if reservation <= d.Eps {
		return nil
	}
	b := p.ecBids[id]
	b.Requests = append(b.Requests, &ECBidRequest{Bid: b, Buyer: buyer, Reservation: reservation})
	p.log.Debugf("ECF request of %s in node %d", buyer.Name(), b.Bus)
	return nil
}

// ActivateSPBid activates modulation m of the bid of r.
func (p *Platform) ActivateSPBid(d *Data, r *SPBidRequest, m float64) {
	b := r.Bid
	b.Modulation += m
	if m > d.Eps {
		d.UpActivated[b.Bus][b.Period] += m
	} else if m < d.Eps {
		d.DownActivated[b.Bus][b.Period] += m
	}
	b.ActivationBenefits += m * b.ActivationFor(r.Buyer)
}

// ActivateECBid activates the per period modulation m of the bid of r.
func (p *Platform) ActivateECBid(d *Data, r *ECBidRequest, m []float64) {
	b := r.Bid
	cost := b.ActivationFor(r.Buyer)
	for t := 0; t < b.Periods() && t < len(m); t++ {
		b.Modulation[t] += m[t]
		if m[t] > d.Eps {
			d.UpActivated[b.Bus][t] += m[t]
		} else if m[t] < d.Eps {
			d.DownActivated[b.Bus][t] += m[t]
		}
		b.ActivationBenefits += math.Abs(m[t]) * cost
	}
}

// AcceptedSPBidRequests returns the granted single period requests of buyer.
func (p *Platform) AcceptedSPBidRequests(buyer Participant) []*SPBidRequest {
	var out []*SPBidRequest
	for _, b := range p.spBids {
		for _, r := range b.Requests {
			if r.Buyer == buyer && r.Accepted {
				out = append(out, r)
			}
		}
	}
	return out
}

// AcceptedECBidRequests returns the granted energy constrained requests of
// buyer.
func (p *Platform) AcceptedECBidRequests(buyer Participant) []*ECBidRequest {
	var out []*ECBidRequest
	for _, b := range p.ecBids {
		for _, r := range b.Requests {
			if r.Buyer == buyer && r.Accepted {
				out = append(out, r)
			}
		}
	}
	return out
}

// AcceptedSPBids returns the single period bids of owner with a reserved
// volume.
func (p *Platform) AcceptedSPBids(d *Data, owner Participant) []*SPBid {
	var out []*SPBid
	for _, b := range p.spBids {
		if b.Owner == owner && b.Accepted(d.Eps) {
			out = append(out, b)
		}
	}
	return out
}

// AcceptedECBids returns the energy constrained bids of owner with a
// reservation.
func (p *Platform) AcceptedECBids(d *Data, owner Participant) []*ECBid {
	var out []*ECBid
	for _, b := range p.ecBids {
		if b.Owner == owner && b.Reservation > d.Eps {
			out = append(out, b)
		}
	}
	return out
}

// FSUPriority ranks buyers for the clearing: DSO, TSO, then the others.
func FSUPriority(f Participant) int {
	switch f.Kind() {
	case KindDSO:
		return 1
	case KindTSO:
		return 2
	}
	return 3
}

// RequestPriority ranks requests of a bid: the DSO first, then buyers
// controlling the bus of the bid, then the TSO, then the others.
func RequestPriority(buyer Participant, bus int) int {
	switch {
	case buyer.Kind() == KindDSO:
		return 1
	case controls(buyer, bus):
		return 2
	case buyer.Kind() == KindTSO:
		return 3
	}
	return 4
}

// Clear runs the priority based auction. Each buyer in turn receives the
// remaining offers, requests what it needs and is served greedily without
// partial fills.
func (p *Platform) Clear(ctx context.Context, d *Data) error {
	sort.SliceStable(p.fsus, func(i, j int) bool { return FSUPriority(p.fsus[i]) < FSUPriority(p.fsus[j]) })

	for _, fsu := range p.fsus {
		p.log.Debugf("Flex clearing of %s.", fsu.Name())
		var books []solver.Input
		if fsu.Kind() == KindDSO {
			books = p.Books(d, true, d.Model.DSOIsFSU)
		} else {
			books = p.Books(d, false, true)
		}
		if err := fsu.EvaluateFlexibility(ctx, d, books); err != nil {
			return fmt.Errorf("flexibility evaluation of %s: %w", fsu.Name(), err)
		}
		for _, b := range p.spBids {
			p.clearSP(d, b)
		}
		for _, b := range p.ecBids {
			p.clearEC(d, b)
		}
	}

	for n := 0; n < d.N; n++ {
		if floats.Sum(d.UpSubmitted[n])+floats.Sum(d.DownSubmitted[n]) > d.Eps {
			p.log.Debugw("clearing", map[string]any{
				"node": n,
				"A+":   d.UpReserved[n],
				"S+":   d.UpSubmitted[n],
				"A-":   d.DownReserved[n],
				"S-":   d.DownSubmitted[n],
			})
		}
	}
	return nil
}

func (p *Platform) clearSP(d *Data, b *SPBid) {
	sort.SliceStable(b.Requests, func(i, j int) bool {
		return RequestPriority(b.Requests[i].Buyer, b.Bus) < RequestPriority(b.Requests[j].Buyer, b.Bus)
	})
	for _, r := range b.Requests {
		if r.Accepted {
			continue
		}
		if r.Down+d.Eps >= b.Min-b.AcceptedMin {
			r.AcceptedDown = r.Down
			b.AcceptedMin += r.Down
			d.DownReserved[b.Bus][b.Period] += r.Down
			r.Accepted = true
			b.ReservationBenefits += b.ReservationFor(r.Buyer) * r.Down
		}
		if r.Up-d.Eps <= b.Max-b.AcceptedMax {
			r.AcceptedUp = r.Up
			b.AcceptedMax += r.Up
			d.UpReserved[b.Bus][b.Period] += r.Up
			r.Accepted = true
			b.ReservationBenefits += b.ReservationFor(r.Buyer) * r.Up
		}
	}
}

func (p *Platform) clearEC(d *Data, b *ECBid) {
	if b.Reservation >= d.Eps || len(b.Requests) == 0 {
		return
	}
	sort.SliceStable(b.Requests, func(i, j int) bool {
		return RequestPriority(b.Requests[i].Buyer, b.Bus) < RequestPriority(b.Requests[j].Buyer, b.Bus)
	})
	r := b.Requests[0]
	b.Reservation = r.Reservation
	if r.Reservation > d.Eps {
		r.Accepted = true
	}
	b.ReservationBenefits = b.ReservationFor(r.Buyer)
	for t := 0; t < d.T; t++ {
		d.UpReserved[b.Bus][t] += b.Max[t]
		d.DownReserved[b.Bus][t] += b.Min[t]
	}
}

// Settle accounts for opposite and total usage of activated flexibility.
func (p *Platform) Settle(d *Data) {
	for t := 0; t < d.T; t++ {
		for n := 0; n < d.N; n++ {
			up, down := d.UpActivated[n][t], d.DownActivated[n][t]
			if up > d.Eps && -down > d.Eps {
				d.OppositeUsage[t] += min(up, -down)
			}
			d.TotalUsage[t] += up - down
			d.FlexEffect[t] += up + down
			if d.IsShed(n, t) {
				d.TrippedFlex[t] += up - down
			}
		}
	}
}
