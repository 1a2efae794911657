package market

import (
	"errors"
	"fmt"
)

// ErrInvalidBid is returned for bids whose bounds do not enclose zero.
var ErrInvalidBid = errors.New("invalid bid")

// Costs are the unit prices of a bid. The DSO variants apply when the DSO is
// the buyer.
type Costs struct {
	ReservationCost    float64
	ActivationCost     float64
	DSOReservationCost float64
	DSOActivationCost  float64
}

// DefaultCosts sets every price to eps.
func DefaultCosts(eps float64) Costs {
	return Costs{ReservationCost: eps, ActivationCost: eps, DSOReservationCost: eps, DSOActivationCost: eps}
}

// ReservationFor returns the reservation price charged to buyer.
func (c Costs) ReservationFor(buyer Participant) float64 {
	if buyer != nil && buyer.Kind() == KindDSO {
		return c.DSOReservationCost
	}
	return c.ReservationCost
}

// ActivationFor returns the activation price charged to buyer.
func (c Costs) ActivationFor(buyer Participant) float64 {
	if buyer != nil && buyer.Kind() == KindDSO {
		return c.DSOActivationCost
	}
	return c.ActivationCost
}

// Bid holds what single period and energy constrained offers share.
type Bid struct {
	// ID is dense and zero based, assigned at registration and valid until
	// the next cleaning of the platform.
	ID    int
	Bus   int
	Owner Participant
	Costs
	// Obligation marks offers imposed by flexibility obligations rather than
	// submitted to the market.
	Obligation bool

	ReservationBenefits float64
	ActivationBenefits  float64
}

// SPBid is a single period offer.
type SPBid struct {
	Bid
	Period      int
	Min         float64
	Max         float64
	AcceptedMin float64
	AcceptedMax float64
	Modulation  float64
	Requests    []*SPBidRequest
}

// NewSPBid builds a single period offer of [min, max] at bus and period t.
func NewSPBid(owner Participant, bus, t int, min, max float64, c Costs) *SPBid {
	return &SPBid{Bid: Bid{Bus: bus, Owner: owner, Costs: c}, Period: t, Min: min, Max: max}
}

// NewSPObligationBid builds a single period obligation.
func NewSPObligationBid(owner Participant, bus, t int, min, max float64, c Costs) *SPBid {
	b := NewSPBid(owner, bus, t, min, max, c)
	b.Obligation = true
	return b
}

// Validate checks min ≤ 0 ≤ max within eps.
func (b *SPBid) Validate(eps float64) error {
	if b.Min > eps || b.Max < -eps {
		return fmt.Errorf("%w: single period bid at bus %d, period %d has bounds [%g, %g]", ErrInvalidBid, b.Bus, b.Period, b.Min, b.Max)
	}
	return nil
}

// Accepted reports whether part of the bid was reserved.
func (b *SPBid) Accepted(eps float64) bool {
	return b.AcceptedMax > eps || b.AcceptedMin < -eps
}

// SPBidRequest requests Down ≤ 0 and Up ≥ 0 of a single period bid.
type SPBidRequest struct {
	Bid          *SPBid
	Buyer        Participant
	Down         float64 // w
	Up           float64 // W
	AcceptedDown float64 // aw
	AcceptedUp   float64 // aW
	// Accepted never reverts to false within an iteration.
	Accepted bool
}

// ECBid is an energy constrained offer spanning every period.
type ECBid struct {
	Bid
	Min        []float64
	Max        []float64
	Modulation []float64
	// Reservation is the fraction of the offer reserved, in [0, 1].
	Reservation float64
	Requests    []*ECBidRequest
}

// NewECBid builds an energy constrained offer over t periods at bus.
func NewECBid(owner Participant, bus, t int, c Costs) *ECBid {
	return &ECBid{
		Bid:        Bid{Bus: bus, Owner: owner, Costs: c},
		Min:        make([]float64, t),
		Max:        make([]float64, t),
		Modulation: make([]float64, t),
	}
}

// NewECObligationBid builds an energy constrained obligation.
func NewECObligationBid(owner Participant, bus, t int, c Costs) *ECBid {
	b := NewECBid(owner, bus, t, c)
	b.Obligation = true
	return b
}

// Periods returns the number of periods covered.
func (b *ECBid) Periods() int { return len(b.Min) }

// Validate checks min[t] ≤ 0 ≤ max[t] within eps for every period.
func (b *ECBid) Validate(eps float64) error {
	if len(b.Min) != len(b.Max) {
		return fmt.Errorf("%w: energy constrained bid at bus %d has %d lower and %d upper bounds", ErrInvalidBid, b.Bus, len(b.Min), len(b.Max))
	}
	for t := range b.Min {
		if b.Min[t] > eps || b.Max[t] < -eps {
			return fmt.Errorf("%w: energy constrained bid at bus %d, period %d has bounds [%g, %g]", ErrInvalidBid, b.Bus, t, b.Min[t], b.Max[t])
		}
	}
	return nil
}

// ECBidRequest requests a reservation fraction of an energy constrained bid.
type ECBidRequest struct {
	Bid         *ECBid
	Buyer       Participant
	Reservation float64
	Accepted    bool
}
