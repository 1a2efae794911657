package market

import (
	"github.com/kilianp07/flexmarket/core/solver"
)

// Solver input names of the bid books.
const (
	SPBidsFile = "spBids.dat"
	ECBidsFile = "ecBids.dat"
)

// Books renders the bid books offered to a buyer. With dsoCosts the DSO
// prices are written. Without allBids only obligations are visible, market
// bids are written at an infinite reservation price.
func (p *Platform) Books(d *Data, dsoCosts, allBids bool) []solver.Input {
	return []solver.Input{p.spBook(d, dsoCosts, allBids), p.ecBook(d, dsoCosts, allBids)}
}

func (p *Platform) spBook(d *Data, dsoCosts, allBids bool) solver.Input {
	B := len(p.spBids)
	f := solver.NewDataFile(SPBidsFile).
		Comment("B, T").Row(B+1, d.T).
		Comment("b, n, t, pi^r, pi^a, m, M")
	for _, b := range p.spBids {
		switch {
		case !allBids && !b.Obligation:
			f.Row(b.ID, b.Bus, b.Period+1, Inf, 0, 0, 0)
		case dsoCosts:
			f.Row(b.ID, b.Bus, b.Period+1, b.DSOReservationCost, b.DSOActivationCost, min(b.Min-b.AcceptedMin, 0), max(b.Max-b.AcceptedMax, 0))
		default:
			f.Row(b.ID, b.Bus, b.Period+1, b.ReservationCost, b.ActivationCost, min(b.Min-b.AcceptedMin, 0), max(b.Max-b.AcceptedMax, 0))
		}
	}
	f.Row(B, 0, 1, Inf, 0, 0, 0)
	return f.Input()
}

func (p *Platform) ecBook(d *Data, dsoCosts, allBids bool) solver.Input {
	B := len(p.ecBids)
	f := solver.NewDataFile(ECBidsFile).
		Comment("B, T").Row(B+1, d.T).
		Comment("b, n, pi^r, pi^a")
	for _, b := range p.ecBids {
		switch {
		case b.Reservation > d.Eps || (!allBids && !b.Obligation):
			f.Row(b.ID, b.Bus, Inf, 0)
		case dsoCosts:
			f.Row(b.ID, b.Bus, b.DSOReservationCost, b.DSOActivationCost)
		default:
			f.Row(b.ID, b.Bus, b.ReservationCost, b.ActivationCost)
		}
	}
	f.Row(B, 0, Inf, 0)

	f.Comment("b, t, m, M")
	for _, b := range p.ecBids {
		for t := 0; t < d.T; t++ {
			if allBids {
				f.Row(b.ID, t+1, min(b.Min[t]*(1-b.Reservation), 0), max(b.Max[t]*(1-b.Reservation), 0))
			} else {
				f.Row(b.ID, t+1, 0, 0)
			}
		}
	}
	for t := 0; t < d.T; t++ {
		f.Row(B, t+1, 0, 0)
	}
	return f.Input()
}
