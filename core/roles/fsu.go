package roles

import (
	"context"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/solver"
)

// Solver inputs written by flexibility users.
const (
	AcceptedFlexFile  = "acceptedFlex.dat"
	ActivatedFlexFile = "activatedFlex.dat"
)

// FSU is the flexibility service user role: it buys reservations on the
// platform and decides how much of them to activate.
type FSU struct {
	pf    *Portfolio
	buyer market.Participant

	ReservedUp     market.NodeSeries // a+
	ReservedDown   market.NodeSeries // a-
	ContractedUp   []float64         // A+
	ContractedDown []float64         // A-
	ActivatedUp    []float64         // U+
	ActivatedDown  []float64         // U-
	ActivatedNet   []float64         // U
}

// NewFSU attaches the role to pf. buyer is the identity used on the
// platform, usually the actor embedding the role.
func NewFSU(pf *Portfolio, buyer market.Participant) *FSU {
	return &FSU{pf: pf, buyer: buyer}
}

// Initialize allocates the totals and registers self on the platform.
func (f *FSU) Initialize(d *market.Data, p *market.Platform, self market.FSU) {
	f.reset(d)
	p.RegisterFSU(self)
}

func (f *FSU) reset(d *market.Data) {
	f.ReservedUp = market.NewNodeSeries(d.N, d.T)
	f.ReservedDown = market.NewNodeSeries(d.N, d.T)
	f.ContractedUp = make([]float64, d.T)
	f.ContractedDown = make([]float64, d.T)
	f.ActivatedUp = make([]float64, d.T)
	f.ActivatedDown = make([]float64, d.T)
	f.ActivatedNet = make([]float64, d.T)
}

// RequestActivation gathers the granted requests, lets the model p decide
// the modulations to activate and reports them to the platform. Reservation
// and activation prices are charged to the portfolio. The solution is
// returned for the model specific variables.
func (f *FSU) RequestActivation(ctx context.Context, env *Env, d *market.Data, p solver.Problem) (*solver.Solution, error) {
	f.reset(d)
	pf := f.pf
	platform := env.Platform

	ecRequests := platform.AcceptedECBidRequests(f.buyer)
	for _, r := range ecRequests {
		b := r.Bid
		pf.Costs += b.ReservationFor(f.buyer)
		for t := 0; t < d.T; t++ {
			f.ContractedUp[t] += b.Max[t]
			f.ReservedUp[b.Bus][t] += b.Max[t]
			f.ContractedDown[t] += b.Min[t]
			f.ReservedDown[b.Bus][t] += b.Min[t]
		}
	}
	spRequests := platform.AcceptedSPBidRequests(f.buyer)
	for _, r := range spRequests {
		b := r.Bid
		pf.Costs += b.ReservationFor(f.buyer) * (math.Abs(r.AcceptedDown) + math.Abs(r.AcceptedUp))
		f.ContractedUp[b.Period] += r.AcceptedUp
		f.ReservedUp[b.Bus][b.Period] += r.AcceptedUp
		f.ContractedDown[b.Period] += r.AcceptedDown
		f.ReservedDown[b.Bus][b.Period] += r.AcceptedDown
	}

	sol, err := env.Solve(ctx, p.With(f.contractedFile(d, spRequests, ecRequests)))
	if err != nil {
		return nil, err
	}

	pf.Activated.Reset()
	v := sol.Vector(len(spRequests)-1, "v#", 0, "")
	for i, m := range v {
		r := spRequests[i]
		b := r.Bid
		platform.ActivateSPBid(d, r, m)
		pf.Costs += m * b.ActivationFor(f.buyer)
		pf.Activated[b.Bus][b.Period] += m
		if m > 0 {
			f.ActivatedUp[b.Period] += m
		} else {
			f.ActivatedDown[b.Period] += m
		}
	}
	for i, r := range ecRequests {
		b := r.Bid
		x := sol.Vector(d.T, "x#"+strconv.Itoa(i)+"#", 1, "")
		platform.ActivateECBid(d, r, x)
		cost := b.ActivationFor(f.buyer)
		for t := 0; t < d.T; t++ {
			pf.Costs += math.Abs(x[t]) * cost
			pf.Activated[b.Bus][t] += x[t]
			if x[t] > 0 {
				f.ActivatedUp[t] += x[t]
			} else {
				f.ActivatedDown[t] += x[t]
			}
		}
	}
	for t := range f.ActivatedNet {
		f.ActivatedNet[t] = f.ActivatedUp[t] + f.ActivatedDown[t]
	}
	return sol, nil
}

// EvaluateAndRequest lets the model p select offers among the books written
// by the platform and files the corresponding requests.
func (f *FSU) EvaluateAndRequest(ctx context.Context, env *Env, d *market.Data, p solver.Problem) error {
	sol, err := env.Solve(ctx, p)
	if err != nil {
		return err
	}
	platform := env.Platform
	F := len(platform.ECBids())
	y := sol.Vector(F-1, "y#", 0, "")
	for id := 0; id < F; id++ {
		if y[id] > d.Eps {
			if err := platform.RequestECBid(d, id, f.buyer, y[id]); err != nil {
				return err
			}
		}
	}
	B := len(platform.SPBids())
	w := sol.Vector(B-1, "w#", 0, "")
	W := sol.Vector(B-1, "W#", 0, "")
	for id := 0; id < B; id++ {
		if W[id]-w[id] > d.Eps {
			if err := platform.RequestSPBid(d, id, f.buyer, w[id], W[id]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (f *FSU) contractedFile(d *market.Data, sp []*market.SPBidRequest, ec []*market.ECBidRequest) solver.Input {
	isDSO := f.buyer.Kind() == market.KindDSO
	file := solver.NewDataFile(AcceptedFlexFile).
		Comment("B, F, T").Row(len(sp)+1, len(ec)+1, d.T)
	file.Line("#SPFOs")
	file.Comment("b, n, tau, pi^r, pi^a, aw, aW")
	for i, r := range sp {
		b := r.Bid
		rc, ac := b.ReservationCost, b.ActivationCost
		if isDSO && b.Obligation {
			rc, ac = b.DSOReservationCost, b.DSOActivationCost
		}
		file.Spaced(i, b.Bus, b.Period+1, rc, ac, min(r.AcceptedDown, 0), max(r.AcceptedUp, 0))
	}
	file.Spaced(len(sp), 0, 1, market.Inf, 0, 0, 0)

	file.Line("#ECFOs")
	file.Comment("b, n, pi^r, pi^a")
	for i, r := range ec {
		file.Row(i, r.Bid.Bus, r.Bid.ReservationCost, r.Bid.ActivationCost)
	}
	file.Row(len(ec), 0, market.Inf, 0)
	file.Comment("b, t, m, M")
	for i, r := range ec {
		for t := 0; t < d.T; t++ {
			file.Row(i, t+1, min(r.Bid.Min[t], 0), max(r.Bid.Max[t], 0))
		}
	}
	for t := 0; t < d.T; t++ {
		file.Row(len(ec), t+1, 0, 0)
	}
	return file.Input()
}

// ActivatedFile renders the modulation u activated on the own nodes.
func (f *FSU) ActivatedFile(d *market.Data) solver.Input {
	file := solver.NewDataFile(ActivatedFlexFile)
	f.pf.header(file, d.T).Comment("n, t, u")
	for _, n := range f.pf.Nodes {
		for t := 0; t < d.T; t++ {
			file.Row(n, t+1, f.pf.Activated[n][t])
		}
	}
	return file.Input()
}

// Accepted is the reserved flexibility energy.
func (f *FSU) Accepted(d *market.Data) float64 {
	return (floats.Sum(f.ContractedUp) - floats.Sum(f.ContractedDown)) * d.Dt
}

// Used is the activated flexibility energy.
func (f *FSU) Used(d *market.Data) float64 {
	return (floats.Sum(f.ActivatedUp) - floats.Sum(f.ActivatedDown)) * d.Dt
}
