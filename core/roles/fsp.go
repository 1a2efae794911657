package roles

import (
	"math"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/forecast"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/solver"
)

// Solver inputs written by flexibility providers.
const (
	FlexIndicatorsFile  = "flexIndicators.dat"
	FlexBidsFile        = "flexBids.dat"
	FlexToActivateFile  = "flexToActivate.dat"
	FlexObligationsFile = "flexObligations.dat"
)

// InitialIndicator is the flexibility price indicator before any need is
// known.
const InitialIndicator = 0.01

// FSP is the flexibility service provider role: it offers modulations of
// its own nodes and delivers what the buyers activate.
type FSP struct {
	pf     *Portfolio
	seller market.Participant
	// Reference returns the flexibility price the indicators scale.
	Reference func(n, t int) float64

	Alpha    market.NodeSeries // downward obligation ratio
	Beta     market.NodeSeries // upward obligation ratio
	Provider market.NodeSeries // bsp, 1 where an offer was bought

	IndicatorUp   market.NodeSeries // pi^f+
	IndicatorDown market.NodeSeries // pi^f-
	OfferUp       market.NodeSeries // f^+
	OfferDown     market.NodeSeries // f^-

	ProvidedTotal []float64 // H
	NeedsForecast []float64

	forecast *forecast.FiniteExponential
}

// NewFSP attaches the role to pf. seller is the identity owning the bids.
func NewFSP(pf *Portfolio, seller market.Participant, reference func(n, t int) float64) *FSP {
	if reference == nil {
		reference = func(int, int) float64 { return 0 }
	}
	return &FSP{pf: pf, seller: seller, Reference: reference}
}

// Initialize allocates the registers and seeds the needs forecast.
func (f *FSP) Initialize(d *market.Data) {
	f.Alpha = market.NewNodeSeries(d.N, d.T)
	f.Beta = market.NewNodeSeries(d.N, d.T)
	f.Provider = market.NewNodeSeries(d.N, d.T)
	f.IndicatorUp = market.NewNodeSeries(d.N, d.T)
	f.IndicatorDown = market.NewNodeSeries(d.N, d.T)
	f.OfferUp = market.NewNodeSeries(d.N, d.T)
	f.OfferDown = market.NewNodeSeries(d.N, d.T)
	f.ProvidedTotal = make([]float64, d.T)
	for _, n := range f.pf.Nodes {
		for t := 0; t < d.T; t++ {
			f.IndicatorUp[n][t] = InitialIndicator
			f.IndicatorDown[n][t] = InitialIndicator
		}
	}
	seed := make([]float64, 2*len(f.pf.Nodes)*d.T)
	f.forecast = forecast.NewFiniteExponential(seed, forecast.DefaultHistory, forecast.DefaultDiscountFactor)
	f.NeedsForecast = make([]float64, len(seed))
}

// StatusVariables returns the needs forecast.
func (f *FSP) StatusVariables() []agent.StatusVariable {
	return []agent.StatusVariable{agent.Vector("flexNeedsForecast", &f.NeedsForecast)}
}

// BuildIndicators spreads the reference price over the periods in
// proportion to the needs.
func (f *FSP) BuildIndicators(d *market.Data, up, down market.NodeSeries) {
	eps := d.Eps
	for _, n := range f.pf.Nodes {
		rU, rL := up[n], down[n]
		sumRU, sumRL := eps*float64(d.T), eps*float64(d.T)
		for t := 0; t < d.T; t++ {
			sumRU += math.Abs(rU[t])
			sumRL += math.Abs(rL[t])
		}
		for t := 0; t < d.T; t++ {
			f.IndicatorUp[n][t] = eps
			if rU[t] > eps {
				f.IndicatorUp[n][t] = (f.Reference(n, t)*rU[t] + eps) / sumRU
			}
			f.IndicatorDown[n][t] = eps
			if rL[t] < -eps {
				f.IndicatorDown[n][t] = (-f.Reference(n, t)*rL[t] + eps) / sumRL
			}
		}
	}
}

// ForecastedNeeds splits the current forecast into upward and downward needs
// per node.
func (f *FSP) ForecastedNeeds(d *market.Data) (up, down market.NodeSeries) {
	fc := f.forecast.Value()
	f.NeedsForecast = append(f.NeedsForecast[:0], fc...)
	up = market.NewNodeSeries(d.N, d.T)
	down = market.NewNodeSeries(d.N, d.T)
	i := 0
	for _, n := range f.pf.Nodes {
		copy(up[n], fc[i:i+d.T])
		i += d.T
		copy(down[n], fc[i:i+d.T])
		i += d.T
	}
	return up, down
}

// UpdateForecast measures the general needs R+ and R- of the own nodes.
func (f *FSP) UpdateForecast(d *market.Data) {
	m := make([]float64, 0, 2*len(f.pf.Nodes)*d.T)
	for _, n := range f.pf.Nodes {
		m = append(m, d.UpRequired[n]...)
		m = append(m, d.DownRequired[n]...)
	}
	f.forecast.Measure(m)
}

// FetchActivation collects the modulations the buyers activated on the
// offers of the provider and cashes in their benefits.
func (f *FSP) FetchActivation(env *Env, d *market.Data) {
	pf := f.pf
	pf.Provided.Reset()
	f.Provider.Reset()
	f.ProvidedTotal = make([]float64, d.T)

	for _, b := range env.Platform.AcceptedSPBids(d, f.seller) {
		f.Provider[b.Bus][b.Period] = 1
		pf.Provided[b.Bus][b.Period] += b.Modulation
		f.ProvidedTotal[b.Period] += b.Modulation
		pf.Costs -= b.ReservationBenefits
		pf.Costs -= b.ActivationBenefits
	}
	for _, b := range env.Platform.AcceptedECBids(d, f.seller) {
		pf.Costs -= b.ReservationBenefits
		for t := 0; t < d.T; t++ {
			f.Provider[b.Bus][t] = 1
			pf.Provided[b.Bus][t] += b.Modulation[t]
			f.ProvidedTotal[t] += b.Modulation[t]
			// Charged once per period.
			pf.Costs -= b.ActivationBenefits
		}
	}
}

// ResetDynamicRanges sets d and D to the flexible bounds k and K.
func (f *FSP) ResetDynamicRanges(d *market.Data) {
	pf := f.pf
	for _, n := range pf.Nodes {
		for t := 0; t < d.T; t++ {
			pf.DynamicLow[n][t] = pf.FlexLow[n]
			pf.DynamicHigh[n][t] = pf.FlexHigh[n]
		}
	}
}

// Settle charges the provider for modulations not delivered on shed nodes
// and for power outside its dynamic ranges. Both amounts go to dso.
func (f *FSP) Settle(d *market.Data, dso Account) {
	pf := f.pf
	nonDelivered := 0.0
	for t := 0; t < d.T; t++ {
		if d.ShedQuantities[t] <= d.Eps {
			continue
		}
		for _, n := range pf.Nodes {
			if !d.IsShed(n, t) || f.Provider[n][t] <= d.Eps {
				continue
			}
			h := pf.Provided[n][t]
			iP, iM := max(h, 0), max(-h, 0)
			if iP > d.Eps || iM > d.Eps {
				nonDelivered += (iP + iM) * d.ImbalancePenalty
			}
		}
	}
	pf.Costs += nonDelivered
	dso.AddCost(-nonDelivered)

	ranges := 0.0
	for _, n := range pf.Nodes {
		for t := 0; t < d.T; t++ {
			p := pf.Realized[n][t]
			ranges += (max(0, p-pf.DynamicHigh[n][t]) + max(0, pf.DynamicLow[n][t]-p)) * d.ImbalancePenalty
		}
	}
	pf.Costs += ranges
	dso.AddCost(-ranges)
}

// ActivationToProvideFile renders h and bsp.
func (f *FSP) ActivationToProvideFile(d *market.Data) solver.Input {
	return f.nodalFile(d, FlexToActivateFile, "n, t, h, bsp, d, D", f.pf.Provided, f.Provider)
}

// ObligationsFile renders the obligation ratios.
func (f *FSP) ObligationsFile(d *market.Data) solver.Input {
	return f.nodalFile(d, FlexObligationsFile, "n, t, alpha, beta, d, D", f.Alpha, f.Beta)
}

// OffersFile renders the offered volumes.
func (f *FSP) OffersFile(d *market.Data) solver.Input {
	return f.nodalFile(d, FlexBidsFile, "n, t, f^+, f^-, d, D", f.OfferUp, f.OfferDown)
}

func (f *FSP) nodalFile(d *market.Data, name, heading string, a, b market.NodeSeries) solver.Input {
	pf := f.pf
	file := solver.NewDataFile(name)
	pf.header(file, d.T).Comment(heading)
	for _, n := range pf.Nodes {
		for t := 0; t < d.T; t++ {
			file.Row(n, t+1, a[n][t], b[n][t], pf.DynamicLow[n][t], pf.DynamicHigh[n][t])
		}
	}
	pf.rangesBlock(file)
	return file.Input()
}

// IndicatorsFile renders the flexibility price indicators.
func (f *FSP) IndicatorsFile(d *market.Data) solver.Input {
	file := solver.NewDataFile(FlexIndicatorsFile)
	f.pf.header(file, d.T).Comment("n,t, pi^f+, pi^f-")
	for _, n := range f.pf.Nodes {
		for t := 0; t < d.T; t++ {
			file.Row(n, t+1, f.IndicatorUp[n][t], f.IndicatorDown[n][t])
		}
	}
	return file.Input()
}

// Offered reports whether any own node offers flexibility at period t.
func (f *FSP) Offered(t int) bool {
	for _, n := range f.pf.Nodes {
		if f.OfferUp[n][t] != 0 || f.OfferDown[n][t] != 0 {
			return true
		}
	}
	return false
}
