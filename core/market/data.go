// Package market holds the shared state of a simulated day, the flexibility
// bid model and the flexibility platform that clears it.
package market

import (
	"gonum.org/v1/gonum/floats"
)

// Default numerical constants. Instances may override the tolerance.
const (
	DefaultEps = 1e-5
	// Inf is the cost written for offers hidden from a buyer.
	Inf = 10000.0
)

// OPFMethod selects the family of DSO models.
type OPFMethod string

const (
	OPFDefault OPFMethod = ""
	OPFLinear  OPFMethod = "linearOpf"
)

// Prefix returns the model name prefix of the DSO models.
func (m OPFMethod) Prefix() string {
	if m == OPFLinear {
		return "DSO-linearOpf-"
	}
	return "DSO-"
}

// String returns the export label of the method.
func (m OPFMethod) String() string {
	if m == OPFLinear {
		return string(m)
	}
	return "default"
}

// NodeSeries is a per node, per period matrix indexed [n][t].
type NodeSeries [][]float64

// NewNodeSeries returns an n by t zero matrix.
func NewNodeSeries(n, t int) NodeSeries {
	s := make(NodeSeries, n)
	for i := range s {
		s[i] = make([]float64, t)
	}
	return s
}

// Reset zeroes every entry.
func (s NodeSeries) Reset() {
	for _, row := range s {
		for t := range row {
			row[t] = 0
		}
	}
}

// Period sums the nodes at period t.
func (s NodeSeries) Period(t int) float64 {
	sum := 0.0
	for _, row := range s {
		sum += row[t]
	}
	return sum
}

// Periods sums the nodes for every period.
func (s NodeSeries) Periods() []float64 {
	if len(s) == 0 {
		return nil
	}
	out := make([]float64, len(s[0]))
	for _, row := range s {
		floats.Add(out, row)
	}
	return out
}

// Total sums every entry.
func (s NodeSeries) Total() float64 {
	sum := 0.0
	for _, row := range s {
		sum += floats.Sum(row)
	}
	return sum
}

// Flat concatenates the rows.
func (s NodeSeries) Flat() []float64 {
	var out []float64
	for _, row := range s {
		out = append(out, row...)
	}
	return out
}

// Data is the state shared by every agent of a simulated day.
type Data struct {
	T   int
	N   int
	Dt  float64
	Eps float64

	// ImbalancePenalty is pi^i, the penalty for power outside the agreed
	// ranges, already multiplied by Dt.
	ImbalancePenalty float64
	// EnergyPrice, UpImbalancePrice and DownImbalancePrice are piE, piI+ and
	// piI- per period, multiplied by Dt.
	EnergyPrice        []float64
	UpImbalancePrice   []float64
	DownImbalancePrice []float64
	// SystemImbalance is SI, set by the TSO.
	SystemImbalance []float64

	Model InteractionModel
	OPF   OPFMethod

	// Flexibility per node, reset by the platform every iteration.
	UpActivated   NodeSeries // U+
	DownActivated NodeSeries // U-
	UpReserved    NodeSeries // A+
	DownReserved  NodeSeries // A-
	UpSubmitted   NodeSeries // S+
	DownSubmitted NodeSeries // S-
	UpRequired    NodeSeries // R+
	DownRequired  NodeSeries // R-

	// Power per node, reset by the platform every iteration.
	Baseline  NodeSeries // p^b, announced baseline
	Corrected NodeSeries // p^r, baseline after imbalance optimization
	Realized  NodeSeries // p
	Proposed  NodeSeries // p^p, only with dynamic baselines

	// Per period aggregates, reset by the platform every iteration.
	Imbalance      []float64 // I
	OppositeUsage  []float64 // O
	TotalUsage     []float64 // TU
	FlexEffect     []float64 // U
	TrippedFlex    []float64 // Tripped flex.
	ShedQuantities []float64
	Sheddings      []float64 // Number of sheddings
	Production     []float64 // Total production
	Consumption    []float64 // Total consumption

	// Shed is z, true when node n is disconnected at period t.
	Shed [][]bool

	// Access bounds per node negotiated with the DSO.
	RequestedLow  []float64 // g
	RequestedHigh []float64 // G
	AgreedLow     []float64 // b
	AgreedHigh    []float64 // B
	FlexLow       []float64 // k
	FlexHigh      []float64 // K
	FullLow       []float64 // l
	FullHigh      []float64 // L
	// Dynamic ranges per node and period.
	DynamicLow  NodeSeries // d
	DynamicHigh NodeSeries // D
	// Largest deviations from the proposed baselines, with dynamic ranges.
	MaxLowDeviation  NodeSeries // dpL^max
	MaxHighDeviation NodeSeries // dpU^max

	// Run metadata.
	Iterations int
	Elapsed    float64
	Solved     bool
}

// NewData allocates the state of an instance with t periods and n nodes.
func NewData(t, n int) *Data {
	d := &Data{
		T:                  t,
		N:                  n,
		Dt:                 1,
		Eps:                DefaultEps,
		Model:              DefaultInteractionModel(),
		EnergyPrice:        make([]float64, t),
		UpImbalancePrice:   make([]float64, t),
		DownImbalancePrice: make([]float64, t),
		SystemImbalance:    make([]float64, t),
		Shed:               make([][]bool, n),
		RequestedLow:       make([]float64, n),
		RequestedHigh:      make([]float64, n),
		AgreedLow:          make([]float64, n),
		AgreedHigh:         make([]float64, n),
		FlexLow:            make([]float64, n),
		FlexHigh:           make([]float64, n),
		FullLow:            make([]float64, n),
		FullHigh:           make([]float64, n),
		DynamicLow:         NewNodeSeries(n, t),
		DynamicHigh:        NewNodeSeries(n, t),
		MaxLowDeviation:    NewNodeSeries(n, t),
		MaxHighDeviation:   NewNodeSeries(n, t),
		ShedQuantities:     make([]float64, t),
		Sheddings:          make([]float64, t),
		Production:         make([]float64, t),
		Consumption:        make([]float64, t),
	}
	for i := range d.Shed {
		d.Shed[i] = make([]bool, t)
	}
	d.ResetIteration()
	return d
}

// ResetIteration clears the flexibility registers, the power series and the
// per period aggregates.
func (d *Data) ResetIteration() {
	for _, s := range []*NodeSeries{
		&d.UpActivated, &d.DownActivated, &d.UpReserved, &d.DownReserved,
		&d.UpSubmitted, &d.DownSubmitted, &d.UpRequired, &d.DownRequired,
		&d.Baseline, &d.Corrected, &d.Realized,
	} {
		*s = NewNodeSeries(d.N, d.T)
	}
	if d.Model.DynamicBaseline() {
		d.Proposed = NewNodeSeries(d.N, d.T)
	}
	d.Imbalance = make([]float64, d.T)
	d.OppositeUsage = make([]float64, d.T)
	d.TotalUsage = make([]float64, d.T)
	d.FlexEffect = make([]float64, d.T)
	d.TrippedFlex = make([]float64, d.T)
}

// Nodes returns 0..N-1.
func (d *Data) Nodes() []int {
	out := make([]int, d.N)
	for i := range out {
		out[i] = i
	}
	return out
}

// IsShed reports whether node n is shed at period t.
func (d *Data) IsShed(n, t int) bool {
	if n < 0 || n >= len(d.Shed) || t < 0 || t >= len(d.Shed[n]) {
		return false
	}
	return d.Shed[n][t]
}

// Constant returns a vector of length T filled with v.
func (d *Data) Constant(v float64) []float64 {
	out := make([]float64, d.T)
	for i := range out {
		out[i] = v
	}
	return out
}
