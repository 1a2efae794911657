// Package actors implements the market participants of a simulated day:
// the distribution and transmission system operators, producers, retailers
// and the quantitative criteria that score the outcome.
package actors

import (
	"fmt"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/roles"
	"github.com/kilianp07/flexmarket/core/solver"
)

// Agent is an actor of the market pipeline.
type Agent = agent.Agent[*market.Data]

// GridUser is a participant connected to the distribution grid whose access
// bounds are negotiated with the DSO.
type GridUser interface {
	market.Participant
	Portfolio() *roles.Portfolio
}

// Costed is an actor accounted by the quantitative criteria.
type Costed interface {
	market.Participant
	Costs() float64
}

// Raw solver input names of the actor files.
const (
	ProducerDataFile = "producer.dat"
	RetailerDataFile = "retailer.dat"
	TSODataFile      = "tso.dat"
	NetworkDataFile  = "network.csv"
	QualifiedFlex    = "qualified-flex.csv"
)

func raw(name string, b []byte) solver.Input { return solver.Input{Name: name, Content: b} }

func constant(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

// checkNodes verifies the buses listed in the file of actor lie on a grid
// of n buses.
func checkNodes(actor string, nodes []int, n int) error {
	for _, bus := range nodes {
		if bus < 0 || bus >= n {
			return fmt.Errorf("%w: %s: node %d outside [0, %d]", instance.ErrMalformed, actor, bus, n-1)
		}
	}
	return nil
}
