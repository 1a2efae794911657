package actors

import (
	"context"

	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/logger"
	"github.com/kilianp07/flexmarket/core/market"
)

// CriteriaName is the name of the quantitative criteria agent.
const CriteriaName = "Quantitative criteria"

// Criteria scores an iteration: the welfare is minus the costs of every
// user and of the energy shed.
type Criteria struct {
	agent.Base
	log   logger.Logger
	users []Costed

	Welfare        float64
	DSOsCosts      float64
	SheddingCosts  float64
	TSOsCosts      float64
	ProducersCosts float64
	RetailersCosts float64
}

// NewCriteria builds the criteria over users.
func NewCriteria(reg *agent.Registry, log logger.Logger, users ...Costed) *Criteria {
	return &Criteria{Base: agent.NewBase(reg, CriteriaName, nil), log: logger.OrNop(log), users: users}
}

// Register adds a user to the welfare.
func (c *Criteria) Register(u Costed) { c.users = append(c.users, u) }

func (c *Criteria) Initialize(context.Context, *market.Data) error {
	c.reset()
	return nil
}

func (c *Criteria) reset() {
	c.Welfare, c.DSOsCosts, c.SheddingCosts = 0, 0, 0
	c.TSOsCosts, c.ProducersCosts, c.RetailersCosts = 0, 0, 0
}

func (c *Criteria) StatusVariables() []agent.StatusVariable {
	return []agent.StatusVariable{
		agent.Scalar("welfare", &c.Welfare),
		agent.Scalar("dsosCosts", &c.DSOsCosts),
		agent.Scalar("sheddingCosts", &c.SheddingCosts),
		agent.Scalar("tsosCosts", &c.TSOsCosts),
		agent.Scalar("producersCosts", &c.ProducersCosts),
		agent.Scalar("retailersCosts", &c.RetailersCosts),
	}
}

func (c *Criteria) Act(_ context.Context, _ *market.Data, phase agent.Phase) error {
	if phase != agent.Quantification {
		return agent.Unknown(c.Name(), phase)
	}
	c.reset()
	for _, u := range c.users {
		costs := u.Costs()
		c.Welfare -= costs
		switch u.Kind() {
		case market.KindDSO:
			c.DSOsCosts += costs
			if dso, ok := u.(*DSO); ok {
				c.SheddingCosts += dso.SheddingCosts
			}
		case market.KindTSO:
			c.TSOsCosts += costs
		case market.KindProducer:
			c.ProducersCosts += costs
		case market.KindRetailer:
			c.RetailersCosts += costs
		}
	}
	c.Welfare -= c.SheddingCosts
	c.log.Debugf("Welfare : %g, DSOs costs : %g, TSOs costs : %g, producers costs : %g, retailers costs : %g",
		c.Welfare, c.DSOsCosts, c.TSOsCosts, c.ProducersCosts, c.RetailersCosts)
	return nil
}

// Surpluses returns minus the class costs, in the order DSOs, TSOs,
// producers, retailers.
func (c *Criteria) Surpluses() [4]float64 {
	return [4]float64{-c.DSOsCosts, -c.TSOsCosts, -c.ProducersCosts, -c.RetailersCosts}
}
