// Package simulation assembles the agents of one simulated day and drives
// them until the market converges.
package simulation

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/flexmarket/core/actors"
	"github.com/kilianp07/flexmarket/core/agent"
	"github.com/kilianp07/flexmarket/core/instance"
	"github.com/kilianp07/flexmarket/core/logger"
	"github.com/kilianp07/flexmarket/core/market"
	"github.com/kilianp07/flexmarket/core/results"
	"github.com/kilianp07/flexmarket/core/roles"
	"github.com/kilianp07/flexmarket/core/solver"
)

// Config tunes the convergence loop of a day.
type Config struct {
	MaxIterations int
	Tolerance     float64
	OPF           market.OPFMethod
}

// Simulation is one day ready to run.
type Simulation struct {
	Instance *instance.Instance
	Data     *market.Data
	System   *agent.System[*market.Data]

	Platform  *market.Platform
	DSO       *actors.DSO
	TSO       *actors.TSO
	Producers []*actors.Producer
	Retailers []*actors.Retailer
	Criteria  *actors.Criteria

	log      logger.Logger
	finished time.Time
}

// New builds the agents of in and the iteration pipeline. The workspace
// receives every solver exchange of the day.
func New(in *instance.Instance, s solver.Solver, ws *solver.Workspace, cfg Config, log logger.Logger, observers ...agent.Observer) (*Simulation, error) {
	if in == nil || in.Prices == nil {
		return nil, fmt.Errorf("%w: no instance", instance.ErrMalformed)
	}
	log = logger.OrNop(log)
	d := in.NewData()
	d.OPF = cfg.OPF

	opts := []agent.Option{agent.WithLogger(log)}
	if cfg.MaxIterations > 0 {
		opts = append(opts, agent.WithMaxIterations(cfg.MaxIterations))
	}
	if cfg.Tolerance > 0 {
		opts = append(opts, agent.WithAccuracy(cfg.Tolerance))
	}

	reg := agent.NewRegistry()
	sim := &Simulation{
		Instance: in,
		Data:     d,
		System:   agent.NewSystem(d, opts...),
		Platform: market.NewPlatform(reg, log),
		log:      log,
	}
	env := &roles.Env{Solver: s, Workspace: ws, Platform: sim.Platform, Log: log}

	sim.DSO = actors.NewDSO(reg, env, in.Network, in.QualifiedFlex)
	sim.TSO = actors.NewTSO(reg, env, in.TSO)
	var users []actors.GridUser
	for _, a := range in.Retailers {
		r := actors.NewRetailer(reg, env, sim.DSO, a.Name, a.Raw)
		sim.Retailers = append(sim.Retailers, r)
		users = append(users, r)
	}
	for _, a := range in.Producers {
		p := actors.NewProducer(reg, env, sim.DSO, a.Name, a.Raw)
		sim.Producers = append(sim.Producers, p)
		users = append(users, p)
	}
	sim.DSO.SetGridUsers(users...)

	sim.Criteria = actors.NewCriteria(reg, log, sim.DSO, sim.TSO)
	for _, r := range sim.Retailers {
		sim.Criteria.Register(r)
	}
	for _, p := range sim.Producers {
		sim.Criteria.Register(p)
	}

	sim.pipeline(reg)
	for _, o := range observers {
		sim.System.Observe(o)
	}
	return sim, nil
}

// pipeline appends the layers of one iteration in execution order.
func (s *Simulation) pipeline(reg *agent.Registry) {
	var providers []agent.Agent[*market.Data]
	for _, r := range s.Retailers {
		providers = append(providers, r)
	}
	for _, p := range s.Producers {
		providers = append(providers, p)
	}
	var activators []agent.Agent[*market.Data]
	activators = append(activators, s.DSO, s.TSO)
	for _, p := range s.Producers {
		activators = append(activators, p)
	}
	for _, r := range s.Retailers {
		activators = append(activators, r)
	}
	settlers := append([]agent.Agent[*market.Data]{s.DSO, s.Platform}, providers...)

	sys := s.System
	sys.AddStage(agent.NewLayer[*market.Data](reg, agent.FlexibilityPlatformCleaning, s.Platform))
	sys.AddStage(agent.NewEphemeralLayer[*market.Data](reg, agent.AccessAgreement, 1, s.DSO))
	if s.Data.Model.DynamicBaseline() {
		sys.AddStage(agent.NewLayer(reg, agent.BaselineProposal, providers...))
		sys.AddStage(agent.NewLayer[*market.Data](reg, agent.DynamicRangesComputation, s.DSO))
	}
	sys.AddStage(agent.NewLayer(reg, agent.BaselineOptimization, providers...))
	sys.AddStage(agent.NewLayer[*market.Data](reg, agent.FlexibilityNeeds, s.DSO, s.TSO))
	sys.AddStage(agent.NewLayer(reg, agent.FlexibilityOptimization, providers...))
	sys.AddStage(agent.NewLayer[*market.Data](reg, agent.FlexibilityPlatformClearing, s.Platform))
	sys.AddStage(agent.NewLayer(reg, agent.FlexibilityActivationRequesting, activators...))
	sys.AddStage(agent.NewLayer(reg, agent.ImbalanceOptimization, providers...))
	sys.AddStage(agent.NewLayer[*market.Data](reg, agent.Operation, s.DSO))
	sys.AddStage(agent.NewLayer(reg, agent.Settlement, settlers...))
	sys.AddStage(agent.NewLayer[*market.Data](reg, agent.Quantification, s.Criteria))
}

// Run iterates the day and records its metadata into Data. Solved is true
// when the loop converged.
func (s *Simulation) Run(ctx context.Context) (agent.Outcome, error) {
	start := time.Now()
	out, err := s.System.Run(ctx)
	s.Data.Elapsed = time.Since(start).Seconds()
	s.Data.Iterations = out.Iterations
	s.Data.Solved = err == nil && out.Converged
	s.finished = time.Now()
	if err != nil {
		return out, err
	}
	s.log.Infof("%s", out.Reason)
	return out, nil
}

// Document builds the result document of the last run.
func (s *Simulation) Document() *results.Document {
	return results.Build(results.Day{
		Data:      s.Data,
		DSO:       s.DSO,
		TSO:       s.TSO,
		Producers: s.Producers,
		Retailers: s.Retailers,
		Criteria:  s.Criteria,
		Solved:    s.finished,
	})
}
