// Package agent implements the layered multi-agent execution model and the
// convergence loop that drives it. The package is generic over the shared
// state type so that the market simulation and smaller toy systems share the
// same engine.
package agent

import (
	"context"
	"fmt"
	"sync/atomic"
)

// ID identifies an agent or a layer within one registry.
type ID uint64

// Registry issues identifiers. Identifiers are monotonic and never reused
// for the lifetime of the registry.
type Registry struct {
	agents atomic.Uint64
	layers atomic.Uint64
}

// NewRegistry returns an empty identifier registry.
func NewRegistry() *Registry { return &Registry{} }

// NextAgent returns the next agent identifier.
func (r *Registry) NextAgent() ID { return ID(r.agents.Add(1) - 1) }

// NextLayer returns the next layer identifier.
func (r *Registry) NextLayer() ID { return ID(r.layers.Add(1) - 1) }

// Agent is a participant acting on the shared state D.
type Agent[D any] interface {
	ID() ID
	Name() string
	// Nodes lists the buses the agent controls.
	Nodes() []int
	Initialize(ctx context.Context, data D) error
	Act(ctx context.Context, data D, phase Phase) error
}

// StatusVariable is a named numeric vector observed between iterations to
// decide convergence. Value must return a vector of stable length.
type StatusVariable struct {
	Name  string
	Value func() []float64
}

// Scalar builds a status variable over a single value.
func Scalar(name string, v *float64) StatusVariable {
	return StatusVariable{Name: name, Value: func() []float64 { return []float64{*v} }}
}

// Vector builds a status variable over a slice held by the caller.
func Vector(name string, v *[]float64) StatusVariable {
	return StatusVariable{Name: name, Value: func() []float64 { return *v }}
}

// StateAgent is an agent whose state takes part in the convergence check.
type StateAgent[D any] interface {
	Agent[D]
	StatusVariables() []StatusVariable
}

// Base carries the identity shared by every agent. Embed it in concrete
// agents.
type Base struct {
	id    ID
	name  string
	nodes []int
}

// NewBase issues a fresh identifier from reg. An empty name is replaced by
// "Agent #<id>".
func NewBase(reg *Registry, name string, nodes []int) Base {
	id := reg.NextAgent()
	if name == "" {
		name = fmt.Sprintf("Agent #%d", id)
	}
	return Base{id: id, name: name, nodes: nodes}
}

func (b *Base) ID() ID       { return b.id }
func (b *Base) Name() string { return b.name }
func (b *Base) Nodes() []int { return b.nodes }

// SetNodes replaces the controlled bus set, used once the agent has read its
// own input file.
func (b *Base) SetNodes(nodes []int) { b.nodes = nodes }

// Controls reports whether the agent controls bus n.
func (b *Base) Controls(n int) bool {
	for _, v := range b.nodes {
		if v == n {
			return true
		}
	}
	return false
}
