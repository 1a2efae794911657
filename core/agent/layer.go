package agent

import (
	"context"
	"fmt"
)

// Stage is one step of the iteration pipeline.
type Stage[D any] interface {
	ID() ID
	Phase() Phase
	Agents() []Agent[D]
	Act(ctx context.Context, data D) error
}

// Layer is an ordered group of agents acting on the same phase. Agents act in
// list order and later agents observe the effects of earlier ones.
type Layer[D any] struct {
	id     ID
	phase  Phase
	agents []Agent[D]
}

// NewLayer builds a layer for phase p.
func NewLayer[D any](reg *Registry, p Phase, agents ...Agent[D]) *Layer[D] {
	return &Layer[D]{id: reg.NextLayer(), phase: p, agents: agents}
}

func (l *Layer[D]) ID() ID             { return l.id }
func (l *Layer[D]) Phase() Phase       { return l.phase }
func (l *Layer[D]) Name() string       { return l.phase.String() }
func (l *Layer[D]) Agents() []Agent[D] { return l.agents }

// Act runs every agent of the layer and stops at the first error.
func (l *Layer[D]) Act(ctx context.Context, data D) error {
	for _, a := range l.agents {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := a.Act(ctx, data, l.phase); err != nil {
			return fmt.Errorf("layer %q, agent %s: %w", l.phase, a.Name(), err)
		}
	}
	return nil
}

// EphemeralLayer acts only during its first IterationLimit iterations and is
// a no-op afterwards.
type EphemeralLayer[D any] struct {
	*Layer[D]
	IterationLimit int
	iteration      int
}

// NewEphemeralLayer builds a layer that acts only during the first limit
// iterations. A limit below one is raised to one.
func NewEphemeralLayer[D any](reg *Registry, p Phase, limit int, agents ...Agent[D]) *EphemeralLayer[D] {
	if limit < 1 {
		limit = 1
	}
	return &EphemeralLayer[D]{Layer: NewLayer(reg, p, agents...), IterationLimit: limit}
}

// Act runs the layer while its counter is below the limit.
func (l *EphemeralLayer[D]) Act(ctx context.Context, data D) error {
	if l.iteration >= l.IterationLimit {
		return nil
	}
	l.iteration++
	return l.Layer.Act(ctx, data)
}

// Exhausted reports whether the layer reached its limit.
func (l *EphemeralLayer[D]) Exhausted() bool { return l.iteration >= l.IterationLimit }
