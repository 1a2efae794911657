package agent

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownPhase is returned by agents asked to act on a phase they do
	// not take part in.
	ErrUnknownPhase = errors.New("unknown phase")
	// ErrStatusVariable reports a status variable missing from a snapshot or
	// whose length changed between iterations.
	ErrStatusVariable = errors.New("inconsistent status variable")
)

// UnknownPhaseError names the agent and the phase it rejected.
type UnknownPhaseError struct {
	Agent string
	Phase Phase
}

func (e *UnknownPhaseError) Error() string {
	return fmt.Sprintf("%s: unknown layer %q", e.Agent, e.Phase)
}

func (e *UnknownPhaseError) Unwrap() error { return ErrUnknownPhase }

// Unknown builds the error agents return from the default branch of their
// phase switch.
func Unknown(agent string, p Phase) error {
	return &UnknownPhaseError{Agent: agent, Phase: p}
}
