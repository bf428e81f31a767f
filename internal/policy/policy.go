// Package policy provides action selection for the live controller: the
// hot-swappable handle over the loaded network and the playstyle modes it
// selects actions with.
package policy

import "fmt"

// Action is a discrete action index into the environment's action table.
type Action int

// Mode selects how an action is drawn from the policy distribution.
type Mode int32

const (
	// Deterministic takes the arg-max action.
	Deterministic Mode = iota
	// Stochastic samples from the action distribution.
	Stochastic
)

func (m Mode) String() string {
	switch m {
	case Deterministic:
		return "Deterministic"
	case Stochastic:
		return "Stochastic"
	default:
		return fmt.Sprintf("Mode(%d)", int32(m))
	}
}

// Policy chooses an action for one agent observation.
type Policy interface {
	// Infer returns the action for obs under the given mode.
	Infer(obs []float64, mode Mode) (Action, error)
}
