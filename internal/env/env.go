// Package env defines the environment the live controller plays in, a gRPC
// transport for remote environments, and a small built-in simulator.
package env

import (
	"context"
	"errors"
	"fmt"
)

// Terminal reasons reported in StepResult.Reason.
const (
	ReasonGoal    = "goal_scored"
	ReasonTimeout = "timeout"
)

// ErrEnvironment wraps every failure raised by an environment during reset or
// step. The controller treats it as fatal.
var ErrEnvironment = errors.New("environment failure")

// Team identifies a side of the pitch.
type Team int

const (
	Blue Team = iota
	Orange
)

func (t Team) String() string {
	switch t {
	case Blue:
		return "blue"
	case Orange:
		return "orange"
	default:
		return fmt.Sprintf("team(%d)", int(t))
	}
}

// Slot is one controllable participant.
type Slot struct {
	Team  Team `json:"team"`
	Index int  `json:"index"`
}

// Slots lays out blue slots first, then orange, each indexed from zero. The
// order is the order observations and actions are exchanged in.
func Slots(blue, orange int) []Slot {
	slots := make([]Slot, 0, blue+orange)
	for i := 0; i < blue; i++ {
		slots = append(slots, Slot{Team: Blue, Index: i})
	}
	for i := 0; i < orange; i++ {
		slots = append(slots, Slot{Team: Orange, Index: i})
	}
	return slots
}

// Spec describes the layout an environment expects.
type Spec struct {
	Slots      []Slot `json:"slots"`
	ObsSize    int    `json:"obs_size"`
	ActionSize int    `json:"action_size"`
}

// StepResult is the outcome of one environment step.
type StepResult struct {
	Observations [][]float64 `json:"observations"`
	Rewards      []float64   `json:"rewards"`
	Terminal     bool        `json:"terminal"`
	Reason       string      `json:"reason,omitempty"`
}

// Environment is a single live or simulated match. Terminal conditions are the
// environment's responsibility.
type Environment interface {
	// Reset starts a new episode and returns one observation per slot.
	Reset(ctx context.Context) ([][]float64, error)
	// Step applies one action per slot.
	Step(ctx context.Context, actions []int) (StepResult, error)
	Close() error
}

// Seeder is implemented by environments whose randomness can be reseeded
// between episodes.
type Seeder interface {
	Seed(seed uint64)
}
