package env

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// noop is the centre of the 3x3 push grid.
const noop = 4

func newSim(t *testing.T, cfg SimConfig) *Simulator {
	t.Helper()
	if cfg.Slots == nil {
		cfg.Slots = Slots(1, 1)
	}
	if cfg.ObsSize == 0 {
		cfg.ObsSize = 89
	}
	if cfg.ActionSize == 0 {
		cfg.ActionSize = 90
	}
	if cfg.Seed == 0 {
		cfg.Seed = 1
	}
	sim, err := NewSimulator(cfg)
	require.NoError(t, err)
	return sim
}

func TestSlots(t *testing.T) {
	assert.Equal(t, []Slot{{Blue, 0}, {Blue, 1}, {Orange, 0}}, Slots(2, 1))
	assert.Equal(t, []Slot{{Blue, 0}}, Slots(1, 0))
	assert.Equal(t, "orange", Orange.String())
}

func TestSimulator_ResetShapes(t *testing.T) {
	sim := newSim(t, SimConfig{})
	obs, err := sim.Reset(context.Background())
	require.NoError(t, err)
	require.Len(t, obs, 2)
	for _, o := range obs {
		assert.Len(t, o, 89)
	}
	assert.Equal(t, 1.0, obs[0][4])
	assert.Equal(t, -1.0, obs[1][4])
}

func TestSimulator_TimeoutTerminates(t *testing.T) {
	sim := newSim(t, SimConfig{TimeoutSteps: 105, Reward: 1})
	_, err := sim.Reset(context.Background())
	require.NoError(t, err)

	var res StepResult
	steps := 0
	for !res.Terminal {
		res, err = sim.Step(context.Background(), []int{noop, noop})
		require.NoError(t, err)
		steps++
		require.LessOrEqual(t, steps, 105)
		assert.Equal(t, []float64{1, 1}, res.Rewards)
	}
	assert.Equal(t, ReasonTimeout, res.Reason)
}

func TestSimulator_GoalBeforeTimeout(t *testing.T) {
	sim := newSim(t, SimConfig{TimeoutSteps: 105, GoalAtStep: 12})
	_, err := sim.Reset(context.Background())
	require.NoError(t, err)

	for step := 1; ; step++ {
		res, err := sim.Step(context.Background(), []int{noop, noop})
		require.NoError(t, err)
		if res.Terminal {
			assert.Equal(t, 12, step)
			assert.Equal(t, ReasonGoal, res.Reason)
			break
		}
	}
}

func TestSimulator_PushScores(t *testing.T) {
	// A single blue agent pushing straight up (dx=0, dy=+1 is action 7).
	sim := newSim(t, SimConfig{Slots: Slots(1, 0), TimeoutSteps: 1000})
	_, err := sim.Reset(context.Background())
	require.NoError(t, err)

	for step := 1; step < 1000; step++ {
		res, err := sim.Step(context.Background(), []int{7})
		require.NoError(t, err)
		if res.Terminal {
			assert.Equal(t, ReasonGoal, res.Reason)
			return
		}
	}
	t.Fatal("ball never reached the goal line")
}

func TestSimulator_RejectsBadSteps(t *testing.T) {
	sim := newSim(t, SimConfig{TimeoutSteps: 10})
	_, err := sim.Step(context.Background(), []int{0, 0})
	assert.Error(t, err, "step before reset")

	_, err = sim.Reset(context.Background())
	require.NoError(t, err)
	_, err = sim.Step(context.Background(), []int{0})
	assert.Error(t, err)
	_, err = sim.Step(context.Background(), []int{0, 90})
	assert.Error(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = sim.Step(ctx, []int{0, 0})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewSimulator_Validates(t *testing.T) {
	_, err := NewSimulator(SimConfig{ObsSize: 89, ActionSize: 90})
	assert.Error(t, err)
	_, err = NewSimulator(SimConfig{Slots: Slots(1, 1), ObsSize: 3, ActionSize: 90})
	assert.Error(t, err)
	_, err = NewSimulator(SimConfig{Slots: Slots(1, 1), ObsSize: 89})
	assert.Error(t, err)
}
