package env

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

// SimConfig configures the built-in simulator.
type SimConfig struct {
	Slots      []Slot
	ObsSize    int
	ActionSize int
	// TimeoutSteps ends the episode after this many steps. Zero disables it.
	TimeoutSteps int
	// Reward is paid to every agent on every step.
	Reward float64
	// GoalAtStep forces a goal on that step (1-based). Zero leaves goals to
	// the ball dynamics.
	GoalAtStep int
	Seed       uint64
}

// Simulator is a toy pitch: agents push a ball on a unit square and a goal is
// scored when it crosses either end line. It exists to run the controller
// without a game client, not to model real physics.
type Simulator struct {
	cfg SimConfig

	mu     sync.Mutex
	rng    *rand.Rand
	step   int
	ball   [2]float64
	vel    [2]float64
	active bool
}

var (
	_ Environment = (*Simulator)(nil)
	_ Seeder      = (*Simulator)(nil)
)

const (
	minObsSize = 6
	push       = 0.02
	drag       = 0.9
)

// NewSimulator validates cfg and creates a simulator.
func NewSimulator(cfg SimConfig) (*Simulator, error) {
	if len(cfg.Slots) == 0 {
		return nil, fmt.Errorf("simulator needs at least one slot")
	}
	if cfg.ObsSize < minObsSize {
		return nil, fmt.Errorf("simulator observation size must be at least %d, got %d", minObsSize, cfg.ObsSize)
	}
	if cfg.ActionSize <= 0 {
		return nil, fmt.Errorf("simulator action size must be positive, got %d", cfg.ActionSize)
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return &Simulator{cfg: cfg, rng: newRand(seed)}, nil
}

func newRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Seed replaces the random source. It takes effect from the next Reset.
func (s *Simulator) Seed(seed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rng = newRand(seed)
}

// Spec describes the simulator layout.
func (s *Simulator) Spec() Spec {
	return Spec{Slots: append([]Slot(nil), s.cfg.Slots...), ObsSize: s.cfg.ObsSize, ActionSize: s.cfg.ActionSize}
}

// Reset places the ball near the centre with a small random velocity.
func (s *Simulator) Reset(ctx context.Context) ([][]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.step = 0
	s.active = true
	s.ball = [2]float64{s.rng.Float64()*0.2 - 0.1, s.rng.Float64()*0.2 - 0.1}
	s.vel = [2]float64{s.rng.NormFloat64() * 0.01, s.rng.NormFloat64() * 0.01}
	return s.observe(), nil
}

// Step applies one action per slot. Actions are decoded onto a 3x3 grid of
// push directions; orange pushes are mirrored so both teams attack "up".
func (s *Simulator) Step(ctx context.Context, actions []int) (StepResult, error) {
	if err := ctx.Err(); err != nil {
		return StepResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.active {
		return StepResult{}, fmt.Errorf("step called before reset")
	}
	if len(actions) != len(s.cfg.Slots) {
		return StepResult{}, fmt.Errorf("got %d actions for %d slots", len(actions), len(s.cfg.Slots))
	}
	for i, a := range actions {
		if a < 0 || a >= s.cfg.ActionSize {
			return StepResult{}, fmt.Errorf("slot %d action %d outside [0, %d)", i, a, s.cfg.ActionSize)
		}
		dx, dy := float64(a%3-1), float64((a/3)%3-1)
		if s.cfg.Slots[i].Team == Orange {
			dx, dy = -dx, -dy
		}
		s.vel[0] += dx * push
		s.vel[1] += dy * push
	}
	for k := range s.ball {
		s.vel[k] *= drag
		s.ball[k] += s.vel[k]
	}
	// Side walls bounce.
	if math.Abs(s.ball[0]) > 1 {
		s.ball[0] = math.Copysign(2, s.ball[0]) - s.ball[0]
		s.vel[0] = -s.vel[0]
	}
	s.step++

	res := StepResult{
		Observations: s.observe(),
		Rewards:      make([]float64, len(s.cfg.Slots)),
	}
	for i := range res.Rewards {
		res.Rewards[i] = s.cfg.Reward
	}
	switch {
	case math.Abs(s.ball[1]) >= 1 || (s.cfg.GoalAtStep > 0 && s.step >= s.cfg.GoalAtStep):
		res.Terminal, res.Reason = true, ReasonGoal
	case s.cfg.TimeoutSteps > 0 && s.step >= s.cfg.TimeoutSteps:
		res.Terminal, res.Reason = true, ReasonTimeout
	}
	if res.Terminal {
		s.active = false
	}
	return res, nil
}

// Close is a no-op.
func (s *Simulator) Close() error { return nil }

func (s *Simulator) observe() [][]float64 {
	obs := make([][]float64, len(s.cfg.Slots))
	progress := 0.0
	if s.cfg.TimeoutSteps > 0 {
		progress = float64(s.step) / float64(s.cfg.TimeoutSteps)
	}
	for i, slot := range s.cfg.Slots {
		sign := 1.0
		if slot.Team == Orange {
			sign = -1
		}
		o := make([]float64, s.cfg.ObsSize)
		o[0], o[1] = sign*s.ball[0], sign*s.ball[1]
		o[2], o[3] = sign*s.vel[0], sign*s.vel[1]
		o[4] = sign
		o[5] = progress
		obs[i] = o
	}
	return obs
}
