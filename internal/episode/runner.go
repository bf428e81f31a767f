// Package episode runs single episodes against an environment.
package episode

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cartridge/live/internal/env"
	"github.com/cartridge/live/internal/policy"
)

// ErrNoSlots is returned by NewRunner when the session has no agents.
var ErrNoSlots = errors.New("episode needs at least one slot")

// BatchPolicy selects one action per slot observation using one parameter set
// for the whole batch.
type BatchPolicy interface {
	InferBatch(obs [][]float64, mode policy.Mode) ([]policy.Action, error)
}

// State is the lifecycle stage of an episode.
type State int

const (
	Idle State = iota
	Running
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Episode is the running record of one episode.
type Episode struct {
	ID        string
	Mode      policy.Mode
	State     State
	StartedAt time.Time
	Steps     int
	Reward    float64
	Reason    string
}

// Result summarises a terminated episode.
type Result struct {
	ID        string        `json:"id"`
	Mode      policy.Mode   `json:"mode"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Steps     int           `json:"steps"`
	Reward    float64       `json:"reward"`
	// AverageReward is Reward divided by the number of players.
	AverageReward float64 `json:"average_reward"`
	Reason        string  `json:"reason"`
}

// StepHook runs after every completed step with the step's wall-clock time.
type StepHook func(ctx context.Context, now time.Time)

// Options configures a Runner.
type Options struct {
	Env    env.Environment
	Policy BatchPolicy
	Slots  []env.Slot
	// StepTime is the real-time cadence used when Pace is set.
	StepTime  time.Duration
	Pace      bool
	AfterStep StepHook
	Now       func() time.Time
	Logger    zerolog.Logger
}

// Runner drives Idle -> Running -> Terminated for one episode at a time.
type Runner struct {
	env       env.Environment
	policy    BatchPolicy
	slots     []env.Slot
	stepTime  time.Duration
	pace      bool
	afterStep StepHook
	now       func() time.Time
	logger    zerolog.Logger
}

// NewRunner creates a runner.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Env == nil {
		return nil, fmt.Errorf("episode runner needs an environment")
	}
	if opts.Policy == nil {
		return nil, fmt.Errorf("episode runner needs a policy")
	}
	if len(opts.Slots) == 0 {
		return nil, ErrNoSlots
	}
	r := &Runner{
		env:       opts.Env,
		policy:    opts.Policy,
		slots:     append([]env.Slot(nil), opts.Slots...),
		stepTime:  opts.StepTime,
		pace:      opts.Pace && opts.StepTime > 0,
		afterStep: opts.AfterStep,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r, nil
}

// Slots returns the session's agent layout.
func (r *Runner) Slots() []env.Slot {
	return append([]env.Slot(nil), r.slots...)
}

// Run plays one episode with a fixed mode. Environment failures are wrapped in
// env.ErrEnvironment; inference failures carry policy.ErrInference.
func (r *Runner) Run(ctx context.Context, mode policy.Mode) (Result, error) {
	ep := &Episode{
		ID:    uuid.NewString(),
		Mode:  mode,
		State: Idle,
	}

	obs, err := r.env.Reset(ctx)
	if err != nil {
		return Result{}, r.envError(ctx, "reset", err)
	}
	if err := r.checkObservations(obs); err != nil {
		return Result{}, fmt.Errorf("%w: reset: %w", env.ErrEnvironment, err)
	}
	ep.State = Running
	ep.StartedAt = r.now()

	actions := make([]int, len(r.slots))
	for ep.State == Running {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		stepStart := r.now()

		chosen, err := r.policy.InferBatch(obs, mode)
		if err != nil {
			return Result{}, fmt.Errorf("episode %s step %d: %w", ep.ID, ep.Steps, err)
		}
		for i, a := range chosen {
			actions[i] = int(a)
		}

		res, err := r.env.Step(ctx, actions)
		if err != nil {
			return Result{}, r.envError(ctx, "step", err)
		}
		if len(res.Rewards) != len(r.slots) {
			return Result{}, fmt.Errorf("%w: step: got %d rewards for %d slots",
				env.ErrEnvironment, len(res.Rewards), len(r.slots))
		}
		ep.Steps++
		for _, rew := range res.Rewards {
			ep.Reward += rew
		}

		if res.Terminal {
			ep.State = Terminated
			ep.Reason = res.Reason
		} else {
			if err := r.checkObservations(res.Observations); err != nil {
				return Result{}, fmt.Errorf("%w: step: %w", env.ErrEnvironment, err)
			}
			obs = res.Observations
		}

		now := r.now()
		if r.afterStep != nil {
			r.afterStep(ctx, now)
		}
		if r.pace && ep.State == Running {
			if err := r.wait(ctx, stepStart.Add(r.stepTime).Sub(now)); err != nil {
				return Result{}, err
			}
		}
	}

	result := Result{
		ID:            ep.ID,
		Mode:          ep.Mode,
		StartedAt:     ep.StartedAt,
		Duration:      r.now().Sub(ep.StartedAt),
		Steps:         ep.Steps,
		Reward:        ep.Reward,
		AverageReward: ep.Reward / float64(len(r.slots)),
		Reason:        ep.Reason,
	}
	r.logger.Debug().
		Str("episode_id", result.ID).
		Str("mode", result.Mode.String()).
		Int("steps", result.Steps).
		Float64("average_reward", result.AverageReward).
		Str("reason", result.Reason).
		Msg("Episode completed")
	return result, nil
}

func (r *Runner) checkObservations(obs [][]float64) error {
	if len(obs) != len(r.slots) {
		return fmt.Errorf("got %d observations for %d slots", len(obs), len(r.slots))
	}
	return nil
}

// envError keeps cancellation distinguishable from a broken environment. A
// remote environment reports cancellation as a gRPC status, not ctx.Err, so
// any failure after ctx is done counts as cancellation.
func (r *Runner) envError(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: %s: %w", env.ErrEnvironment, op, err)
}

func (r *Runner) wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
