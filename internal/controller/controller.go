// Package controller runs the live instance: episodes back to back, a
// playstyle draw per episode and checkpoint hot-swaps on a fixed cadence.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/cartridge/live/internal/checkpoint"
	"github.com/cartridge/live/internal/env"
	"github.com/cartridge/live/internal/episode"
	"github.com/cartridge/live/internal/events"
	"github.com/cartridge/live/internal/history"
	"github.com/cartridge/live/internal/metrics"
	"github.com/cartridge/live/internal/playstyle"
	"github.com/cartridge/live/internal/policy"
	"github.com/cartridge/live/internal/reload"
	"github.com/cartridge/live/internal/status"
)

// Options configures a Controller.
type Options struct {
	SessionID string

	Env      env.Environment
	Slots    []env.Slot
	Handle   *policy.Handle
	Resolver *checkpoint.Resolver
	Switch   *playstyle.Switch

	CheckpointDir string
	// InitialCheckpoint is loaded before the first episode. Empty resolves
	// the newest checkpoint in CheckpointDir instead.
	InitialCheckpoint string
	ReloadInterval    time.Duration

	StepTime time.Duration
	Pace     bool

	Store     history.Store
	Publisher events.Publisher
	Metrics   *metrics.Collector

	Now    func() time.Time
	Logger zerolog.Logger
}

// Controller owns every piece of process-wide state: the policy handle, the
// reload schedule and the current playstyle. Each has a single writer.
type Controller struct {
	sessionID string
	handle    *policy.Handle
	resolver  *checkpoint.Resolver
	switcher  *playstyle.Switch
	scheduler *reload.Scheduler
	runner    *episode.Runner

	dir     string
	initial string

	store     history.Store
	publisher events.Publisher
	metrics   *metrics.Collector
	now       func() time.Time
	logger    zerolog.Logger

	mode     atomic.Int32
	episodes atomic.Int64
	steps    atomic.Int64
	last     atomic.Pointer[episode.Result]
}

// New wires a controller. The first reload check is due one interval after
// the initial checkpoint is installed.
func New(opts Options) (*Controller, error) {
	if opts.Handle == nil {
		return nil, fmt.Errorf("controller needs a policy handle")
	}
	if opts.Resolver == nil {
		return nil, fmt.Errorf("controller needs a checkpoint resolver")
	}
	if opts.ReloadInterval <= 0 {
		return nil, fmt.Errorf("reload interval must be positive, got %s", opts.ReloadInterval)
	}

	c := &Controller{
		sessionID: opts.SessionID,
		handle:    opts.Handle,
		resolver:  opts.Resolver,
		switcher:  opts.Switch,
		dir:       opts.CheckpointDir,
		initial:   opts.InitialCheckpoint,
		store:     opts.Store,
		publisher: opts.Publisher,
		metrics:   opts.Metrics,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if c.switcher == nil {
		c.switcher = playstyle.New(nil)
	}
	if c.store == nil {
		c.store = history.NewMemoryStore()
	}
	if c.publisher == nil {
		c.publisher = events.NoopPublisher{}
	}
	if c.metrics == nil {
		c.metrics = metrics.NewCollector(opts.Logger)
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.scheduler = reload.New(opts.ReloadInterval, c.now())

	runner, err := episode.NewRunner(episode.Options{
		Env:       opts.Env,
		Policy:    opts.Handle,
		Slots:     opts.Slots,
		StepTime:  opts.StepTime,
		Pace:      opts.Pace,
		AfterStep: c.afterStep,
		Now:       c.now,
		Logger:    opts.Logger,
	})
	if err != nil {
		return nil, err
	}
	c.runner = runner
	return c, nil
}

// Run loads the initial checkpoint and then plays episodes until ctx is
// cancelled or an environment or inference failure occurs. It never returns
// nil.
func (c *Controller) Run(ctx context.Context) error {
	if err := c.bootstrap(ctx); err != nil {
		return err
	}

	c.logger.Info().
		Str("checkpoint_dir", c.dir).
		Dur("reload_interval", c.scheduler.Interval()).
		Int("slots", len(c.runner.Slots())).
		Msg("Live controller starting main loop")

	for {
		if err := ctx.Err(); err != nil {
			c.logger.Info().Msg("Context cancelled, stopping controller")
			return err
		}

		mode := c.switcher.Choose()
		c.mode.Store(int32(mode))

		res, err := c.runner.Run(ctx, mode)
		if err != nil {
			if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
				c.logger.Info().Msg("Context cancelled, stopping controller")
				return err
			}
			c.logger.Error().Err(err).Int64("episode", c.episodes.Load()+1).Msg("Episode failed")
			return err
		}
		c.completed(ctx, res)
	}
}

// bootstrap installs the first parameter set unless one is already active.
func (c *Controller) bootstrap(ctx context.Context) error {
	if c.handle.Current() != nil {
		return nil
	}

	var loc checkpoint.Locator
	if c.initial != "" {
		loc = c.resolver.Locate(c.initial)
	} else {
		var err error
		loc, err = c.resolver.Resolve(c.dir)
		if err != nil {
			return fmt.Errorf("initial checkpoint in %s: %w", c.dir, err)
		}
	}

	start := c.now()
	if err := c.handle.Load(ctx, loc); err != nil {
		c.recordReload(ctx, loc, events.ReloadLoadFailed, err, start)
		return fmt.Errorf("initial checkpoint: %w", err)
	}
	now := c.now()
	c.scheduler.Succeeded(now)
	c.recordReload(ctx, loc, events.ReloadSwapped, nil, start)
	return nil
}

func (c *Controller) afterStep(ctx context.Context, now time.Time) {
	c.steps.Add(1)
	c.maybeReload(ctx, now)
}

// maybeReload runs at most one reload attempt per due interval. A missing or
// broken checkpoint defers the attempt to the next interval boundary.
func (c *Controller) maybeReload(ctx context.Context, now time.Time) {
	if !c.scheduler.ShouldReload(now) || c.handle.Loading() {
		return
	}

	loc, err := c.resolver.Resolve(c.dir)
	if err != nil {
		c.scheduler.Failed(now)
		outcome := events.ReloadNotFound
		if !errors.Is(err, checkpoint.ErrNotFound) {
			outcome = events.ReloadLoadFailed
		}
		c.logger.Warn().Err(err).Str("checkpoint_dir", c.dir).Msg("Checkpoint resolution failed, reload deferred")
		c.recordReload(ctx, loc, outcome, err, now)
		return
	}

	if cur := c.handle.Current(); cur != nil && !loc.Newer(cur.Source) {
		c.scheduler.Succeeded(now)
		c.recordReload(ctx, loc, events.ReloadUpToDate, nil, now)
		return
	}

	c.handle.LoadAsync(loc, func(_ *policy.Parameters, err error) {
		if err != nil {
			c.scheduler.Failed(now)
			c.logger.Warn().Err(err).Str("checkpoint", loc.Path()).Msg("Checkpoint load failed, reload deferred")
			c.recordReload(ctx, loc, events.ReloadLoadFailed, err, now)
			return
		}
		c.scheduler.Succeeded(now)
		c.recordReload(ctx, loc, events.ReloadSwapped, nil, now)
	})
}

func (c *Controller) recordReload(ctx context.Context, loc checkpoint.Locator, outcome string, cause error, at time.Time) {
	var msg string
	if cause != nil {
		msg = cause.Error()
	}
	c.metrics.ReloadAttempt(loc.Name, loc.Version, outcome, c.now().Sub(at))

	rec := history.ReloadRecord{
		SessionID:  c.sessionID,
		Checkpoint: loc.Name,
		Version:    loc.Version,
		Outcome:    outcome,
		Error:      msg,
		At:         at,
	}
	if err := c.store.RecordReload(ctx, rec); err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record reload")
	}
	err := c.publisher.PublishReload(ctx, events.ReloadEvent{
		SessionID:  rec.SessionID,
		Checkpoint: rec.Checkpoint,
		Version:    rec.Version,
		Outcome:    rec.Outcome,
		Error:      rec.Error,
		At:         rec.At,
	})
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to publish reload event")
	}
}

func (c *Controller) completed(ctx context.Context, res episode.Result) {
	c.last.Store(&res)
	count := c.episodes.Add(1)

	var source checkpoint.Locator
	if p := c.handle.Current(); p != nil {
		source = p.Source
	}
	endedAt := res.StartedAt.Add(res.Duration)

	c.metrics.EpisodeCompleted(res.ID, res.Mode.String(), res.Steps, res.AverageReward, res.Duration)
	if count%10 == 0 {
		c.logger.Info().
			Int64("episodes", count).
			Float64("last_average_reward", res.AverageReward).
			Str("checkpoint", source.Name).
			Msg("Completed episodes")
	}

	err := c.store.RecordEpisode(ctx, history.EpisodeRecord{
		SessionID:     c.sessionID,
		EpisodeID:     res.ID,
		Mode:          res.Mode.String(),
		Steps:         res.Steps,
		Reward:        res.Reward,
		AverageReward: res.AverageReward,
		Reason:        res.Reason,
		Checkpoint:    source.Name,
		Version:       source.Version,
		StartedAt:     res.StartedAt,
		EndedAt:       endedAt,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("episode_id", res.ID).Msg("Failed to record episode")
	}
	err = c.publisher.PublishEpisode(ctx, events.EpisodeEvent{
		SessionID:     c.sessionID,
		EpisodeID:     res.ID,
		Mode:          res.Mode.String(),
		Steps:         res.Steps,
		AverageReward: res.AverageReward,
		Reason:        res.Reason,
		Checkpoint:    source.Name,
		Version:       source.Version,
		EndedAt:       endedAt,
	})
	if err != nil {
		c.logger.Warn().Err(err).Str("episode_id", res.ID).Msg("Failed to publish episode event")
	}
}

// Mode returns the playstyle of the current episode.
func (c *Controller) Mode() policy.Mode {
	return policy.Mode(c.mode.Load())
}

// Snapshot implements status.Source. Process usage is filled in by the
// status package.
func (c *Controller) Snapshot() status.Snapshot {
	now := c.now()
	snap := status.Snapshot{
		SessionID:      c.sessionID,
		Mode:           c.Mode().String(),
		NextReloadIn:   c.scheduler.Until(now),
		ReloadInterval: c.scheduler.Interval(),
		Loading:        c.handle.Loading(),
		Episodes:       c.episodes.Load(),
		Steps:          c.steps.Load(),
		Time:           now,
	}
	if p := c.handle.Current(); p != nil {
		snap.Checkpoint = p.Source.Name
		snap.Version = p.Source.Version
		loadedAt := p.LoadedAt
		snap.LoadedAt = &loadedAt
	}
	if res := c.last.Load(); res != nil {
		snap.LastEpisodeID = res.ID
		snap.LastAverageReward = res.AverageReward
		snap.LastReason = res.Reason
	}
	return snap
}

var _ status.Source = (*Controller)(nil)
