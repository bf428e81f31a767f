package policy

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/cartridge/live/internal/checkpoint"
	"github.com/cartridge/live/internal/model"
)

var (
	// ErrLoad is wrapped by every checkpoint load failure.
	ErrLoad = errors.New("policy load failed")
	// ErrInference indicates the active policy could not produce an action.
	ErrInference = errors.New("policy inference failed")
	// ErrNilParameters is returned when swapping in nil parameters.
	ErrNilParameters = errors.New("nil parameters")
)

// LoadError describes a checkpoint that could not be installed.
type LoadError struct {
	Locator checkpoint.Locator
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("load %s: %v", e.Locator, e.Err)
}

// Unwrap exposes both ErrLoad and the underlying cause.
func (e *LoadError) Unwrap() []error {
	return []error{ErrLoad, e.Err}
}

// Parameters is one published parameter set. It is never modified after
// publication.
type Parameters struct {
	Network  *model.Network
	Source   checkpoint.Locator
	LoadedAt time.Time
}

// LoaderFunc reads a network from a checkpoint artifact path.
type LoaderFunc func(path string) (*model.Network, error)

// Options configures a Handle.
type Options struct {
	ObsSize    int
	ActionSize int
	Loader     LoaderFunc
	Sampler    *Sampler
	Now        func() time.Time
	Logger     zerolog.Logger
}

var _ Policy = (*Handle)(nil)

// Handle owns the active policy parameters. Loads decode into a fresh
// Parameters value and publish it with a single atomic store, so Infer sees
// either the old or the new set and never blocks on a load.
type Handle struct {
	obsSize    int
	actionSize int
	loader     LoaderFunc
	sampler    *Sampler
	now        func() time.Time
	logger     zerolog.Logger

	current atomic.Pointer[Parameters]
	loading atomic.Bool
	loads   singleflight.Group
}

// NewHandle creates an empty handle; Load or Swap must run before Infer.
func NewHandle(opts Options) *Handle {
	h := &Handle{
		obsSize:    opts.ObsSize,
		actionSize: opts.ActionSize,
		loader:     opts.Loader,
		sampler:    opts.Sampler,
		now:        opts.Now,
		logger:     opts.Logger,
	}
	if h.loader == nil {
		h.loader = model.Load
	}
	if h.sampler == nil {
		h.sampler = NewSampler(nil)
	}
	if h.now == nil {
		h.now = time.Now
	}
	return h
}

// Current returns the active parameters, or nil before the first load.
func (h *Handle) Current() *Parameters {
	return h.current.Load()
}

// Loading reports whether an asynchronous load is in flight.
func (h *Handle) Loading() bool {
	return h.loading.Load()
}

// Swap publishes p. Infer calls that already read the previous parameters
// finish with them; every later call uses p.
func (h *Handle) Swap(p *Parameters) error {
	if p == nil || p.Network == nil {
		return ErrNilParameters
	}
	prev := h.current.Swap(p)
	event := h.logger.Info().
		Str("checkpoint", p.Source.Name).
		Uint64("version", p.Source.Version)
	if prev != nil {
		event = event.Uint64("previous_version", prev.Source.Version)
	}
	event.Msg("Policy swapped")
	return nil
}

// Load reads loc synchronously and publishes it. On failure the current
// parameters are left untouched.
func (h *Handle) Load(ctx context.Context, loc checkpoint.Locator) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p, err := h.fetch(loc)
	if err != nil {
		return err
	}
	return h.Swap(p)
}

// LoadAsync reads loc in the background and publishes it when complete. done,
// if non-nil, runs on the loader goroutine once the outcome is known and
// before another load can start. It returns false without doing anything when
// a load is already in flight.
func (h *Handle) LoadAsync(loc checkpoint.Locator, done func(*Parameters, error)) bool {
	if !h.loading.CompareAndSwap(false, true) {
		return false
	}
	go func() {
		defer h.loading.Store(false)
		p, err := h.fetch(loc)
		if err == nil {
			err = h.Swap(p)
		}
		if err != nil {
			p = nil
		}
		if done != nil {
			done(p, err)
		}
	}()
	return true
}

func (h *Handle) fetch(loc checkpoint.Locator) (*Parameters, error) {
	v, err, _ := h.loads.Do(loc.Path(), func() (interface{}, error) {
		start := h.now()
		net, err := h.loader(loc.Path())
		if err != nil {
			return nil, &LoadError{Locator: loc, Err: err}
		}
		if err := net.Validate(h.obsSize, h.actionSize); err != nil {
			return nil, &LoadError{Locator: loc, Err: err}
		}
		loadedAt := h.now()
		h.logger.Debug().
			Str("checkpoint", loc.Path()).
			Ints("layers", net.Layers()).
			Dur("elapsed", loadedAt.Sub(start)).
			Msg("Checkpoint decoded")
		return &Parameters{Network: net, Source: loc, LoadedAt: loadedAt}, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Parameters), nil
}

// Infer selects an action for a single observation.
func (h *Handle) Infer(obs []float64, mode Mode) (Action, error) {
	p := h.current.Load()
	if p == nil {
		return 0, fmt.Errorf("%w: no policy loaded", ErrInference)
	}
	return h.infer(p, obs, mode)
}

// InferBatch selects one action per observation. The whole batch is served
// by the same parameter set.
func (h *Handle) InferBatch(obs [][]float64, mode Mode) ([]Action, error) {
	p := h.current.Load()
	if p == nil {
		return nil, fmt.Errorf("%w: no policy loaded", ErrInference)
	}
	actions := make([]Action, len(obs))
	for i, o := range obs {
		a, err := h.infer(p, o, mode)
		if err != nil {
			return nil, fmt.Errorf("slot %d: %w", i, err)
		}
		actions[i] = a
	}
	return actions, nil
}

func (h *Handle) infer(p *Parameters, obs []float64, mode Mode) (Action, error) {
	probs, err := p.Network.Probabilities(obs)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInference, err)
	}
	a, err := h.sampler.Select(probs, mode)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInference, err)
	}
	return a, nil
}
