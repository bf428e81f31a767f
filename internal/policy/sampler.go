package policy

import (
	"fmt"
	"math/rand/v2"
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/sampleuv"
)

// Sampler turns an action distribution into an action. It is safe for
// concurrent use.
type Sampler struct {
	mu  sync.Mutex
	src rand.Source
}

// NewSampler creates a sampler. A nil src is seeded from the clock.
func NewSampler(src rand.Source) *Sampler {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, seed>>1)
	}
	return &Sampler{src: src}
}

// Select picks from probs under mode.
func (s *Sampler) Select(probs []float64, mode Mode) (Action, error) {
	if len(probs) == 0 {
		return 0, fmt.Errorf("empty action distribution")
	}
	switch mode {
	case Deterministic:
		return Action(floats.MaxIdx(probs)), nil
	case Stochastic:
		return s.sample(probs)
	default:
		return 0, fmt.Errorf("unknown mode %v", mode)
	}
}

func (s *Sampler) sample(probs []float64) (Action, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := sampleuv.NewWeighted(probs, s.src).Take()
	if !ok {
		return 0, fmt.Errorf("action distribution has no mass")
	}
	return Action(i), nil
}
