// Package playstyle decides, once per episode, whether the policy plays
// deterministically or stochastically.
package playstyle

import (
	"math/rand/v2"
	"sync"
	"time"

	"github.com/cartridge/live/internal/policy"
)

// Switch draws a playstyle with probability one half for each mode.
type Switch struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// New creates a switch. A nil src is seeded from the clock.
func New(src rand.Source) *Switch {
	if src == nil {
		seed := uint64(time.Now().UnixNano())
		src = rand.NewPCG(seed, ^seed)
	}
	return &Switch{rng: rand.New(src)}
}

// Choose returns the mode for the next episode. Draws are independent.
func (s *Switch) Choose() policy.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.rng.Float64() < 0.5 {
		return policy.Deterministic
	}
	return policy.Stochastic
}
