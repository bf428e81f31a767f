package playstyle

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/cartridge/live/internal/policy"
)

func TestChoose_IsFairCoin(t *testing.T) {
	s := New(rand.NewPCG(42, 24))

	counts := map[policy.Mode]int{}
	const draws = 10000
	for i := 0; i < draws; i++ {
		counts[s.Choose()]++
	}

	assert.Len(t, counts, 2)
	// 5 sigma around 5000 for a fair coin is roughly +/- 250.
	assert.InDelta(t, draws/2, counts[policy.Deterministic], 250)
	assert.InDelta(t, draws/2, counts[policy.Stochastic], 250)
}

func TestChoose_SeededSequenceRepeats(t *testing.T) {
	a := New(rand.NewPCG(1, 2))
	b := New(rand.NewPCG(1, 2))
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Choose(), b.Choose())
	}
}
