package reload

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(seconds int) time.Time {
	return t0.Add(time.Duration(seconds) * time.Second)
}

func TestShouldReload_ElapsedInterval(t *testing.T) {
	s := New(60*time.Second, t0)

	assert.False(t, s.ShouldReload(at(0)))
	assert.False(t, s.ShouldReload(at(59)))
	assert.True(t, s.ShouldReload(at(60)))
	assert.True(t, s.ShouldReload(at(75)))
	assert.Equal(t, 60*time.Second, s.Interval())
}

func TestSucceeded_AdvancesTimestamp(t *testing.T) {
	s := New(60*time.Second, t0)

	s.Succeeded(at(62))
	assert.Equal(t, at(62), s.LastReload().UTC())
	assert.False(t, s.ShouldReload(at(63)))
	assert.False(t, s.ShouldReload(at(121)))
	assert.True(t, s.ShouldReload(at(122)))
}

func TestFailed_RetriesAtNextInterval(t *testing.T) {
	s := New(60*time.Second, t0)

	assert.True(t, s.ShouldReload(at(60)))
	s.Failed(at(60))

	assert.Equal(t, t0, s.LastReload().UTC(), "failure must not advance the reload timestamp")
	assert.False(t, s.ShouldReload(at(61)))
	assert.False(t, s.ShouldReload(at(119)))
	assert.True(t, s.ShouldReload(at(120)))

	s.Failed(at(120))
	assert.False(t, s.ShouldReload(at(121)))
	assert.True(t, s.ShouldReload(at(180)))

	s.Succeeded(at(180))
	assert.False(t, s.ShouldReload(at(239)))
	assert.True(t, s.ShouldReload(at(240)))
}

func TestFailed_LateCheckSnapsToBoundary(t *testing.T) {
	s := New(60*time.Second, t0)

	// Steps are coarse, so the first qualifying check may land after the boundary.
	s.Failed(at(61))
	assert.False(t, s.ShouldReload(at(100)))
	assert.True(t, s.ShouldReload(at(120)))
}

func TestUntil(t *testing.T) {
	s := New(15*time.Minute, t0)

	assert.Equal(t, 15*time.Minute, s.Until(t0))
	assert.Equal(t, 5*time.Minute, s.Until(t0.Add(10*time.Minute)))
	assert.Equal(t, time.Duration(0), s.Until(t0.Add(20*time.Minute)))

	s.Failed(t0.Add(15 * time.Minute))
	assert.Equal(t, 15*time.Minute, s.Until(t0.Add(15*time.Minute)))
}
