package metrics

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeLine(t *testing.T, buf *bytes.Buffer) map[string]interface{} {
	t.Helper()
	var line map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	buf.Reset()
	return line
}

func TestCollector_ReloadAttemptLevels(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(zerolog.New(&buf))

	c.ReloadAttempt("policy_7.json", 7, "swapped", 3*time.Millisecond)
	line := decodeLine(t, &buf)
	assert.Equal(t, "info", line["level"])
	assert.Equal(t, "reload_attempt", line["metric"])
	assert.Equal(t, float64(7), line["version"])

	c.ReloadAttempt("", 0, "not_found", 0)
	line = decodeLine(t, &buf)
	assert.Equal(t, "warn", line["level"])
	assert.Equal(t, "not_found", line["outcome"])
}

func TestCollector_EpisodeCompleted(t *testing.T) {
	var buf bytes.Buffer
	c := NewCollector(zerolog.New(&buf).Level(zerolog.DebugLevel))

	c.EpisodeCompleted("ep-1", "deterministic", 105, 0.5, time.Second)
	line := decodeLine(t, &buf)
	assert.Equal(t, "episode_completed", line["metric"])
	assert.Equal(t, float64(105), line["steps"])
	assert.Equal(t, 0.5, line["average_reward"])
}
