// Package metrics emits metric lines through the structured logger.
package metrics

import (
	"time"

	"github.com/rs/zerolog"
)

// Collector for live controller operations
type Collector struct {
	logger zerolog.Logger
}

func NewCollector(logger zerolog.Logger) *Collector {
	return &Collector{
		logger: logger,
	}
}

// Track completed episodes
func (c *Collector) EpisodeCompleted(episodeID, mode string, steps int, averageReward float64, duration time.Duration) {
	c.logger.Debug().
		Str("metric", "episode_completed").
		Str("episode_id", episodeID).
		Str("mode", mode).
		Int("steps", steps).
		Float64("average_reward", averageReward).
		Dur("duration", duration).
		Msg("Episode metric")
}

// Track reload attempts; outcome is one of the history outcome strings
func (c *Collector) ReloadAttempt(checkpoint string, version uint64, outcome string, latency time.Duration) {
	event := c.logger.Info()
	if outcome != "swapped" && outcome != "up_to_date" {
		event = c.logger.Warn()
	}
	event.
		Str("metric", "reload_attempt").
		Str("checkpoint", checkpoint).
		Uint64("version", version).
		Str("outcome", outcome).
		Dur("latency", latency).
		Msg("Reload metric")
}

// Track API request metrics
func (c *Collector) APIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	c.logger.Info().
		Str("metric", "api_request").
		Str("method", method).
		Str("endpoint", endpoint).
		Int("status_code", statusCode).
		Dur("duration", duration).
		Msg("API request metric")
}
