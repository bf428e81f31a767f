// Package events fans controller activity out to downstream consumers.
package events

import (
	"context"
	"time"
)

// Reload outcomes.
const (
	ReloadSwapped    = "swapped"
	ReloadUpToDate   = "up_to_date"
	ReloadNotFound   = "not_found"
	ReloadLoadFailed = "load_failed"
)

// Publisher is implemented by downstream fan-out mechanisms.
type Publisher interface {
	PublishEpisode(ctx context.Context, payload EpisodeEvent) error
	PublishReload(ctx context.Context, payload ReloadEvent) error
}

// EpisodeEvent is emitted when an episode terminates.
type EpisodeEvent struct {
	SessionID     string    `json:"session_id"`
	EpisodeID     string    `json:"episode_id"`
	Mode          string    `json:"mode"`
	Steps         int       `json:"steps"`
	AverageReward float64   `json:"average_reward"`
	Reason        string    `json:"reason"`
	Checkpoint    string    `json:"checkpoint,omitempty"`
	Version       uint64    `json:"version"`
	EndedAt       time.Time `json:"ended_at"`
}

// ReloadEvent tracks a reload attempt and its outcome.
type ReloadEvent struct {
	SessionID  string    `json:"session_id"`
	Checkpoint string    `json:"checkpoint,omitempty"`
	Version    uint64    `json:"version"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// NoopPublisher publishes nothing; useful for tests.
type NoopPublisher struct{}

// PublishEpisode satisfies Publisher.
func (NoopPublisher) PublishEpisode(context.Context, EpisodeEvent) error { return nil }

// PublishReload satisfies Publisher.
func (NoopPublisher) PublishReload(context.Context, ReloadEvent) error { return nil }
