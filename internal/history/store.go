// Package history keeps an audit log of episodes and reload attempts.
package history

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

// ErrConflict indicates a record with the same identity already exists.
var ErrConflict = errors.New("conflict")

// Store captures the persistence operations the controller relies on.
type Store interface {
	RecordEpisode(ctx context.Context, rec EpisodeRecord) error
	RecordReload(ctx context.Context, rec ReloadRecord) error
	// RecentEpisodes returns up to limit episodes, newest first.
	RecentEpisodes(ctx context.Context, limit int) ([]EpisodeRecord, error)
	// RecentReloads returns up to limit reload attempts, newest first.
	RecentReloads(ctx context.Context, limit int) ([]ReloadRecord, error)
	Close() error
}

// EpisodeRecord is one terminated episode.
type EpisodeRecord struct {
	SessionID     string    `json:"session_id"`
	EpisodeID     string    `json:"episode_id"`
	Mode          string    `json:"mode"`
	Steps         int       `json:"steps"`
	Reward        float64   `json:"reward"`
	AverageReward float64   `json:"average_reward"`
	Reason        string    `json:"reason"`
	Checkpoint    string    `json:"checkpoint"`
	Version       uint64    `json:"version"`
	StartedAt     time.Time `json:"started_at"`
	EndedAt       time.Time `json:"ended_at"`
}

// ReloadRecord is one reload attempt.
type ReloadRecord struct {
	SessionID  string    `json:"session_id"`
	Checkpoint string    `json:"checkpoint"`
	Version    uint64    `json:"version"`
	Outcome    string    `json:"outcome"`
	Error      string    `json:"error,omitempty"`
	At         time.Time `json:"at"`
}

// MemoryStore is an in-memory Store for development/testing.
type MemoryStore struct {
	mu       sync.RWMutex
	episodes []EpisodeRecord
	seen     map[string]struct{}
	reloads  []ReloadRecord
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{seen: make(map[string]struct{})}
}

// RecordEpisode appends an episode, enforcing unique episode IDs.
func (m *MemoryStore) RecordEpisode(_ context.Context, rec EpisodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.seen[rec.EpisodeID]; exists {
		return ErrConflict
	}
	m.seen[rec.EpisodeID] = struct{}{}
	m.episodes = append(m.episodes, rec)
	return nil
}

// RecordReload appends a reload attempt.
func (m *MemoryStore) RecordReload(_ context.Context, rec ReloadRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reloads = append(m.reloads, rec)
	return nil
}

// RecentEpisodes returns the newest episodes by end time.
func (m *MemoryStore) RecentEpisodes(_ context.Context, limit int) ([]EpisodeRecord, error) {
	m.mu.RLock()
	out := append([]EpisodeRecord(nil), m.episodes...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].EndedAt.After(out[j].EndedAt) })
	return truncate(out, limit), nil
}

// RecentReloads returns the newest reload attempts.
func (m *MemoryStore) RecentReloads(_ context.Context, limit int) ([]ReloadRecord, error) {
	m.mu.RLock()
	out := append([]ReloadRecord(nil), m.reloads...)
	m.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].At.After(out[j].At) })
	return truncate(out, limit), nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }

func truncate[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
