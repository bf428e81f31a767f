package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStore_EpisodesNewestFirst(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for i, id := range []string{"ep-a", "ep-b", "ep-c"} {
				require.NoError(t, store.RecordEpisode(ctx, EpisodeRecord{
					SessionID:     "s1",
					EpisodeID:     id,
					Mode:          "deterministic",
					Steps:         100 + i,
					Reward:        2,
					AverageReward: 1,
					Reason:        "timeout",
					Checkpoint:    "policy_7.json",
					Version:       7,
					StartedAt:     base.Add(time.Duration(i) * time.Minute),
					EndedAt:       base.Add(time.Duration(i)*time.Minute + 7*time.Second),
				}))
			}

			got, err := store.RecentEpisodes(ctx, 2)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "ep-c", got[0].EpisodeID)
			assert.Equal(t, "ep-b", got[1].EpisodeID)
			assert.Equal(t, 102, got[0].Steps)
			assert.Equal(t, uint64(7), got[0].Version)
			assert.True(t, got[0].EndedAt.Equal(base.Add(2*time.Minute+7*time.Second)))

			all, err := store.RecentEpisodes(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, all, 3)
		})
	}
}

func TestStore_DuplicateEpisode(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			rec := EpisodeRecord{SessionID: "s1", EpisodeID: "dup", Mode: "stochastic"}
			require.NoError(t, store.RecordEpisode(ctx, rec))
			assert.ErrorIs(t, store.RecordEpisode(ctx, rec), ErrConflict)
		})
	}
}

func TestStore_Reloads(t *testing.T) {
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			require.NoError(t, store.RecordReload(ctx, ReloadRecord{
				SessionID: "s1", Outcome: "not_found", Error: "no checkpoint", At: base,
			}))
			require.NoError(t, store.RecordReload(ctx, ReloadRecord{
				SessionID: "s1", Checkpoint: "policy_8.json", Version: 8, Outcome: "swapped", At: base.Add(time.Minute),
			}))

			got, err := store.RecentReloads(ctx, 10)
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "swapped", got[0].Outcome)
			assert.Equal(t, uint64(8), got[0].Version)
			assert.Empty(t, got[0].Error)
			assert.Equal(t, "not_found", got[1].Outcome)
			assert.Equal(t, "no checkpoint", got[1].Error)
			assert.Empty(t, got[1].Checkpoint)
		})
	}
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.db")
	store, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, store.RecordEpisode(context.Background(), EpisodeRecord{EpisodeID: "kept", Mode: "deterministic"}))
	require.NoError(t, store.Close())

	store, err = NewSQLiteStore(path)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.RecentEpisodes(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "kept", got[0].EpisodeID)
}
