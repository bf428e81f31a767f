package status

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cartridge/live/internal/history"
	"github.com/cartridge/live/internal/metrics"
)

func fixedSource() Source {
	return SourceFunc(func() Snapshot {
		return Snapshot{
			SessionID:         "s1",
			Mode:              "Stochastic",
			NextReloadIn:      754 * time.Second,
			ReloadInterval:    15 * time.Minute,
			Checkpoint:        "policy_7.json",
			Version:           7,
			Episodes:          12,
			Steps:             1260,
			LastAverageReward: 0.25,
		}
	})
}

func newTestServer(t *testing.T, store history.Store) http.Handler {
	t.Helper()
	logger := zerolog.Nop()
	return NewServer(fixedSource(), store, metrics.NewCollector(logger), logger).Routes()
}

func TestFormatCountdown(t *testing.T) {
	assert.Equal(t, "12:34", FormatCountdown(754*time.Second))
	assert.Equal(t, "00:59", FormatCountdown(59999*time.Millisecond))
	assert.Equal(t, "00:00", FormatCountdown(-time.Second))
	assert.Equal(t, "15:00", FormatCountdown(15*time.Minute))
}

func TestRender(t *testing.T) {
	out := Render(fixedSource().Snapshot())
	assert.Contains(t, out, " === State report === ")
	assert.Contains(t, out, " Mode : Stochastic\n")
	assert.Contains(t, out, " Model reload in 12:34\n")
	assert.Contains(t, out, " Last episode reward (Average per player) : 0.250000\n")
	assert.Contains(t, out, "policy_7.json (v7)")

	loading := fixedSource().Snapshot()
	loading.Loading = true
	assert.Contains(t, Render(loading), "Model reload in progress")
}

func TestPrinter_WritesReport(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(fixedSource(), time.Hour, &buf)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p.Start(ctx)

	assert.Contains(t, buf.String(), "State report")
	assert.Contains(t, buf.String(), "12:34")
}

func TestServer_Health(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.NotEmpty(t, rr.Header().Get("X-Correlation-ID"))
}

func TestServer_Status(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	req.Header.Set("X-Correlation-ID", "abc-123")
	rr := httptest.NewRecorder()
	newTestServer(t, nil).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "abc-123", rr.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "s1", body["session_id"])
	assert.Equal(t, "Stochastic", body["mode"])
	assert.Equal(t, "12:34", body["next_reload"])
	assert.Equal(t, float64(7), body["version"])
}

func TestServer_StatusLoadedAt(t *testing.T) {
	get := func(src Source) map[string]interface{} {
		logger := zerolog.Nop()
		rr := httptest.NewRecorder()
		NewServer(src, nil, metrics.NewCollector(logger), logger).Routes().
			ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
		require.Equal(t, http.StatusOK, rr.Code)
		var body map[string]interface{}
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
		return body
	}

	assert.NotContains(t, get(fixedSource()), "loaded_at")

	loadedAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	loaded := SourceFunc(func() Snapshot {
		snap := fixedSource().Snapshot()
		snap.LoadedAt = &loadedAt
		return snap
	})
	assert.Equal(t, "2024-05-01T12:00:00Z", get(loaded)["loaded_at"])
}

func TestServer_History(t *testing.T) {
	store := history.NewMemoryStore()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, store.RecordEpisode(context.Background(), history.EpisodeRecord{
			EpisodeID: id,
			Mode:      "deterministic",
			EndedAt:   base.Add(time.Duration(i) * time.Second),
		}))
	}
	handler := newTestServer(t, store)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		expectedLen    int
	}{
		{name: "default limit", path: "/api/v1/episodes", expectedStatus: http.StatusOK, expectedLen: 3},
		{name: "explicit limit", path: "/api/v1/episodes?limit=2", expectedStatus: http.StatusOK, expectedLen: 2},
		{name: "bad limit", path: "/api/v1/episodes?limit=zero", expectedStatus: http.StatusBadRequest},
		{name: "no reloads yet", path: "/api/v1/reloads", expectedStatus: http.StatusOK, expectedLen: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.Equal(t, tt.expectedStatus, rr.Code)
			if tt.expectedStatus != http.StatusOK {
				assert.True(t, strings.Contains(rr.Body.String(), "error"))
				return
			}
			var items []map[string]interface{}
			require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &items))
			assert.Len(t, items, tt.expectedLen)
		})
	}
}

func TestServer_HistoryDisabledWithoutStore(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestServer(t, nil).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/episodes", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestWithProcess(t *testing.T) {
	sampler, err := NewProcessSampler()
	require.NoError(t, err)

	snap := WithProcess(fixedSource(), sampler).Snapshot()
	assert.Equal(t, "s1", snap.SessionID)
	assert.Greater(t, snap.Process.RSSBytes, uint64(0))

	assert.Equal(t, fixedSource().Snapshot(), WithProcess(fixedSource(), nil).Snapshot())
}
