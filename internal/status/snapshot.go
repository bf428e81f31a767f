// Package status reports what the live controller is doing: a console state
// report and a small HTTP API.
package status

import (
	"fmt"
	"time"
)

// Snapshot is a point-in-time view of the controller.
type Snapshot struct {
	SessionID         string        `json:"session_id"`
	Mode              string        `json:"mode"`
	NextReloadIn      time.Duration `json:"next_reload_in"`
	ReloadInterval    time.Duration `json:"reload_interval"`
	Loading           bool          `json:"loading"`
	Checkpoint        string        `json:"checkpoint,omitempty"`
	Version           uint64        `json:"version"`
	LoadedAt          *time.Time    `json:"loaded_at,omitempty"`
	Episodes          int64         `json:"episodes"`
	Steps             int64         `json:"steps"`
	LastEpisodeID     string        `json:"last_episode_id,omitempty"`
	LastAverageReward float64       `json:"last_average_reward"`
	LastReason        string        `json:"last_reason,omitempty"`
	Process           Process       `json:"process"`
	Time              time.Time     `json:"time"`
}

// Process holds resource usage of the running binary.
type Process struct {
	CPUPercent float64 `json:"cpu_percent"`
	RSSBytes   uint64  `json:"rss_bytes"`
}

// Source produces snapshots.
type Source interface {
	Snapshot() Snapshot
}

// SourceFunc adapts a function to Source.
type SourceFunc func() Snapshot

// Snapshot implements Source.
func (f SourceFunc) Snapshot() Snapshot { return f() }

// FormatCountdown renders d as MM:SS, truncated to whole seconds.
func FormatCountdown(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	secs := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
