package history

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS episodes (
	episode_id     TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	mode           TEXT NOT NULL,
	steps          INTEGER NOT NULL,
	reward         REAL NOT NULL,
	average_reward REAL NOT NULL,
	reason         TEXT,
	checkpoint     TEXT,
	version        INTEGER NOT NULL,
	started_at     TEXT NOT NULL,
	ended_at       TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS reloads (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id TEXT NOT NULL,
	checkpoint TEXT,
	version    INTEGER NOT NULL,
	outcome    TEXT NOT NULL,
	error      TEXT,
	at         TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_episodes_ended_at ON episodes(ended_at);
CREATE INDEX IF NOT EXISTS idx_reloads_at ON reloads(at);
`

// SQLiteStore persists history in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens a SQLite database and runs migrations. dbPath may be
// ":memory:".
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// One writer; also keeps ":memory:" a single database.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// RecordEpisode inserts an episode row.
func (s *SQLiteStore) RecordEpisode(ctx context.Context, rec EpisodeRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO episodes (episode_id, session_id, mode, steps, reward, average_reward, reason, checkpoint, version, started_at, ended_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.EpisodeID,
		rec.SessionID,
		rec.Mode,
		rec.Steps,
		rec.Reward,
		rec.AverageReward,
		nullIfEmpty(rec.Reason),
		nullIfEmpty(rec.Checkpoint),
		int64(rec.Version),
		formatTime(rec.StartedAt),
		formatTime(rec.EndedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("record episode %s: %w", rec.EpisodeID, ErrConflict)
		}
		return fmt.Errorf("record episode: %w", err)
	}
	return nil
}

// RecordReload inserts a reload row.
func (s *SQLiteStore) RecordReload(ctx context.Context, rec ReloadRecord) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO reloads (session_id, checkpoint, version, outcome, error, at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		rec.SessionID,
		nullIfEmpty(rec.Checkpoint),
		int64(rec.Version),
		rec.Outcome,
		nullIfEmpty(rec.Error),
		formatTime(rec.At),
	)
	if err != nil {
		return fmt.Errorf("record reload: %w", err)
	}
	return nil
}

// RecentEpisodes returns the newest episodes by end time.
func (s *SQLiteStore) RecentEpisodes(ctx context.Context, limit int) ([]EpisodeRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT episode_id, session_id, mode, steps, reward, average_reward, reason, checkpoint, version, started_at, ended_at
		 FROM episodes ORDER BY ended_at DESC, rowid DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query episodes: %w", err)
	}
	defer rows.Close()

	var out []EpisodeRecord
	for rows.Next() {
		var (
			rec                EpisodeRecord
			reason, checkpoint sql.NullString
			version            int64
			startedAt, endedAt string
		)
		if err := rows.Scan(&rec.EpisodeID, &rec.SessionID, &rec.Mode, &rec.Steps, &rec.Reward,
			&rec.AverageReward, &reason, &checkpoint, &version, &startedAt, &endedAt); err != nil {
			return nil, fmt.Errorf("scan episode: %w", err)
		}
		rec.Reason = reason.String
		rec.Checkpoint = checkpoint.String
		rec.Version = uint64(version)
		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if rec.EndedAt, err = parseTime(endedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// RecentReloads returns the newest reload attempts.
func (s *SQLiteStore) RecentReloads(ctx context.Context, limit int) ([]ReloadRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, checkpoint, version, outcome, error, at
		 FROM reloads ORDER BY at DESC, id DESC LIMIT ?`, sqlLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("query reloads: %w", err)
	}
	defer rows.Close()

	var out []ReloadRecord
	for rows.Next() {
		var (
			rec                ReloadRecord
			checkpoint, errMsg sql.NullString
			version            int64
			at                 string
		)
		if err := rows.Scan(&rec.SessionID, &checkpoint, &version, &rec.Outcome, &errMsg, &at); err != nil {
			return nil, fmt.Errorf("scan reload: %w", err)
		}
		rec.Checkpoint = checkpoint.String
		rec.Error = errMsg.String
		rec.Version = uint64(version)
		if rec.At, err = parseTime(at); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Times are stored as fixed-width UTC strings so text order is time order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t, nil
}

func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
