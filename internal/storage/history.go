package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"catcafe/internal/core/model"
)

//go:embed schema/*.sql
var schemaFS embed.FS

// ErrDuplicateSession is returned when a session ID is saved twice.
var ErrDuplicateSession = errors.New("session already recorded")

// History persists finished focus sessions in SQLite.
type History struct {
	sqlDB *sql.DB
	now   func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// OpenHistory opens the history database at path and applies the schema.
func OpenHistory(path string) (*History, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(cleanPath), 0o755); err != nil {
		return nil, fmt.Errorf("create storage directory: %w", err)
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applySchema(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &History{sqlDB: sqlDB, now: time.Now}, nil
}

func applySchema(sqlDB *sql.DB) error {
	files, err := fs.Glob(schemaFS, "schema/*.sql")
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, file := range files {
		content, err := fs.ReadFile(schemaFS, file)
		if err != nil {
			return fmt.Errorf("read %s: %w", file, err)
		}
		if _, err := sqlDB.Exec(string(content)); err != nil {
			return fmt.Errorf("exec %s: %w", file, err)
		}
	}
	return nil
}

// Close closes the SQLite handle.
func (history *History) Close() error {
	if history == nil || history.sqlDB == nil {
		return nil
	}
	return history.sqlDB.Close()
}

// SaveSession inserts one finished session. An empty ID is replaced with a
// fresh UUID, which is returned.
func (history *History) SaveSession(ctx context.Context, entry model.SessionEntry) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if history == nil || history.sqlDB == nil {
		return "", fmt.Errorf("storage is not configured")
	}
	if !entry.Outcome.Valid() {
		return "", fmt.Errorf("unknown session outcome %q", entry.Outcome)
	}
	if entry.StartedAt.IsZero() {
		return "", fmt.Errorf("session start is required")
	}
	id := strings.TrimSpace(entry.ID)
	if id == "" {
		id = uuid.New().String()
	}
	endedAt := entry.EndedAt
	if endedAt.IsZero() {
		endedAt = history.now()
	}

	_, err := history.sqlDB.ExecContext(
		ctx,
		`INSERT INTO sessions (
		   id,
		   started_at,
		   ended_at,
		   planned_seconds,
		   focused_seconds,
		   outcome,
		   streak,
		   coins
		 ) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id,
		toMillis(entry.StartedAt),
		toMillis(endedAt),
		int64(entry.Planned/time.Second),
		int64(entry.Focused/time.Second),
		string(entry.Outcome),
		entry.Streak,
		entry.Coins,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return "", ErrDuplicateSession
		}
		return "", fmt.Errorf("save session: %w", err)
	}
	return id, nil
}

// CompletionTimes returns the end times of completed sessions, oldest first.
func (history *History) CompletionTimes(ctx context.Context) ([]time.Time, error) {
	rows, err := history.sqlDB.QueryContext(
		ctx,
		`SELECT ended_at FROM sessions WHERE outcome = ? ORDER BY ended_at`,
		string(model.OutcomeCompleted),
	)
	if err != nil {
		return nil, fmt.Errorf("query completions: %w", err)
	}
	defer rows.Close()

	var times []time.Time
	for rows.Next() {
		var endedAt int64
		if err := rows.Scan(&endedAt); err != nil {
			return nil, fmt.Errorf("scan completion: %w", err)
		}
		times = append(times, fromMillis(endedAt))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completions: %w", err)
	}
	return times, nil
}

// Recent returns up to limit sessions, newest first.
func (history *History) Recent(ctx context.Context, limit int) ([]model.SessionEntry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := history.sqlDB.QueryContext(
		ctx,
		`SELECT id, started_at, ended_at, planned_seconds, focused_seconds, outcome, streak, coins
		 FROM sessions
		 ORDER BY ended_at DESC, id
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	return scanSessions(rows)
}

// Between returns sessions that ended in [from, to), oldest first.
func (history *History) Between(ctx context.Context, from, to time.Time) ([]model.SessionEntry, error) {
	if !to.After(from) {
		return nil, nil
	}
	rows, err := history.sqlDB.QueryContext(
		ctx,
		`SELECT id, started_at, ended_at, planned_seconds, focused_seconds, outcome, streak, coins
		 FROM sessions
		 WHERE ended_at >= ? AND ended_at < ?
		 ORDER BY ended_at, id`,
		toMillis(from),
		toMillis(to),
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions between: %w", err)
	}
	return scanSessions(rows)
}

func scanSessions(rows *sql.Rows) ([]model.SessionEntry, error) {
	defer rows.Close()

	var entries []model.SessionEntry
	for rows.Next() {
		var (
			entry            model.SessionEntry
			startedAt        int64
			endedAt          int64
			planned, focused int64
			outcome          string
		)
		if err := rows.Scan(&entry.ID, &startedAt, &endedAt, &planned, &focused, &outcome, &entry.Streak, &entry.Coins); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		entry.StartedAt = fromMillis(startedAt)
		entry.EndedAt = fromMillis(endedAt)
		entry.Planned = time.Duration(planned) * time.Second
		entry.Focused = time.Duration(focused) * time.Second
		entry.Outcome = model.Outcome(outcome)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return entries, nil
}

// Stats aggregates outcome counts, focused time and coins. Streak is left
// for the caller, which knows the local calendar.
func (history *History) Stats(ctx context.Context) (model.Stats, error) {
	rows, err := history.sqlDB.QueryContext(
		ctx,
		`SELECT outcome, COUNT(*), COALESCE(SUM(focused_seconds), 0), COALESCE(SUM(coins), 0)
		 FROM sessions
		 GROUP BY outcome`,
	)
	if err != nil {
		return model.Stats{}, fmt.Errorf("query stats: %w", err)
	}
	defer rows.Close()

	var stats model.Stats
	for rows.Next() {
		var (
			outcome string
			count   int
			focused int64
			coins   int
		)
		if err := rows.Scan(&outcome, &count, &focused, &coins); err != nil {
			return model.Stats{}, fmt.Errorf("scan stats: %w", err)
		}
		switch model.Outcome(outcome) {
		case model.OutcomeCompleted:
			stats.Completed = count
		case model.OutcomeAbandoned:
			stats.Abandoned = count
		case model.OutcomeAwayTooLong:
			stats.AwayTooLong = count
		}
		stats.FocusTime += time.Duration(focused) * time.Second
		stats.Coins += coins
	}
	if err := rows.Err(); err != nil {
		return model.Stats{}, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique constraint failed")
}
