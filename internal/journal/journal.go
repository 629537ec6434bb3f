// Package journal persists run history in SQLite and names the per-run log
// files. A nil *Store is usable: writes become no-ops so callers can run with
// the journal disabled.
package journal

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Store wraps SQLite-backed persistence for pipeline runs.
type Store struct {
	DB *sql.DB
}

// New opens (or creates) the database at path and ensures the schema.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create data directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("journal: open database: %w", err)
	}
	s := &Store{DB: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS runs (
            id TEXT PRIMARY KEY,
            mode TEXT NOT NULL,
            config_path TEXT,
            started_at TIMESTAMP NOT NULL,
            finished_at TIMESTAMP,
            exit_code INTEGER,
            failed BOOLEAN DEFAULT FALSE,
            log_path TEXT
        );`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.DB.Exec(stmt); err != nil {
			return fmt.Errorf("journal: ensure schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying DB.
func (s *Store) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}

// Record captures one pipeline run.
type Record struct {
	ID         string
	Mode       string
	ConfigPath string
	LogPath    string
	StartedAt  time.Time
	FinishedAt *time.Time
	ExitCode   *int
	Failed     bool
}

// RecordStart inserts a running entry.
func (s *Store) RecordStart(rec Record) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(
		`INSERT OR REPLACE INTO runs (id, mode, config_path, started_at, log_path) VALUES (?, ?, ?, ?, ?);`,
		rec.ID, rec.Mode, rec.ConfigPath, rec.StartedAt, rec.LogPath,
	)
	if err != nil {
		return fmt.Errorf("journal: record start: %w", err)
	}
	return nil
}

// RecordFinish finalizes a run with its exit code. A non-zero code marks the
// run failed.
func (s *Store) RecordFinish(id string, exitCode int) error {
	if s == nil {
		return nil
	}
	_, err := s.DB.Exec(
		`UPDATE runs SET finished_at=?, exit_code=?, failed=? WHERE id=?;`,
		time.Now().UTC(), exitCode, exitCode != 0, id,
	)
	if err != nil {
		return fmt.Errorf("journal: record finish: %w", err)
	}
	return nil
}

// Recent returns the latest runs, newest first, up to limit.
func (s *Store) Recent(limit int) ([]Record, error) {
	if s == nil {
		return nil, errors.New("journal: store not initialized")
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.DB.Query(
		`SELECT id, mode, config_path, started_at, finished_at, exit_code, failed, log_path
         FROM runs ORDER BY started_at DESC LIMIT ?;`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("journal: query recent: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		var rec Record
		var configPath, logPath sql.NullString
		var finished sql.NullTime
		var exitCode sql.NullInt64
		if err := rows.Scan(&rec.ID, &rec.Mode, &configPath, &rec.StartedAt, &finished, &exitCode, &rec.Failed, &logPath); err != nil {
			return nil, fmt.Errorf("journal: scan run: %w", err)
		}
		rec.ConfigPath = configPath.String
		rec.LogPath = logPath.String
		if finished.Valid {
			t := finished.Time
			rec.FinishedAt = &t
		}
		if exitCode.Valid {
			code := int(exitCode.Int64)
			rec.ExitCode = &code
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LogPath names the log file for a run inside dir.
func LogPath(dir, runID string) string {
	return filepath.Join(dir, runID+".log")
}

// OpenLog creates dir if needed and opens the run's log file for appending.
func OpenLog(dir, runID string) (*os.File, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("journal: create log directory: %w", err)
	}
	file, err := os.OpenFile(LogPath(dir, runID), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("journal: open run log: %w", err)
	}
	return file, nil
}
