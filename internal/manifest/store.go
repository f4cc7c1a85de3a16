package manifest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"tessera/internal/faults"
	"tessera/internal/fileutil"
	"tessera/internal/tile"
)

// Run statuses recorded by FinishRun.
const (
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ErrNoRun is returned by Persist before BeginRun.
var ErrNoRun = errors.New("manifest run not started")

// Store is a SQLite-backed tile ledger.
type Store struct {
	db   *sql.DB
	path string

	mu    sync.RWMutex
	runID string
}

// Run is one row of the runs table.
type Run struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Status     string
	Tiles      int64
	Bytes      int64
}

// Record is one row of the tiles table.
type Record struct {
	Scene     string
	Layer     string
	Zoom      int
	X         int
	Z         int
	RunID     string
	Format    string
	Bytes     int64
	SHA256    string
	WrittenAt time.Time
}

// Open creates or connects to the manifest at path.
func Open(ctx context.Context, path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, faults.Wrap(faults.ErrOutput, "manifest", "create directory", path, err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, faults.Wrap(faults.ErrOutput, "manifest", "open", path, err)
	}
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, faults.Wrap(faults.ErrOutput, "manifest", "pragma", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, faults.Wrap(faults.ErrOutput, "manifest", "schema", path, err)
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// BeginRun records a new run; subsequent Persist calls are attributed to it.
func (s *Store) BeginRun(ctx context.Context, runID string, startedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, started_at, status) VALUES (?, ?, ?)`,
		runID, startedAt.UTC().Format(time.RFC3339Nano), StatusRunning,
	)
	if err != nil {
		return faults.Wrap(faults.ErrOutput, "manifest", "begin run", runID, err)
	}
	s.mu.Lock()
	s.runID = runID
	s.mu.Unlock()
	return nil
}

// Persist upserts the tile's ledger row.
func (s *Store) Persist(ctx context.Context, t tile.Encoded) error {
	s.mu.RLock()
	runID := s.runID
	s.mu.RUnlock()
	if runID == "" {
		return faults.Wrap(faults.ErrOutput, "manifest", "persist", t.String(), ErrNoRun)
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tiles (scene, layer, zoom, x, z, run_id, format, bytes, sha256, written_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (scene, layer, zoom, x, z) DO UPDATE SET
            run_id = excluded.run_id,
            format = excluded.format,
            bytes = excluded.bytes,
            sha256 = excluded.sha256,
            written_at = excluded.written_at`,
		t.Scene, t.Layer, t.Coord.Zoom, t.Coord.X, t.Coord.Z,
		runID, string(t.Format), len(t.Data), fileutil.Digest(t.Data),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return faults.Wrap(faults.ErrOutput, "manifest", "persist", t.String(), err)
	}
	return nil
}

// FinishRun stamps the current run with its outcome and totals.
func (s *Store) FinishRun(ctx context.Context, status string, finishedAt time.Time) error {
	s.mu.RLock()
	runID := s.runID
	s.mu.RUnlock()
	if runID == "" {
		return ErrNoRun
	}
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET
            status = ?,
            finished_at = ?,
            tiles = (SELECT COUNT(1) FROM tiles WHERE run_id = ?),
            bytes = (SELECT COALESCE(SUM(bytes), 0) FROM tiles WHERE run_id = ?)
        WHERE id = ?`,
		status, finishedAt.UTC().Format(time.RFC3339Nano), runID, runID, runID,
	)
	if err != nil {
		return faults.Wrap(faults.ErrOutput, "manifest", "finish run", runID, err)
	}
	return nil
}

// Runs lists recorded runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, started_at, COALESCE(finished_at, ''), status, tiles, bytes
        FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.Tiles, &r.Bytes); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Tiles lists the ledger rows last written by runID, ordered by position.
func (s *Store) Tiles(ctx context.Context, runID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT scene, layer, zoom, x, z, run_id, format, bytes, sha256, written_at
        FROM tiles WHERE run_id = ?
        ORDER BY scene, layer, zoom, x, z`, runID)
	if err != nil {
		return nil, fmt.Errorf("list tiles: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var (
			r       Record
			written string
		)
		if err := rows.Scan(&r.Scene, &r.Layer, &r.Zoom, &r.X, &r.Z, &r.RunID, &r.Format, &r.Bytes, &r.SHA256, &written); err != nil {
			return nil, fmt.Errorf("scan tile: %w", err)
		}
		r.WrittenAt = parseTime(written)
		records = append(records, r)
	}
	return records, rows.Err()
}

func parseTime(value string) time.Time {
	if value == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}
