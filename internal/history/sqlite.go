// Package history persists published results in SQLite.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration

	"github.com/beststop/parking-server/pkg/types"
)

// MaxRecent caps the rows returned by one Recent call.
const MaxRecent = 1000

// Store is a SQLite-backed result log.
type Store struct {
	db *sql.DB
}

// Open opens (and creates if needed) the database at dsn.
func Open(dsn string) (*Store, error) {
	// Extract the file path before query parameters
	dbPath := strings.TrimPrefix(dsn, "file:")
	if idx := strings.Index(dbPath, "?"); idx != -1 {
		dbPath = dbPath[:idx]
	}

	if dir := filepath.Dir(dbPath); dbPath != ":memory:" && dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	if !strings.Contains(dsn, "_busy_timeout") {
		if strings.Contains(dsn, "?") {
			dsn += "&_busy_timeout=5000"
		} else {
			dsn += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer; also keeps :memory: databases on a single connection.
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	_, err := db.Exec(`
    CREATE TABLE IF NOT EXISTS occupancy (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        created_at INTEGER NOT NULL,
        source TEXT NOT NULL DEFAULT '',
        total INTEGER NOT NULL,
        free INTEGER NOT NULL,
        occupied INTEGER NOT NULL,
        unknown INTEGER NOT NULL DEFAULT 0,
        free_pct REAL NOT NULL,
        occupied_pct REAL NOT NULL,
        threshold REAL NOT NULL DEFAULT 0,
        error TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS idx_occupancy_created_at ON occupancy(created_at);
    `)
	return err
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Publish appends a result.
func (s *Store) Publish(ctx context.Context, r types.AggregateResult) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO occupancy (created_at, source, total, free, occupied, unknown, free_pct, occupied_pct, threshold, error)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ts.UnixMilli(), r.Source, r.Total, r.FreeCount, r.OccupiedCount, r.UnknownCount,
		r.FreePct, r.OccupiedPct, r.Threshold, r.Error,
	)
	if err != nil {
		return fmt.Errorf("insert occupancy: %w", err)
	}
	return nil
}

// Recent returns up to limit results, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]types.AggregateResult, error) {
	if limit <= 0 || limit > MaxRecent {
		limit = MaxRecent
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT created_at, source, total, free, occupied, unknown, free_pct, occupied_pct, threshold, error
        FROM occupancy ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query occupancy: %w", err)
	}
	defer rows.Close()

	out := []types.AggregateResult{}
	for rows.Next() {
		var (
			r  types.AggregateResult
			ms int64
		)
		if err := rows.Scan(&ms, &r.Source, &r.Total, &r.FreeCount, &r.OccupiedCount, &r.UnknownCount,
			&r.FreePct, &r.OccupiedPct, &r.Threshold, &r.Error); err != nil {
			return nil, fmt.Errorf("scan occupancy: %w", err)
		}
		r.Timestamp = time.UnixMilli(ms)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Count returns the number of stored results.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM occupancy").Scan(&n); err != nil {
		return 0, fmt.Errorf("count occupancy: %w", err)
	}
	return n, nil
}
