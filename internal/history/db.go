// Package history archives finalized analysis sessions in SQLite.
package history

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

// DefaultFile is the database name under the state directory.
const DefaultFile = "history.db"

func openDB(ctx context.Context, path string) (*sqlx.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}
	if err := configure(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}
	return db, nil
}

func configure(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=memory",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled. Current mode: %s", journalMode)
	}
	return nil
}

// migration is a timestamp-versioned schema change.
type migration struct {
	Version     int64
	Description string
	Up          func(*sql.Tx) error
}

var migrations = []migration{
	{
		Version:     20260301090000,
		Description: "Create runs table",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`
				CREATE TABLE IF NOT EXISTS runs (
					id TEXT PRIMARY KEY,
					session_id TEXT NOT NULL UNIQUE,
					subject TEXT NOT NULL,
					request TEXT NOT NULL,
					tier TEXT NOT NULL,
					status TEXT NOT NULL,
					created_at TEXT NOT NULL,
					finished_at TEXT NOT NULL,
					report_path TEXT NOT NULL,
					degraded TEXT NOT NULL,
					tasks TEXT NOT NULL
				)
			`)
			return errors.Wrap(err, "failed to create runs table")
		},
	},
	{
		Version:     20260301090001,
		Description: "Index runs by creation time",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at DESC)`)
			return errors.Wrap(err, "failed to create runs index")
		},
	},
	{
		Version:     20260301090002,
		Description: "Index runs by subject",
		Up: func(tx *sql.Tx) error {
			_, err := tx.Exec(`CREATE INDEX IF NOT EXISTS idx_runs_subject ON runs(subject)`)
			return errors.Wrap(err, "failed to create subject index")
		},
	},
}

func migrate(ctx context.Context, db *sqlx.DB, ms []migration) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL,
			description TEXT
		)
	`); err != nil {
		return errors.Wrap(err, "failed to create schema_migrations table")
	}

	var versions []int64
	if err := db.SelectContext(ctx, &versions, "SELECT version FROM schema_migrations"); err != nil {
		return errors.Wrap(err, "failed to get applied migrations")
	}
	applied := make(map[int64]bool, len(versions))
	for _, v := range versions {
		applied[v] = true
	}

	sorted := append([]migration(nil), ms...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version < sorted[j].Version })

	for _, m := range sorted {
		if applied[m.Version] {
			continue
		}
		if err := apply(ctx, db, m); err != nil {
			return errors.Wrapf(err, "failed to apply migration %d: %s", m.Version, m.Description)
		}
	}
	return nil
}

func apply(ctx context.Context, db *sqlx.DB, m migration) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer tx.Rollback()

	if err := m.Up(tx.Tx); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
		m.Version, time.Now().UTC().Format(time.RFC3339Nano), m.Description); err != nil {
		return errors.Wrap(err, "failed to record migration")
	}
	return tx.Commit()
}
