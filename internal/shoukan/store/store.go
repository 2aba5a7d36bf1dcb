// Package store persists Shoukan's audit log, provisioning request history
// and Matrix sync state in SQLite.
//
// Conversation state is deliberately not stored here; it lives in memory for
// the lifetime of the process.
package store

import (
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"sort"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// Store wraps the database connection.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and applies pending
// migrations. Use ":memory:" only for throwaway databases.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One connection: SQLite serializes writers anyway, and a single
	// connection keeps ":memory:" databases coherent.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection, e.g. for the Matrix sync store.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping checks that the database is reachable.
func (s *Store) Ping() error {
	return s.db.Ping()
}

type migration struct {
	version     int
	description string
	file        string
}

// parseMigrationName splits "0002_provisioning_requests.sql" into its
// version and description.
func parseMigrationName(name string) (migration, bool) {
	if !strings.HasSuffix(name, ".sql") {
		return migration{}, false
	}
	num, desc, ok := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
	if !ok {
		return migration{}, false
	}
	v, err := strconv.Atoi(num)
	if err != nil || v <= 0 {
		return migration{}, false
	}
	return migration{version: v, description: desc, file: name}, true
}

func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations directory: %w", err)
	}

	var out []migration
	seen := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m, ok := parseMigrationName(e.Name())
		if !ok {
			continue
		}
		if prev, dup := seen[m.version]; dup {
			return nil, fmt.Errorf("duplicate migration version %04d: %q and %q", m.version, prev, m.file)
		}
		seen[m.version] = m.file
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// migrate applies every embedded migration newer than the recorded schema
// version, each in its own transaction.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version     INTEGER PRIMARY KEY,
			applied_at  TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			description TEXT NOT NULL
		)
	`); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	var current int
	if err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return fmt.Errorf("failed to get current schema version: %w", err)
	}

	migrations, err := loadMigrations()
	if err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		body, err := migrationsFS.ReadFile(path.Join("migrations", m.file))
		if err != nil {
			return fmt.Errorf("failed to read migration %s: %w", m.file, err)
		}

		tx, err := s.db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(string(body)); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to execute migration %d: %w", m.version, err)
		}
		if _, err := tx.Exec(
			"INSERT INTO schema_migrations (version, applied_at, description) VALUES (?, ?, ?)",
			m.version, time.Now().UTC(), m.description,
		); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", m.version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", m.version, err)
		}

		slog.Info("applied migration", "version", fmt.Sprintf("%04d", m.version), "description", m.description)
	}
	return nil
}

// SchemaVersion returns the highest applied migration version.
func (s *Store) SchemaVersion() (int, error) {
	var v int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&v)
	return v, err
}
