// Package sqlstore is a store.Store on a SQL table, backed by SQLite or
// Postgres.
package sqlstore

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"parkrivals.io/internal/store"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

// Store keeps every record of one scope (installation) in the kv table.
type Store struct {
	db     *sqlx.DB
	driver string
	scope  string
}

type row struct {
	Key   string `db:"key"`
	Value string `db:"value"`
}

// Open connects and migrates. For sqlite, dsn is a file path.
func Open(driver, dsn, scope string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty dsn")
	}
	if scope == "" {
		scope = "default"
	}
	switch driver {
	case DriverSQLite:
		if dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(filepath.Dir(dsn), 0o755); err != nil {
				return nil, err
			}
		}
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	db, err := sqlx.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if driver == DriverSQLite {
		// Single writer; the store is only touched from the event loop and the
		// snapshotter.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
		if err := initPragmas(db); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	s := &Store{db: db, driver: driver, scope: scope}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func initPragmas(db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS kv (
			scope TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			updated_at BIGINT NOT NULL,
			PRIMARY KEY (scope, key)
		);`,
	}
	for _, q := range stmts {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Driver() string { return s.driver }
func (s *Store) Scope() string  { return s.scope }

func (s *Store) Get(key string) ([]byte, bool, error) {
	var v string
	err := s.db.Get(&v, s.db.Rebind(`SELECT value FROM kv WHERE scope = ? AND key = ?`), s.scope, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(v), true, nil
}

func (s *Store) Set(key string, value []byte) error {
	_, err := s.db.Exec(s.db.Rebind(`INSERT INTO kv (scope, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (scope, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`),
		s.scope, key, string(value), time.Now().UnixMilli())
	return err
}

func (s *Store) Has(key string) (bool, error) {
	var n int
	err := s.db.Get(&n, s.db.Rebind(`SELECT COUNT(1) FROM kv WHERE scope = ? AND key = ?`), s.scope, key)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(s.db.Rebind(`DELETE FROM kv WHERE scope = ? AND key = ?`), s.scope, key)
	return err
}

// GetAll matches the prefix with substr rather than LIKE; keys contain '_'.
func (s *Store) GetAll(prefix string) (map[string][]byte, error) {
	var rows []row
	err := s.db.Select(&rows, s.db.Rebind(`SELECT key, value FROM kv WHERE scope = ? AND substr(key, 1, ?) = ? ORDER BY key`),
		s.scope, len(prefix), prefix)
	if err != nil {
		return nil, err
	}
	out := make(map[string][]byte, len(rows))
	for _, r := range rows {
		out[r.Key] = []byte(r.Value)
	}
	return out, nil
}

var _ store.Store = (*Store)(nil)
