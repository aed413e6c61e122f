package kv

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/KafClaw/robotd/internal/config"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverCGO     = "sqlite3" // github.com/mattn/go-sqlite3
)

// SQLiteStore is a Store persisted in SQLite.
type SQLiteStore struct {
	db     *sql.DB
	prefix string
	owner  bool
}

// Open connects to the store described by cfg and applies the schema.
// The returned store is the root (un-namespaced) view.
func Open(cfg config.StoreConfig) (*SQLiteStore, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		driver = DriverModernc
	}
	path, err := cfg.StorePath()
	if err != nil {
		return nil, fmt.Errorf("resolve store path: %w", err)
	}
	if path == "" {
		return nil, fmt.Errorf("store path is empty")
	}

	dsn, err := dataSourceName(driver, path)
	if err != nil {
		return nil, err
	}
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open store db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	return NewSQLiteStore(db)
}

// NewSQLiteStore wraps an open database and applies the schema.
// The store takes ownership of db and closes it on Close.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &SQLiteStore{db: db, owner: true}, nil
}

func dataSourceName(driver, path string) (string, error) {
	switch driver {
	case DriverModernc:
		if path == ":memory:" {
			return path, nil
		}
		return "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	case DriverCGO:
		if path == ":memory:" {
			return path, nil
		}
		return "file:" + path + "?_journal_mode=WAL&_busy_timeout=5000", nil
	default:
		return "", fmt.Errorf("unsupported store driver %q", driver)
	}
}

// Close closes the underlying database. Namespaced views do not own the
// connection and Close on them is a no-op.
func (s *SQLiteStore) Close() error {
	if !s.owner {
		return nil
	}
	return s.db.Close()
}

// Namespace implements Store.
func (s *SQLiteStore) Namespace(ns string) Store {
	return &SQLiteStore{db: s.db, prefix: JoinPrefix(s.prefix, ns)}
}

// Prefix implements Store.
func (s *SQLiteStore) Prefix() string { return s.prefix }

func (s *SQLiteStore) key(k string) string { return s.prefix + k }

// SAdd implements Store.
func (s *SQLiteStore) SAdd(ctx context.Context, key, member string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO kv_sets (key, member) VALUES (?, ?)`, s.key(key), member)
	if err != nil {
		return false, fmt.Errorf("sadd %s: %w", s.key(key), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SRem implements Store.
func (s *SQLiteStore) SRem(ctx context.Context, key, member string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM kv_sets WHERE key = ? AND member = ?`, s.key(key), member)
	if err != nil {
		return false, fmt.Errorf("srem %s: %w", s.key(key), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// SIsMember implements Store.
func (s *SQLiteStore) SIsMember(ctx context.Context, key, member string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM kv_sets WHERE key = ? AND member = ?`, s.key(key), member).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sismember %s: %w", s.key(key), err)
	}
	return true, nil
}

// SMembers implements Store.
func (s *SQLiteStore) SMembers(ctx context.Context, key string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT member FROM kv_sets WHERE key = ? ORDER BY member`, s.key(key))
	if err != nil {
		return nil, fmt.Errorf("smembers %s: %w", s.key(key), err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// HSet implements Store.
func (s *SQLiteStore) HSet(ctx context.Context, key, field, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv_hashes (key, field, value) VALUES (?, ?, ?)
		ON CONFLICT(key, field) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP`,
		s.key(key), field, value)
	if err != nil {
		return fmt.Errorf("hset %s: %w", s.key(key), err)
	}
	return nil
}

// HGetAll implements Store.
func (s *SQLiteStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field, value FROM kv_hashes WHERE key = ?`, s.key(key))
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", s.key(key), err)
	}
	defer rows.Close()

	out := map[string]string{}
	for rows.Next() {
		var f, v string
		if err := rows.Scan(&f, &v); err != nil {
			return nil, err
		}
		out[f] = v
	}
	return out, rows.Err()
}

// Keys implements Store.
func (s *SQLiteStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	glob := globEscape(s.prefix) + pattern
	rows, err := s.db.QueryContext(ctx, `
		SELECT key FROM kv_sets WHERE key GLOB ?
		UNION
		SELECT key FROM kv_hashes WHERE key GLOB ?
		ORDER BY key`, glob, glob)
	if err != nil {
		return nil, fmt.Errorf("keys %s: %w", glob, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, strings.TrimPrefix(k, s.prefix))
	}
	return out, rows.Err()
}
