package spacetraveling

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SnapshotStore persists rendered pages so a restart does not start cold.
// Implementations must be safe for concurrent use.
type SnapshotStore interface {
	Load(ctx context.Context, key string) (Page, bool, error)
	Save(ctx context.Context, key string, page Page) error
	Delete(ctx context.Context, key string) error
	Keys(ctx context.Context) ([]string, error)
	Close() error
}

// NewSnapshotStore opens the backend selected in cfg. The memory backend
// has no persistent store and returns nil.
func NewSnapshotStore(cfg CacheConfig) (SnapshotStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return nil, nil
	case "sqlite":
		return NewSQLiteStore(cfg.SQLitePath)
	case "redis":
		return NewRedisStore(RedisOptions{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Retention: cfg.Retention,
		})
	}
	return nil, &ConfigurationError{Field: "cache.backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
}

// SQLiteStore keeps page snapshots in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the SQLite database at path, ensures the
// data directory exists, and creates the snapshot table.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets readers proceed while a regeneration writes; busy_timeout
	// makes concurrent writers wait instead of failing with SQLITE_BUSY.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
		PRAGMA cache_size=-8000;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS snapshots (
    key TEXT PRIMARY KEY,
    body BLOB NOT NULL,
    content_type TEXT NOT NULL,
    generated_at TEXT NOT NULL
);`)
	return err
}

// Load returns the snapshot stored under key.
func (s *SQLiteStore) Load(ctx context.Context, key string) (Page, bool, error) {
	var p Page
	var generated string
	err := s.db.QueryRowContext(ctx,
		`SELECT body, content_type, generated_at FROM snapshots WHERE key = ?`, key,
	).Scan(&p.Body, &p.ContentType, &generated)
	if errors.Is(err, sql.ErrNoRows) {
		return Page{}, false, nil
	}
	if err != nil {
		return Page{}, false, err
	}
	if p.GeneratedAt, err = time.Parse(time.RFC3339Nano, generated); err != nil {
		return Page{}, false, fmt.Errorf("snapshot %s: %w", key, err)
	}
	return p, true, nil
}

// Save inserts or replaces the snapshot under key.
func (s *SQLiteStore) Save(ctx context.Context, key string, p Page) error {
	_, err := s.db.ExecContext(ctx, `
INSERT INTO snapshots (key, body, content_type, generated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
    body = excluded.body,
    content_type = excluded.content_type,
    generated_at = excluded.generated_at;`,
		key, p.Body, p.ContentType, p.GeneratedAt.UTC().Format(time.RFC3339Nano))
	return err
}

// Delete removes the snapshot under key. Missing keys are not an error.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	return err
}

// Keys lists every stored key.
func (s *SQLiteStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM snapshots ORDER BY key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}
