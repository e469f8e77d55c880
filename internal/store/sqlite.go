package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/leonardcser/addrkv/internal/platform/sqlitemigrate"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLite persists records in a single SQLite table.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite store and applies embedded migrations.
func OpenSQLite(ctx context.Context, path string) (*SQLite, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	if dir := filepath.Dir(cleanPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create storage dir: %w", err)
		}
	}
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.Apply(ctx, db, migrationsFS, "migrations"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Close closes the SQLite handle.
func (s *SQLite) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Get returns the record stored for key.
func (s *SQLite) Get(ctx context.Context, key string) (json.RawMessage, error) {
	if s == nil || s.db == nil {
		return nil, errNotConfigured
	}
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data FROM records WHERE address = ?`, key).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get record: %w", err)
	}
	return json.RawMessage(data), nil
}

// Set inserts or replaces the record for key.
func (s *SQLite) Set(ctx context.Context, key string, value json.RawMessage) error {
	if s == nil || s.db == nil {
		return errNotConfigured
	}
	if !json.Valid(value) {
		return errors.New("record is not valid json")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO records (address, data, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(address) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
		key, string(value), time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

// Keys walks every stored address in key order.
func (s *SQLite) Keys(ctx context.Context, fn func(key string) error) error {
	if s == nil || s.db == nil {
		return errNotConfigured
	}
	rows, err := s.db.QueryContext(ctx, `SELECT address FROM records ORDER BY address`)
	if err != nil {
		return fmt.Errorf("list records: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return fmt.Errorf("scan record key: %w", err)
		}
		if err := fn(key); err != nil {
			return err
		}
	}
	return rows.Err()
}
