// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recovery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ManuGH/chrono/internal/persistence/sqlite"
)

var sqliteMigrations = []string{
	`
	CREATE TABLE IF NOT EXISTS snapshots (
		key TEXT PRIMARY KEY,
		payload BLOB NOT NULL,
		updated_at_ms INTEGER NOT NULL
	) WITHOUT ROWID;
	`,
}

type sqliteBackend struct {
	db *sql.DB
}

func newSqliteBackend(path string) (*sqliteBackend, error) {
	db, err := sqlite.Open(path, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(context.Background(), db, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recovery store: migration failed: %w", err)
	}
	return &sqliteBackend{db: db}, nil
}

func (s *sqliteBackend) name() string { return "sqlite" }

func (s *sqliteBackend) get(ctx context.Context, key string) ([]byte, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM snapshots WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return payload, err
}

func (s *sqliteBackend) put(ctx context.Context, key string, val []byte) error {
	_, err := s.db.ExecContext(ctx, `
	INSERT INTO snapshots (key, payload, updated_at_ms) VALUES (?, ?, ?)
	ON CONFLICT(key) DO UPDATE SET payload = excluded.payload, updated_at_ms = excluded.updated_at_ms`,
		key, val, time.Now().UnixMilli())
	return err
}

func (s *sqliteBackend) del(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM snapshots WHERE key = ?`, key)
	return err
}

func (s *sqliteBackend) keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT key FROM snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *sqliteBackend) ping(ctx context.Context) error { return s.db.PingContext(ctx) }
func (s *sqliteBackend) close() error                   { return s.db.Close() }
