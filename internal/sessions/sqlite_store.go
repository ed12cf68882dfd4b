// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/chrono/internal/persistence/sqlite"
)

var migrations = []string{
	`
	CREATE TABLE IF NOT EXISTS sessions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		type TEXT NOT NULL,
		duration_s INTEGER NOT NULL,
		laps_json TEXT,
		original_duration_s INTEGER,
		elapsed_s INTEGER,
		completed INTEGER,
		created_at_ms INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_created ON sessions(user_id, created_at_ms);
	`,
}

// SqliteStore implements Store using SQLite.
type SqliteStore struct {
	DB *sql.DB
}

// NewSqliteStore opens (and migrates) the session database at dbPath.
func NewSqliteStore(dbPath string) (*SqliteStore, error) {
	db, err := sqlite.Open(dbPath, sqlite.DefaultConfig())
	if err != nil {
		return nil, err
	}
	if err := sqlite.Migrate(context.Background(), db, migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("session store: migration failed: %w", err)
	}
	return &SqliteStore{DB: db}, nil
}

func (s *SqliteStore) Append(ctx context.Context, userID string, sess Session) error {
	if err := validate(userID, sess); err != nil {
		return err
	}

	var laps sql.NullString
	if len(sess.Laps) > 0 {
		raw, err := json.Marshal(sess.Laps)
		if err != nil {
			return fmt.Errorf("encode laps: %w", err)
		}
		laps = sql.NullString{String: string(raw), Valid: true}
	}

	_, err := s.DB.ExecContext(ctx, `
	INSERT INTO sessions (id, user_id, type, duration_s, laps_json, original_duration_s, elapsed_s, completed, created_at_ms)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, userID, string(sess.Type), sess.Duration, laps,
		nullInt(sess.OriginalDuration), nullInt(sess.ElapsedTime), nullBool(sess.Completed),
		sess.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *SqliteStore) List(ctx context.Context, userID string, q Query) ([]Session, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{userID}
	)
	if q.Type != "" {
		where = append(where, "type = ?")
		args = append(args, string(q.Type))
	}
	if !q.Since.IsZero() {
		where = append(where, "created_at_ms >= ?")
		args = append(args, q.Since.UnixMilli())
	}
	args = append(args, q.limit())

	query := `SELECT id, type, duration_s, laps_json, original_duration_s, elapsed_s, completed, created_at_ms
	FROM sessions WHERE ` + strings.Join(where, " AND ") + `
	ORDER BY created_at_ms DESC, seq DESC LIMIT ?`

	return s.query(ctx, query, args...)
}

func (s *SqliteStore) Stats(ctx context.Context, userID string, since time.Time) (Stats, error) {
	query := `SELECT id, type, duration_s, laps_json, original_duration_s, elapsed_s, completed, created_at_ms
	FROM sessions WHERE user_id = ? AND created_at_ms >= ?`
	var sinceMs int64
	if !since.IsZero() {
		sinceMs = since.UnixMilli()
	}
	list, err := s.query(ctx, query, userID, sinceMs)
	if err != nil {
		return Stats{}, err
	}
	return computeStats(list), nil
}

func (s *SqliteStore) query(ctx context.Context, query string, args ...any) ([]Session, error) {
	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		var (
			sess      Session
			typ       string
			laps      sql.NullString
			original  sql.NullInt64
			elapsed   sql.NullInt64
			completed sql.NullBool
			createdMs int64
		)
		if err := rows.Scan(&sess.ID, &typ, &sess.Duration, &laps, &original, &elapsed, &completed, &createdMs); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sess.Type = Type(typ)
		sess.CreatedAt = time.UnixMilli(createdMs).UTC()
		if laps.Valid && laps.String != "" {
			if err := json.Unmarshal([]byte(laps.String), &sess.Laps); err != nil {
				return nil, fmt.Errorf("decode laps for %s: %w", sess.ID, err)
			}
		}
		if original.Valid {
			v := original.Int64
			sess.OriginalDuration = &v
		}
		if elapsed.Valid {
			v := elapsed.Int64
			sess.ElapsedTime = &v
		}
		if completed.Valid {
			v := completed.Bool
			sess.Completed = &v
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *SqliteStore) Ping(ctx context.Context) error {
	return s.DB.PingContext(ctx)
}

func (s *SqliteStore) Close() error {
	return s.DB.Close()
}

func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

func nullBool(v *bool) sql.NullBool {
	if v == nil {
		return sql.NullBool{}
	}
	return sql.NullBool{Bool: *v, Valid: true}
}
