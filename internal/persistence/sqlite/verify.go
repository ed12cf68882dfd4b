// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
)

// VerifyMode selects the SQLite consistency pragma.
type VerifyMode string

const (
	VerifyQuick VerifyMode = "quick" // PRAGMA quick_check
	VerifyFull  VerifyMode = "full"  // PRAGMA integrity_check
)

// ErrNoDatabase is returned by Verify when path does not exist. Opening it
// read-only would otherwise report a confusing driver error.
var ErrNoDatabase = errors.New("database file does not exist")

// Verify runs a read-only consistency check on the database at path.
// A healthy database yields (nil, nil); otherwise the diagnostic rows are
// returned.
func Verify(ctx context.Context, path string, mode VerifyMode) ([]string, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNoDatabase, path)
		}
		return nil, err
	}

	db, err := sql.Open("sqlite", fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(2000)", path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: open for verify: %w", err)
	}
	defer db.Close()

	pragma := "PRAGMA quick_check"
	if mode == VerifyFull {
		pragma = "PRAGMA integrity_check"
	}
	rows, err := db.QueryContext(ctx, pragma)
	if err != nil {
		return nil, fmt.Errorf("sqlite: %s: %w", pragma, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var line string
		if err := rows.Scan(&line); err != nil {
			return nil, fmt.Errorf("sqlite: scan verify row: %w", err)
		}
		out = append(out, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch {
	case len(out) == 1 && strings.EqualFold(out[0], "ok"):
		return nil, nil
	case len(out) == 0:
		return []string{"verify returned no rows"}, nil
	default:
		return out, nil
	}
}
