// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package recovery

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel/codes"

	"github.com/ManuGH/chrono/internal/metrics"
	"github.com/ManuGH/chrono/internal/telemetry"
)

// Store keeps at most one snapshot per (principal, kind).
// Get returns (nil, nil) when nothing is stored and an error wrapping
// ErrCorrupt when the stored payload is unusable.
type Store interface {
	Get(ctx context.Context, principal string, kind Kind) (*Snapshot, error)
	Put(ctx context.Context, principal string, s *Snapshot) error
	Delete(ctx context.Context, principal string, kind Kind) error
	Principals(ctx context.Context) ([]string, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and tunes a backend.
type Config struct {
	Backend string // memory | sqlite | redis | badger
	Dir     string // sqlite and badger data directory
	TTL     time.Duration
	Redis   RedisConfig
}

// DefaultTTL bounds how long an abandoned snapshot is kept by backends that
// support expiry.
const DefaultTTL = 30 * 24 * time.Hour

// backend stores opaque payloads. Encoding, validation and metrics live in
// codecStore so every backend reports corruption the same way.
type backend interface {
	name() string
	get(ctx context.Context, key string) ([]byte, error) // nil, nil when absent
	put(ctx context.Context, key string, val []byte) error
	del(ctx context.Context, key string) error
	keys(ctx context.Context) ([]string, error)
	ping(ctx context.Context) error
	close() error
}

// Open builds the configured store.
func Open(cfg Config) (Store, error) {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	var (
		b   backend
		err error
	)
	switch strings.ToLower(cfg.Backend) {
	case "", "memory":
		b = newMemoryBackend()
	case "sqlite":
		if cfg.Dir == "" {
			return nil, errors.New("recovery: sqlite backend requires a data directory")
		}
		b, err = newSqliteBackend(filepath.Join(cfg.Dir, "recovery.sqlite"))
	case "redis":
		b, err = newRedisBackend(cfg.Redis, cfg.TTL)
	case "badger":
		if cfg.Dir == "" {
			return nil, errors.New("recovery: badger backend requires a data directory")
		}
		b, err = newBadgerBackend(filepath.Join(cfg.Dir, "recovery.badger"), cfg.TTL)
	default:
		return nil, fmt.Errorf("unknown recovery backend: %s (supported: memory, sqlite, redis, badger)", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return &codecStore{b: b}, nil
}

// NewMemoryStore returns an in-process store, used by tests and the
// anonymous engine when no durable backend is configured.
func NewMemoryStore() Store {
	return &codecStore{b: newMemoryBackend()}
}

type codecStore struct {
	b backend
}

func key(principal string, kind Kind) string {
	return principal + "/" + string(kind)
}

// splitKey is the inverse of key. Principals may contain '/', kinds may not.
func splitKey(k string) (string, Kind, bool) {
	i := strings.LastIndexByte(k, '/')
	if i < 0 {
		return "", "", false
	}
	kind := Kind(k[i+1:])
	if !kind.valid() {
		return "", "", false
	}
	return k[:i], kind, true
}

func (s *codecStore) Get(ctx context.Context, principal string, kind Kind) (*Snapshot, error) {
	ctx, span := telemetry.Tracer("chrono/recovery").Start(ctx, "recovery.get")
	defer span.End()
	span.SetAttributes(telemetry.RecoveryAttributes(s.b.name(), "get")...)

	raw, err := s.b.get(ctx, key(principal, kind))
	metrics.RecordRecoveryOp(s.b.name(), "get", err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("recovery get %s/%s: %w", principal, kind, err)
	}
	if raw == nil {
		return nil, nil
	}
	snap, err := Unmarshal(raw)
	if err != nil {
		return nil, err
	}
	if snap.Kind != kind {
		return nil, fmt.Errorf("%w: stored kind %q under %q", ErrCorrupt, snap.Kind, kind)
	}
	return snap, nil
}

func (s *codecStore) Put(ctx context.Context, principal string, snap *Snapshot) error {
	raw, err := Marshal(snap)
	if err != nil {
		return err
	}
	ctx, span := telemetry.Tracer("chrono/recovery").Start(ctx, "recovery.put")
	defer span.End()
	span.SetAttributes(telemetry.RecoveryAttributes(s.b.name(), "put")...)

	err = s.b.put(ctx, key(principal, snap.Kind), raw)
	metrics.RecordRecoveryOp(s.b.name(), "put", err)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("recovery put %s/%s: %w", principal, snap.Kind, err)
	}
	return nil
}

func (s *codecStore) Delete(ctx context.Context, principal string, kind Kind) error {
	err := s.b.del(ctx, key(principal, kind))
	metrics.RecordRecoveryOp(s.b.name(), "delete", err)
	if err != nil {
		return fmt.Errorf("recovery delete %s/%s: %w", principal, kind, err)
	}
	return nil
}

func (s *codecStore) Principals(ctx context.Context) ([]string, error) {
	keys, err := s.b.keys(ctx)
	metrics.RecordRecoveryOp(s.b.name(), "scan", err)
	if err != nil {
		return nil, fmt.Errorf("recovery scan: %w", err)
	}
	var out []string
	for _, k := range keys {
		if p, _, ok := splitKey(k); ok && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *codecStore) Ping(ctx context.Context) error { return s.b.ping(ctx) }

func (s *codecStore) Close() error { return s.b.close() }
