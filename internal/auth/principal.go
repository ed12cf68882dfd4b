// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package auth resolves API tokens to principals.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"slices"
)

// Scopes understood by the API.
const (
	ScopeTimer   = "timer"   // drive the stopwatch and countdown
	ScopeHistory = "history" // read sessions and statistics
)

// Principal represents the authenticated identity of a caller.
type Principal struct {
	// ID is the stable identifier used for session history and recovery keys.
	// It is either the configured user name or a hash of the token.
	ID string

	// User is the human-readable name if configured.
	User string

	// Scopes granted to this principal. Empty means every scope.
	Scopes []string
}

// NewPrincipal creates a Principal from a token and optional user/scopes.
func NewPrincipal(token, user string, scopes []string) *Principal {
	id := user
	if id == "" {
		// "t-" keeps derived IDs apart from configured user names
		hash := sha256.Sum256([]byte(token))
		id = "t-" + hex.EncodeToString(hash[:])[:16]
	}
	return &Principal{
		ID:     id,
		User:   user,
		Scopes: slices.Clone(scopes),
	}
}

// HasScope reports whether p may use scope.
func (p *Principal) HasScope(scope string) bool {
	if p == nil {
		return false
	}
	return len(p.Scopes) == 0 || slices.Contains(p.Scopes, scope)
}

type principalKey struct{}

// WithPrincipal stores p in ctx.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFromContext returns the principal stored by the middleware, or
// nil for anonymous requests.
func PrincipalFromContext(ctx context.Context) *Principal {
	if ctx == nil {
		return nil
	}
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
