// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import (
	"errors"
	"net/http"
	"sync/atomic"
)

var (
	// ErrUnauthorized is returned for missing or unknown tokens.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden is returned when a principal lacks a required scope.
	ErrForbidden = errors.New("forbidden")
)

// TokenSpec binds a token to an identity.
type TokenSpec struct {
	Token  string
	User   string
	Scopes []string
}

type table struct {
	tokens     []TokenSpec
	principals []*Principal
	byID       map[string]*Principal
	anonymous  bool
}

// Provider authenticates requests against a static token table that can be
// swapped at runtime.
type Provider struct {
	current atomic.Pointer[table]
}

// NewProvider builds a provider. With allowAnonymous, requests without a
// token resolve to a nil principal instead of failing.
func NewProvider(tokens []TokenSpec, allowAnonymous bool) *Provider {
	p := &Provider{}
	p.Update(tokens, allowAnonymous)
	return p
}

// Update replaces the token table. In-flight requests keep the table they
// started with.
func (p *Provider) Update(tokens []TokenSpec, allowAnonymous bool) {
	t := &table{
		tokens:    make([]TokenSpec, 0, len(tokens)),
		byID:      make(map[string]*Principal, len(tokens)),
		anonymous: allowAnonymous,
	}
	for _, spec := range tokens {
		if spec.Token == "" {
			continue
		}
		pr := NewPrincipal(spec.Token, spec.User, spec.Scopes)
		t.tokens = append(t.tokens, spec)
		t.principals = append(t.principals, pr)
		t.byID[pr.ID] = pr
	}
	p.current.Store(t)
}

// AllowsAnonymous reports whether token-less requests are accepted.
func (p *Provider) AllowsAnonymous() bool {
	return p.current.Load().anonymous
}

// Authenticate resolves the request's token. It returns (nil, nil) for an
// anonymous request when anonymous access is enabled.
func (p *Provider) Authenticate(r *http.Request) (*Principal, error) {
	t := p.current.Load()
	token := ExtractToken(r)
	if token == "" {
		if t.anonymous {
			return nil, nil
		}
		return nil, ErrUnauthorized
	}

	// Compare against every entry so timing does not reveal the match position.
	var match *Principal
	for i, spec := range t.tokens {
		if AuthorizeToken(token, spec.Token) && match == nil {
			match = t.principals[i]
		}
	}
	if match == nil {
		return nil, ErrUnauthorized
	}
	return match, nil
}

// Lookup returns the principal with the given ID.
func (p *Provider) Lookup(id string) (*Principal, bool) {
	pr, ok := p.current.Load().byID[id]
	return pr, ok
}
