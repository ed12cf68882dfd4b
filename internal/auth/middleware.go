// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ManuGH/chrono/internal/log"
)

// Middleware authenticates every request and stores the principal in the
// request context. Unknown tokens are rejected even when anonymous access is
// enabled.
func Middleware(p *Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, err := p.Authenticate(r)
			if err != nil {
				logger := log.WithComponentFromContext(r.Context(), "auth")
				logger.Warn().
					Str(log.FieldEvent, "auth.rejected").
					Str("remote_addr", r.RemoteAddr).
					Str(log.FieldPath, r.URL.Path).
					Msg("request rejected")
				writeError(w, err)
				return
			}
			ctx := WithPrincipal(r.Context(), principal)
			if principal != nil {
				ctx = log.ContextWithPrincipalID(ctx, principal.ID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireScope rejects requests whose principal lacks scope. Anonymous
// requests pass only when allowAnonymous is set.
func RequireScope(scope string, allowAnonymous bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := PrincipalFromContext(r.Context())
			switch {
			case p == nil && !allowAnonymous:
				writeError(w, ErrUnauthorized)
				return
			case p != nil && !p.HasScope(scope):
				writeError(w, ErrForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusUnauthorized
	code := "unauthorized"
	if errors.Is(err, ErrForbidden) {
		status = http.StatusForbidden
		code = "forbidden"
	}
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="chrono"`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": code, "detail": err.Error()})
}
