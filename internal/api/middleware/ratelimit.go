// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package middleware

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/httprate"
)

// APIRateLimit allows rpm requests per minute per client IP, counted on a
// sliding window.
func APIRateLimit(rpm int) func(http.Handler) http.Handler {
	return rateLimit(rpm, time.Minute, httprate.KeyByIP)
}

func rateLimit(limit int, window time.Duration, key httprate.KeyFunc) func(http.Handler) http.Handler {
	retryAfter := strconv.Itoa(int(math.Ceil(window.Seconds())))
	detail := fmt.Sprintf("more than %d requests per %s", limit, window)

	return httprate.Limit(limit, window,
		httprate.WithKeyFuncs(key),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Retry-After", retryAfter)
			writeError(w, r, http.StatusTooManyRequests, "rate_limited", detail)
		}),
	)
}
