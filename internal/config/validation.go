// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/ManuGH/chrono/internal/auth"
	"github.com/ManuGH/chrono/internal/validate"
)

var (
	sessionBackends  = []string{"sqlite", "memory"}
	recoveryBackends = []string{"memory", "sqlite", "redis", "badger"}
	exporterTypes    = []string{"grpc", "http"}
	knownScopes      = []string{auth.ScopeTimer, auth.ScopeHistory}

	userPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]*$`)
)

// Engine tick and persist bounds.
const (
	MinTickInterval    = 10 * time.Millisecond
	MaxTickInterval    = time.Second
	MinPersistInterval = time.Second
	MaxPersistInterval = time.Minute
)

// Validate validates the complete configuration and returns every problem
// found as a validate.ValidationError.
func Validate(cfg AppConfig) error {
	v := validate.New()

	v.LogLevel("logLevel", cfg.LogLevel)

	v.ListenAddr("server.listenAddr", cfg.Server.ListenAddr, false)
	v.ListenAddr("server.metricsAddr", cfg.Server.MetricsAddr, true)
	if cfg.Server.MetricsAddr != "" && cfg.Server.MetricsAddr == cfg.Server.ListenAddr {
		v.AddError("server.metricsAddr", "must differ from server.listenAddr", cfg.Server.MetricsAddr)
	}
	v.DurationRange("server.shutdownTimeout", cfg.Server.ShutdownTimeout, time.Second, 5*time.Minute)
	v.NonNegative("server.maxConnections", cfg.Server.MaxConnections)
	if cfg.Server.RateLimit.Enabled {
		v.Range("server.rateLimit.requestsPerMinute", cfg.Server.RateLimit.RequestsPerMinute, 1, 100000)
	}

	validateAuth(v, cfg.Auth)

	v.DurationRange("engine.tickInterval", cfg.Engine.TickInterval, MinTickInterval, MaxTickInterval)
	v.DurationRange("engine.persistInterval", cfg.Engine.PersistInterval, MinPersistInterval, MaxPersistInterval)
	if cfg.Engine.PersistInterval < cfg.Engine.TickInterval {
		v.AddError("engine.persistInterval", "must not be shorter than engine.tickInterval", cfg.Engine.PersistInterval)
	}

	v.OneOf("sessions.backend", cfg.Sessions.Backend, sessionBackends)
	v.Range("sessions.queueSize", cfg.Sessions.QueueSize, 1, 65536)
	v.FloatRange("sessions.writesPerSecond", cfg.Sessions.WritesPerSecond, 0.1, 10000)
	v.DurationRange("sessions.writeTimeout", cfg.Sessions.WriteTimeout, 100*time.Millisecond, time.Minute)

	v.OneOf("recovery.backend", cfg.Recovery.Backend, recoveryBackends)
	if cfg.Recovery.TTL < 0 {
		v.AddError("recovery.ttl", "cannot be negative", cfg.Recovery.TTL)
	}
	if cfg.Recovery.Backend == "redis" {
		v.NotEmpty("recovery.redis.addr", cfg.Recovery.Redis.Addr)
		v.NonNegative("recovery.redis.db", cfg.Recovery.Redis.DB)
	}

	if cfg.Sessions.Backend == "sqlite" || cfg.Recovery.Backend == "sqlite" || cfg.Recovery.Backend == "badger" {
		v.Directory("dataDir", cfg.DataDir, false)
	}

	if cfg.Telemetry.Enabled {
		v.NotEmpty("telemetry.serviceName", cfg.Telemetry.ServiceName)
		v.OneOf("telemetry.exporter", cfg.Telemetry.ExporterType, exporterTypes)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.samplingRate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}

func validateAuth(v *validate.Validator, a AuthConfig) {
	if len(a.Tokens) == 0 && !a.AllowAnonymous {
		v.AddError("auth", "no API tokens configured and anonymous access disabled", nil)
	}
	seen := make(map[string]int, len(a.Tokens))
	for i, t := range a.Tokens {
		field := fmt.Sprintf("auth.tokens[%d]", i)
		if t.Token == "" {
			v.AddError(field+".token", "token cannot be empty", nil)
			continue
		}
		if prev, dup := seen[t.Token]; dup {
			v.AddError(field+".token", fmt.Sprintf("duplicate of auth.tokens[%d]", prev), nil)
		}
		seen[t.Token] = i
		if t.User != "" {
			v.Matches(field+".user", t.User, userPattern, "user must start with a letter or digit and contain only letters, digits, '.', '_' or '-'")
		}
		for _, s := range t.Scopes {
			if !slices.Contains(knownScopes, s) {
				v.AddError(field+".scopes", fmt.Sprintf("unknown scope %q (allowed: %v)", s, knownScopes), s)
			}
		}
	}
}
