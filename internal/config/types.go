// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Package config loads chronod configuration with precedence
// ENV > YAML file > defaults.
package config

import "time"

// AppConfig is the complete daemon configuration. The same struct is used
// for the YAML file, which is decoded strictly over the defaults.
type AppConfig struct {
	Version  string `yaml:"-"`
	DataDir  string `yaml:"dataDir"`
	LogLevel string `yaml:"logLevel"`

	Server    ServerConfig    `yaml:"server"`
	Auth      AuthConfig      `yaml:"auth"`
	Engine    EngineConfig    `yaml:"engine"`
	Sessions  SessionsConfig  `yaml:"sessions"`
	Recovery  RecoveryConfig  `yaml:"recovery"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig configures the HTTP listeners.
type ServerConfig struct {
	ListenAddr      string          `yaml:"listenAddr"`
	MetricsAddr     string          `yaml:"metricsAddr"` // empty disables the metrics listener
	ReadTimeout     time.Duration   `yaml:"readTimeout"`
	IdleTimeout     time.Duration   `yaml:"idleTimeout"`
	ShutdownTimeout time.Duration   `yaml:"shutdownTimeout"`
	MaxConnections  int             `yaml:"maxConnections"` // 0 = unlimited
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig configures per-IP API rate limiting.
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
}

// AuthConfig is the static token table. Reloadable.
type AuthConfig struct {
	AllowAnonymous bool          `yaml:"allowAnonymous"`
	Tokens         []TokenConfig `yaml:"tokens"`
}

// TokenConfig binds an API token to a user.
type TokenConfig struct {
	Token  string   `yaml:"token"`
	User   string   `yaml:"user"`
	Scopes []string `yaml:"scopes,omitempty"`
}

// EngineConfig tunes the elapsed-time engine.
type EngineConfig struct {
	TickInterval    time.Duration `yaml:"tickInterval"`
	PersistInterval time.Duration `yaml:"persistInterval"`
}

// SessionsConfig configures the session store and its background writer.
type SessionsConfig struct {
	Backend         string        `yaml:"backend"` // sqlite | memory
	QueueSize       int           `yaml:"queueSize"`
	WritesPerSecond float64       `yaml:"writesPerSecond"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
}

// RecoveryConfig configures the snapshot store.
type RecoveryConfig struct {
	Backend string        `yaml:"backend"` // memory | sqlite | redis | badger
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig holds Redis connection settings for the redis recovery backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"serviceName"`
	ExporterType string  `yaml:"exporter"` // grpc | http
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"samplingRate"`
}
