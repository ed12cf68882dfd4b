// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ErrUnknownConfigField marks strict YAML failures caused by keys AppConfig
// does not declare.
var ErrUnknownConfigField = errors.New("unknown config field")

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. configPath may be empty
// for environment-only configuration.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file the loader reads, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, cur string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, cur)
}

func (l *Loader) envBool(key string, cur bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, cur)
}

func (l *Loader) envInt(key string, cur int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, cur)
}

func (l *Loader) envFloat(key string, cur float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, cur)
}

func (l *Loader) envDuration(key string, cur time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, cur)
}

// Load loads configuration with precedence: ENV > File > Defaults,
// then validates the result.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Default()

	if l.configPath != "" {
		if err := l.decodeFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// UnknownEnvKeys lists CHRONO_* variables in the environment that the last
// Load did not consume. They usually indicate a typo.
func (l *Loader) UnknownEnvKeys() []string {
	var out []string
	for _, kv := range os.Environ() {
		k, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(k, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[k]; !ok && !ambientEnvKeys[k] {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out
}

// Keys read by other packages (internal/log) rather than the loader.
var ambientEnvKeys = map[string]bool{
	"CHRONO_LOG_SERVICE": true,
	"CHRONO_CONFIG":      true,
}

// decodeFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields cause an error wrapping ErrUnknownConfigField.
func (l *Loader) decodeFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)
	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}
	return decodeStrict(data, cfg)
}

func decodeStrict(data []byte, cfg *AppConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "not found in type") {
			return fmt.Errorf("%w: %v", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("config file contains multiple documents or trailing content")
	}
	return nil
}

// LoadFile decodes a YAML file over the defaults without applying the
// environment. Used by `chronod config validate`.
func LoadFile(path string) (AppConfig, error) {
	cfg := Default()
	l := NewLoader(path, "")
	if err := l.decodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = l.envString("CHRONO_DATA_DIR", cfg.DataDir)
	cfg.LogLevel = l.envString("CHRONO_LOG_LEVEL", cfg.LogLevel)

	cfg.Server.ListenAddr = l.envString("CHRONO_LISTEN_ADDR", cfg.Server.ListenAddr)
	cfg.Server.MetricsAddr = l.envString("CHRONO_METRICS_ADDR", cfg.Server.MetricsAddr)
	cfg.Server.ShutdownTimeout = l.envDuration("CHRONO_SHUTDOWN_TIMEOUT", cfg.Server.ShutdownTimeout)
	cfg.Server.MaxConnections = l.envInt("CHRONO_MAX_CONNECTIONS", cfg.Server.MaxConnections)
	cfg.Server.RateLimit.Enabled = l.envBool("CHRONO_RATE_LIMIT_ENABLED", cfg.Server.RateLimit.Enabled)
	cfg.Server.RateLimit.RequestsPerMinute = l.envInt("CHRONO_RATE_LIMIT_RPM", cfg.Server.RateLimit.RequestsPerMinute)

	cfg.Auth.AllowAnonymous = l.envBool("CHRONO_ALLOW_ANONYMOUS", cfg.Auth.AllowAnonymous)
	// A single token from the environment is added to the file's table.
	if token := l.envString("CHRONO_API_TOKEN", ""); token != "" {
		user := l.envString("CHRONO_API_USER", "")
		cfg.Auth.Tokens = append(cfg.Auth.Tokens, TokenConfig{Token: token, User: user})
	} else {
		l.ConsumedEnvKeys["CHRONO_API_USER"] = struct{}{}
	}

	cfg.Engine.TickInterval = l.envDuration("CHRONO_TICK_INTERVAL", cfg.Engine.TickInterval)
	cfg.Engine.PersistInterval = l.envDuration("CHRONO_PERSIST_INTERVAL", cfg.Engine.PersistInterval)

	cfg.Sessions.Backend = l.envString("CHRONO_SESSIONS_BACKEND", cfg.Sessions.Backend)
	cfg.Sessions.QueueSize = l.envInt("CHRONO_SESSIONS_QUEUE_SIZE", cfg.Sessions.QueueSize)
	cfg.Sessions.WritesPerSecond = l.envFloat("CHRONO_SESSIONS_WRITES_PER_SECOND", cfg.Sessions.WritesPerSecond)

	cfg.Recovery.Backend = l.envString("CHRONO_RECOVERY_BACKEND", cfg.Recovery.Backend)
	cfg.Recovery.TTL = l.envDuration("CHRONO_RECOVERY_TTL", cfg.Recovery.TTL)
	cfg.Recovery.Redis.Addr = l.envString("CHRONO_REDIS_ADDR", cfg.Recovery.Redis.Addr)
	cfg.Recovery.Redis.Password = l.envString("CHRONO_REDIS_PASSWORD", cfg.Recovery.Redis.Password)
	cfg.Recovery.Redis.DB = l.envInt("CHRONO_REDIS_DB", cfg.Recovery.Redis.DB)

	cfg.Telemetry.Enabled = l.envBool("CHRONO_TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.ExporterType = l.envString("CHRONO_OTLP_EXPORTER", cfg.Telemetry.ExporterType)
	cfg.Telemetry.Endpoint = l.envString("CHRONO_OTLP_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.SamplingRate = l.envFloat("CHRONO_TRACE_SAMPLING", cfg.Telemetry.SamplingRate)
}
