// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import "time"

// Default returns the configuration used when neither file nor
// environment set a value.
func Default() AppConfig {
	return AppConfig{
		DataDir:  "data",
		LogLevel: "info",
		Server: ServerConfig{
			ListenAddr:      ":8088",
			MetricsAddr:     ":9090",
			ReadTimeout:     10 * time.Second,
			IdleTimeout:     2 * time.Minute,
			ShutdownTimeout: 15 * time.Second,
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 600,
			},
		},
		Auth: AuthConfig{
			AllowAnonymous: true,
		},
		Engine: EngineConfig{
			TickInterval:    100 * time.Millisecond,
			PersistInterval: 3 * time.Second,
		},
		Sessions: SessionsConfig{
			Backend:         "sqlite",
			QueueSize:       256,
			WritesPerSecond: 50,
			WriteTimeout:    5 * time.Second,
		},
		Recovery: RecoveryConfig{
			Backend: "sqlite",
			TTL:     30 * 24 * time.Hour,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "chronod",
			ExporterType: "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}
