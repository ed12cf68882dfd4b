// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

// Command chronod serves the stopwatch, countdown timer, session history
// and world clock API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ManuGH/chrono/internal/config"
	"github.com/ManuGH/chrono/internal/daemon"
	"github.com/ManuGH/chrono/internal/health"
	"github.com/ManuGH/chrono/internal/log"
	"github.com/ManuGH/chrono/internal/version"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "config":
			os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "healthcheck":
			os.Exit(runHealthcheckCLI(os.Args[2:], os.Stdout, os.Stderr))
		case "storage":
			os.Exit(runStorageCLI(os.Args[2:], os.Stdout, os.Stderr))
		}
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML); defaults to $CHRONO_CONFIG")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		return
	}

	os.Exit(run(resolveConfigPath(*configPath)))
}

// resolveConfigPath prefers the flag over CHRONO_CONFIG. Empty means
// environment and defaults only.
func resolveConfigPath(flagValue string) string {
	if p := strings.TrimSpace(flagValue); p != "" {
		return p
	}
	return strings.TrimSpace(os.Getenv(config.EnvPrefix + "CONFIG"))
}

func run(configPath string) int {
	// Safe defaults until the config is loaded.
	log.Configure(log.Config{Level: "info", Service: "chronod", Version: version.Version})
	logger := log.WithComponent("main")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loader := config.NewLoader(configPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Error().Err(err).
			Str(log.FieldEvent, "config.load_failed").
			Str("config_path", configPath).
			Msg("failed to load configuration")
		return 1
	}

	log.Configure(log.Config{Level: cfg.LogLevel, Service: "chronod", Version: cfg.Version})
	logger = log.WithComponent("main")

	source := "env+defaults"
	if configPath != "" {
		source = "file"
	}
	logger.Info().Str(log.FieldEvent, "config.loaded").Str("source", source).Str(log.FieldPath, configPath).
		Msg("configuration loaded")
	for _, key := range loader.UnknownEnvKeys() {
		logger.Warn().Str(log.FieldEvent, "config.unknown_env").Str("key", key).Msg("ignoring unknown environment variable")
	}

	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
		return 1
	}

	rt, err := daemon.Bootstrap(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "startup.bootstrap_failed").Msg("failed to assemble daemon")
		return 1
	}

	holder := config.NewConfigHolder(cfg, loader)
	app := daemon.NewApp(log.WithComponent("daemon"), rt, holder)

	logger.Info().Str(log.FieldEvent, "startup.complete").
		Str("version", version.String()).
		Str("listen", cfg.Server.ListenAddr).
		Msg("chronod starting")

	if err := app.Run(ctx); err != nil {
		logger.Error().Err(err).Str(log.FieldEvent, "daemon.exit_error").Msg("daemon stopped with error")
		return 1
	}
	logger.Info().Str(log.FieldEvent, "daemon.exit").Msg("daemon stopped")
	return 0
}
