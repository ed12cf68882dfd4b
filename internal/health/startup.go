// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"github.com/ManuGH/chrono/internal/config"
	"github.com/ManuGH/chrono/internal/log"
)

// PerformStartupChecks validates the environment before the stores are
// opened. Configuration itself has already passed config.Validate.
func PerformStartupChecks(_ context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("startup-check")

	if usesDisk(cfg) {
		if err := checkDataDir(logger, cfg.DataDir); err != nil {
			return fmt.Errorf("data directory check failed: %w", err)
		}
	}

	if cfg.Recovery.Backend == "memory" {
		logger.Warn().Str(log.FieldBackend, cfg.Recovery.Backend).
			Msg("recovery snapshots are in memory; running timers are lost on restart")
	}
	if cfg.Sessions.Backend == "memory" {
		logger.Warn().Str(log.FieldBackend, cfg.Sessions.Backend).
			Msg("session history is in memory; it is lost on restart")
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if usesDisk(cfg) && tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().Str(log.FieldPath, cfg.DataDir).
			Msg("data directory is under temp; history and snapshots may be lost on reboot")
	}

	logger.Info().Str(log.FieldEvent, "startup.checks_passed").Msg("startup checks passed")
	return nil
}

func usesDisk(cfg config.AppConfig) bool {
	return cfg.Sessions.Backend == "sqlite" || cfg.Recovery.Backend == "sqlite" || cfg.Recovery.Backend == "badger"
}

func checkDataDir(logger zerolog.Logger, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Debug().Str(log.FieldPath, path).Msg("data directory is writable")
	return nil
}
