// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ManuGH/chrono/internal/config"
	"github.com/ManuGH/chrono/internal/persistence/sqlite"
)

// knownDatabases are the SQLite files chronod creates under its data dir.
var knownDatabases = []string{"sessions.sqlite", "recovery.sqlite"}

func runStorageCLI(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printStorageUsage(stdout)
		return 0
	}

	switch args[0] {
	case "verify":
		return runStorageVerify(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown subcommand: %s\n\n", args[0])
		printStorageUsage(stderr)
		return 2
	}
}

func printStorageUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  chronod storage verify [--path PATH | --all] [--mode quick|full]")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  --path string  Path to a specific SQLite database file")
	fmt.Fprintln(w, "  --all          Verify "+strings.Join(knownDatabases, " and ")+" in $CHRONO_DATA_DIR")
	fmt.Fprintln(w, "  --mode string  Verification mode: quick (default) or full")
}

func runStorageVerify(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("chronod storage verify", flag.ContinueOnError)
	fs.SetOutput(stderr)
	path := fs.String("path", "", "path to the SQLite database file")
	mode := fs.String("mode", string(sqlite.VerifyQuick), "verification mode: quick or full")
	all := fs.Bool("all", false, "verify all known databases in $CHRONO_DATA_DIR")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	m := sqlite.VerifyMode(strings.ToLower(strings.TrimSpace(*mode)))
	if m != sqlite.VerifyQuick && m != sqlite.VerifyFull {
		fmt.Fprintf(stderr, "Error: invalid mode %q (use quick or full)\n", *mode)
		return 2
	}

	switch {
	case *all:
		dataDir := config.ParseString(config.EnvPrefix+"DATA_DIR", "")
		if dataDir == "" {
			fmt.Fprintln(stderr, "Error: --all requires CHRONO_DATA_DIR")
			return 2
		}
		return verifyAll(dataDir, m, stdout, stderr)
	case *path != "":
		return verifyOne(*path, m, stdout, stderr)
	default:
		fmt.Fprintln(stderr, "Error: --path or --all is required")
		return 2
	}
}

func verifyAll(dataDir string, mode sqlite.VerifyMode, stdout, stderr io.Writer) int {
	code, checked := 0, 0
	for _, name := range knownDatabases {
		p := filepath.Join(dataDir, name)
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			continue
		}
		checked++
		if c := verifyOne(p, mode, stdout, stderr); c != 0 {
			code = c
		}
	}
	if checked == 0 {
		fmt.Fprintf(stderr, "Error: no databases found in %s (expected %s)\n", dataDir, strings.Join(knownDatabases, ", "))
		return 2
	}
	return code
}

func verifyOne(path string, mode sqlite.VerifyMode, stdout, stderr io.Writer) int {
	issues, err := sqlite.Verify(context.Background(), path, mode)
	if err != nil {
		fmt.Fprintf(stderr, "%s: verification failed: %v\n", path, err)
		return 1
	}
	if issues != nil {
		fmt.Fprintf(stderr, "%s: corruption detected\n", path)
		for _, issue := range issues {
			fmt.Fprintf(stderr, "  - %s\n", issue)
		}
		return 1
	}
	fmt.Fprintf(stdout, "%s: ok (%s)\n", path, mode)
	return 0
}
