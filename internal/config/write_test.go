// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFile_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	cfg := Default()
	cfg.DataDir = dir
	cfg.Auth.Tokens = []TokenConfig{{Token: "t0k", User: "alice", Scopes: []string{"timer"}}}
	cfg.Recovery.Backend = "badger"

	path := filepath.Join(dir, "etc", "chrono.yaml")
	require.NoError(t, WriteFile(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	got, err := NewLoader(path, "").Load()
	require.NoError(t, err)
	assert.Equal(t, cfg, got)
}

func TestRedacted(t *testing.T) {
	cfg := Default()
	cfg.Auth.Tokens = []TokenConfig{{Token: "secret", User: "alice"}}
	cfg.Recovery.Redis.Password = "hunter2"

	r := cfg.Redacted()
	assert.Equal(t, redactedValue, r.Auth.Tokens[0].Token)
	assert.Equal(t, redactedValue, r.Recovery.Redis.Password)
	// original is untouched
	assert.Equal(t, "secret", cfg.Auth.Tokens[0].Token)
	assert.Equal(t, "hunter2", cfg.Recovery.Redis.Password)

	out, err := Marshal(r)
	require.NoError(t, err)
	assert.NotContains(t, string(out), "secret")
	assert.NotContains(t, string(out), "hunter2")
}

func TestTokenSpecs(t *testing.T) {
	a := AuthConfig{Tokens: []TokenConfig{{Token: "x", User: "u", Scopes: []string{"history"}}}}
	specs := a.TokenSpecs()
	require.Len(t, specs, 1)
	assert.Equal(t, "x", specs[0].Token)
	assert.Equal(t, "u", specs[0].User)
	assert.Equal(t, []string{"history"}, specs[0].Scopes)
}
