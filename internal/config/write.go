// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/renameio/v2"
	"gopkg.in/yaml.v3"

	"github.com/ManuGH/chrono/internal/auth"
)

const redactedValue = "***redacted***"

// Redacted returns a copy with tokens and passwords masked, suitable for
// logs and `chronod config dump`.
func (c AppConfig) Redacted() AppConfig {
	out := c
	out.Auth.Tokens = slices.Clone(c.Auth.Tokens)
	for i := range out.Auth.Tokens {
		if out.Auth.Tokens[i].Token != "" {
			out.Auth.Tokens[i].Token = redactedValue
		}
	}
	if out.Recovery.Redis.Password != "" {
		out.Recovery.Redis.Password = redactedValue
	}
	return out
}

// TokenSpecs converts the token table for auth.NewProvider.
func (a AuthConfig) TokenSpecs() []auth.TokenSpec {
	specs := make([]auth.TokenSpec, 0, len(a.Tokens))
	for _, t := range a.Tokens {
		specs = append(specs, auth.TokenSpec{Token: t.Token, User: t.User, Scopes: slices.Clone(t.Scopes)})
	}
	return specs
}

// Marshal renders cfg as YAML that Load accepts back.
func Marshal(cfg AppConfig) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode config: %w", err)
	}
	return buf.Bytes(), nil
}

// WriteFile atomically writes cfg to path (fsync, then rename).
func WriteFile(path string, cfg AppConfig) error {
	data, err := Marshal(cfg)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("mkdir config dir: %w", err)
	}

	pending, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending config file: %w", err)
	}
	defer func() { _ = pending.Cleanup() }()

	if _, err := pending.Write(data); err != nil {
		return fmt.Errorf("write config data: %w", err)
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace config file: %w", err)
	}
	return nil
}
