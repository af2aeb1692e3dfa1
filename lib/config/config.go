// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvConfig names the environment variable holding the config path.
const EnvConfig = "OSBPB_CONFIG"

// Color modes accepted by log.color.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Config is the host configuration for osbpb.
type Config struct {
	// Log configures the diagnostic stream.
	Log LogConfig `yaml:"log"`

	// Engine tunes the embedded Lua engine.
	Engine EngineConfig `yaml:"engine"`
}

// LogConfig configures the diagnostic stream on stderr.
type LogConfig struct {
	// Level is the minimum level written: debug, info, warn, or error.
	// Default: info
	Level string `yaml:"level"`

	// Color selects level tag coloring: auto, always, or never.
	// Default: auto
	Color string `yaml:"color"`
}

// EngineConfig tunes the Lua engine. None of these settings change
// policy semantics.
type EngineConfig struct {
	// GCPercent is applied with debug.SetGCPercent before the policy
	// runs. The process is short-lived and single-shot, so the default
	// trades memory for throughput. -1 disables collection; 0 leaves
	// the runtime default (GOGC) alone.
	// Default: 400
	GCPercent int `yaml:"gc_percent"`
}

// Default returns the default configuration. It is complete on its
// own: a config file is optional.
func Default() *Config {
	return &Config{
		Log: LogConfig{
			Level: "info",
			Color: ColorAuto,
		},
		Engine: EngineConfig{
			GCPercent: 400,
		},
	}
}

// Load loads configuration from the OSBPB_CONFIG environment variable.
//
// The host passes its argument vector to the policy untouched, so a
// --config flag is not available; when OSBPB_CONFIG is unset the
// defaults are returned.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvConfig)
	if configPath == "" {
		return Default(), nil
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merged over
// the defaults. Files ending in .json or .jsonc are read as JSONC
// (comments and trailing commas allowed); everything else as YAML.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	if err := cfg.loadFile(path); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}

	return cfg, nil
}

// loadFile merges a single configuration file into the current config.
// JSON is a subset of YAML, so after stripping JSONC extensions the
// same decoder and struct tags serve both formats.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	}

	return yaml.Unmarshal(data, c)
}

// LogLevel returns the parsed log level. Call Validate first.
func (c *Config) LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		return slog.LevelInfo
	}
	return level
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Errorf("invalid log.level %q", c.Log.Level))
	}

	switch c.Log.Color {
	case ColorAuto, ColorAlways, ColorNever:
	default:
		errs = append(errs, fmt.Errorf("invalid log.color %q (want auto, always, or never)", c.Log.Color))
	}

	if c.Engine.GCPercent < -1 {
		errs = append(errs, fmt.Errorf("engine.gc_percent must be -1 or greater"))
	}

	return errors.Join(errs...)
}
