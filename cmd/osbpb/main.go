// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	_ "embed"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/bureau-foundation/osbpb/lib/config"
	"github.com/bureau-foundation/osbpb/lib/logging"
	"github.com/bureau-foundation/osbpb/lib/payload"
	"github.com/bureau-foundation/osbpb/lib/process"
	"github.com/bureau-foundation/osbpb/lib/scripthost"
	"github.com/bureau-foundation/osbpb/lib/version"
	"github.com/bureau-foundation/osbpb/sandbox"
)

// policyName is the chunk name used in tracebacks and diagnostics.
const policyName = "osbpb.lua"

//go:embed policy/osbpb.lua
var policySource []byte

func main() {
	cfg, err := loadConfig()
	if err != nil {
		process.Fatal(err)
	}
	os.Exit(run(cfg, os.Args, os.Stderr, sandbox.Kernel{}))
}

// loadConfig reads OSBPB_CONFIG (if set), applies OSBPB_DEBUG, and
// validates the result.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if os.Getenv("OSBPB_DEBUG") != "" {
		cfg.Log.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// run executes the embedded policy with args passed through untouched
// and returns the process exit status.
func run(cfg *config.Config, args []string, stderr io.Writer, syscalls sandbox.Syscalls) int {
	color, err := logging.ParseColorMode(cfg.Log.Color)
	if err != nil {
		process.ReportFatal(stderr, err)
		return process.ExitFailure
	}
	logger := logging.New(stderr, logging.Options{
		Level: cfg.LogLevel(),
		Color: color,
	})
	logger.Debug("starting osbpb",
		"version", version.Info(),
		"platform", version.Platform(),
	)

	return scripthost.Run(scripthost.RunConfig{
		Options: scripthost.Options{
			GCPercent: cfg.Engine.GCPercent,
			OnClose: func() {
				logger.Debug("lua vm released")
			},
		},
		Payload: payload.Payload{Name: policyName, Data: policySource},
		Args:    args,
		Capabilities: []scripthost.Capability{
			sandbox.NewModule(sandbox.ModuleConfig{
				Syscalls: syscalls,
				Logger:   logger.With(slog.String("module", sandbox.ModuleName)),
			}),
		},
		Logger: logger,
	})
}
