// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scripthost

import (
	"log/slog"

	"github.com/bureau-foundation/osbpb/lib/payload"
	"github.com/bureau-foundation/osbpb/lib/process"
)

// RunConfig describes one policy run.
type RunConfig struct {
	// Options configures the engine.
	Options Options

	// Payload is the policy program.
	Payload payload.Payload

	// Args is the process argument vector, program name first.
	Args []string

	// Capabilities are registered in order before the payload loads.
	Capabilities []Capability

	// Logger receives the diagnostic stream. Defaults to
	// Options.Logger, then to a discarding logger.
	Logger *slog.Logger
}

// Run drives a host through its whole lifecycle and returns the
// process exit status. Every failure is rendered to the logger before
// Run returns, and the engine is released exactly once on every path
// that allocated it.
func Run(config RunConfig) int {
	logger := config.Logger
	if logger == nil {
		logger = config.Options.Logger
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	if config.Options.Logger == nil {
		config.Options.Logger = logger
	}

	host, err := New(config.Options)
	if err != nil {
		logger.Error("unable to create lua vm.", "error", err)
		return process.ExitFailure
	}
	defer host.Close()

	for _, capability := range config.Capabilities {
		if err := host.Register(capability); err != nil {
			logger.Error("unable to register capability.", "module", capability.Name(), "error", err)
			return process.ExitFailure
		}
	}

	if err := host.InjectArgs(config.Args); err != nil {
		logger.Error("unable to inject arguments.", "error", err)
		return process.ExitFailure
	}

	if err := host.Load(config.Payload); err != nil {
		logger.Error("unable to load "+config.Payload.Name+".", "error", err)
		return process.ExitFailure
	}

	result := host.Execute()
	if failure := result.Failure; failure != nil {
		logger.Error("caught error in lua runtime: " + failure.Message)
		logger.Error(failure.Traceback())
		logger.Error(config.Payload.Name + " reports a failure status.")
		return process.ExitFailure
	}

	logger.Debug("policy completed", "payload", config.Payload.Name)
	return process.ExitSuccess
}
