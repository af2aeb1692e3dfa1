// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// Process exit statuses. A policy run has exactly two outcomes.
const (
	// ExitSuccess means the policy script completed without raising.
	ExitSuccess = 0

	// ExitFailure means the engine could not be created, the payload
	// could not be loaded, or the policy raised an error.
	ExitFailure = 1
)

// Fatal writes "[ERROR] err" to stderr and exits with [ExitFailure].
// Use it in main() for errors that occur before the structured logger
// exists, such as an unreadable OSBPB_CONFIG.
func Fatal(err error) {
	ReportFatal(os.Stderr, err)
	os.Exit(ExitFailure)
}

// ReportFatal writes the line Fatal would write, without exiting.
func ReportFatal(w io.Writer, err error) {
	fmt.Fprintf(w, "[ERROR] %v\n", err)
}
