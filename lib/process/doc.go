// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides binary entrypoint helpers for osbpb: the
// exit status contract and fatal error reporting to stderr before the
// structured logger is initialized.
//
// Pre-logger output uses the same "[ERROR] " prefix as the logging
// package, so the diagnostic stream has one format from the first
// byte to the last.
package process
