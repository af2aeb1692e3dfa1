// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package version describes the build of the running osbpb binary.
//
// The commit, dirty flag and build time come from the vcs.* settings
// the Go toolchain records when building inside a git checkout. Release
// builds made outside a checkout stamp them instead:
//
//	go build -ldflags "-X github.com/bureau-foundation/osbpb/lib/version.gitCommit=$(git rev-parse --short HEAD)"
//
// A stamped commit also replaces the recorded dirty flag (gitDirty,
// "true" or empty), and a stamped buildTime replaces the recorded
// commit time.
package version
