// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides host configuration loading for osbpb.
//
// Configuration is optional and comes from a single file named by the
// OSBPB_CONFIG environment variable (via [Load]) or passed explicitly
// (via [LoadFile]). There is no --config flag because the argument
// vector belongs to the policy script, and there is no file discovery.
// Files may be YAML or, by extension, JSONC.
//
// The configuration never influences policy semantics. It covers the
// diagnostic stream (level, coloring) and engine tuning (call stack
// and registry sizes, garbage collector percentage).
//
// Key exports:
//
//   - [Config] -- master struct with Log and Engine sections
//   - [Default] -- returns a complete Config
//   - [Load] and [LoadFile] -- the two entry points for loading
//
// This package depends on no other osbpb packages.
package config
