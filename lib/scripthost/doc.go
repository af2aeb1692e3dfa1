// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package scripthost embeds a Lua engine and runs one policy script in
// it, converting the outcome into a process exit status without losing
// diagnostic information.
//
// A [Host] moves through a fixed sequence of [State] values: the
// engine is allocated and its standard libraries opened ([New]),
// capability modules are stored in package.loaded ([Host.Register]),
// the argument vector is exposed as the global arg ([Host.InjectArgs]),
// the payload is compiled ([Host.Load]), and the chunk runs exactly
// once under a protected call ([Host.Execute]). [Host.Close] releases the engine
// from any state and is idempotent.
//
// Three transitions can fail, each reported as a [*Failure] with its
// [FailureClass]: engine allocation, payload load, and policy runtime.
// A runtime failure carries both the error message and the ordered
// traceback frames captured at the point of failure; rendering only
// the message would hide which step of a nested sandbox construction
// failed. [Result] wraps the runtime outcome so callers branch on a
// value rather than on a panic crossing the engine boundary.
//
// [Run] is the whole lifecycle in one call, as a binary's main needs
// it: it renders diagnostics through the logger and returns 0 or 1.
//
// The engine implements Lua 5.4, so policies have native integers and
// bitwise operators.
//
// The package assumes a single goroutine. Exactly one policy runs per
// process and its capability calls happen in the order it issues them.
package scripthost
