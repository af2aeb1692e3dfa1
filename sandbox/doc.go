// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package sandbox exposes the kernel primitives needed to build an
// isolated execution environment (unshare, mount, umount2, chroot,
// chdir) to an embedded Lua policy script.
//
// The central type is [Module], the capability namespace a policy
// obtains with require("lualinux"), also loaded under the shorter name
// "linux". Every function in it is a thin adapter: it marshals Lua
// arguments, forwards them through the [Syscalls] interface, and
// returns the raw kernel-style status (0 on success, -1 on failure).
// Failures are never raised; the policy reads errno() and decides what
// to do. Only malformed arguments raise, as Lua argument errors.
// Integer arguments follow Lua's own coercion: numeric strings such as
// "0x20000" are accepted, fractions are not.
//
// Optional mount(2) arguments are modeled by [MountRequest] as string
// pointers. An absent source, fstype, or data reaches the kernel as a
// NULL pointer; an empty Lua string reaches it as "". [Kernel] issues
// mount(2) through a raw syscall to keep that distinction, because
// unix.Mount collapses both to "".
//
// The module table also carries every flag from [Constants] (CLONE_*,
// MS_*, MNT_*, UMOUNT_NOFOLLOW) under its kernel name. Values are taken
// from golang.org/x/sys/unix, whose tables are generated from the
// kernel headers for each architecture, so nothing here is renumbered
// by hand. They are Lua integers; policies combine them with |.
//
// The package holds no locks and is not safe for concurrent use.
// unshare acts on the calling OS thread, not the whole Go process; the
// script host pins the executing goroutine to a single thread for that
// reason. Calls from coroutines are refused because the engine runs
// each coroutine on its own goroutine.
package sandbox
