// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// osbpb bootstraps a sandbox by running a compiled-in Lua policy with
// access to chroot(2), mount(2), umount2(2), unshare(2) and the Linux
// CLONE_*, MS_* and MNT_* flag constants.
//
// Usage:
//
//	osbpb <rootfs>
//
// The argument vector is handed to the policy unmodified as the global
// table arg (arg[0] is the program name) and as the chunk's varargs;
// osbpb itself parses no flags. The bundled policy unshares the mount,
// UTS and IPC namespaces, makes the mount tree private, bind-mounts
// rootfs onto itself with proc and tmpfs inside it, then chroots into
// it. Policies reach the capabilities through require("lualinux").
//
// osbpb must run with CAP_SYS_ADMIN and CAP_SYS_CHROOT. Diagnostics go
// to stderr as "[LEVEL] message" lines; a policy error is rendered with
// its message and stack traceback. The exit status is 0 when the
// policy completes and 1 otherwise.
//
// Environment:
//
//	OSBPB_CONFIG  path to a YAML or JSONC host configuration
//	OSBPB_DEBUG   when non-empty, log at debug level
package main
