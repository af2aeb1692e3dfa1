// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"
	"log/slog"

	rt "github.com/arnodel/golua/runtime"
	"golang.org/x/sys/unix"
)

// ModuleName is the name policy scripts pass to require().
const ModuleName = "lualinux"

// ModuleAlias is a shorter name bound to the same table.
const ModuleAlias = "linux"

// ModuleConfig configures a [Module].
type ModuleConfig struct {
	// Syscalls receives every forwarded call. Defaults to [Kernel].
	Syscalls Syscalls

	// Logger receives one debug record per call. Defaults to a
	// discarding logger.
	Logger *slog.Logger
}

// Module is the capability namespace exposed to policy scripts. Each
// function marshals its Lua arguments, forwards them to [Syscalls],
// and returns the kernel-style status: 0 on success, -1 on failure.
// OS-level failures never raise; the errno is retained for errno().
// Only argument marshaling errors raise, worded like the reference
// Lua auxiliary library ("bad argument #2 to 'mount' ...").
//
// A Module holds no locks. It is driven by a single Lua runtime on a
// single goroutine, exactly like the C errno it emulates.
type Module struct {
	syscalls  Syscalls
	logger    *slog.Logger
	gate      func() bool
	lastErrno unix.Errno
}

// NewModule creates a capability module.
func NewModule(config ModuleConfig) *Module {
	if config.Syscalls == nil {
		config.Syscalls = Kernel{}
	}
	if config.Logger == nil {
		config.Logger = slog.New(slog.DiscardHandler)
	}
	return &Module{
		syscalls: config.Syscalls,
		logger:   config.Logger,
	}
}

// Name returns [ModuleName].
func (m *Module) Name() string {
	return ModuleName
}

// Aliases returns the other names the module table is loaded under.
func (m *Module) Aliases() []string {
	return []string{ModuleAlias}
}

// SetGate installs a predicate consulted before every call. When it
// reports false the call raises instead of reaching the kernel. The
// script host uses this to confine calls to the executing state.
func (m *Module) SetGate(gate func() bool) {
	m.gate = gate
}

// Open builds the capability table in r: the kernel functions, the
// errno helpers, and every entry of [Constants] as a Lua integer.
func (m *Module) Open(r *rt.Runtime) rt.Value {
	table := rt.NewTable()
	r.SetEnvGoFunc(table, "chroot", m.chroot, 1, false)
	r.SetEnvGoFunc(table, "chdir", m.chdir, 1, false)
	r.SetEnvGoFunc(table, "mount", m.mount, 5, false)
	r.SetEnvGoFunc(table, "umount", m.umount, 2, false)
	r.SetEnvGoFunc(table, "unshare", m.unshare, 1, false)
	r.SetEnvGoFunc(table, "errno", m.errno, 0, false)
	r.SetEnvGoFunc(table, "strerror", m.strerror, 1, false)
	for _, constant := range constantTable {
		r.SetEnv(table, constant.Name, rt.IntValue(constant.Value))
	}
	return rt.TableValue(table)
}

func (m *Module) chroot(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	if err := m.checkGate(t, "chroot"); err != nil {
		return nil, err
	}
	path, err := checkString(c, 0, "chroot")
	if err != nil {
		return nil, err
	}
	return m.status(t, c, "chroot", m.syscalls.Chroot(path), slog.String("path", path))
}

func (m *Module) chdir(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	if err := m.checkGate(t, "chdir"); err != nil {
		return nil, err
	}
	path, err := checkString(c, 0, "chdir")
	if err != nil {
		return nil, err
	}
	return m.status(t, c, "chdir", m.syscalls.Chdir(path), slog.String("path", path))
}

func (m *Module) mount(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	if err := m.checkGate(t, "mount"); err != nil {
		return nil, err
	}
	var request MountRequest
	var err error
	if request.Source, err = optString(c, 0, "mount"); err != nil {
		return nil, err
	}
	if request.Target, err = checkString(c, 1, "mount"); err != nil {
		return nil, err
	}
	if request.FSType, err = optString(c, 2, "mount"); err != nil {
		return nil, err
	}
	flags, err := optInteger(c, 3, "mount")
	if err != nil {
		return nil, err
	}
	request.Flags = uintptr(flags)
	if request.Data, err = optString(c, 4, "mount"); err != nil {
		return nil, err
	}
	return m.status(t, c, "mount", m.syscalls.Mount(request), slog.Any("request", request))
}

func (m *Module) umount(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	if err := m.checkGate(t, "umount"); err != nil {
		return nil, err
	}
	target, err := checkString(c, 0, "umount")
	if err != nil {
		return nil, err
	}
	flags, err := optInteger(c, 1, "umount")
	if err != nil {
		return nil, err
	}
	return m.status(t, c, "umount", m.syscalls.Unmount(target, int(flags)),
		slog.String("target", target), slog.Int64("flags", flags))
}

// unshare has no default: silently unsharing nothing (or everything)
// would be worse than a type error.
func (m *Module) unshare(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	if err := m.checkGate(t, "unshare"); err != nil {
		return nil, err
	}
	flags, err := checkInteger(c, 0, "unshare")
	if err != nil {
		return nil, err
	}
	return m.status(t, c, "unshare", m.syscalls.Unshare(int(flags)), slog.Int64("flags", flags))
}

func (m *Module) errno(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	return c.PushingNext1(t.Runtime, rt.IntValue(int64(m.lastErrno))), nil
}

// strerror describes an errno value. Zero is "success"; negative
// numbers are not errno values and raise.
func (m *Module) strerror(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
	code, err := checkInteger(c, 0, "strerror")
	if err != nil {
		return nil, err
	}
	if code < 0 {
		return nil, argumentError(0, "strerror", fmt.Sprintf("errno expected, got %d", code))
	}
	message := "success"
	if code > 0 {
		message = unix.Errno(code).Error()
	}
	return c.PushingNext1(t.Runtime, rt.StringValue(message)), nil
}

// checkGate refuses calls outside the executing state and calls made
// from coroutines. Coroutines run on their own goroutines, and unshare
// and chroot would then act on an OS thread the policy never returns
// to.
func (m *Module) checkGate(t *rt.Thread, operation string) error {
	if m.gate != nil && !m.gate() {
		return fmt.Errorf("%s.%s called outside policy execution", ModuleName, operation)
	}
	if !t.IsMain() {
		return fmt.Errorf("%s.%s called from a coroutine", ModuleName, operation)
	}
	return nil
}

func (m *Module) status(t *rt.Thread, c *rt.GoCont, operation string, err error, attrs ...any) (rt.Cont, error) {
	status := int64(0)
	if err != nil {
		status = -1
		m.lastErrno = errnoOf(err)
		attrs = append(attrs, slog.String("errno", m.lastErrno.Error()))
	}
	attrs = append(attrs, slog.Int64("status", status))
	m.logger.Debug(operation, attrs...)
	return c.PushingNext1(t.Runtime, rt.IntValue(status)), nil
}
