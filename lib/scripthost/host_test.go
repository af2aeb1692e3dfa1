// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scripthost

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"runtime/debug"
	"strings"
	"testing"

	rt "github.com/arnodel/golua/runtime"
	"golang.org/x/sys/unix"

	"github.com/bureau-foundation/osbpb/lib/logging"
	"github.com/bureau-foundation/osbpb/lib/payload"
	"github.com/bureau-foundation/osbpb/sandbox"
)

// countingSyscalls records unshare flags and mount targets and
// succeeds without entering the kernel.
type countingSyscalls struct {
	unshared []int
	mounted  []string
}

func (c *countingSyscalls) Chroot(string) error { return nil }
func (c *countingSyscalls) Chdir(string) error  { return nil }
func (c *countingSyscalls) Mount(request sandbox.MountRequest) error {
	c.mounted = append(c.mounted, request.Target)
	return nil
}
func (c *countingSyscalls) Unmount(string, int) error { return nil }
func (c *countingSyscalls) Unshare(flags int) error {
	c.unshared = append(c.unshared, flags)
	return nil
}

// policyRun is the observable outcome of one Run call.
type policyRun struct {
	status int
	output string
	closes int
}

func runPolicy(t *testing.T, source string, args []string, syscalls sandbox.Syscalls) policyRun {
	t.Helper()
	var buffer bytes.Buffer
	logger := logging.New(&buffer, logging.Options{Level: slog.LevelInfo, Color: logging.ColorNever})

	var run policyRun
	run.status = Run(RunConfig{
		Options: Options{
			Stdout:  io.Discard,
			OnClose: func() { run.closes++ },
		},
		Payload: payload.Payload{Name: "policy.lua", Data: []byte(source)},
		Args:    args,
		Capabilities: []Capability{
			sandbox.NewModule(sandbox.ModuleConfig{Syscalls: syscalls}),
		},
		Logger: logger,
	})
	run.output = buffer.String()
	return run
}

// readyHost returns a host with args injected, ready to load.
func readyHost(t *testing.T, capabilities ...Capability) *Host {
	t.Helper()
	host, err := New(Options{Stdout: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(host.Close)
	for _, capability := range capabilities {
		if err := host.Register(capability); err != nil {
			t.Fatalf("Register(%s): %v", capability.Name(), err)
		}
	}
	if err := host.InjectArgs([]string{"osbpb"}); err != nil {
		t.Fatalf("InjectArgs: %v", err)
	}
	return host
}

func loadSource(t *testing.T, host *Host, source string) {
	t.Helper()
	if err := host.Load(payload.Payload{Name: "policy.lua", Data: []byte(source)}); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestRunSuccess(t *testing.T) {
	syscalls := &countingSyscalls{}
	run := runPolicy(t, `
		local linux = require("lualinux")
		assert(linux.unshare(linux.CLONE_NEWNS | linux.CLONE_NEWPID) == 0)
		assert(linux.mount(nil, "/mnt/tmp", "tmpfs", 0, nil) == 0)
	`, []string{"osbpb"}, syscalls)

	if run.status != 0 {
		t.Fatalf("expected status 0, got %d:\n%s", run.status, run.output)
	}
	if strings.Contains(run.output, "[ERROR]") {
		t.Errorf("unexpected error output:\n%s", run.output)
	}
	if !strings.Contains(run.output, "[INFO] loaded policy payload payload.name=policy.lua") {
		t.Errorf("missing payload record:\n%s", run.output)
	}
	if run.closes != 1 {
		t.Errorf("expected 1 close, got %d", run.closes)
	}
	if len(syscalls.unshared) != 1 || syscalls.unshared[0] != unix.CLONE_NEWNS|unix.CLONE_NEWPID {
		t.Errorf("expected unshare(%#x), got %#x", unix.CLONE_NEWNS|unix.CLONE_NEWPID, syscalls.unshared)
	}
	if len(syscalls.mounted) != 1 || syscalls.mounted[0] != "/mnt/tmp" {
		t.Errorf("expected one mount of /mnt/tmp, got %v", syscalls.mounted)
	}
}

func TestRunComposesFlagsWithBitwiseOr(t *testing.T) {
	syscalls := &countingSyscalls{}
	run := runPolicy(t, `
		local linux = require("linux")
		linux.unshare(linux.CLONE_NEWNS | linux.CLONE_NEWPID)
	`, []string{"osbpb"}, syscalls)

	if run.status != 0 {
		t.Fatalf("expected status 0, got %d:\n%s", run.status, run.output)
	}
	want := []int{unix.CLONE_NEWNS | unix.CLONE_NEWPID}
	if len(syscalls.unshared) != 1 || syscalls.unshared[0] != want[0] {
		t.Errorf("expected unshare flags %#x, got %#x", want, syscalls.unshared)
	}
}

func TestRegisterLoadsModuleUnderNameAndAlias(t *testing.T) {
	run := runPolicy(t, `
		local lualinux = require("lualinux")
		assert(type(lualinux) == "table", "require lualinux")
		assert(require("linux") == lualinux, "alias is the same table")
		assert(package.loaded.lualinux == lualinux, "package.loaded")
		assert(_G.lualinux == nil, "no global binding")
		assert(_G.linux == nil, "no alias global")
		assert(lualinux.MS_BIND == 4096, "constants")
	`, []string{"osbpb"}, &countingSyscalls{})

	if run.status != 0 {
		t.Errorf("expected status 0, got %d:\n%s", run.status, run.output)
	}
}

func TestRunRuntimeErrorRendersMessageThenTraceback(t *testing.T) {
	run := runPolicy(t, `error("bad config")`, []string{"osbpb"}, &countingSyscalls{})

	if run.status != 1 {
		t.Errorf("expected status 1, got %d", run.status)
	}
	if run.closes != 1 {
		t.Errorf("expected 1 close, got %d", run.closes)
	}

	messageIndex := strings.Index(run.output, "[ERROR] caught error in lua runtime: policy.lua:1: bad config\n")
	tracebackIndex := strings.Index(run.output, "[ERROR] stack traceback:\n\t")
	if messageIndex < 0 {
		t.Fatalf("missing message line:\n%s", run.output)
	}
	if tracebackIndex <= messageIndex {
		t.Fatalf("traceback must follow the message:\n%s", run.output)
	}

	firstFrame := run.output[tracebackIndex+len("[ERROR] stack traceback:\n\t"):]
	firstFrame = firstFrame[:strings.IndexByte(firstFrame, '\n')]
	if strings.TrimSpace(firstFrame) == "" {
		t.Errorf("empty first frame:\n%s", run.output)
	}

	if !strings.HasSuffix(run.output, "[ERROR] policy.lua reports a failure status.\n") {
		t.Errorf("failure status must be the last line:\n%s", run.output)
	}
}

func TestRunPolicyEscalatesFailedCapability(t *testing.T) {
	run := runPolicy(t, `
		local linux = require("lualinux")
		if linux.chroot("/definitely/not/here") ~= 0 then
			error("chroot failed: " .. linux.strerror(linux.errno()))
		end
	`, []string{"osbpb"}, sandbox.Kernel{})

	if run.status != 1 {
		t.Errorf("expected status 1, got %d", run.status)
	}
	if !strings.Contains(run.output, "chroot failed: ") {
		t.Errorf("missing escalated message:\n%s", run.output)
	}
}

func TestRunLoadFailure(t *testing.T) {
	run := runPolicy(t, `local = = broken`, []string{"osbpb"}, &countingSyscalls{})

	if run.status != 1 {
		t.Errorf("expected status 1, got %d", run.status)
	}
	if run.closes != 1 {
		t.Errorf("expected 1 close, got %d", run.closes)
	}
	if !strings.Contains(run.output, "[ERROR] unable to load policy.lua.") {
		t.Errorf("missing load failure:\n%s", run.output)
	}
	if strings.Contains(run.output, "caught error in lua runtime") {
		t.Errorf("load failure rendered as runtime failure:\n%s", run.output)
	}
}

func TestRunCorruptCompressedPayload(t *testing.T) {
	run := runPolicy(t, "\x28\xb5\x2f\xfd\xff\xff", []string{"osbpb"}, &countingSyscalls{})

	if run.status != 1 {
		t.Errorf("expected status 1, got %d", run.status)
	}
	if run.closes != 1 {
		t.Errorf("expected 1 close, got %d", run.closes)
	}
	if !strings.Contains(run.output, "[ERROR] unable to load policy.lua.") {
		t.Errorf("missing load failure:\n%s", run.output)
	}
}

func TestRunAllocationFailure(t *testing.T) {
	original := newEngine
	t.Cleanup(func() { newEngine = original })
	newEngine = func(io.Writer, ...rt.RuntimeOption) *rt.Runtime { panic("out of memory") }

	run := runPolicy(t, `return`, []string{"osbpb"}, &countingSyscalls{})

	if run.status != 1 {
		t.Errorf("expected status 1, got %d", run.status)
	}
	if run.closes != 0 {
		t.Errorf("nothing was allocated, so nothing is torn down: got %d closes", run.closes)
	}
	if strings.Count(run.output, "\n") != 1 || !strings.HasPrefix(run.output, "[ERROR] unable to create lua vm.") {
		t.Errorf("expected a single allocation error line, got:\n%s", run.output)
	}
}

func TestRunInjectsArguments(t *testing.T) {
	run := runPolicy(t, `
		assert(arg.n == 3, "arg.n")
		assert(arg[0] == "osbpb", "arg[0]")
		assert(arg[1] == "--config", "arg[1]")
		assert(arg[2] == "x", "arg[2]")
		assert(arg[3] == nil, "arg[3]")
		local first, second = ...
		assert(select("#", ...) == 2, "vararg count")
		assert(first == "--config" and second == "x", "varargs")
	`, []string{"osbpb", "--config", "x"}, &countingSyscalls{})

	if run.status != 0 {
		t.Errorf("expected status 0, got %d:\n%s", run.status, run.output)
	}
}

func TestHostLifecycleStates(t *testing.T) {
	host, err := New(Options{Stdout: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	expectState := func(want State) {
		t.Helper()
		if host.State() != want {
			t.Errorf("expected state %s, got %s", want, host.State())
		}
	}
	expectState(StdlibLoaded)

	if err := host.Register(sandbox.NewModule(sandbox.ModuleConfig{Syscalls: &countingSyscalls{}})); err != nil {
		t.Fatalf("Register: %v", err)
	}
	expectState(CapabilitiesRegistered)

	if err := host.InjectArgs([]string{"osbpb"}); err != nil {
		t.Fatalf("InjectArgs: %v", err)
	}
	expectState(ArgsInjected)

	loadSource(t, host, `return`)
	expectState(ScriptLoaded)
	if host.Executing() {
		t.Error("host reports executing before Execute")
	}

	if result := host.Execute(); !result.OK() {
		t.Fatalf("Execute: %v", result.Failure)
	}
	expectState(Succeeded)

	host.Close()
	expectState(Closed)
}

func TestHostRejectsOutOfOrderCalls(t *testing.T) {
	host, err := New(Options{Stdout: io.Discard})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer host.Close()

	err = host.Load(payload.Payload{Name: "policy.lua", Data: []byte(`return`)})
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("load before args: expected ErrInvalidState, got %v", err)
	}

	result := host.Execute()
	if result.OK() {
		t.Fatal("execute before load succeeded")
	}
	if !strings.Contains(result.Failure.Message, "invalid host state") {
		t.Errorf("unexpected failure message %q", result.Failure.Message)
	}

	if err := host.InjectArgs(nil); err != nil {
		t.Fatalf("InjectArgs: %v", err)
	}
	err = host.Register(sandbox.NewModule(sandbox.ModuleConfig{}))
	if !errors.Is(err, ErrInvalidState) {
		t.Errorf("register after args: expected ErrInvalidState, got %v", err)
	}
}

func TestHostExecutesOnce(t *testing.T) {
	host := readyHost(t)
	loadSource(t, host, `return`)

	if !host.Execute().OK() {
		t.Fatal("first Execute failed")
	}
	if host.Execute().OK() {
		t.Error("second Execute succeeded")
	}
}

func TestHostCloseIsIdempotent(t *testing.T) {
	closes := 0
	host, err := New(Options{Stdout: io.Discard, OnClose: func() { closes++ }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	host.Close()
	host.Close()
	if closes != 1 {
		t.Errorf("expected 1 close, got %d", closes)
	}

	var absent *Host
	absent.Close()
	if absent.State() != Closed {
		t.Errorf("nil host state = %s, want CLOSED", absent.State())
	}
	if absent.Executing() {
		t.Error("nil host reports executing")
	}
}

func TestCapabilitiesAreGatedOutsideExecution(t *testing.T) {
	syscalls := &countingSyscalls{}
	host := readyHost(t, sandbox.NewModule(sandbox.ModuleConfig{Syscalls: syscalls}))
	loadSource(t, host, `require("lualinux").unshare(1)`)

	loaded, err := host.loadedTable()
	if err != nil {
		t.Fatalf("loadedTable: %v", err)
	}
	module, _ := loaded.Get(rt.StringValue("lualinux")).TryTable()
	unshare := module.Get(rt.StringValue("unshare"))
	_, err = rt.Call1(host.engine.MainThread(), unshare, rt.IntValue(2))
	if err == nil || !strings.Contains(err.Error(), "outside policy execution") {
		t.Errorf("expected a gate error, got %v", err)
	}
	if len(syscalls.unshared) != 0 {
		t.Errorf("gated call reached the kernel: %v", syscalls.unshared)
	}

	if !host.Execute().OK() {
		t.Fatal("Execute failed")
	}
	if len(syscalls.unshared) != 1 || syscalls.unshared[0] != 1 {
		t.Errorf("expected unshare(1) during execution, got %v", syscalls.unshared)
	}
}

func TestNestedRuntimeFailureKeepsFrames(t *testing.T) {
	host := readyHost(t)
	loadSource(t, host, `local function mount_all()
	error("mount table exhausted")
end
local function build_jail()
	mount_all()
end
build_jail()
`)

	result := host.Execute()
	if result.OK() {
		t.Fatal("Execute succeeded")
	}
	if host.State() != Failed {
		t.Errorf("expected state FAILED, got %s", host.State())
	}
	if result.Failure.Class != FailureRuntime {
		t.Errorf("expected runtime failure, got %s", result.Failure.Class)
	}
	if result.Failure.Message != "policy.lua:2: mount table exhausted" {
		t.Errorf("unexpected message %q", result.Failure.Message)
	}

	var locations []string
	for _, frame := range result.Failure.Frames {
		locations = append(locations, frame.Location)
	}
	for _, want := range []string{"policy.lua:2", "policy.lua:5", "policy.lua:7"} {
		found := false
		for _, location := range locations {
			found = found || location == want
		}
		if !found {
			t.Errorf("expected frame at %s, got %v", want, locations)
		}
	}
	if !strings.HasPrefix(result.Failure.Traceback(), "stack traceback:\n\t") {
		t.Errorf("unexpected traceback %q", result.Failure.Traceback())
	}
}

func TestCaughtErrorsDoNotReachTheHost(t *testing.T) {
	host := readyHost(t)
	loadSource(t, host, `
		local ok = pcall(error, "handled")
		assert(not ok)
	`)

	if result := host.Execute(); !result.OK() {
		t.Errorf("expected success, got %v", result.Failure)
	}
}

func TestNewRejectsInvalidOptions(t *testing.T) {
	_, err := New(Options{GCPercent: -2})
	var failure *Failure
	if !errors.As(err, &failure) {
		t.Fatalf("expected *Failure, got %v", err)
	}
	if failure.Class != FailureAllocation {
		t.Errorf("expected allocation failure, got %s", failure.Class)
	}
}

func TestNewAppliesGCPercent(t *testing.T) {
	original := debug.SetGCPercent(100)
	t.Cleanup(func() { debug.SetGCPercent(original) })

	host, err := New(Options{Stdout: io.Discard, GCPercent: 250})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer host.Close()

	if got := debug.SetGCPercent(100); got != 250 {
		t.Errorf("expected gc percent 250, got %d", got)
	}
}

func TestNewRuntimeFailureWithoutFrames(t *testing.T) {
	failure := newRuntimeFailure(errors.New("engine gave up"), nil, "policy.lua")

	if failure.Message != "engine gave up" {
		t.Errorf("unexpected message %q", failure.Message)
	}
	if len(failure.Frames) != 1 || failure.Frames[0] != (Frame{Location: "policy.lua", Description: "in main chunk"}) {
		t.Errorf("unexpected frames %v", failure.Frames)
	}
	if failure.Error() != "runtime failure: engine gave up" {
		t.Errorf("unexpected Error() %q", failure.Error())
	}
}

func TestStateString(t *testing.T) {
	for state, want := range map[State]string{
		CapabilitiesRegistered: "CAPABILITIES_REGISTERED",
		Closed:                 "CLOSED",
		State(42):              "State(42)",
	} {
		if state.String() != want {
			t.Errorf("expected %s, got %s", want, state.String())
		}
	}
}
