// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scripthost

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/arnodel/golua/lib"
	rt "github.com/arnodel/golua/runtime"

	"github.com/bureau-foundation/osbpb/lib/payload"
)

// ErrInvalidState is returned when a lifecycle method is called out of
// order.
var ErrInvalidState = errors.New("invalid host state")

// Capability is a module the policy obtains with require(Name()). Open
// builds the module value; the host stores it in package.loaded
// without binding a global.
type Capability interface {
	Name() string
	Open(r *rt.Runtime) rt.Value
}

// aliased is implemented by capabilities also loaded under other
// names.
type aliased interface {
	Aliases() []string
}

// gated is implemented by capabilities that must refuse calls outside
// the executing state.
type gated interface {
	SetGate(func() bool)
}

// Options configures a [Host].
type Options struct {
	// GCPercent is passed to debug.SetGCPercent when the engine is
	// created. Zero leaves the collector alone.
	GCPercent int

	// Stdout receives the policy's print output. Defaults to
	// os.Stdout.
	Stdout io.Writer

	// Logger receives lifecycle records. Defaults to a discarding
	// logger.
	Logger *slog.Logger

	// OnClose, if set, runs once after the engine is released.
	OnClose func()
}

func (o Options) validate() error {
	if o.GCPercent < -1 {
		return fmt.Errorf("gc percent %d below -1", o.GCPercent)
	}
	return nil
}

// Host owns one Lua engine and runs one policy in it. A Host is
// single-shot and single-threaded: it has no locks, and nothing but
// the goroutine that created it may touch it.
type Host struct {
	state   State
	engine  *rt.Runtime
	release func()
	chunk   *rt.Closure
	name    string
	args    []string
	logger  *slog.Logger
	onClose func()
}

// newEngine allocates the Lua runtime. Tests replace it to simulate
// allocation failure.
var newEngine = rt.New

// New allocates the engine, opens the standard libraries, and applies
// the garbage collector setting. A failure here is the allocation
// class: nothing is left to release.
func New(options Options) (*Host, error) {
	if err := options.validate(); err != nil {
		return nil, &Failure{Class: FailureAllocation, Message: err.Error()}
	}
	logger := options.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	stdout := options.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}

	engine, release, err := allocate(stdout)
	if err != nil {
		return nil, &Failure{Class: FailureAllocation, Message: err.Error()}
	}

	host := &Host{
		state:   StdlibLoaded,
		engine:  engine,
		release: release,
		logger:  logger,
		onClose: options.OnClose,
	}

	if options.GCPercent != 0 {
		previous := debug.SetGCPercent(options.GCPercent)
		logger.Debug("tuned garbage collector", "gc_percent", options.GCPercent, "previous", previous)
	}

	return host, nil
}

// allocate creates the runtime and opens its standard libraries,
// converting a panic in either into an error.
func allocate(stdout io.Writer) (engine *rt.Runtime, release func(), err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			engine, release = nil, nil
			err = fmt.Errorf("allocating lua runtime: %v", recovered)
		}
	}()
	engine = newEngine(stdout)
	if engine == nil {
		return nil, nil, errors.New("allocating lua runtime: no runtime returned")
	}
	release = lib.LoadAll(engine)
	return engine, release, nil
}

// State returns the current lifecycle state.
func (h *Host) State() State {
	if h == nil {
		return Closed
	}
	return h.state
}

// Executing reports whether the policy is currently running.
// Capabilities use it as their gate.
func (h *Host) Executing() bool {
	return h != nil && h.state == Executing
}

func (h *Host) expect(operation string, allowed ...State) error {
	for _, state := range allowed {
		if h.state == state {
			return nil
		}
	}
	return fmt.Errorf("%s in state %s: %w", operation, h.state, ErrInvalidState)
}

// Register opens a capability and stores it in package.loaded under
// its name and every alias, so require returns the same table for
// each. No global is bound. Gated capabilities are wired to
// [Host.Executing].
func (h *Host) Register(capability Capability) error {
	if err := h.expect("register "+capability.Name(), StdlibLoaded, CapabilitiesRegistered); err != nil {
		return err
	}
	loaded, err := h.loadedTable()
	if err != nil {
		return err
	}
	if gate, ok := capability.(gated); ok {
		gate.SetGate(h.Executing)
	}

	names := []string{capability.Name()}
	if other, ok := capability.(aliased); ok {
		names = append(names, other.Aliases()...)
	}
	module := capability.Open(h.engine)
	for _, name := range names {
		h.engine.SetTable(loaded, rt.StringValue(name), module)
	}

	h.state = CapabilitiesRegistered
	h.logger.Debug("registered capability", "module", capability.Name(), "aliases", names[1:])
	return nil
}

// loadedTable returns package.loaded.
func (h *Host) loadedTable() (*rt.Table, error) {
	pkg, ok := h.engine.GlobalEnv().Get(rt.StringValue("package")).TryTable()
	if !ok {
		return nil, errors.New("package library is not loaded")
	}
	loaded, ok := pkg.Get(rt.StringValue("loaded")).TryTable()
	if !ok {
		return nil, errors.New("package.loaded is not a table")
	}
	return loaded, nil
}

// InjectArgs exposes args to the policy as the global table arg, laid
// out like a C argv: arg[0] is the program name, arg[1..n-1] follow,
// and arg.n is len(args). Nothing is filtered or parsed. The same
// arguments after the program name are passed to the chunk as "...".
func (h *Host) InjectArgs(args []string) error {
	if err := h.expect("inject args", StdlibLoaded, CapabilitiesRegistered); err != nil {
		return err
	}
	table := rt.NewTable()
	for index, value := range args {
		h.engine.SetTable(table, rt.IntValue(int64(index)), rt.StringValue(value))
	}
	h.engine.SetTable(table, rt.StringValue("n"), rt.IntValue(int64(len(args))))
	h.engine.SetEnv(h.engine.GlobalEnv(), "arg", rt.TableValue(table))

	h.args = append([]string(nil), args...)
	h.state = ArgsInjected
	return nil
}

// Load decodes and compiles the payload. Compile errors are returned
// as a *Failure of class FailureLoad.
func (h *Host) Load(program payload.Payload) error {
	if err := h.expect("load "+program.Name, ArgsInjected); err != nil {
		return err
	}

	source, err := program.Source()
	if err != nil {
		return &Failure{Class: FailureLoad, Message: err.Error()}
	}

	chunk, err := h.engine.CompileAndLoadLuaChunk(program.Name, source, rt.TableValue(h.engine.GlobalEnv()))
	if err != nil {
		return &Failure{Class: FailureLoad, Message: err.Error()}
	}

	h.chunk = chunk
	h.name = program.Name
	h.state = ScriptLoaded
	h.logger.Info("loaded policy payload", "payload", program)
	return nil
}

// Execute runs the loaded chunk once under a protected call. Any
// error the policy raises, however deeply nested, is captured with
// its traceback in the returned Result instead of escaping.
//
// The calling goroutine is locked to its OS thread and never unlocked:
// unshare(2) changes only the calling thread, so every capability call
// must happen on the same one. Go discards a locked thread when its
// goroutine exits, so the modified thread is never reused.
func (h *Host) Execute() (result Result) {
	if err := h.expect("execute", ScriptLoaded); err != nil {
		return Result{Failure: &Failure{Class: FailureRuntime, Message: err.Error()}}
	}

	runtime.LockOSThread()

	h.state = Executing
	var forwarded []rt.Value
	if len(h.args) > 1 {
		for _, value := range h.args[1:] {
			forwarded = append(forwarded, rt.StringValue(value))
		}
	}

	var frames []Frame
	handler := rt.NewGoFunction(func(t *rt.Thread, c *rt.GoCont) (rt.Cont, error) {
		frames = collectFrames(c.Next())
		message := rt.NilValue
		if c.NArgs() > 0 {
			message = c.Arg(0)
		}
		return c.PushingNext1(t.Runtime, message), nil
	}, "traceback", 1, false)

	defer func() {
		if recovered := recover(); recovered != nil {
			h.state = Failed
			result = Result{Failure: newRuntimeFailure(fmt.Errorf("%v", recovered), frames, h.name)}
		}
	}()

	thread := h.engine.MainThread()
	_, err := thread.CallContext(rt.RuntimeContextDef{MessageHandler: handler}, func() error {
		return rt.Call(thread, rt.FunctionValue(h.chunk), forwarded, rt.NewTerminationWith(nil, 0, false))
	})
	if err != nil {
		h.state = Failed
		return Result{Failure: newRuntimeFailure(err, frames, h.name)}
	}

	h.state = Succeeded
	return Result{}
}

// Close releases the engine. It runs at most once per host; calling
// it again, or on a nil host, does nothing.
func (h *Host) Close() {
	if h == nil || h.state == Closed {
		return
	}
	if h.release != nil {
		h.release()
	}
	if h.engine != nil {
		h.engine.Close(nil)
	}
	h.engine = nil
	h.release = nil
	h.chunk = nil
	h.state = Closed
	if h.onClose != nil {
		h.onClose()
	}
}
