// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scripthost

import (
	"strconv"
	"strings"

	rt "github.com/arnodel/golua/runtime"
)

// FailureClass identifies which of the three fatal transitions failed.
type FailureClass int

const (
	// FailureAllocation means the engine could not be created.
	FailureAllocation FailureClass = iota + 1

	// FailureLoad means the payload could not be decoded or compiled.
	FailureLoad

	// FailureRuntime means the policy raised an error while executing.
	FailureRuntime
)

func (c FailureClass) String() string {
	switch c {
	case FailureAllocation:
		return "allocation"
	case FailureLoad:
		return "load"
	case FailureRuntime:
		return "runtime"
	default:
		return "unknown"
	}
}

// Frame is one entry of a Lua stack traceback, innermost first.
type Frame struct {
	// Location is the chunk and line ("osbpb.lua:12"), or "[Go]" for
	// a Go function.
	Location string

	// Description names the function, e.g. "in function mount_all".
	Description string
}

func (f Frame) String() string {
	if f.Description == "" {
		return f.Location
	}
	return f.Location + ": " + f.Description
}

// Failure is the structured outcome of a failed lifecycle step.
// Runtime failures always carry at least one frame.
type Failure struct {
	Class   FailureClass
	Message string
	Frames  []Frame
}

func (f *Failure) Error() string {
	return f.Class.String() + " failure: " + f.Message
}

// Traceback renders the frames in the engine's conventional format:
// a "stack traceback:" header and one tab-indented frame per line.
func (f *Failure) Traceback() string {
	var builder strings.Builder
	builder.WriteString("stack traceback:")
	for _, frame := range f.Frames {
		builder.WriteString("\n\t")
		builder.WriteString(frame.String())
	}
	return builder.String()
}

// Result is the outcome of [Host.Execute]. A nil Failure is success.
type Result struct {
	Failure *Failure
}

// OK reports whether the policy completed without raising.
func (r Result) OK() bool {
	return r.Failure == nil
}

// newRuntimeFailure converts the error a protected call returned into
// a Failure. frames were collected by the message handler while the
// failing continuations were still live; an error raised outside any
// Lua frame falls back to the chunk itself.
func newRuntimeFailure(err error, frames []Frame, chunkName string) *Failure {
	message, ok := rt.ErrorValue(err).ToString()
	if !ok {
		message = err.Error()
	}
	failure := &Failure{Class: FailureRuntime, Message: message, Frames: frames}
	if len(failure.Frames) == 0 {
		failure.Frames = []Frame{{Location: chunkName, Description: "in main chunk"}}
	}
	return failure
}

// collectFrames walks a continuation chain from the failing frame out
// to the outermost caller.
func collectFrames(cont rt.Cont) []Frame {
	var frames []Frame
	for ; cont != nil; cont = cont.Parent() {
		info := cont.DebugInfo()
		if info == nil {
			continue
		}
		location := info.Source
		if info.CurrentLine > 0 {
			location += ":" + strconv.Itoa(int(info.CurrentLine))
		}
		frames = append(frames, Frame{Location: location, Description: "in function " + info.Name})
	}
	return frames
}
