// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scripthost

import "fmt"

// State is a position in the host lifecycle. States only move forward:
//
//	Created → StdlibLoaded → CapabilitiesRegistered → ArgsInjected →
//	ScriptLoaded → Executing → {Succeeded | Failed} → Closed
//
// Any state may jump straight to Closed.
type State int

const (
	Created State = iota
	StdlibLoaded
	CapabilitiesRegistered
	ArgsInjected
	ScriptLoaded
	Executing
	Succeeded
	Failed
	Closed
)

var stateNames = [...]string{
	Created:                "CREATED",
	StdlibLoaded:           "STDLIB_LOADED",
	CapabilitiesRegistered: "CAPABILITIES_REGISTERED",
	ArgsInjected:           "ARGS_INJECTED",
	ScriptLoaded:           "SCRIPT_LOADED",
	Executing:              "EXECUTING",
	Succeeded:              "SUCCEEDED",
	Failed:                 "FAILED",
	Closed:                 "CLOSED",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("State(%d)", int(s))
}
