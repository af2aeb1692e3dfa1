// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package sandbox

import (
	"fmt"

	rt "github.com/arnodel/golua/runtime"
)

// Argument conversion follows the reference Lua auxiliary library:
// strings accept numbers, integers accept numeric strings and floats
// with an exact integer value, and an optional argument may be absent
// or nil.

func argumentError(n int, function, message string) error {
	return fmt.Errorf("bad argument #%d to '%s' (%s)", n+1, function, message)
}

func typeError(c *rt.GoCont, n int, function, expected string) error {
	got := "no value"
	if n < c.NArgs() {
		got = c.Arg(n).TypeName()
	}
	return argumentError(n, function, expected+" expected, got "+got)
}

func absent(c *rt.GoCont, n int) bool {
	return n >= c.NArgs() || c.Arg(n).IsNil()
}

func checkString(c *rt.GoCont, n int, function string) (string, error) {
	if n >= c.NArgs() {
		return "", typeError(c, n, function, "string")
	}
	value := c.Arg(n)
	if text, ok := value.TryString(); ok {
		return text, nil
	}
	switch value.Type() {
	case rt.IntType, rt.FloatType:
		text, _ := value.ToString()
		return text, nil
	}
	return "", typeError(c, n, function, "string")
}

// optString returns nil for an absent argument, which the kernel
// receives as a NULL pointer.
func optString(c *rt.GoCont, n int, function string) (*string, error) {
	if absent(c, n) {
		return nil, nil
	}
	text, err := checkString(c, n, function)
	if err != nil {
		return nil, err
	}
	return &text, nil
}

func checkInteger(c *rt.GoCont, n int, function string) (int64, error) {
	if n >= c.NArgs() {
		return 0, typeError(c, n, function, "number")
	}
	value := c.Arg(n)
	if integer, ok := rt.ToInt(value); ok {
		return integer, nil
	}
	switch value.Type() {
	case rt.FloatType:
		return 0, argumentError(n, function, "number has no integer representation")
	case rt.StringType:
		if _, ok := rt.ToFloat(value); ok {
			return 0, argumentError(n, function, "number has no integer representation")
		}
	}
	return 0, typeError(c, n, function, "number")
}

func optInteger(c *rt.GoCont, n int, function string) (int64, error) {
	if absent(c, n) {
		return 0, nil
	}
	return checkInteger(c, n, function)
}
