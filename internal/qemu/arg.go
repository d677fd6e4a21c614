// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"slices"
	"strings"
)

// Argument is a single emulator flag, like "-machine q35,smm=on" or the
// bare "-nodefaults".
//
// Flags that configure the machine itself, like "-machine" or "-m", are set
// once. Flags that add a component, like "-drive" per disk, are repeatable.
type Argument struct {
	flag       string
	value      string
	repeatable bool
}

// UniqueArg returns a flag that may appear only once in an emulator command
// line. The value parts are joined by comma.
func UniqueArg(flag string, value ...string) Argument {
	return Argument{flag: flag, value: strings.Join(value, ",")}
}

// RepeatableArg returns a flag that may appear multiple times, as long as
// every occurrence has a distinct value.
func RepeatableArg(flag string, value ...string) Argument {
	return Argument{flag: flag, value: strings.Join(value, ","), repeatable: true}
}

// String implements [fmt.Stringer].
func (a Argument) String() string {
	if a.value == "" {
		return "-" + a.flag
	}

	return "-" + a.flag + " " + a.value
}

// Collides reports whether both arguments cannot be part of the same
// command line. Unique flags collide by flag alone, repeatable flags only on
// an identical value.
func (a Argument) Collides(other Argument) bool {
	switch {
	case a.flag != other.flag:
		return false
	case a.repeatable && other.repeatable:
		return a.value == other.value
	default:
		return true
	}
}

func prop(key, value string) string {
	return key + "=" + value
}

// BuildArgumentStrings turns the arguments into the emulator argv, flags and
// values as separate elements. Colliding arguments are rejected with
// [ErrArgumentCollision], so a conflicting [Spec] never reaches the emulator.
func BuildArgumentStrings(args []Argument) ([]string, error) {
	argv := make([]string, 0, 2*len(args))

	for idx, arg := range args {
		prev := slices.IndexFunc(args[:idx], arg.Collides)
		if prev >= 0 {
			return nil, fmt.Errorf("%w: %s, %s", ErrArgumentCollision, args[prev], arg)
		}

		argv = append(argv, "-"+arg.flag)

		if arg.value != "" {
			argv = append(argv, arg.value)
		}
	}

	return argv, nil
}
