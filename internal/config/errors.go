// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import "fmt"

// Error is returned for invalid configuration.
type Error struct {
	Msg string
	Err error
}

// Error implements the [error] interface.
func (e *Error) Error() string {
	if e.Err == nil {
		return "config: " + e.Msg
	}

	return fmt.Sprintf("config: %s: %v", e.Msg, e.Err)
}

// Is implements the [errors.Is] interface.
func (*Error) Is(other error) bool {
	_, ok := other.(*Error)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *Error) Unwrap() error {
	return e.Err
}
