// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"errors"
	"fmt"
)

var (
	// ErrNoBackend is returned for operations before a backend is selected.
	ErrNoBackend = errors.New("no backend selected")

	// ErrBusy is returned if a flash is requested while another is running.
	ErrBusy = errors.New("flash already in progress")

	// ErrUnknownBackend is returned for unknown backend kinds.
	ErrUnknownBackend = errors.New("unknown backend")

	// ErrInvalidOption is returned for invalid backend or network options.
	ErrInvalidOption = errors.New("invalid option")

	// ErrUnsupported is returned by backends for operations they do not
	// implement.
	ErrUnsupported = errors.New("operation not supported by backend")
)

// StateError is returned for operations that are invalid in the current
// lifecycle state.
type StateError struct {
	Op    string
	State State
}

// Error implements the [error] interface.
func (e *StateError) Error() string {
	return fmt.Sprintf("%s not possible in state %s", e.Op, e.State)
}

// Is implements the [errors.Is] interface.
func (*StateError) Is(other error) bool {
	_, ok := other.(*StateError)
	return ok
}

// IsConfigError reports whether err is caused by invalid input of the caller.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrUnknownBackend) || errors.Is(err, ErrInvalidOption)
}
