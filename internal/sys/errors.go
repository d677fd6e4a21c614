// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"errors"
	"os/exec"
	"strings"
)

var (
	// ErrArchNotSupported is returned if the requested architecture is not
	// supported for the requested operation.
	ErrArchNotSupported = errors.New("architecture not supported")

	// ErrIPForwardingDisabled is returned if the host does not forward IPv4
	// packets. NAT for guest networks does not work without it.
	ErrIPForwardingDisabled = errors.New(
		"ip forwarding disabled (enable with: sysctl -w net.ipv4.ip_forward=1)",
	)
)

// CommandError wraps a failed host tool invocation.
type CommandError struct {
	Name   string
	Args   []string
	Stderr string
	Err    error
}

// Error implements the [error] interface.
func (e *CommandError) Error() string {
	msg := strings.Join(append([]string{e.Name}, e.Args...), " ") + ": " +
		e.Err.Error()
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}

	return msg
}

// Is implements the [errors.Is] interface.
func (*CommandError) Is(other error) bool {
	_, ok := other.(*CommandError)
	return ok
}

// Unwrap implements the [errors.Unwrap] interface.
func (e *CommandError) Unwrap() error {
	return e.Err
}

// ExitCode returns the exit code of the command or -1 if it did not exit
// normally.
func (e *CommandError) ExitCode() int {
	var exitErr *exec.ExitError
	if errors.As(e.Err, &exitErr) {
		return exitErr.ExitCode()
	}

	return -1
}

// ToolMissing returns true if the command failed because the executable was
// not found.
func (e *CommandError) ToolMissing() bool {
	return errors.Is(e.Err, exec.ErrNotFound)
}
