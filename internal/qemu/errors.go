// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"errors"
	"fmt"
)

var (
	// ErrArgumentCollision is returned for a command line with colliding [Argument]s.
	ErrArgumentCollision = errors.New("colliding args")

	// ErrQMPClosed is returned if the management socket connection ended.
	ErrQMPClosed = errors.New("qmp connection closed")
)

// ArgumentError indicates an invalid emulator configuration.
type ArgumentError struct {
	msg string
}

// Error implements the [error] interface.
func (e *ArgumentError) Error() string {
	return "argument error: " + e.msg
}

// Is implements the [errors.Is] interface.
func (*ArgumentError) Is(other error) bool {
	_, ok := other.(*ArgumentError)
	return ok
}

// FirmwareNotFoundError is returned if no known UEFI firmware is installed.
type FirmwareNotFoundError struct {
	Arch       string
	SecureBoot bool
	Package    string
}

// Error implements the [error] interface.
func (e *FirmwareNotFoundError) Error() string {
	kind := "UEFI firmware"
	if e.SecureBoot {
		kind = "secure boot capable UEFI firmware"
	}

	return fmt.Sprintf("no %s found for %s (install package %q)", kind, e.Arch, e.Package)
}

// Is implements the [errors.Is] interface.
func (*FirmwareNotFoundError) Is(other error) bool {
	_, ok := other.(*FirmwareNotFoundError)
	return ok
}

// QMPError is an error returned by the emulator for a command.
type QMPError struct {
	Class string `json:"class"`
	Desc  string `json:"desc"`
}

// Error implements the [error] interface.
func (e *QMPError) Error() string {
	return "qmp: " + e.Class + ": " + e.Desc
}
