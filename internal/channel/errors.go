// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package channel

import (
	"errors"
)

var (
	// ErrClosed is returned for operations on a closed channel.
	ErrClosed = errors.New("channel closed")

	// ErrUnknownToken is returned if an upload token was not issued by the
	// session or was already used.
	ErrUnknownToken = errors.New("unknown upload token")
)

// ProtocolError is a fatal violation of the channel protocol, like a
// malformed message or an unknown artifact name.
type ProtocolError struct {
	Msg string
}

// Error implements the [error] interface.
func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Msg
}

// Is implements the [errors.Is] interface.
func (*ProtocolError) Is(other error) bool {
	_, ok := other.(*ProtocolError)
	return ok
}
