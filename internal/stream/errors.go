// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import "errors"

var (
	// ErrMalformedLine is returned if a line does not have the form
	// "key: value".
	ErrMalformedLine = errors.New("malformed line")

	// ErrStop can be returned by a [Handler] to stop scanning without an
	// error.
	ErrStop = errors.New("stop scanning")
)
