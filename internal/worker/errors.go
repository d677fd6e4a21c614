// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import "errors"

var (
	// ErrBadRequest is returned for malformed request bodies.
	ErrBadRequest = errors.New("bad request")

	// ErrSessionActive is returned if a run is started while another one is
	// still active.
	ErrSessionActive = errors.New("another run is active")
)
