// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capture

import "errors"

var (
	// ErrSourceTimeout is returned if the RFB source is not reachable.
	ErrSourceTimeout = errors.New("capture source not reachable")

	// ErrStopTimeout is returned if the pipeline does not exit after being
	// interrupted.
	ErrStopTimeout = errors.New("capture did not stop in time")

	// ErrRunning is returned if a capture is started twice.
	ErrRunning = errors.New("capture already running")

	// ErrNotRunning is returned if a capture is stopped that was not started.
	ErrNotRunning = errors.New("capture not running")
)
