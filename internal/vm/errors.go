// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm

import "errors"

var (
	// ErrFlashTimeout is returned if a flasher image did not finish in time.
	ErrFlashTimeout = errors.New("flasher did not finish in time")

	// ErrNotFlashed is returned on power on before any image was flashed.
	ErrNotFlashed = errors.New("no image flashed")
)
