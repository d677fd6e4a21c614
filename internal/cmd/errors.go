// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"errors"
	"fmt"
)

var (
	// ErrReadBuildInfo is returned if the build info of the binary is missing.
	ErrReadBuildInfo = errors.New("failed to read build info")

	// ErrInvalidLogLevel is returned for unknown log level names.
	ErrInvalidLogLevel = errors.New("invalid log level")
)

// ExitError is returned if the test run finished with a non-zero exit code.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("run exited with code %d", e.Code)
}

func (*ExitError) Is(other error) bool {
	_, ok := other.(*ExitError)
	return ok
}
