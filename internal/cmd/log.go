// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"fmt"
	"io"

	"github.com/aibor/dutrun/internal/logger"
)

func setupLogging(writer io.Writer, level string) error {
	zapLevel, ok := logger.ParseLevel(level)
	if !ok {
		return fmt.Errorf("%w: %q", ErrInvalidLogLevel, level)
	}

	logger.Setup(writer, zapLevel)

	return nil
}
