// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"context"
	"errors"
	"fmt"
	"io"
)

const (
	copyBufferSize = 1 << 20
	// progressStep is the minimum amount of bytes between two reports.
	progressStep = 16 << 20
)

// CopyImage copies the image to dst and reports the progress for the given
// stage. A final report is always sent. The copy is aborted if ctx is done.
func CopyImage(
	ctx context.Context,
	dst io.Writer,
	image Image,
	stage string,
	progress ProgressFunc,
) (int64, error) {
	var (
		buf      = make([]byte, copyBufferSize)
		written  int64
		reported int64
	)

	progress.Report(stage, 0, image.Size)

	for {
		if err := context.Cause(ctx); err != nil {
			return written, err
		}

		n, readErr := image.Read(buf)
		if n > 0 {
			_, err := dst.Write(buf[:n])
			if err != nil {
				return written, fmt.Errorf("write image: %w", err)
			}

			written += int64(n)

			if written-reported >= progressStep {
				progress.Report(stage, written, image.Size)
				reported = written
			}
		}

		if errors.Is(readErr, io.EOF) {
			break
		}

		if readErr != nil {
			return written, fmt.Errorf("read image: %w", readErr)
		}
	}

	total := image.Size
	if total <= 0 {
		total = written
	}

	progress.Report(stage, written, total)

	return written, nil
}
