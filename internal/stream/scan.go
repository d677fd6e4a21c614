// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Handler is called for every line read by [Scan].
type Handler func(line Line) error

// Scan reads lines from r and calls handle for each non empty one until r is
// exhausted or handle returns an error. Returning [ErrStop] from handle stops
// scanning and Scan returns nil.
//
// The returned bool reports whether at least one line has been handled.
func Scan(r io.Reader, handle Handler) (bool, error) {
	var handled bool

	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		text := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(text) == "" {
			continue
		}

		line, err := ParseLine(text)
		if err != nil {
			return handled, err
		}

		handled = true

		err = handle(line)
		if errors.Is(err, ErrStop) {
			return handled, nil
		}

		if err != nil {
			return handled, err
		}
	}

	err := scanner.Err()
	if err != nil {
		return handled, fmt.Errorf("scan: %w", err)
	}

	return handled, nil
}
