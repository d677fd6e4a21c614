// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	"fmt"
	"strings"
)

// Well known keys.
const (
	KeyUpload   = "upload"
	KeyProgress = "progress"
	KeyStatus   = "status"
	KeyError    = "error"
)

// Well known values of the upload key.
const (
	UploadStart = "start"
	UploadCache = "cache"
	UploadDone  = "done"
)

const separator = ": "

// Line is a single protocol event.
type Line struct {
	Key   string
	Value string
}

// String implements [fmt.Stringer].
func (l Line) String() string {
	return l.Key + separator + l.Value
}

// ParseLine parses a single line without its trailing newline.
func ParseLine(s string) (Line, error) {
	key, value, found := strings.Cut(s, ":")
	if !found || key == "" || strings.ContainsAny(key, " \t") {
		return Line{}, fmt.Errorf("%w: %q", ErrMalformedLine, s)
	}

	return Line{Key: key, Value: strings.TrimSpace(value)}, nil
}
