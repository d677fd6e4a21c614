// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream_test

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/aibor/dutrun/internal/stream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		input       string
		expected    stream.Line
		expectedErr error
	}{
		{
			input:    "upload: start",
			expected: stream.Line{Key: "upload", Value: "start"},
		},
		{
			input:    "error: disk full: no space left",
			expected: stream.Line{Key: "error", Value: "disk full: no space left"},
		},
		{
			input:    "status:",
			expected: stream.Line{Key: "status"},
		},
		{
			input:       "no separator",
			expectedErr: stream.ErrMalformedLine,
		},
		{
			input:       "bad key: value",
			expectedErr: stream.ErrMalformedLine,
		},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			line, err := stream.ParseLine(tt.input)
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expected, line)
		})
	}
}

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (r *flushRecorder) Flush() {
	r.flushes++
}

func TestWriter(t *testing.T) {
	var out flushRecorder

	w := stream.NewWriter(&out)
	require.NoError(t, w.WriteLine(stream.KeyUpload, stream.UploadStart))
	require.NoError(t, w.WriteJSON(stream.KeyProgress, map[string]int{"percentage": 50}))
	require.NoError(t, w.WriteError(errors.New("multi\nline")))

	expected := "upload: start\n" +
		"progress: {\"percentage\":50}\n" +
		"error: multi line\n"
	assert.Equal(t, expected, out.String())
	assert.Equal(t, 3, out.flushes)
}

func TestScan(t *testing.T) {
	input := "upload: start\n\nupload: cache\nupload: done\n"

	var seen []stream.Line

	handled, err := stream.Scan(strings.NewReader(input), func(l stream.Line) error {
		seen = append(seen, l)
		if l.Value == stream.UploadCache {
			return stream.ErrStop
		}

		return nil
	})
	require.NoError(t, err)
	assert.True(t, handled)
	assert.Equal(t, []stream.Line{
		{Key: "upload", Value: "start"},
		{Key: "upload", Value: "cache"},
	}, seen)

	handled, err = stream.Scan(strings.NewReader(""), func(stream.Line) error {
		return nil
	})
	require.NoError(t, err)
	assert.False(t, handled)
}
