// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"sync"
)

type flusher interface {
	Flush()
}

// Writer writes protocol lines and flushes after each one if the underlying
// writer supports it, like [net/http.ResponseWriter] does. It is safe for
// concurrent use.
type Writer struct {
	mu      sync.Mutex
	w       io.Writer
	flusher flusher
}

// NewWriter creates a new [Writer] writing to w.
func NewWriter(w io.Writer) *Writer {
	f, _ := w.(flusher)

	return &Writer{w: w, flusher: f}
}

// WriteLine writes a single line. Newlines in the value are replaced, so a
// value can never break the framing.
func (w *Writer) WriteLine(key, value string) error {
	value = strings.ReplaceAll(value, "\n", " ")

	w.mu.Lock()
	defer w.mu.Unlock()

	_, err := io.WriteString(w.w, key+separator+value+"\n")
	if err != nil {
		return fmt.Errorf("write %s line: %w", key, err)
	}

	if w.flusher != nil {
		w.flusher.Flush()
	}

	return nil
}

// WriteJSON writes a line with the JSON encoded value.
func (w *Writer) WriteJSON(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal %s line: %w", key, err)
	}

	return w.WriteLine(key, string(data))
}

// WriteError writes an error line.
func (w *Writer) WriteError(err error) error {
	return w.WriteLine(KeyError, err.Error())
}
