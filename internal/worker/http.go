// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/netmgr"
)

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, v any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	err := decoder.Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}

	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if payload != nil {
		_ = json.NewEncoder(w).Encode(payload)
	}
}

func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps errors to HTTP status codes: caller errors to 400, state
// errors to 409 and everything else to 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest),
		device.IsConfigError(err),
		errors.Is(err, &netmgr.ConfigError{}),
		errors.Is(err, device.ErrUnsupported):
		return http.StatusBadRequest
	case errors.Is(err, device.ErrNotResolved):
		return http.StatusNotFound
	case errors.Is(err, device.ErrNoBackend),
		errors.Is(err, device.ErrBusy),
		errors.Is(err, &device.StateError{}),
		errors.Is(err, ErrSessionActive):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// lazyWriter defers the response header until the first write, so errors
// occurring before any output can still be reported with a proper status.
type lazyWriter struct {
	w           http.ResponseWriter
	contentType string
	started     bool
}

func (l *lazyWriter) Write(p []byte) (int, error) {
	if !l.started {
		l.started = true
		l.w.Header().Set("Content-Type", l.contentType)
		l.w.WriteHeader(http.StatusOK)
	}

	return l.w.Write(p) //nolint:wrapcheck
}

func (l *lazyWriter) Flush() {
	if l.started {
		_ = http.NewResponseController(l.w).Flush()
	}
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)

	return n, err //nolint:wrapcheck
}
