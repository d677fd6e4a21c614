// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package upload

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/stream"
)

// Received describes the outcome of an upload on the worker side.
type Received struct {
	Name   string
	Hash   string
	Path   string
	Cached bool
	Err    error
}

// Sink authorizes uploads and is told about their outcome.
type Sink interface {
	// Authorize checks that the token was issued for the named artifact.
	Authorize(token, name string) error
	// Complete is called once for every authorized upload.
	Complete(token string, received Received)
}

// Receiver is the worker's upload endpoint.
type Receiver struct {
	Cache *Cache
	Sink  Sink

	mu     sync.Mutex
	active map[string]struct{}
}

var _ http.Handler = (*Receiver)(nil)

// NewReceiver creates a new [Receiver] storing into the given cache.
func NewReceiver(cache *Cache, sink Sink) *Receiver {
	return &Receiver{Cache: cache, Sink: sink}
}

// ServeHTTP implements [http.Handler].
func (h *Receiver) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	name := req.Header.Get(HeaderName)
	hash := req.Header.Get(HeaderHash)
	token := req.Header.Get(HeaderToken)
	ctx := logger.WithKV(req.Context(), "artifact", name, "hash", hash)

	if name == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("missing %s header", HeaderName))
		return
	}

	err := ValidateHash(hash)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	err = h.Sink.Authorize(token, name)
	if err != nil {
		writeError(w, http.StatusForbidden, err)
		return
	}

	if !h.acquire(name) {
		err := fmt.Errorf("%w: %s", ErrUploadInProgress, name)
		writeError(w, http.StatusConflict, err)
		h.Sink.Complete(token, Received{Name: name, Hash: hash, Err: err})

		return
	}
	defer h.release(name)

	received := h.receive(ctx, w, req, name, hash)
	h.Sink.Complete(token, received)
}

func (h *Receiver) receive(
	ctx context.Context,
	w http.ResponseWriter,
	req *http.Request,
	name, hash string,
) Received {
	received := Received{Name: name, Hash: hash}

	// Status lines are written while the body is still being read.
	_ = http.NewResponseController(w).EnableFullDuplex()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)

	lines := stream.NewWriter(w)

	if path, ok := h.Cache.Lookup(hash); ok {
		logger.InfoKV(ctx, "Artifact cache hit")

		received.Path = path
		received.Cached = true
		_ = lines.WriteLine(stream.KeyUpload, stream.UploadCache)

		return received
	}

	_ = lines.WriteLine(stream.KeyUpload, stream.UploadStart)

	path, err := h.Cache.Store(hash, name, req.Body)
	if err != nil {
		logger.ErrorKV(ctx, "Storing artifact failed", "error", err)

		received.Err = err
		_ = lines.WriteError(err)

		return received
	}

	logger.InfoKV(ctx, "Artifact stored", "path", path)

	received.Path = path
	_ = lines.WriteLine(stream.KeyUpload, stream.UploadDone)

	return received
}

func (h *Receiver) acquire(name string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.active[name]; exists {
		return false
	}

	if h.active == nil {
		h.active = make(map[string]struct{})
	}

	h.active[name] = struct{}{}

	return true
}

func (h *Receiver) release(name string) {
	h.mu.Lock()
	delete(h.active, name)
	h.mu.Unlock()
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_ = stream.NewWriter(w).WriteError(err)
}
