// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/klauspost/compress/gzip"
	"golang.org/x/sync/errgroup"

	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/stream"
)

// Operation names as used in metrics and logs.
const (
	opSelect       = "select"
	opFlash        = "flash"
	opPowerOn      = "power_on"
	opPowerOff     = "power_off"
	opNetwork      = "network"
	opResolve      = "resolve"
	opStartCapture = "start_capture"
	opStopCapture  = "stop_capture"
	opTeardown     = "teardown"
)

// Status values of the flash stream.
const (
	// StatusFlashing is sent periodically while flashing.
	StatusFlashing = "flashing"
	// StatusDone is the final line of a successful flash.
	StatusDone = "done"
)

// SelectRequest is the body of the select endpoint.
type SelectRequest struct {
	Type    device.Kind     `json:"type"`
	Options json.RawMessage `json:"options,omitempty"`
}

// IPRequest is the body of the IP endpoint. The target may be given as query
// parameter instead.
type IPRequest struct {
	Target string `json:"target"`
}

// IPResponse is returned by the IP endpoint.
type IPResponse struct {
	IP string `json:"ip"`
}

// StateResponse describes the device state.
type StateResponse struct {
	State   device.State `json:"state"`
	Backend device.Kind  `json:"backend,omitempty"`
}

func (s *Server) stateResponse() StateResponse {
	state, kind := s.manager.State()
	return StateResponse{State: state, Backend: kind}
}

// respond answers a device operation with the resulting state or the error.
func (s *Server) respond(ctx context.Context, w http.ResponseWriter, op string, err error) {
	s.metrics.observe(op, err)

	if err != nil {
		logger.WarnKV(ctx, "Operation failed", "operation", op, "error", err)
		respondError(w, err)

		return
	}

	respondJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.stateResponse())
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req SelectRequest

	err := decodeJSON(r, &req)
	if err != nil {
		s.respond(r.Context(), w, opSelect, err)
		return
	}

	opts, err := device.ParseOptions(req.Type, req.Options)
	if err != nil {
		s.respond(r.Context(), w, opSelect, err)
		return
	}

	// Setup must not be interrupted by a client going away, as the manager
	// owns the backend afterwards.
	err = s.manager.Select(context.WithoutCancel(r.Context()), opts)
	s.respond(r.Context(), w, opSelect, err)
}

func (s *Server) handlePowerOn(w http.ResponseWriter, r *http.Request) {
	err := s.manager.PowerOn(context.WithoutCancel(r.Context()))
	s.respond(r.Context(), w, opPowerOn, err)
}

func (s *Server) handlePowerOff(w http.ResponseWriter, r *http.Request) {
	err := s.manager.PowerOff(context.WithoutCancel(r.Context()))
	s.respond(r.Context(), w, opPowerOff, err)
}

func (s *Server) handleNetwork(w http.ResponseWriter, r *http.Request) {
	var config device.NetworkConfig

	err := decodeJSON(r, &config)
	if err == nil {
		err = s.manager.Network(context.WithoutCancel(r.Context()), config)
	}

	s.respond(r.Context(), w, opNetwork, err)
}

func (s *Server) handleIP(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")

	if target == "" {
		var req IPRequest

		err := decodeJSON(r, &req)
		if err != nil {
			s.respond(r.Context(), w, opResolve, err)
			return
		}

		target = req.Target
	}

	if target == "" {
		s.respond(r.Context(), w, opResolve, fmt.Errorf("%w: target required", ErrBadRequest))
		return
	}

	addr, err := device.Resolve(r.Context(), s.resolver, target)
	s.metrics.observe(opResolve, err)

	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, IPResponse{IP: addr.String()})
}

func (s *Server) handleStartCapture(w http.ResponseWriter, r *http.Request) {
	err := s.manager.StartCapture(context.WithoutCancel(r.Context()))
	s.respond(r.Context(), w, opStartCapture, err)
}

func (s *Server) handleStopCapture(w http.ResponseWriter, r *http.Request) {
	out := &lazyWriter{w: w, contentType: "application/gzip"}

	err := s.manager.StopCapture(context.WithoutCancel(r.Context()), out)
	s.metrics.observe(opStopCapture, err)

	switch {
	case err == nil && !out.started:
		w.Header().Set("Content-Type", "application/gzip")
		w.WriteHeader(http.StatusOK)
	case err != nil && !out.started:
		respondError(w, err)
	case err != nil:
		logger.ErrorKV(r.Context(), "Capture archive incomplete", "error", err)
	}
}

func (s *Server) handleTeardown(w http.ResponseWriter, r *http.Request) {
	s.manager.Teardown(context.WithoutCancel(r.Context()))
	s.respond(r.Context(), w, opTeardown, nil)
}

// handleFlash streams the request body onto the device. The response is a
// line stream of progress reports, heartbeat status lines and a final error
// line on failure. Errors before any line was written are answered with a
// regular error response.
func (s *Server) handleFlash(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	body := &countingReader{r: r.Body}
	image := device.Image{Reader: body, Size: r.ContentLength}

	if r.Header.Get("Content-Encoding") == "gzip" {
		decompressed, err := gzip.NewReader(body)
		if err != nil {
			s.respond(ctx, w, opFlash, fmt.Errorf("%w: gzip body: %w", ErrBadRequest, err))
			return
		}
		defer decompressed.Close()

		image = device.Image{Reader: decompressed, Size: -1}
	}

	// Lines are written while the image is still being read.
	_ = http.NewResponseController(w).EnableFullDuplex()

	out := &lazyWriter{w: w, contentType: "text/plain; charset=utf-8"}
	lines := stream.NewWriter(out)
	progress := func(p device.Progress) {
		_ = lines.WriteJSON(stream.KeyProgress, p)
	}

	// Flashing is not canceled if the client goes away. The device would be
	// left in an undefined state otherwise.
	flashCtx := context.WithoutCancel(ctx)
	flashed := make(chan struct{})

	var group errgroup.Group

	group.Go(func() error {
		defer close(flashed)
		return s.manager.Flash(flashCtx, image, progress) //nolint:wrapcheck
	})

	group.Go(func() error {
		s.heartbeats(lines, flashed)
		return nil
	})

	err := group.Wait()
	s.metrics.observe(opFlash, err)
	s.metrics.flashBytes.Add(float64(body.n))

	switch {
	case err != nil && !out.started:
		logger.WarnKV(ctx, "Flash rejected", "error", err)
		respondError(w, err)
	case err != nil:
		logger.ErrorKV(ctx, "Flash failed", "error", err)
		_ = lines.WriteError(err)
	default:
		logger.InfoKV(ctx, "Flash done", "bytes", body.n)
		_ = lines.WriteLine(stream.KeyStatus, StatusDone)
	}
}

func (s *Server) heartbeats(lines *stream.Writer, done <-chan struct{}) {
	ticker := time.NewTicker(s.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			_ = lines.WriteLine(stream.KeyStatus, StatusFlashing)
		}
	}
}
