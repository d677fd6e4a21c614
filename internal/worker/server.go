// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/upload"
)

// DefaultHeartbeat is the interval of status lines in the flash stream.
const DefaultHeartbeat = 5 * time.Second

// Config configures a [Server].
type Config struct {
	// CacheDir is the directory of the artifact cache.
	CacheDir string
	// Artifacts are requested from the client in order at the start of each
	// run.
	Artifacts []string
	// PingInterval of the control channel keepalive.
	PingInterval time.Duration
	// Heartbeat is the interval of status lines while flashing.
	Heartbeat time.Duration
	// Resolver for device names. The host resolver if nil.
	Resolver device.HostResolver
}

// Server is the worker HTTP API.
type Server struct {
	manager   *device.Manager
	runner    Runner
	receiver  *upload.Receiver
	sink      *sessionSink
	metrics   *metrics
	resolver  device.HostResolver
	artifacts []string
	ping      time.Duration
	heartbeat time.Duration
	router    chi.Router
}

var _ http.Handler = (*Server)(nil)

// NewServer creates the API for the given device manager. Runs are executed
// with runner.
func NewServer(manager *device.Manager, runner Runner, cfg Config) *Server {
	heartbeat := cfg.Heartbeat
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}

	m := newMetrics()
	sink := &sessionSink{observe: m.observeUpload}

	s := &Server{
		manager:   manager,
		runner:    runner,
		receiver:  upload.NewReceiver(&upload.Cache{Dir: cfg.CacheDir}, sink),
		sink:      sink,
		metrics:   m,
		resolver:  cfg.Resolver,
		artifacts: cfg.Artifacts,
		ping:      cfg.PingInterval,
		heartbeat: heartbeat,
	}

	s.router = s.routes()

	return s
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(withLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.handler())

	r.Post("/select", s.handleSelect)
	r.Post("/teardown", s.handleTeardown)
	r.Post("/upload", s.receiver.ServeHTTP)
	r.Get("/start", s.handleStart)

	r.Route("/dut", func(r chi.Router) {
		r.Post("/on", s.handlePowerOn)
		r.Post("/off", s.handlePowerOff)
		r.Post("/network", s.handleNetwork)
		r.Get("/ip", s.handleIP)
		r.Post("/capture", s.handleStartCapture)
		r.Get("/capture", s.handleStopCapture)
		r.Post("/flash", s.handleFlash)
	})

	return r
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func withLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logger.WithKV(r.Context(),
			"request", middleware.GetReqID(r.Context()),
			"path", r.URL.Path,
		)
		logger.DebugKV(ctx, "Request", "method", r.Method, "remote", r.RemoteAddr)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
