// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import (
	"context"
	"fmt"
	"net/http"

	"github.com/aibor/dutrun/internal/channel"
	"github.com/aibor/dutrun/internal/logger"
)

// handleStart upgrades to the control channel and performs a run: the
// configured artifacts are requested, the suite is run and the device is
// torn down once it finished.
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !s.sink.reserve() {
		respondError(w, ErrSessionActive)
		return
	}
	defer s.sink.release()

	session, err := channel.Accept(w, r, s.ping)
	if err != nil {
		logger.WarnKV(r.Context(), "Control channel not established", "error", err)
		return
	}

	s.sink.attach(session)
	s.metrics.sessions.Inc()
	defer s.metrics.sessions.Dec()

	ctx, cancel := context.WithCancelCause(r.Context())
	defer cancel(nil)

	go func() {
		select {
		case <-session.Done():
			cancel(channel.ErrClosed)
		case <-ctx.Done():
		}
	}()

	s.run(ctx, session)
}

func (s *Server) run(ctx context.Context, session *channel.Session) {
	logger.InfoKV(ctx, "Run started")

	state := s.stateResponse()
	_ = session.Info(fmt.Sprintf("worker ready, device %s", state.State))

	artifacts := make(map[string]string, len(s.artifacts))

	for _, name := range s.artifacts {
		_ = session.Status("requesting " + name)

		path, err := session.RequestUpload(ctx, name)
		if err != nil {
			logger.ErrorKV(ctx, "Run aborted", "artifact", name, "error", err)
			_ = session.Abort(err)

			return
		}

		artifacts[name] = path
	}

	_ = session.Status("running")

	exitCode, err := s.runner.Run(ctx, &Run{
		Artifacts: artifacts,
		Output: func(line string) {
			_ = session.Log(line)
		},
		Inputs: session.Inputs(),
	})

	// Whatever the suite left behind is released before the result is
	// reported.
	s.manager.Teardown(context.WithoutCancel(ctx))

	if err != nil {
		logger.ErrorKV(ctx, "Run failed", "error", err)
		_ = session.Abort(err)

		return
	}

	logger.InfoKV(ctx, "Run finished", "exit_code", exitCode)
	_ = session.Close(exitCode)
}
