// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import (
	"fmt"
	"sync"

	"github.com/aibor/dutrun/internal/channel"
	"github.com/aibor/dutrun/internal/upload"
)

// sessionSink forwards uploads to the session of the active run. There is at
// most one active run per worker.
type sessionSink struct {
	observe func(upload.Received)

	mu       sync.Mutex
	reserved bool
	session  *channel.Session
}

var _ upload.Sink = (*sessionSink)(nil)

// reserve marks a run as active. It returns false if one is active already.
func (s *sessionSink) reserve() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.reserved {
		return false
	}

	s.reserved = true

	return true
}

func (s *sessionSink) attach(session *channel.Session) {
	s.mu.Lock()
	s.session = session
	s.mu.Unlock()
}

func (s *sessionSink) release() {
	s.mu.Lock()
	s.session = nil
	s.reserved = false
	s.mu.Unlock()
}

func (s *sessionSink) current() *channel.Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.session
}

// Authorize implements [upload.Sink].
func (s *sessionSink) Authorize(token, name string) error {
	session := s.current()
	if session == nil {
		return fmt.Errorf("%w for %s: no active run", channel.ErrUnknownToken, name)
	}

	return session.Authorize(token, name) //nolint:wrapcheck
}

// Complete implements [upload.Sink].
func (s *sessionSink) Complete(token string, received upload.Received) {
	if s.observe != nil {
		s.observe(received)
	}

	session := s.current()
	if session != nil {
		session.Complete(token, received)
	}
}
