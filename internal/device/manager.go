// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/aibor/dutrun/internal/logger"
)

// DefaultTeardownTimeout bounds [Manager.Teardown].
const DefaultTeardownTimeout = 2 * time.Minute

// Factory constructs the backend for the given options.
type Factory func(ctx context.Context, opts Options) (Backend, error)

// Manager holds the single active backend of a worker and forwards control
// operations to it.
type Manager struct {
	factory         Factory
	teardownTimeout time.Duration

	// raise re-raises a signal after signal triggered teardown.
	raise func(os.Signal)

	mu       sync.Mutex
	backend  Backend
	kind     Kind
	state    State
	flashing bool
	watcher  *signalWatcher
}

// NewManager creates a new [Manager] constructing backends with factory.
func NewManager(factory Factory, teardownTimeout time.Duration) *Manager {
	if teardownTimeout <= 0 {
		teardownTimeout = DefaultTeardownTimeout
	}

	return &Manager{
		factory:         factory,
		teardownTimeout: teardownTimeout,
		raise:           reraise,
	}
}

// State returns the current lifecycle state and the kind of the active
// backend.
func (m *Manager) State() (State, Kind) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.state, m.kind
}

// Select tears down the active backend, if any, and sets up a new one for
// the given options. Further operations are accepted only after setup
// succeeded.
func (m *Manager) Select(ctx context.Context, opts Options) error {
	m.Teardown(ctx)

	ctx = logger.WithKV(ctx, "backend", opts.Kind())

	backend, err := m.factory(ctx, opts)
	if err != nil {
		return fmt.Errorf("create %s backend: %w", opts.Kind(), err)
	}

	err = backend.Setup(ctx)
	if err != nil {
		// Setup may have acquired resources before failing.
		m.teardownBackend(ctx, backend)
		return fmt.Errorf("setup %s backend: %w", opts.Kind(), err)
	}

	m.mu.Lock()
	m.backend = backend
	m.kind = opts.Kind()
	m.state = StateReady
	m.watcher = watchSignals(func(sig os.Signal) {
		m.teardownOnSignal(ctx, sig)
	})
	m.mu.Unlock()

	logger.InfoKV(ctx, "Backend ready")

	return nil
}

// Flash writes the image. Only one flash may run at a time. A concurrent
// call fails with [ErrBusy].
func (m *Manager) Flash(ctx context.Context, image Image, progress ProgressFunc) error {
	backend, err := m.acquire(opFlash, func() error {
		if m.flashing {
			return ErrBusy
		}

		m.flashing = true
		m.state = StateFlashing

		return nil
	})
	if err != nil {
		return err
	}

	defer func() {
		m.mu.Lock()
		m.flashing = false
		m.mu.Unlock()
	}()

	return backend.Flash(ctx, image, progress) //nolint:wrapcheck
}

// PowerOn boots the device.
func (m *Manager) PowerOn(ctx context.Context) error {
	return m.forward(ctx, opPowerOn, StatePoweredOn, Backend.PowerOn)
}

// PowerOff shuts the device down.
func (m *Manager) PowerOff(ctx context.Context) error {
	return m.forward(ctx, opPowerOff, StatePoweredOff, Backend.PowerOff)
}

// Network applies the network configuration. It does not change the power
// state.
func (m *Manager) Network(ctx context.Context, config NetworkConfig) error {
	return m.forward(ctx, opNetwork, -1, func(b Backend, ctx context.Context) error {
		return b.Network(ctx, config)
	})
}

// StartCapture starts capturing the device's screen.
func (m *Manager) StartCapture(ctx context.Context) error {
	return m.forward(ctx, opStartCapture, -1, Backend.StartCapture)
}

// StopCapture stops capturing and writes the frame archive to w.
func (m *Manager) StopCapture(ctx context.Context, w io.Writer) error {
	return m.forward(ctx, opStopCapture, -1, func(b Backend, ctx context.Context) error {
		return b.StopCapture(ctx, w)
	})
}

// Teardown releases the active backend. It is safe to call at any time and
// repeatedly. It waits at most for the teardown timeout. Failures are logged
// and not returned.
func (m *Manager) Teardown(ctx context.Context) {
	m.mu.Lock()
	backend := m.detach()
	watcher := m.watcher
	m.watcher = nil
	m.mu.Unlock()

	if watcher != nil {
		watcher.close()
	}

	if backend != nil {
		m.teardownBackend(ctx, backend)
	}
}

func (m *Manager) teardownOnSignal(ctx context.Context, sig os.Signal) {
	logger.WarnKV(ctx, "Received signal, tearing down", "signal", sig)

	// The watcher stays registered, so a concurrent [Manager.Teardown] waits
	// for this one to finish.
	m.mu.Lock()
	backend := m.detach()
	m.mu.Unlock()

	if backend != nil {
		m.teardownBackend(context.WithoutCancel(ctx), backend)
	}

	m.raise(sig)
}

// detach removes the backend from the manager. Must be called with the lock
// held.
func (m *Manager) detach() Backend {
	backend := m.backend
	m.backend = nil
	m.kind = ""

	if backend != nil {
		m.state = StateTornDown
	}

	return backend
}

func (m *Manager) teardownBackend(ctx context.Context, backend Backend) {
	ctx, cancel := context.WithTimeout(ctx, m.teardownTimeout)
	defer cancel()

	done := make(chan error, 1)

	go func() {
		done <- backend.Teardown(ctx)
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorKV(ctx, "Teardown incomplete", "error", err)
		} else {
			logger.InfoKV(ctx, "Backend torn down")
		}
	case <-ctx.Done():
		logger.ErrorKV(ctx, "Teardown timed out", "timeout", m.teardownTimeout)
	}
}

// acquire returns the active backend if op is valid in the current state.
// The check function may apply further checks and state changes while the
// lock is held.
func (m *Manager) acquire(op string, check func() error) (Backend, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.backend == nil {
		return nil, ErrNoBackend
	}

	err := checkTransition(op, m.state)
	if err != nil {
		return nil, err
	}

	if check != nil {
		err := check()
		if err != nil {
			return nil, err
		}
	}

	return m.backend, nil
}

// forward calls fn on the active backend and moves to the target state on
// success. A negative target leaves the state unchanged.
func (m *Manager) forward(
	ctx context.Context,
	op string,
	target State,
	fn func(Backend, context.Context) error,
) error {
	backend, err := m.acquire(op, nil)
	if err != nil {
		return err
	}

	err = fn(backend, ctx)
	if err != nil {
		return err
	}

	if target >= 0 {
		m.mu.Lock()
		// The backend might have been replaced or torn down meanwhile.
		if m.backend == backend {
			m.state = target
		}
		m.mu.Unlock()
	}

	return nil
}
