// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capture

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sys/unix"

	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/retry"
	"github.com/aibor/dutrun/internal/sys"
)

// Default pipeline and timing values.
const (
	DefaultExecutable      = "gst-launch-1.0"
	DefaultConnectInterval = time.Second
	DefaultConnectAttempts = 30
	DefaultPollInterval    = 500 * time.Millisecond
	DefaultStopTimeout     = 10 * time.Second

	framePattern = "%06d.jpg"
)

// Capture is a screen capture pipeline for a single RFB source.
type Capture struct {
	// Address of the RFB source in host:port form.
	Address string
	// Dir receives the frames. It is created on start and removed on
	// teardown.
	Dir string

	Executable      string
	ConnectInterval time.Duration
	ConnectAttempts uint
	PollInterval    time.Duration
	StopTimeout     time.Duration
	Start           sys.StartFunc

	mu   sync.Mutex
	proc *sys.Process
}

// New creates a [Capture] with default settings.
func New(address, dir string) *Capture {
	return &Capture{
		Address:         address,
		Dir:             dir,
		Executable:      DefaultExecutable,
		ConnectInterval: DefaultConnectInterval,
		ConnectAttempts: DefaultConnectAttempts,
		PollInterval:    DefaultPollInterval,
		StopTimeout:     DefaultStopTimeout,
		Start:           sys.StartProcess,
	}
}

// Running reports whether the pipeline process is alive.
func (c *Capture) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.proc != nil && !c.proc.Exited()
}

// Args returns the pipeline arguments.
func (c *Capture) Args() ([]string, error) {
	host, port, err := net.SplitHostPort(c.Address)
	if err != nil {
		return nil, fmt.Errorf("source address: %w", err)
	}

	_, err = strconv.ParseUint(port, 10, 16)
	if err != nil {
		return nil, fmt.Errorf("source port: %w", err)
	}

	return []string{
		"-e",
		"rfbsrc", "host=" + host, "port=" + port,
		"!", "videoconvert",
		"!", "videorate",
		"!", "video/x-raw,framerate=1/1",
		"!", "jpegenc",
		"!", "multifilesink", "location=" + filepath.Join(c.Dir, framePattern),
	}, nil
}

// Begin waits for the RFB source to accept connections and starts the
// pipeline. Existing frames are removed.
func (c *Capture) Begin(ctx context.Context) error {
	if c.Running() {
		return ErrRunning
	}

	ctx = logger.WithName(ctx, "capture")

	args, err := c.Args()
	if err != nil {
		return err
	}

	err = c.waitForSource(ctx)
	if err != nil {
		return err
	}

	err = os.RemoveAll(c.Dir)
	if err != nil {
		return fmt.Errorf("clean frame dir: %w", err)
	}

	err = os.MkdirAll(c.Dir, 0o755)
	if err != nil {
		return fmt.Errorf("create frame dir: %w", err)
	}

	proc, err := c.Start(c.Executable, args, sys.ProcessIO{})
	if err != nil {
		return fmt.Errorf("start pipeline: %w", err)
	}

	c.mu.Lock()
	c.proc = proc
	c.mu.Unlock()

	logger.InfoKV(ctx, "capture started", "source", c.Address, "pid", proc.Pid())

	return nil
}

func (c *Capture) waitForSource(ctx context.Context) error {
	policy := retry.Policy{
		Interval: c.ConnectInterval,
		Attempts: c.ConnectAttempts,
	}

	dialer := net.Dialer{Timeout: c.ConnectInterval}

	err := retry.Do(ctx, policy, func(ctx context.Context) error {
		conn, err := dialer.DialContext(ctx, "tcp", c.Address)
		if err != nil {
			return err
		}

		return conn.Close()
	})
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return fmt.Errorf("%w: %w", ErrSourceTimeout, err)
	}

	return err
}

// Stop interrupts the pipeline so it finalizes the current frame. The
// interrupt is repeated until the process is gone. If it is still alive
// after the stop timeout, it is killed and [ErrStopTimeout] is returned.
func (c *Capture) Stop(ctx context.Context) error {
	c.mu.Lock()
	proc := c.proc
	c.mu.Unlock()

	if proc == nil {
		return ErrNotRunning
	}

	ctx = logger.WithName(ctx, "capture")

	stopCtx, cancel := context.WithTimeout(ctx, c.StopTimeout)
	defer cancel()

	ticker := time.NewTicker(c.PollInterval)
	defer ticker.Stop()

	for alive(ctx, proc) {
		err := proc.Signal(unix.SIGINT)
		if err != nil {
			return err
		}

		select {
		case <-ticker.C:
		case <-proc.Done():
		case <-stopCtx.Done():
			logger.WarnKV(ctx, "capture did not stop, killing", "pid", proc.Pid())

			killErr := proc.Kill()

			return errors.Join(fmt.Errorf("%w: pid %d", ErrStopTimeout, proc.Pid()), killErr)
		}
	}

	c.mu.Lock()
	c.proc = nil
	c.mu.Unlock()

	logger.DebugKV(ctx, "capture stopped")

	return nil
}

// alive checks the run state of the process as seen by the kernel. A zombie
// is considered gone.
func alive(ctx context.Context, proc *sys.Process) bool {
	if proc.Exited() {
		return false
	}

	// The pid is always in int32 range on Linux.
	info, err := process.NewProcessWithContext(ctx, int32(proc.Pid())) //nolint:gosec
	if err != nil {
		return false
	}

	status, err := info.StatusWithContext(ctx)
	if err != nil {
		return !proc.Exited()
	}

	for _, s := range status {
		if s == process.Zombie {
			return false
		}
	}

	return true
}

// Teardown kills the pipeline if it is present and removes the frames.
func (c *Capture) Teardown(ctx context.Context) error {
	c.mu.Lock()
	proc := c.proc
	c.proc = nil
	c.mu.Unlock()

	var errs []error

	if proc != nil {
		err := proc.Kill()
		if err != nil {
			errs = append(errs, err)
		}

		err = proc.Wait(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}

	err := os.RemoveAll(c.Dir)
	if err != nil {
		errs = append(errs, fmt.Errorf("remove frame dir: %w", err))
	}

	return errors.Join(errs...)
}
