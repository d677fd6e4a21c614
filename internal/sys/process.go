// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// ErrStopTimeout is returned if a process does not exit in time.
var ErrStopTimeout = errors.New("process did not exit in time")

// Process is a long running child process in its own process group. The
// process is killed if the worker dies.
type Process struct {
	cmd  *exec.Cmd
	done chan struct{}
	err  error
}

// ProcessIO is the standard IO and environment of a [Process]. Nil writers
// discard output.
type ProcessIO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
	// Dir is the working directory. The current one if empty.
	Dir string
	// Env is the environment. The worker's one if nil.
	Env []string
}

// StartFunc starts a long running process. It allows replacing
// [StartProcess] in tests.
type StartFunc func(name string, args []string, stdio ProcessIO) (*Process, error)

// StartProcess starts the named executable. The process lifetime is not bound
// to a context. Use [Process.Stop] or [Process.Kill] to end it.
func StartProcess(name string, args []string, stdio ProcessIO) (*Process, error) {
	cmd := exec.Command(name, args...)
	cmd.Stdin = stdio.Stdin
	cmd.Stdout = stdio.Stdout
	cmd.Stderr = stdio.Stderr
	cmd.Dir = stdio.Dir
	cmd.Env = stdio.Env
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setpgid:   true,
		Pdeathsig: syscall.SIGKILL,
	}

	err := cmd.Start()
	if err != nil {
		return nil, &CommandError{Name: name, Args: args, Err: err}
	}

	proc := &Process{
		cmd:  cmd,
		done: make(chan struct{}),
	}

	go func() {
		proc.err = cmd.Wait()
		close(proc.done)
	}()

	return proc, nil
}

// Pid returns the process ID.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

// Done is closed once the process exited.
func (p *Process) Done() <-chan struct{} {
	return p.done
}

// Exited reports whether the process exited already.
func (p *Process) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Err returns the exit error. Only valid after the process exited.
func (p *Process) Err() error {
	<-p.done
	return p.err
}

// Signal sends the signal to the process group.
func (p *Process) Signal(sig unix.Signal) error {
	if p.Exited() {
		return nil
	}

	err := unix.Kill(-p.Pid(), sig)
	if err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("signal %s to %d: %w", unix.SignalName(sig), p.Pid(), err)
	}

	return nil
}

// Kill kills the process group immediately.
func (p *Process) Kill() error {
	return p.Signal(unix.SIGKILL)
}

// Wait waits for the process to exit or ctx to be done.
func (p *Process) Wait(ctx context.Context) error {
	select {
	case <-p.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("wait for %d: %w", p.Pid(), context.Cause(ctx))
	}
}

// Stop sends sig and waits for the process to exit. If it does not exit
// within timeout, it is killed. [ErrStopTimeout] is returned if it does not
// exit after the kill either.
func (p *Process) Stop(ctx context.Context, sig unix.Signal, timeout time.Duration) error {
	err := p.Signal(sig)
	if err != nil {
		return err
	}

	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.Wait(waitCtx) == nil {
		return nil
	}

	err = p.Kill()
	if err != nil {
		return err
	}

	killCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if p.Wait(killCtx) != nil {
		return fmt.Errorf("%w: pid %d", ErrStopTimeout, p.Pid())
	}

	return nil
}
