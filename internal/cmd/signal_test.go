// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd_test

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"

	"github.com/aibor/dutrun/internal/cmd"
	"github.com/aibor/dutrun/internal/device"
)

const signalChildEnv = "DUTRUN_SIGNAL_CHILD"

func TestNotifyContext(t *testing.T) {
	ctx, cancel := cmd.NotifyContext(t.Context())
	defer cancel()

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGINT))

	select {
	case <-ctx.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("context not canceled")
	}
}

// slowTeardownBackend finishes teardown only after the signal context is
// done, so the re-raised signal arrives with no handler left.
type slowTeardownBackend struct {
	*device.FakeBackend

	ctx context.Context
}

func (b *slowTeardownBackend) Teardown(ctx context.Context) error {
	<-b.ctx.Done()
	time.Sleep(100 * time.Millisecond)

	return b.FakeBackend.Teardown(ctx)
}

// runSignalChild registers the worker signal handling and signals itself.
// The re-raised signal must terminate the process.
func runSignalChild() {
	ctx, cancel := cmd.NotifyContext(context.Background())
	defer cancel()

	manager := device.NewManager(func(context.Context, device.Options) (device.Backend, error) {
		return &slowTeardownBackend{FakeBackend: &device.FakeBackend{}, ctx: ctx}, nil
	}, 5*time.Second)

	err := manager.Select(context.Background(), device.DefaultQemuOptions())
	if err != nil {
		os.Exit(3)
	}

	_ = unix.Kill(unix.Getpid(), unix.SIGTERM)

	time.Sleep(10 * time.Second)
	os.Exit(0)
}

func TestNotifyContextRepeatedSignalTerminates(t *testing.T) {
	if os.Getenv(signalChildEnv) == "1" {
		runSignalChild()
		return
	}

	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Second)
	defer cancel()

	//nolint:gosec
	child := exec.CommandContext(ctx, os.Args[0], "-test.run=^TestNotifyContextRepeatedSignalTerminates$")
	child.Env = append(os.Environ(), signalChildEnv+"=1")

	err := child.Run()

	var exitErr *exec.ExitError
	require.True(t, errors.As(err, &exitErr), "child must not exit cleanly: %v", err)

	status, ok := exitErr.Sys().(syscall.WaitStatus)
	require.True(t, ok)
	assert.True(t, status.Signaled(), "child must be terminated by signal")
	assert.Equal(t, unix.SIGTERM, status.Signal())
}
