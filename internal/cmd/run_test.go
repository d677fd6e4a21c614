// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd_test

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/cmd"
	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/worker"
)

type funcRunner func(ctx context.Context, run *worker.Run) (int, error)

func (f funcRunner) Run(ctx context.Context, run *worker.Run) (int, error) {
	return f(ctx, run)
}

func startWorker(t *testing.T, backend device.Backend, runner worker.Runner) string {
	t.Helper()

	manager := device.NewManager(func(context.Context, device.Options) (device.Backend, error) {
		return backend, nil
	}, time.Second)

	server := httptest.NewServer(worker.NewServer(manager, runner, worker.Config{
		CacheDir:     t.TempDir(),
		Artifacts:    []string{"suite", "image", "config"},
		PingInterval: 50 * time.Millisecond,
		Heartbeat:    10 * time.Millisecond,
	}))

	t.Cleanup(func() {
		server.Close()
		manager.Teardown(context.Background())
	})

	return server.URL
}

type result struct {
	exitCode int
	stdout   string
	stderr   string
}

func run(t *testing.T, runFn func(context.Context, []string, cmd.IO) int, args ...string) result {
	t.Helper()

	var stdout, stderr bytes.Buffer

	exitCode := runFn(t.Context(), args, cmd.IO{
		Stdin:  strings.NewReader(""),
		Stdout: &stdout,
		Stderr: &stderr,
	})

	return result{exitCode, stdout.String(), stderr.String()}
}

func TestRunClient(t *testing.T) {
	url := startWorker(t, &device.FakeBackend{}, funcRunner(
		func(_ context.Context, run *worker.Run) (int, error) {
			suite, err := os.ReadFile(filepath.Join(run.Artifacts["suite"], "run.sh"))
			if err != nil {
				return 0, err
			}

			run.Output(strings.TrimSpace(string(suite)))

			return 3, nil
		},
	))

	suiteDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(suiteDir, "run.sh"), []byte("echo ok\n"), 0o600))

	image := filepath.Join(t.TempDir(), "os.img")
	require.NoError(t, os.WriteFile(image, []byte("image"), 0o600))

	res := run(t, cmd.RunClient,
		"--worker", url,
		"--suite", suiteDir,
		"--image", image,
		"--device-type", "genericx86-64",
		"--log-level", "error",
	)

	assert.Equal(t, 3, res.exitCode, res.stderr)
	assert.Equal(t, "echo ok\n", res.stdout)
	assert.Empty(t, res.stderr)
}

func TestRunClientErrors(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedOutput string
	}{
		{
			name:           "unknown flag",
			args:           []string{"--nope"},
			expectedOutput: "Error [dutrun]: unknown flag: --nope\n",
		},
		{
			name:           "missing image",
			args:           []string{"--suite", "."},
			expectedOutput: "Error [dutrun]: config: image required\n",
		},
		{
			name:           "missing explicit config",
			args:           []string{"--config", "/nonexistent/dutrun.yaml"},
			expectedOutput: "Error [dutrun]: read config: ",
		},
		{
			name:           "invalid log level",
			args:           []string{"--image", "os.img", "--log-level", "loud"},
			expectedOutput: "Error [dutrun]: invalid log level: \"loud\"\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, cmd.RunClient, tt.args...)

			assert.Equal(t, -1, res.exitCode)
			assert.True(t, strings.HasPrefix(res.stderr, tt.expectedOutput), res.stderr)
		})
	}
}

func TestDeviceCommands(t *testing.T) {
	backend := &device.FakeBackend{Frames: []byte("frames")}
	url := startWorker(t, backend, nil)

	image := filepath.Join(t.TempDir(), "os.img")
	require.NoError(t, os.WriteFile(image, []byte("image"), 0o600))

	capture := filepath.Join(t.TempDir(), "capture.cpio.gz")

	steps := []struct {
		args           []string
		expectedOutput string
	}{
		{
			args: []string{
				"select", "--type", "blockdev",
				"--options", `{"device":"/dev/null","powerOn":["true"],"powerOff":["true"]}`,
			},
			expectedOutput: "ready (blockdev)\n",
		},
		{
			args:           []string{"flash", image},
			expectedOutput: "flashed " + image + "\n",
		},
		{
			args:           []string{"network", "--nat"},
			expectedOutput: "",
		},
		{
			args:           []string{"on"},
			expectedOutput: "powered-on (blockdev)\n",
		},
		{
			args: []string{"capture", "start"},
		},
		{
			args: []string{"capture", "stop", "--output", capture},
		},
		{
			args:           []string{"off"},
			expectedOutput: "powered-off (blockdev)\n",
		},
		{
			args: []string{"teardown"},
		},
	}

	for _, step := range steps {
		args := append([]string{"device", "--worker", url, "--log-level", "error"}, step.args...)
		res := run(t, cmd.RunClient, args...)

		require.Equal(t, 0, res.exitCode, "%v: %s", step.args, res.stderr)
		assert.Equal(t, step.expectedOutput, res.stdout, step.args)
	}

	frames, err := os.ReadFile(capture)
	require.NoError(t, err)
	assert.Equal(t, "frames", string(frames))

	assert.Equal(t, []string{
		"Setup",
		"Flash",
		"Network",
		"PowerOn",
		"StartCapture",
		"StopCapture",
		"PowerOff",
		"Teardown",
	}, backend.Calls())

	require.Len(t, backend.NetworkConfigs(), 1)
	assert.Equal(t, &device.WiredConfig{NAT: true}, backend.NetworkConfigs()[0].Wired)
}

func TestDeviceCommandErrors(t *testing.T) {
	url := startWorker(t, &device.FakeBackend{}, nil)

	res := run(t, cmd.RunClient, "device", "--worker", url, "on")
	assert.Equal(t, -1, res.exitCode)
	assert.Contains(t, res.stderr, "Error [dutrun]: worker: ")
	assert.Contains(t, res.stderr, "(status 409)")

	res = run(t, cmd.RunClient, "device", "select", "--options", "{")
	assert.Equal(t, -1, res.exitCode)
	assert.Contains(t, res.stderr, "options are not valid JSON")
}

func TestVersion(t *testing.T) {
	for _, runFn := range []func(context.Context, []string, cmd.IO) int{
		cmd.RunClient,
		cmd.RunWorker,
	} {
		res := run(t, runFn, "version")

		require.Equal(t, 0, res.exitCode, res.stderr)
		assert.Contains(t, res.stdout, ": dev\n")
	}
}

func TestRunWorkerErrors(t *testing.T) {
	tests := []struct {
		name           string
		args           []string
		expectedOutput string
	}{
		{
			name:           "missing command",
			args:           []string{"--listen", "127.0.0.1:0"},
			expectedOutput: "Error [dutworker]: config: suite command required\n",
		},
		{
			name:           "unexpected argument",
			args:           []string{"serve"},
			expectedOutput: "Error [dutworker]: unknown command \"serve\"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := run(t, cmd.RunWorker, tt.args...)

			assert.Equal(t, -1, res.exitCode)
			assert.True(t, strings.HasPrefix(res.stderr, tt.expectedOutput), res.stderr)
		})
	}
}
