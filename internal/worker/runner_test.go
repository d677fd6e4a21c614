// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/sys"
	"github.com/aibor/dutrun/internal/worker"
)

type collector struct {
	mu    sync.Mutex
	lines []string
}

func (c *collector) add(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

func (c *collector) all() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string(nil), c.lines...)
}

func TestCommandRunner(t *testing.T) {
	suiteDir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)

	runner := &worker.CommandRunner{
		Command: []string{"sh", "-c", `
			echo "suite=$DUTRUN_SUITE image=$DUTRUN_IMAGE url=$DUTRUN_WORKER_URL"
			pwd
			read line
			echo "input=$line" >&2
			exit 3
		`},
		WorkDir: "suite",
		Env:     []string{"DUTRUN_WORKER_URL=http://127.0.0.1:8080"},
	}

	inputs := make(chan string, 1)
	inputs <- "continue"

	var out collector

	exitCode, err := runner.Run(t.Context(), &worker.Run{
		Artifacts: map[string]string{
			"suite": suiteDir,
			"image": "/cache/image.img",
		},
		Output: out.add,
		Inputs: inputs,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, exitCode)
	assert.Equal(t, []string{
		"suite=" + suiteDir + " image=/cache/image.img url=http://127.0.0.1:8080",
		suiteDir,
		"input=continue",
	}, out.all())
}

func TestCommandRunnerInputsClosed(t *testing.T) {
	runner := &worker.CommandRunner{
		Command: []string{"sh", "-c", "cat; echo eof"},
	}

	inputs := make(chan string, 2)
	inputs <- "a\n"
	inputs <- "b"
	close(inputs)

	var out collector

	exitCode, err := runner.Run(t.Context(), &worker.Run{Output: out.add, Inputs: inputs})
	require.NoError(t, err)
	assert.Equal(t, 0, exitCode)
	assert.Equal(t, []string{"a", "b", "eof"}, out.all())
}

func TestCommandRunnerCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	defer cancel()

	runner := &worker.CommandRunner{
		Command:     []string{"sh", "-c", "trap 'exit 0' TERM; echo ready; while :; do sleep 0.05; done"},
		StopTimeout: time.Second,
	}

	_, err := runner.Run(ctx, &worker.Run{
		Output: func(line string) {
			if line == "ready" {
				cancel()
			}
		},
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestCommandRunnerErrors(t *testing.T) {
	t.Run("no command", func(t *testing.T) {
		_, err := (&worker.CommandRunner{}).Run(t.Context(), &worker.Run{})
		require.ErrorIs(t, err, worker.ErrNoCommand)
	})

	t.Run("missing executable", func(t *testing.T) {
		runner := &worker.CommandRunner{Command: []string{"/nonexistent/suite"}}

		_, err := runner.Run(t.Context(), &worker.Run{})
		require.ErrorIs(t, err, &sys.CommandError{})
	})

	t.Run("killed", func(t *testing.T) {
		runner := &worker.CommandRunner{Command: []string{"sh", "-c", "kill -9 $$"}}

		_, err := runner.Run(t.Context(), &worker.Run{})
		require.ErrorContains(t, err, "killed")
	})
}
