// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/sys"
)

// DefaultStopTimeout is the time a canceled command has to exit after
// SIGTERM before it is killed.
const DefaultStopTimeout = 10 * time.Second

// EnvPrefix prefixes the environment variables passed to the command.
const EnvPrefix = "DUTRUN_"

// ErrNoCommand is returned if a [CommandRunner] has no command configured.
var ErrNoCommand = errors.New("no command configured")

// Run is a single execution of the test suite.
type Run struct {
	// Artifacts maps artifact names to their paths on the worker.
	Artifacts map[string]string
	// Output receives the output of the run line by line.
	Output func(line string)
	// Inputs is closed once no more input follows.
	Inputs <-chan string
}

// Runner executes the test suite.
type Runner interface {
	// Run blocks until the suite finished and returns its exit code. An
	// error means the suite could not be run to completion.
	Run(ctx context.Context, run *Run) (int, error)
}

// CommandRunner runs the test suite as external command.
//
// For every artifact, the environment variable DUTRUN_<NAME> is set to its
// path. Stdout and stderr are forwarded line by line, inputs are written to
// stdin.
type CommandRunner struct {
	Command []string
	// WorkDir is the name of the artifact the command runs in. The worker's
	// current directory is used if empty or if the artifact is missing.
	WorkDir string
	// Env is added to the environment of the worker.
	Env         []string
	StopTimeout time.Duration
	Start       sys.StartFunc
}

var _ Runner = (*CommandRunner)(nil)

// Run implements [Runner].
func (r *CommandRunner) Run(ctx context.Context, run *Run) (int, error) {
	if len(r.Command) == 0 {
		return 0, ErrNoCommand
	}

	start := r.Start
	if start == nil {
		start = sys.StartProcess
	}

	stopTimeout := r.StopTimeout
	if stopTimeout <= 0 {
		stopTimeout = DefaultStopTimeout
	}

	stdinReader, stdinWriter, err := os.Pipe()
	if err != nil {
		return 0, fmt.Errorf("stdin pipe: %w", err)
	}

	outputReader, outputWriter, err := os.Pipe()
	if err != nil {
		_ = stdinReader.Close()
		_ = stdinWriter.Close()

		return 0, fmt.Errorf("output pipe: %w", err)
	}

	proc, err := start(r.Command[0], r.Command[1:], sys.ProcessIO{
		Stdin:  stdinReader,
		Stdout: outputWriter,
		Stderr: outputWriter,
		Dir:    run.Artifacts[r.WorkDir],
		Env:    r.environ(run.Artifacts),
	})

	// The child has its own copies now.
	_ = stdinReader.Close()
	_ = outputWriter.Close()

	if err != nil {
		_ = stdinWriter.Close()
		_ = outputReader.Close()

		return 0, err //nolint:wrapcheck
	}

	logger.InfoKV(ctx, "Suite started", "command", r.Command, "pid", proc.Pid())

	var group errgroup.Group

	group.Go(func() error {
		defer outputReader.Close()
		return forwardLines(run.Output, outputReader)
	})

	group.Go(func() error {
		defer stdinWriter.Close()
		forwardInputs(stdinWriter, run.Inputs, proc.Done())

		return nil
	})

	group.Go(func() error {
		select {
		case <-proc.Done():
			return nil
		case <-ctx.Done():
			logger.WarnKV(ctx, "Stopping suite", "cause", context.Cause(ctx))
			return proc.Stop(context.WithoutCancel(ctx), unix.SIGTERM, stopTimeout) //nolint:wrapcheck
		}
	})

	err = group.Wait()
	if err != nil {
		return 0, err //nolint:wrapcheck
	}

	if ctx.Err() != nil {
		return 0, fmt.Errorf("suite canceled: %w", context.Cause(ctx))
	}

	return exitCode(proc.Err())
}

func (r *CommandRunner) environ(artifacts map[string]string) []string {
	env := append(os.Environ(), r.Env...)

	for name, path := range artifacts {
		env = append(env, EnvPrefix+strings.ToUpper(name)+"="+path)
	}

	return env
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() >= 0 {
		return exitErr.ExitCode(), nil
	}

	return 0, fmt.Errorf("suite: %w", err)
}

func forwardLines(output func(string), r io.Reader) error {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		if output != nil {
			output(scanner.Text())
		}
	}

	err := scanner.Err()
	if err != nil {
		return fmt.Errorf("read output: %w", err)
	}

	return nil
}

func forwardInputs(w io.Writer, inputs <-chan string, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case text, ok := <-inputs:
			if !ok {
				return
			}

			if !strings.HasSuffix(text, "\n") {
				text += "\n"
			}

			_, err := io.WriteString(w, text)
			if err != nil {
				return
			}
		}
	}
}
