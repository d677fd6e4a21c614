// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/aibor/dutrun/internal/logger"
)

// Set on build.
var version = "dev"

// Binary names.
const (
	ClientName = "dutrun"
	WorkerName = "dutworker"
)

// IO provides input and output details for the command.
type IO struct {
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// RunClient is the main entry point for the client command. It returns the
// exit code of the test run.
func RunClient(ctx context.Context, args []string, cfg IO) int {
	return execute(ctx, ClientName, newClientCommand(), args, cfg)
}

// RunWorker is the main entry point for the worker daemon.
func RunWorker(ctx context.Context, args []string, cfg IO) int {
	return execute(ctx, WorkerName, newWorkerCommand(), args, cfg)
}

func execute(
	ctx context.Context,
	name string,
	root *cobra.Command,
	args []string,
	cfg IO,
) int {
	root.AddCommand(newVersionCommand(name))
	root.SetArgs(append(EnvArgs(name), args...))
	root.SetIn(cfg.Stdin)
	root.SetOut(cfg.Stdout)
	root.SetErr(cfg.Stderr)
	root.SilenceErrors = true
	root.SilenceUsage = true

	err := root.ExecuteContext(ctx)

	logger.Sync()

	return handleRunError(name, err, cfg.Stderr)
}

func handleRunError(name string, err error, stderr io.Writer) int {
	if err == nil {
		return 0
	}

	// The run itself communicated its exit code, nothing went wrong on our
	// side.
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	fmt.Fprintf(stderr, "Error [%s]: %v\n", name, err)

	return -1
}

func newVersionCommand(name string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			buildInfo, ok := debug.ReadBuildInfo()
			if !ok {
				return ErrReadBuildInfo
			}

			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n\n", name, version)
			fmt.Fprintln(cmd.OutOrStdout(), buildInfo.String())

			return nil
		},
	}
}
