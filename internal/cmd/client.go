// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/aibor/dutrun/internal/client"
	"github.com/aibor/dutrun/internal/config"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/upload"
)

const defaultClientConfig = "dutrun.yaml"

type clientFlags struct {
	configFile string
	workerURL  string
	logLevel   string
	suite      string
	image      string
	deviceType string
	contract   string
}

func (f *clientFlags) addPersistent(flags *pflag.FlagSet) {
	flags.StringVarP(&f.configFile, "config", "c", defaultClientConfig,
		"YAML config file. Optional unless set explicitly")
	flags.StringVarP(&f.workerURL, "worker", "w", "",
		"base URL of the worker API (env "+config.EnvWorkerURL+")")
	flags.StringVar(&f.logLevel, "log-level", "",
		"log level: debug, info, warn, error (env "+config.EnvLogLevel+")")
}

func (f *clientFlags) addRun(flags *pflag.FlagSet) {
	flags.StringVarP(&f.suite, "suite", "s", "", "test suite directory")
	flags.StringVarP(&f.image, "image", "i", "", "OS image flashed onto the device")
	flags.StringVar(&f.deviceType, "device-type", "", "type of the device under test")
	flags.StringVar(&f.contract, "contract", "", "JSON file describing the device type")
}

// load assembles the configuration. Flags take precedence over the
// environment, which takes precedence over the config file.
func (f *clientFlags) load(flags *pflag.FlagSet) (*config.Client, error) {
	cfg := config.DefaultClient()

	err := loadFile(f.configFile, !flags.Changed("config"), cfg)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.LookupEnv)

	for _, v := range []struct {
		name  string
		value string
		dest  *string
	}{
		{"worker", f.workerURL, &cfg.WorkerURL},
		{"log-level", f.logLevel, &cfg.LogLevel},
		{"suite", f.suite, &cfg.Suite},
		{"image", f.image, &cfg.Image},
		{"device-type", f.deviceType, &cfg.DeviceType},
		{"contract", f.contract, &cfg.Contract},
	} {
		if flags.Changed(v.name) {
			*v.dest = v.value
		}
	}

	return cfg, nil
}

func loadFile(path string, optional bool, v any) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err //nolint:wrapcheck
	}

	dir, file := filepath.Split(abs)

	return config.Load(os.DirFS(dir), file, optional, v) //nolint:wrapcheck
}

func newClientCommand() *cobra.Command {
	var flags clientFlags

	root := &cobra.Command{
		Use:   ClientName,
		Short: "Run a test suite against a device attached to a worker",
		Long: `Run a test suite against a device attached to a worker.

The suite directory, the OS image and the suite config are uploaded to the
worker, which runs the suite and streams its output back. The exit code is
the one of the suite.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd.Flags())
			if err != nil {
				return err
			}

			err = cfg.Validate()
			if err != nil {
				return err //nolint:wrapcheck
			}

			err = setupLogging(cmd.ErrOrStderr(), cfg.LogLevel)
			if err != nil {
				return err
			}

			return runClient(cmd, cfg)
		},
	}

	flags.addPersistent(root.PersistentFlags())
	flags.addRun(root.Flags())

	root.AddCommand(newDeviceCommand(&flags))

	return root
}

func runClient(cmd *cobra.Command, cfg *config.Client) error {
	ctx := logger.WithName(cmd.Context(), "client")

	artifacts, err := client.Resolve(cfg)
	if err != nil {
		return err //nolint:wrapcheck
	}

	c := &client.Client{
		WorkerURL: cfg.WorkerURL,
		Artifacts: artifacts,
		Input:     cmd.InOrStdin(),
		Output:    cmd.OutOrStdout(),
		Progress:  uploadProgress(ctx),
	}

	exitCode, err := c.Run(ctx)
	if err != nil {
		return err //nolint:wrapcheck
	}

	if exitCode != 0 {
		return &ExitError{Code: exitCode}
	}

	return nil
}

// uploadProgress logs upload progress in steps of ten percent.
func uploadProgress(ctx context.Context) upload.ProgressFunc {
	var (
		mu   sync.Mutex
		last = map[string]int64{}
	)

	return func(name string, sent, total int64) {
		if total <= 0 {
			return
		}

		step := sent * 10 / total

		mu.Lock()
		defer mu.Unlock()

		if prev, seen := last[name]; seen && prev == step {
			return
		}

		last[name] = step

		logger.InfoKV(ctx, "Uploading", "artifact", name, "percent", step*10)
	}
}
