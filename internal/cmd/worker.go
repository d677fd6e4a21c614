// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aibor/dutrun/internal/config"
	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/vm"
	"github.com/aibor/dutrun/internal/worker"
)

const (
	defaultWorkerConfig = "/etc/dutrun/worker.yaml"
	readHeaderTimeout   = 10 * time.Second
)

type workerFlags struct {
	configFile string
	listen     string
	cacheDir   string
	logLevel   string
}

func (f *workerFlags) load(cmd *cobra.Command) (*config.Worker, error) {
	flags := cmd.Flags()
	cfg := config.DefaultWorker()

	err := loadFile(f.configFile, !flags.Changed("config"), cfg)
	if err != nil {
		return nil, err
	}

	cfg.ApplyEnv(os.LookupEnv)

	if flags.Changed("listen") {
		cfg.Listen = f.listen
	}

	if flags.Changed("cache-dir") {
		cfg.CacheDir = f.cacheDir
	}

	if flags.Changed("log-level") {
		cfg.LogLevel = f.logLevel
	}

	return cfg, nil
}

func newWorkerCommand() *cobra.Command {
	var flags workerFlags

	root := &cobra.Command{
		Use:   WorkerName,
		Short: "Serve the device under test attached to this host",
		Long: `Serve the device under test attached to this host.

The worker exposes the device API and runs test suites submitted by dutrun.
The device is torn down after each run and on shutdown.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := flags.load(cmd)
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

			return runWorker(logger.WithName(cmd.Context(), "worker"), cfg)
		},
	}

	root.Flags().StringVarP(&flags.configFile, "config", "c", defaultWorkerConfig,
		"YAML config file. Optional unless set explicitly")
	root.Flags().StringVarP(&flags.listen, "listen", "l", "",
		"address the API is served on (env "+config.EnvListen+")")
	root.Flags().StringVar(&flags.cacheDir, "cache-dir", "", "directory of the artifact cache")
	root.Flags().StringVar(&flags.logLevel, "log-level", "",
		"log level: debug, info, warn, error (env "+config.EnvLogLevel+")")

	return root
}

func runWorker(ctx context.Context, cfg *config.Worker) error {
	listener, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	manager := device.NewManager(worker.NewFactory(vm.Env{}, nil), cfg.TeardownTimeout)

	runner := &worker.CommandRunner{
		Command: cfg.Command,
		WorkDir: cfg.WorkDir,
		Env:     []string{config.EnvWorkerURL + "=" + localURL(listener.Addr())},
	}

	server := worker.NewServer(manager, runner, worker.Config{
		CacheDir:     cfg.CacheDir,
		Artifacts:    cfg.Artifacts,
		PingInterval: cfg.PingInterval,
	})

	logger.InfoKV(ctx, "Serving", "address", listener.Addr().String())

	return serve(ctx, listener, server, manager, cfg.ShutdownTimeout)
}

// serve runs the HTTP server on listener until ctx is done. The server is
// shut down gracefully within timeout and the device is torn down
// afterwards.
func serve(
	ctx context.Context,
	listener net.Listener,
	handler http.Handler,
	manager *device.Manager,
	timeout time.Duration,
) error {
	server := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		err := server.Serve(listener)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return fmt.Errorf("serve: %w", err)
	})

	group.Go(func() error {
		<-groupCtx.Done()

		logger.InfoKV(ctx, "Shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		err := server.Shutdown(shutdownCtx)

		manager.Teardown(shutdownCtx)

		if err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}

		return nil
	})

	return group.Wait() //nolint:wrapcheck
}

// localURL returns the URL local processes reach the listener on. Wildcard
// addresses are replaced by the IPv4 loopback address.
func localURL(addr net.Addr) string {
	host, port := "127.0.0.1", "8080"

	if tcpAddr, ok := addr.(*net.TCPAddr); ok {
		port = strconv.Itoa(tcpAddr.Port)

		if len(tcpAddr.IP) > 0 && !tcpAddr.IP.IsUnspecified() {
			host = tcpAddr.IP.String()
		}
	}

	return "http://" + net.JoinHostPort(host, port)
}
