// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variables overriding configuration values.
const (
	EnvWorkerURL = "DUTRUN_WORKER_URL"
	EnvLogLevel  = "DUTRUN_LOG_LEVEL"
	EnvListen    = "DUTRUN_LISTEN"
)

// Worker is the configuration of the worker daemon.
type Worker struct {
	// Listen is the address the API is served on.
	Listen   string `yaml:"listen"`
	LogLevel string `yaml:"logLevel"`
	// CacheDir holds the received artifacts.
	CacheDir string `yaml:"cacheDir"`
	// Artifacts are requested from the client at the start of a run.
	Artifacts []string `yaml:"artifacts"`
	// Command runs the test suite. See worker.CommandRunner.
	Command []string `yaml:"command"`
	// WorkDir is the artifact the command is run in.
	WorkDir string `yaml:"workDir"`

	PingInterval    time.Duration `yaml:"pingInterval"`
	TeardownTimeout time.Duration `yaml:"teardownTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DefaultWorker returns the worker configuration used for absent keys.
func DefaultWorker() *Worker {
	return &Worker{
		Listen:          ":8080",
		LogLevel:        "info",
		CacheDir:        filepath.Join(os.TempDir(), "dutrun", "cache"),
		Artifacts:       []string{"suite", "image", "config"},
		WorkDir:         "suite",
		PingInterval:    10 * time.Second,
		TeardownTimeout: 2 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
	}
}

// Validate checks for missing mandatory values.
func (w *Worker) Validate() error {
	switch {
	case w.Listen == "":
		return &Error{Msg: "listen address required"}
	case w.CacheDir == "":
		return &Error{Msg: "cache dir required"}
	case len(w.Command) == 0:
		return &Error{Msg: "suite command required"}
	}

	return nil
}

// ApplyEnv overrides values with those set in the environment.
func (w *Worker) ApplyEnv(lookup func(string) (string, bool)) {
	setFromEnv(lookup, EnvListen, &w.Listen)
	setFromEnv(lookup, EnvLogLevel, &w.LogLevel)
}

// Client is the configuration of the client.
type Client struct {
	WorkerURL string `yaml:"workerUrl"`
	LogLevel  string `yaml:"logLevel"`
	// Suite is the test suite directory.
	Suite string `yaml:"suite"`
	// Image is the OS image file flashed onto the device.
	Image string `yaml:"image"`
	// DeviceType names the type of the device under test.
	DeviceType string `yaml:"deviceType"`
	// Contract is a JSON file describing the device type. Optional.
	Contract string `yaml:"contract"`
	// Config is passed to the suite as is, extended by the device type.
	Config map[string]any `yaml:"config"`
	// Ignore are base names skipped when packing the suite.
	Ignore []string `yaml:"ignore"`
}

// DefaultClient returns the client configuration used for absent keys.
func DefaultClient() *Client {
	return &Client{
		WorkerURL: "http://localhost:8080",
		LogLevel:  "info",
		Suite:     ".",
	}
}

// Validate checks for missing mandatory values.
func (c *Client) Validate() error {
	switch {
	case c.WorkerURL == "":
		return &Error{Msg: "worker URL required"}
	case c.Suite == "":
		return &Error{Msg: "suite required"}
	case c.Image == "":
		return &Error{Msg: "image required"}
	}

	return nil
}

// ApplyEnv overrides values with those set in the environment.
func (c *Client) ApplyEnv(lookup func(string) (string, bool)) {
	setFromEnv(lookup, EnvWorkerURL, &c.WorkerURL)
	setFromEnv(lookup, EnvLogLevel, &c.LogLevel)
}

// Load decodes the YAML file at path into v, which should hold the
// defaults. A missing file is not an error if optional is set. Relative
// paths in the file are not resolved.
func Load(fsys fs.FS, path string, optional bool, v any) error {
	data, err := fs.ReadFile(fsys, path)
	if err != nil {
		if optional && errors.Is(err, fs.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read config: %w", err)
	}

	return Decode(bytes.NewReader(data), v)
}

// Decode decodes YAML from r into v. Unknown keys are an error.
func Decode(r io.Reader, v any) error {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	err := decoder.Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		return &Error{Msg: "decode", Err: err}
	}

	return nil
}

func setFromEnv(lookup func(string) (string, bool), key string, target *string) {
	if value, ok := lookup(key); ok && value != "" {
		*target = value
	}
}
