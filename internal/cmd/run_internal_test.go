// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/config"
	"github.com/aibor/dutrun/internal/device"
)

func TestHandleRunError(t *testing.T) {
	tests := []struct {
		name             string
		err              error
		expectedExitCode int
		expectedOutput   string
	}{
		{
			name: "no error",
		},
		{
			name:             "run exit code",
			err:              fmt.Errorf("run: %w", &ExitError{Code: 42}),
			expectedExitCode: 42,
		},
		{
			name:             "config error",
			err:              &config.Error{Msg: "image required"},
			expectedExitCode: -1,
			expectedOutput:   "Error [dutrun]: config: image required\n",
		},
		{
			name:             "any error",
			err:              assert.AnError,
			expectedExitCode: -1,
			expectedOutput: "Error [dutrun]: " +
				"assert.AnError general error for testing\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var stdErr bytes.Buffer
			actualExitCode := handleRunError(ClientName, tt.err, &stdErr)

			assert.Equal(t, tt.expectedExitCode, actualExitCode,
				"exit code should be as expected")
			assert.Equal(t, tt.expectedOutput, stdErr.String(),
				"stderr output should be as expected")
		})
	}
}

func TestLocalURL(t *testing.T) {
	tests := []struct {
		name     string
		addr     net.Addr
		expected string
	}{
		{
			name:     "wildcard",
			addr:     &net.TCPAddr{IP: net.IPv4zero, Port: 8080},
			expected: "http://127.0.0.1:8080",
		},
		{
			name:     "no address",
			addr:     &net.TCPAddr{Port: 9000},
			expected: "http://127.0.0.1:9000",
		},
		{
			name:     "specific ipv6",
			addr:     &net.TCPAddr{IP: net.IPv6loopback, Port: 9000},
			expected: "http://[::1]:9000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, localURL(tt.addr))
		})
	}
}

func TestServe(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	backend := &device.FakeBackend{}
	manager := device.NewManager(func(context.Context, device.Options) (device.Backend, error) {
		return backend, nil
	}, time.Second)

	require.NoError(t, manager.Select(t.Context(), &device.BlockDeviceOptions{
		Device:   "/dev/null",
		PowerOn:  []string{"true"},
		PowerOff: []string{"true"},
	}))

	handler := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, "ok")
	})

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)

	go func() {
		done <- serve(ctx, listener, handler, manager, time.Second)
	}()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}

	resp, err := client.Get("http://" + listener.Addr().String())
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, "ok", string(body))

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server not shut down")
	}

	assert.Equal(t, []string{"Setup", "Teardown"}, backend.Calls())
}
