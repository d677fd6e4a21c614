// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capture_test

import (
	"bytes"
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cavaliergopher/cpio"
	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/capture"
	"github.com/aibor/dutrun/internal/sys"
)

// listen returns the address of a TCP listener that accepts and closes
// connections until the test ends.
func listen(t *testing.T) string {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan struct{})

	go func() {
		defer close(done)

		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}

			_ = conn.Close()
		}
	}()

	t.Cleanup(func() {
		_ = listener.Close()
		<-done
	})

	return listener.Addr().String()
}

// shellPipeline returns a [sys.StartFunc] that runs script instead of
// the pipeline. The arguments are written to argsOut.
func shellPipeline(script string, argsOut *[]string) sys.StartFunc {
	return func(_ string, args []string, stdio sys.ProcessIO) (*sys.Process, error) {
		*argsOut = args
		return sys.StartProcess("sh", []string{"-c", script}, stdio)
	}
}

func newCapture(t *testing.T, address, script string, argsOut *[]string) *capture.Capture {
	t.Helper()

	c := capture.New(address, filepath.Join(t.TempDir(), "frames"))
	c.ConnectInterval = 10 * time.Millisecond
	c.ConnectAttempts = 3
	c.PollInterval = 50 * time.Millisecond
	c.StopTimeout = time.Second
	c.Start = shellPipeline(script, argsOut)

	t.Cleanup(func() {
		_ = c.Teardown(context.Background())
	})

	return c
}

func TestArgs(t *testing.T) {
	c := capture.New("127.0.0.1:5901", "/run/dut/frames")

	args, err := c.Args()
	require.NoError(t, err)

	assert.Equal(t,
		"-e rfbsrc host=127.0.0.1 port=5901 ! videoconvert ! videorate ! "+
			"video/x-raw,framerate=1/1 ! jpegenc ! multifilesink location=/run/dut/frames/%06d.jpg",
		strings.Join(args, " "),
	)

	_, err = capture.New("localhost", "/tmp").Args()
	require.Error(t, err)
}

func TestBeginAndStop(t *testing.T) {
	intLog := filepath.Join(t.TempDir(), "interrupts")

	// Exits on the second interrupt only.
	script := "n=0; trap 'echo int >> " + intLog + "; n=$((n+1)); [ $n -ge 2 ] && exit 0' INT; " +
		"while :; do sleep 0.05; done"

	var args []string

	c := newCapture(t, listen(t), script, &args)

	require.NoError(t, c.Begin(t.Context()))
	assert.True(t, c.Running())
	assert.Contains(t, args, "jpegenc")
	assert.DirExists(t, c.Dir)

	require.ErrorIs(t, c.Begin(t.Context()), capture.ErrRunning)

	require.NoError(t, c.Stop(t.Context()))
	assert.False(t, c.Running())

	interrupts, err := os.ReadFile(intLog)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, strings.Count(string(interrupts), "int"), 2)

	require.ErrorIs(t, c.Stop(t.Context()), capture.ErrNotRunning)
}

func TestStopTimeout(t *testing.T) {
	var args []string

	c := newCapture(t, listen(t), "trap '' INT; while :; do sleep 0.05; done", &args)
	c.StopTimeout = 300 * time.Millisecond

	require.NoError(t, c.Begin(t.Context()))

	err := c.Stop(t.Context())
	require.ErrorIs(t, err, capture.ErrStopTimeout)
}

func TestBeginSourceTimeout(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	address := listener.Addr().String()
	require.NoError(t, listener.Close())

	var args []string

	c := newCapture(t, address, "exit 0", &args)

	err = c.Begin(t.Context())
	require.ErrorIs(t, err, capture.ErrSourceTimeout)
	assert.Nil(t, args, "pipeline must not be started")
	assert.False(t, c.Running())
}

func TestArchive(t *testing.T) {
	c := capture.New("127.0.0.1:5900", t.TempDir())

	frames := map[string]string{
		"000002.jpg": "second",
		"000001.jpg": "first",
		"000010.jpg": "tenth",
	}
	for name, content := range frames {
		require.NoError(t, os.WriteFile(filepath.Join(c.Dir, name), []byte(content), 0o600))
	}

	require.NoError(t, os.WriteFile(filepath.Join(c.Dir, "pipeline.log"), nil, 0o600))

	var buf bytes.Buffer
	require.NoError(t, c.Archive(&buf))

	gzipReader, err := gzip.NewReader(&buf)
	require.NoError(t, err)

	archive := cpio.NewReader(gzipReader)

	var names []string

	for {
		header, err := archive.Next()
		if err == io.EOF {
			break
		}

		require.NoError(t, err)

		content, err := io.ReadAll(archive)
		require.NoError(t, err)

		assert.Equal(t, frames[header.Name], string(content), header.Name)

		names = append(names, header.Name)
	}

	assert.Equal(t, []string{"000001.jpg", "000002.jpg", "000010.jpg"}, names)
}

func TestTeardown(t *testing.T) {
	var args []string

	c := newCapture(t, listen(t), "trap '' INT; while :; do sleep 0.05; done", &args)

	require.NoError(t, c.Begin(t.Context()))
	require.NoError(t, c.Teardown(t.Context()))

	assert.False(t, c.Running())
	assert.NoDirExists(t, c.Dir)

	require.NoError(t, c.Teardown(t.Context()))
}
