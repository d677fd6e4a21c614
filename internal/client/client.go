// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/aibor/dutrun/internal/artifact"
	"github.com/aibor/dutrun/internal/channel"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/upload"
)

// Client runs a test suite on a worker.
type Client struct {
	// WorkerURL is the base URL of the worker API, like
	// "http://worker:8080".
	WorkerURL string
	// HTTPClient is used for uploads. [http.DefaultClient] if nil.
	HTTPClient *http.Client
	Artifacts  map[string]*artifact.Artifact
	// Input is forwarded line by line to the run. Optional.
	Input io.Reader
	// Output receives the log lines of the run.
	Output io.Writer
	// Progress is called while uploading artifacts. Optional.
	Progress upload.ProgressFunc
}

// Run starts a run on the worker and returns its exit code once the worker
// finished it.
func (c *Client) Run(ctx context.Context) (int, error) {
	channelURL, err := endpoint(c.WorkerURL, "/start", true)
	if err != nil {
		return 0, err
	}

	uploadURL, err := endpoint(c.WorkerURL, "/upload", false)
	if err != nil {
		return 0, err
	}

	conn, err := channel.Dial(ctx, channelURL, nil)
	if err != nil {
		return 0, err //nolint:wrapcheck
	}

	logger.InfoKV(ctx, "Connected to worker", "url", c.WorkerURL)

	uploader := upload.NewUploader(uploadURL, c.HTTPClient)
	uploader.Progress = c.Progress

	if c.Input != nil {
		go forwardInput(ctx, conn, c.Input)
	}

	return conn.Run(ctx, &handler{ //nolint:wrapcheck
		uploader:  uploader,
		artifacts: c.Artifacts,
		output:    c.Output,
		log:       logger.FromContext(ctx),
	})
}

// endpoint returns the URL of the API path. With websocket, the scheme is
// switched to its WebSocket counterpart.
func endpoint(base, path string, websocket bool) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("worker URL: %w", err)
	}

	if websocket {
		switch u.Scheme {
		case "https":
			u.Scheme = "wss"
		default:
			u.Scheme = "ws"
		}
	}

	u.Path = strings.TrimSuffix(u.Path, "/") + path

	return u.String(), nil
}

func forwardInput(ctx context.Context, conn *channel.Conn, r io.Reader) {
	scanner := bufio.NewScanner(r)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}

		err := conn.SendInput(scanner.Text())
		if err != nil {
			logger.DebugKV(ctx, "Input not forwarded", "error", err)
			return
		}
	}
}
