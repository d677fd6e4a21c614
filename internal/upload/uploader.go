// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/aibor/dutrun/internal/artifact"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/stream"
)

// ProgressFunc is called while the artifact body is sent. Sent is the number
// of compressed bytes handed to the connection, total the uncompressed
// content size of the artifact.
type ProgressFunc func(name string, sent, total int64)

// Result describes a finished upload.
type Result struct {
	Hash   string
	Cached bool
	// Sent is the number of compressed bytes handed to the connection.
	Sent int64
}

// Uploader sends artifacts to a worker's upload endpoint.
type Uploader struct {
	// URL of the upload endpoint.
	URL string
	// Client used for requests. [http.DefaultClient] if nil.
	Client   *http.Client
	Progress ProgressFunc

	mu     sync.Mutex
	active map[string]struct{}
}

// NewUploader creates a new [Uploader] for the given endpoint.
func NewUploader(url string, client *http.Client) *Uploader {
	return &Uploader{URL: url, Client: client}
}

// Upload hashes and sends the artifact.
//
// If the worker already has an artifact with the same hash, sending stops
// as soon as the worker says so and the result is marked as cached. Only one
// upload per artifact name may be in flight at a time. A concurrent one fails
// with [ErrUploadInProgress].
func (u *Uploader) Upload(
	ctx context.Context,
	art *artifact.Artifact,
	token string,
) (Result, error) {
	err := u.acquire(art.Name)
	if err != nil {
		return Result{}, err
	}
	defer u.release(art.Name)

	hash, err := artifact.Hash(art)
	if err != nil {
		return Result{}, fmt.Errorf("hash: %w", err)
	}

	ctx = logger.WithKV(ctx, "artifact", art.Name, "hash", hash)

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	stage := newDetachableReader(artifact.Open(ctx, art), func(sent int64) {
		if u.Progress != nil {
			u.Progress(art.Name, sent, art.Size)
		}
	})
	defer stage.detach()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.URL, stage)
	if err != nil {
		return Result{}, fmt.Errorf("request: %w", err)
	}

	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/gzip")
	req.Header.Set(HeaderName, art.Name)
	req.Header.Set(HeaderHash, hash)
	req.Header.Set(HeaderToken, token)

	resp, err := u.client().Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("send %s: %w", art.Name, err)
	}

	defer func() {
		// Closing the body of an unfinished exchange tears the connection
		// down, which is what we want after a cache hit.
		_ = resp.Body.Close()
	}()

	result := Result{Hash: hash}

	if resp.StatusCode != http.StatusOK {
		return result, remoteError(resp)
	}

	handled, err := stream.Scan(resp.Body, func(line stream.Line) error {
		switch {
		case line.Key == stream.KeyError:
			return &RemoteError{StatusCode: resp.StatusCode, Msg: line.Value}
		case line.Key != stream.KeyUpload:
			return fmt.Errorf("%w: unexpected line %q", ErrProtocol, line)
		}

		switch line.Value {
		case stream.UploadStart:
			logger.DebugKV(ctx, "Upload started")
			return nil
		case stream.UploadCache:
			stage.detach()

			result.Cached = true

			logger.DebugKV(ctx, "Artifact cached on worker", "sent", stage.sent())

			return stream.ErrStop
		case stream.UploadDone:
			return stream.ErrStop
		default:
			return fmt.Errorf("%w: unexpected upload state %q", ErrProtocol, line.Value)
		}
	})

	result.Sent = stage.sent()

	if err != nil {
		cancel(err)
		return result, fmt.Errorf("upload %s: %w", art.Name, err)
	}

	if !handled {
		logger.DebugKV(ctx, "Worker closed stream without status, assuming done")
	}

	if u.Progress != nil && !result.Cached {
		u.Progress(art.Name, art.Size, art.Size)
	}

	return result, nil
}

func (u *Uploader) client() *http.Client {
	if u.Client != nil {
		return u.Client
	}

	return http.DefaultClient
}

func (u *Uploader) acquire(name string) error {
	u.mu.Lock()
	defer u.mu.Unlock()

	if _, exists := u.active[name]; exists {
		return fmt.Errorf("%w: %s", ErrUploadInProgress, name)
	}

	if u.active == nil {
		u.active = make(map[string]struct{})
	}

	u.active[name] = struct{}{}

	return nil
}

func (u *Uploader) release(name string) {
	u.mu.Lock()
	delete(u.active, name)
	u.mu.Unlock()
}

// remoteError builds a [RemoteError] from a non OK response. The body is
// expected to carry an error line but plain text is accepted as well.
func remoteError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	msg := strings.TrimSpace(string(body))

	if line, err := stream.ParseLine(msg); err == nil && line.Key == stream.KeyError {
		msg = line.Value
	}

	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}

	rerr := &RemoteError{StatusCode: resp.StatusCode, Msg: msg}

	if resp.StatusCode == http.StatusConflict {
		return errors.Join(ErrUploadInProgress, rerr)
	}

	return rerr
}
