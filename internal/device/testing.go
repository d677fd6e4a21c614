// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"context"
	"io"
	"sync"
)

// FakeBackend is a [Backend] for tests. It records the names of all called
// methods and returns the error configured for a method, if any.
type FakeBackend struct {
	// Errors by method name, like "Flash".
	Errors map[string]error
	// FlashFunc replaces the default flash behavior of consuming the image.
	FlashFunc func(ctx context.Context, image Image, progress ProgressFunc) error
	// Frames is written by StopCapture.
	Frames []byte

	mu      sync.Mutex
	calls   []string
	network []NetworkConfig
}

var _ Backend = (*FakeBackend)(nil)

func (b *FakeBackend) record(method string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.calls = append(b.calls, method)

	return b.Errors[method]
}

// Calls returns the names of all called methods in order.
func (b *FakeBackend) Calls() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]string(nil), b.calls...)
}

// NetworkConfigs returns all configs passed to Network.
func (b *FakeBackend) NetworkConfigs() []NetworkConfig {
	b.mu.Lock()
	defer b.mu.Unlock()

	return append([]NetworkConfig(nil), b.network...)
}

// Setup implements [Backend].
func (b *FakeBackend) Setup(context.Context) error {
	return b.record("Setup")
}

// Flash implements [Backend].
func (b *FakeBackend) Flash(ctx context.Context, image Image, progress ProgressFunc) error {
	err := b.record("Flash")
	if err != nil {
		return err
	}

	if b.FlashFunc != nil {
		return b.FlashFunc(ctx, image, progress)
	}

	n, err := io.Copy(io.Discard, image)
	progress.Report(StageFlash, n, image.Size)

	return err //nolint:wrapcheck
}

// PowerOn implements [Backend].
func (b *FakeBackend) PowerOn(context.Context) error {
	return b.record("PowerOn")
}

// PowerOff implements [Backend].
func (b *FakeBackend) PowerOff(context.Context) error {
	return b.record("PowerOff")
}

// Network implements [Backend].
func (b *FakeBackend) Network(_ context.Context, config NetworkConfig) error {
	b.mu.Lock()
	b.network = append(b.network, config)
	b.mu.Unlock()

	return b.record("Network")
}

// StartCapture implements [Backend].
func (b *FakeBackend) StartCapture(context.Context) error {
	return b.record("StartCapture")
}

// StopCapture implements [Backend].
func (b *FakeBackend) StopCapture(_ context.Context, w io.Writer) error {
	err := b.record("StopCapture")
	if err != nil {
		return err
	}

	_, err = w.Write(b.Frames)

	return err //nolint:wrapcheck
}

// Teardown implements [Backend].
func (b *FakeBackend) Teardown(context.Context) error {
	return b.record("Teardown")
}
