// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"context"
	"io"
)

// Backend controls a single device under test.
//
// Implementations re-establish their own invariants on every call. Flash
// and PowerOn must make sure no previous instance is still running.
// Teardown must be safe to call repeatedly and in any state.
type Backend interface {
	// Setup verifies the host is able to drive the device.
	Setup(ctx context.Context) error
	// Flash writes the image onto the device storage. Progress is reported
	// through the given callback, which may be nil.
	Flash(ctx context.Context, image Image, progress ProgressFunc) error
	PowerOn(ctx context.Context) error
	PowerOff(ctx context.Context) error
	// Network applies the network configuration. A zero config removes it.
	Network(ctx context.Context, config NetworkConfig) error
	StartCapture(ctx context.Context) error
	// StopCapture stops capturing and writes the archived frames to w.
	StopCapture(ctx context.Context, w io.Writer) error
	Teardown(ctx context.Context) error
}

// Image is the OS image to flash.
type Image struct {
	io.Reader
	// Size in bytes. Negative if unknown.
	Size int64
}

// Progress stages of a flash.
const (
	// StageFlash is writing the image onto the device storage.
	StageFlash = "flash"
	// StageInstall is a flasher image installing the system.
	StageInstall = "install"
)

// Progress of a long running operation.
type Progress struct {
	Stage      string  `json:"type"`
	Bytes      int64   `json:"bytes"`
	Percentage float64 `json:"percentage"`
}

// ProgressFunc receives progress updates.
type ProgressFunc func(Progress)

// Report calls fn if it is not nil.
func (fn ProgressFunc) Report(stage string, done, total int64) {
	if fn == nil {
		return
	}

	p := Progress{Stage: stage, Bytes: done}
	if total > 0 {
		p.Percentage = min(100, float64(done)*100/float64(total))
	}

	fn(p)
}

// NetworkConfig describes the network connectivity of the device.
type NetworkConfig struct {
	Wired    *WiredConfig    `json:"wired,omitempty"`
	Wireless *WirelessConfig `json:"wireless,omitempty"`
}

// WiredConfig is an ethernet connection of the device.
type WiredConfig struct {
	// NAT enables masquerading of the device traffic by the host.
	NAT bool `json:"nat"`
}

// WirelessConfig is a wireless access point provided for the device.
type WirelessConfig struct {
	SSID string `json:"ssid"`
	PSK  string `json:"psk,omitempty"`
}

// IsZero reports whether no network is configured.
func (c NetworkConfig) IsZero() bool {
	return c.Wired == nil && c.Wireless == nil
}
