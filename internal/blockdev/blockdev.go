// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package blockdev implements a device backend for physical devices whose
// storage is exposed to the worker as block device, for example via an SD
// card multiplexer. Power and multiplexer are switched by external commands.
package blockdev

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/sys"
)

// Device is a [device.Backend] for a physical device.
type Device struct {
	opts   device.BlockDeviceOptions
	runner sys.Runner
}

var _ device.Backend = (*Device)(nil)

// New creates a [Device] that runs its commands with runner.
func New(opts *device.BlockDeviceOptions, runner sys.Runner) *Device {
	if runner == nil {
		runner = sys.ExecRunner{}
	}

	return &Device{
		opts:   *opts,
		runner: runner,
	}
}

func (d *Device) logContext(ctx context.Context) context.Context {
	return logger.WithKV(logger.WithName(ctx, "blockdev"), "device", d.opts.Device)
}

func (d *Device) run(ctx context.Context, what string, argv []string) error {
	if len(argv) == 0 {
		return nil
	}

	_, err := d.runner.Run(ctx, argv[0], argv[1:]...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}

	logger.DebugKV(ctx, what, "command", argv[0])

	return nil
}

// Setup implements [device.Backend]. It checks that the storage exists.
func (d *Device) Setup(ctx context.Context) error {
	info, err := os.Stat(d.opts.Device)
	if err != nil {
		return fmt.Errorf("storage device: %w", err)
	}

	if info.Mode()&os.ModeDevice == 0 {
		logger.WarnKV(d.logContext(ctx), "storage is not a device file")
	}

	return nil
}

// Flash implements [device.Backend]. The device is powered off and the
// storage switched to the worker while the image is written.
func (d *Device) Flash(ctx context.Context, image device.Image, progress device.ProgressFunc) error {
	ctx = d.logContext(ctx)

	err := d.PowerOff(ctx)
	if err != nil {
		return err
	}

	err = d.run(ctx, "switch storage to host", d.opts.MuxHost)
	if err != nil {
		return err
	}

	err = d.write(ctx, image, progress)
	if err != nil {
		return err
	}

	return d.run(ctx, "switch storage to device", d.opts.MuxDUT)
}

func (d *Device) write(ctx context.Context, image device.Image, progress device.ProgressFunc) error {
	storage, err := os.OpenFile(d.opts.Device, os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer storage.Close()

	written, err := device.CopyImage(ctx, storage, image, device.StageFlash, progress)
	if err != nil {
		return err
	}

	err = storage.Sync()
	if err != nil {
		return fmt.Errorf("sync storage: %w", err)
	}

	logger.InfoKV(ctx, "image written", "bytes", written)

	return storage.Close() //nolint:wrapcheck
}

// PowerOn implements [device.Backend].
func (d *Device) PowerOn(ctx context.Context) error {
	return d.run(d.logContext(ctx), "power on", d.opts.PowerOn)
}

// PowerOff implements [device.Backend].
func (d *Device) PowerOff(ctx context.Context) error {
	return d.run(d.logContext(ctx), "power off", d.opts.PowerOff)
}

// Network implements [device.Backend]. Not supported.
func (*Device) Network(context.Context, device.NetworkConfig) error {
	return fmt.Errorf("%w: network for block device", device.ErrUnsupported)
}

// StartCapture implements [device.Backend]. Not supported.
func (*Device) StartCapture(context.Context) error {
	return fmt.Errorf("%w: capture for block device", device.ErrUnsupported)
}

// StopCapture implements [device.Backend]. Not supported.
func (*Device) StopCapture(context.Context, io.Writer) error {
	return fmt.Errorf("%w: capture for block device", device.ErrUnsupported)
}

// Teardown implements [device.Backend]. The device is powered off.
func (d *Device) Teardown(ctx context.Context) error {
	return d.PowerOff(ctx)
}
