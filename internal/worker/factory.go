// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package worker

import (
	"context"
	"fmt"

	"github.com/aibor/dutrun/internal/blockdev"
	"github.com/aibor/dutrun/internal/device"
	"github.com/aibor/dutrun/internal/sys"
	"github.com/aibor/dutrun/internal/vm"
)

// NewFactory returns the [device.Factory] creating the real backends.
func NewFactory(env vm.Env, runner sys.Runner) device.Factory {
	if runner == nil {
		runner = sys.ExecRunner{}
	}

	return func(_ context.Context, opts device.Options) (device.Backend, error) {
		switch opts := opts.(type) {
		case *device.QemuOptions:
			return vm.New(opts, env), nil
		case *device.BlockDeviceOptions:
			return blockdev.New(opts, runner), nil
		default:
			return nil, fmt.Errorf("%w: %q", device.ErrUnknownBackend, opts.Kind())
		}
	}
}
