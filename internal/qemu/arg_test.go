// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/qemu"
)

func TestBuildArgumentStrings(t *testing.T) {
	tests := []struct {
		name        string
		args        []qemu.Argument
		expected    []string
		expectedErr error
	}{
		{
			name:     "empty",
			args:     []qemu.Argument{},
			expected: []string{},
		},
		{
			name: "values joined",
			args: []qemu.Argument{
				qemu.UniqueArg("machine", "q35", "smm=on"),
				qemu.UniqueArg("nodefaults"),
				qemu.RepeatableArg("device", "virtio-net-pci", "mac=52:54:00:00:00:01"),
				qemu.RepeatableArg("device", "virtio-gpu-pci"),
			},
			expected: []string{
				"-machine", "q35,smm=on",
				"-nodefaults",
				"-device", "virtio-net-pci,mac=52:54:00:00:00:01",
				"-device", "virtio-gpu-pci",
			},
		},
		{
			name: "unique collision",
			args: []qemu.Argument{
				qemu.UniqueArg("machine", "q35"),
				qemu.UniqueArg("machine", "virt"),
			},
			expectedErr: qemu.ErrArgumentCollision,
		},
		{
			name: "repeatable collision",
			args: []qemu.Argument{
				qemu.RepeatableArg("device", "virtio-gpu-pci"),
				qemu.RepeatableArg("device", "virtio-gpu-pci"),
			},
			expectedErr: qemu.ErrArgumentCollision,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actual, err := qemu.BuildArgumentStrings(tt.args)
			require.ErrorIs(t, err, tt.expectedErr)
			assert.Equal(t, tt.expected, actual)
		})
	}
}

func TestArgumentCollides(t *testing.T) {
	tests := []struct {
		name  string
		a, b  qemu.Argument
		wants bool
	}{
		{
			name:  "unique same flag",
			a:     qemu.UniqueArg("m", "1024"),
			b:     qemu.UniqueArg("m", "2048"),
			wants: true,
		},
		{
			name: "repeatable distinct drives",
			a:    qemu.RepeatableArg("drive", "id=internal"),
			b:    qemu.RepeatableArg("drive", "id=external"),
		},
		{
			name:  "repeatable same drive",
			a:     qemu.RepeatableArg("drive", "id=internal"),
			b:     qemu.RepeatableArg("drive", "id=internal"),
			wants: true,
		},
		{
			name:  "unique against repeatable",
			a:     qemu.UniqueArg("device", "tpm-tis"),
			b:     qemu.RepeatableArg("device", "virtio-gpu-pci"),
			wants: true,
		},
		{
			name: "different flags",
			a:    qemu.UniqueArg("smp", "2"),
			b:    qemu.UniqueArg("m", "2"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wants, tt.a.Collides(tt.b))
			assert.Equal(t, tt.wants, tt.b.Collides(tt.a))
		})
	}
}

func TestArgumentString(t *testing.T) {
	assert.Equal(t, "-drive a,b", qemu.RepeatableArg("drive", "a", "b").String())
	assert.Equal(t, "-nodefaults", qemu.UniqueArg("nodefaults").String())
}
