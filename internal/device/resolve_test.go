// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device_test

import (
	"context"
	"errors"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/device"
)

type staticResolver map[string][]string

func (r staticResolver) LookupHost(_ context.Context, host string) ([]string, error) {
	addrs, ok := r[host]
	if !ok {
		return nil, errors.New("no such host")
	}

	return addrs, nil
}

func TestResolve(t *testing.T) {
	resolver := staticResolver{
		"dut.local":    {"fe80::1", "192.168.1.20"},
		"v6.local":     {"fe80::2"},
		"broken.local": {"not-an-address"},
	}

	tests := []struct {
		target   string
		expected netip.Addr
		err      bool
	}{
		{target: "dut.local", expected: netip.MustParseAddr("192.168.1.20")},
		{target: "v6.local", expected: netip.MustParseAddr("fe80::2")},
		{target: "10.0.0.5", expected: netip.MustParseAddr("10.0.0.5")},
		{target: "broken.local", err: true},
		{target: "missing.local", err: true},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			addr, err := device.Resolve(t.Context(), resolver, tt.target)
			if tt.err {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expected, addr)
		})
	}
}
