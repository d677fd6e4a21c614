// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package netmgr

import (
	"net/netip"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRange(t *testing.T) {
	tests := []struct {
		address    string
		start, end string
	}{
		{address: "10.10.3.1/24", start: "10.10.3.2", end: "10.10.3.254"},
		{address: "192.168.0.1/16", start: "192.168.0.2", end: "192.168.255.254"},
		{address: "172.16.0.1/30", start: "172.16.0.2", end: "172.16.0.2"},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			start, end := defaultRange(netip.MustParsePrefix(tt.address))
			assert.Equal(t, tt.start, start.String())
			assert.Equal(t, tt.end, end.String())
		})
	}
}

func TestParseRange(t *testing.T) {
	subnet := netip.MustParsePrefix("10.0.0.1/24")

	start, end, err := parseRange("10.0.0.10, 10.0.0.20", subnet)
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.10", start.String())
	assert.Equal(t, "10.0.0.20", end.String())

	for _, invalid := range []string{"10.0.0.10", "10.0.0.x,10.0.0.20", "10.0.0.10,10.0.1.2"} {
		_, _, err := parseRange(invalid, subnet)
		assert.ErrorIs(t, err, &ConfigError{}, invalid)
	}
}
