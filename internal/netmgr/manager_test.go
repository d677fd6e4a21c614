// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package netmgr_test

import (
	"context"
	"errors"
	"net/netip"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/netmgr"
	"github.com/aibor/dutrun/internal/sys"
)

var errRuleAbsent = errors.New("exit status 1")

// fakeNetwork wires a [netmgr.FakeHost] and a [sys.FakeRunner] so that
// mutations issued via the runner become visible on the host.
type fakeNetwork struct {
	host   *netmgr.FakeHost
	runner *sys.FakeRunner

	mu       sync.Mutex
	rules    map[string]bool
	dnsmasqs [][]string
}

func newFakeNetwork() *fakeNetwork {
	f := &fakeNetwork{
		host:  &netmgr.FakeHost{},
		rules: make(map[string]bool),
	}

	f.runner = &sys.FakeRunner{Handler: f.handle}

	return f
}

func (f *fakeNetwork) handle(cmdline string) ([]byte, error) {
	fields := strings.Fields(cmdline)

	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case strings.HasPrefix(cmdline, "ip link add name "):
		f.host.AddLink(fields[4])
	case strings.HasPrefix(cmdline, "ip addr add "):
		f.host.AddLink(fields[5], netip.MustParsePrefix(fields[3]))
	case strings.HasPrefix(cmdline, "ip link delete dev "):
		f.host.DeleteLink(fields[4])
	case fields[0] == "iptables":
		op := fields[3]
		rule := strings.Replace(cmdline, " "+op+" ", " ", 1)

		switch op {
		case "-C":
			if !f.rules[rule] {
				return nil, &sys.CommandError{Name: "iptables", Err: errRuleAbsent}
			}
		case "-A":
			f.rules[rule] = true
		case "-D":
			if !f.rules[rule] {
				return nil, &sys.CommandError{Name: "iptables", Err: errRuleAbsent}
			}

			delete(f.rules, rule)
		}
	}

	return nil, nil
}

func (f *fakeNetwork) start(_ string, args []string, stdio sys.ProcessIO) (*sys.Process, error) {
	f.mu.Lock()
	f.dnsmasqs = append(f.dnsmasqs, args)
	f.mu.Unlock()

	return sys.StartProcess("sleep", []string{"60"}, stdio)
}

func (f *fakeNetwork) ruleCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.rules)
}

func (f *fakeNetwork) manager(t *testing.T) *netmgr.Manager {
	t.Helper()

	mgr := &netmgr.Manager{
		ID:         "abcd1234",
		RuntimeDir: t.TempDir(),
		Host:       f.host,
		Runner:     f.runner,
		Start:      f.start,
	}

	t.Cleanup(func() {
		_ = mgr.Teardown(context.Background())
	})

	return mgr
}

func TestApplyAutoconfigure(t *testing.T) {
	network := newFakeNetwork()
	network.host.AddLink("lo", netip.MustParsePrefix("127.0.0.1/8"))
	network.host.AddLink("eth0", netip.MustParsePrefix("10.10.1.17/24"))

	mgr := network.manager(t)

	applied, err := mgr.Apply(t.Context(), netmgr.Config{Autoconfigure: true, NAT: true})
	require.NoError(t, err)

	assert.Equal(t, "br-abcd1234", applied.Bridge)
	assert.Equal(t, netip.MustParsePrefix("10.10.2.1/24"), applied.Address)
	assert.Equal(t, netip.MustParseAddr("10.10.2.2"), applied.DHCPStart)
	assert.Equal(t, netip.MustParseAddr("10.10.2.254"), applied.DHCPEnd)
	assert.True(t, applied.HasDHCP())

	assert.Equal(t, []string{
		"iptables -t nat -A POSTROUTING -s 10.10.2.0/24 ! -o br-abcd1234 -j MASQUERADE -m comment --comment dutrun-abcd1234",
	}, network.runner.CallsWithPrefix("iptables -t nat -A"))

	require.Len(t, network.dnsmasqs, 1)
	assert.Contains(t, network.dnsmasqs[0], "--port=0")
	assert.Contains(t, network.dnsmasqs[0], "--interface=br-abcd1234")
	assert.Contains(t, network.dnsmasqs[0], "--dhcp-range=10.10.2.2,10.10.2.254,12h")
}

func TestApplyIsIdempotent(t *testing.T) {
	network := newFakeNetwork()
	mgr := network.manager(t)

	cfg := netmgr.Config{Autoconfigure: true, NAT: true}

	first, err := mgr.Apply(t.Context(), cfg)
	require.NoError(t, err)

	second, err := mgr.Apply(t.Context(), cfg)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Len(t, network.runner.CallsWithPrefix("ip link add"), 1)
	assert.Len(t, network.runner.CallsWithPrefix("ip addr add"), 1)
	assert.Len(t, network.runner.CallsWithPrefix("iptables -t nat -A"), 1)
	assert.Equal(t, 1, network.ruleCount())
	assert.Len(t, network.dnsmasqs, 1)
}

func TestApplyAcceptsExistingBridge(t *testing.T) {
	network := newFakeNetwork()
	network.host.AddLink("br-lab", netip.MustParsePrefix("192.168.77.1/24"))

	mgr := network.manager(t)

	applied, err := mgr.Apply(t.Context(), netmgr.Config{
		Autoconfigure: true,
		Bridge:        "br-lab",
		Address:       "192.168.77.1/24",
		DHCPRange:     "192.168.77.100,192.168.77.150",
	})
	require.NoError(t, err)

	assert.Empty(t, network.runner.CallsWithPrefix("ip link add"))
	assert.Empty(t, network.runner.CallsWithPrefix("ip addr add"))
	assert.Empty(t, network.runner.CallsWithPrefix("iptables"))
	assert.Equal(t, netip.MustParseAddr("192.168.77.100"), applied.DHCPStart)
	assert.Equal(t, netip.MustParseAddr("192.168.77.150"), applied.DHCPEnd)
}

func TestApplyWithoutAutoconfigure(t *testing.T) {
	network := newFakeNetwork()
	network.host.AddLink("br-lab")

	mgr := network.manager(t)

	applied, err := mgr.Apply(t.Context(), netmgr.Config{Bridge: "br-lab"})
	require.NoError(t, err)
	assert.Equal(t, netmgr.Applied{Bridge: "br-lab"}, applied)
	assert.False(t, applied.HasDHCP())
	assert.Empty(t, network.runner.Calls())
	assert.Empty(t, network.dnsmasqs)

	_, err = mgr.Apply(t.Context(), netmgr.Config{Bridge: "br-missing"})
	assert.ErrorIs(t, err, &netmgr.ConfigError{})
}

func TestApplyRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  netmgr.Config
	}{
		{
			name: "no bridge without autoconfigure",
			cfg:  netmgr.Config{},
		},
		{
			name: "address without autoconfigure",
			cfg:  netmgr.Config{Bridge: "br0", Address: "10.0.0.1/24"},
		},
		{
			name: "bridge without address",
			cfg:  netmgr.Config{Autoconfigure: true, Bridge: "br0"},
		},
		{
			name: "address without bridge",
			cfg:  netmgr.Config{Autoconfigure: true, Address: "10.0.0.1/24"},
		},
		{
			name: "network address",
			cfg:  netmgr.Config{Autoconfigure: true, Bridge: "br0", Address: "10.0.0.0/24"},
		},
		{
			name: "range outside subnet",
			cfg: netmgr.Config{
				Autoconfigure: true,
				Bridge:        "br0",
				Address:       "10.0.0.1/24",
				DHCPRange:     "10.0.1.10,10.0.1.20",
			},
		},
		{
			name: "range reversed",
			cfg: netmgr.Config{
				Autoconfigure: true,
				Bridge:        "br0",
				Address:       "10.0.0.1/24",
				DHCPRange:     "10.0.0.20,10.0.0.10",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network := newFakeNetwork()
			mgr := network.manager(t)

			_, err := mgr.Apply(t.Context(), tt.cfg)
			require.ErrorIs(t, err, &netmgr.ConfigError{})
			assert.Empty(t, network.runner.Calls())
		})
	}
}

func TestApplyNoFreeSubnet(t *testing.T) {
	network := newFakeNetwork()
	network.host.AddLink("eth0", netip.MustParsePrefix("10.0.0.1/8"))

	mgr := network.manager(t)

	_, err := mgr.Apply(t.Context(), netmgr.Config{Autoconfigure: true})
	require.ErrorIs(t, err, netmgr.ErrNoFreeSubnet)
	assert.Empty(t, network.runner.Calls())
}

func TestTeardown(t *testing.T) {
	network := newFakeNetwork()
	mgr := network.manager(t)

	_, err := mgr.Apply(t.Context(), netmgr.Config{Autoconfigure: true, NAT: true})
	require.NoError(t, err)

	applyCalls := len(network.runner.Calls())

	require.NoError(t, mgr.Teardown(t.Context()))

	assert.Equal(t, []string{
		"iptables -t nat -D POSTROUTING -s 10.10.1.0/24 ! -o br-abcd1234 -j MASQUERADE -m comment --comment dutrun-abcd1234",
		"ip link set dev br-abcd1234 down",
		"ip link delete dev br-abcd1234",
	}, network.runner.Calls()[applyCalls:])
	assert.Zero(t, network.ruleCount())

	_, applied := mgr.Applied()
	assert.False(t, applied)

	require.NoError(t, mgr.Teardown(t.Context()))
	assert.Len(t, network.runner.Calls(), applyCalls+3)
}

func TestTeardownContinuesOnFailure(t *testing.T) {
	network := newFakeNetwork()
	mgr := network.manager(t)

	_, err := mgr.Apply(t.Context(), netmgr.Config{Autoconfigure: true, NAT: true})
	require.NoError(t, err)

	errDown := errors.New("device busy")
	handle := network.runner.Handler
	network.runner.Handler = func(cmdline string) ([]byte, error) {
		if strings.HasSuffix(cmdline, " down") {
			return nil, errDown
		}

		return handle(cmdline)
	}

	err = mgr.Teardown(t.Context())
	require.ErrorIs(t, err, errDown)
	assert.NotEmpty(t, network.runner.CallsWithPrefix("ip link delete dev br-abcd1234"))
}

func TestApplySkipsOverlappingSubnets(t *testing.T) {
	tests := []struct {
		name        string
		hostAddress string
		want        netip.Prefix
		wantErr     error
	}{
		{
			name:        "unrelated network",
			hostAddress: "10.11.0.1/16",
			want:        netip.MustParsePrefix("10.10.1.1/24"),
		},
		{
			name:        "other address in first subnet",
			hostAddress: "10.10.1.200/32",
			want:        netip.MustParsePrefix("10.10.2.1/24"),
		},
		{
			name:        "covering network",
			hostAddress: "10.10.2.1/16",
			wantErr:     netmgr.ErrNoFreeSubnet,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			network := newFakeNetwork()
			network.host.AddLink("eth0", netip.MustParsePrefix(tt.hostAddress))

			mgr := network.manager(t)

			applied, err := mgr.Apply(t.Context(), netmgr.Config{Autoconfigure: true})
			require.ErrorIs(t, err, tt.wantErr)

			if tt.wantErr == nil {
				assert.Equal(t, tt.want, applied.Address)
			}
		})
	}
}
