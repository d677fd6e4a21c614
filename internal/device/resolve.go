// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"slices"
)

// ErrNotResolved is returned if a name has no address.
var ErrNotResolved = errors.New("name not resolved")

// HostResolver looks up host names.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// Resolve looks up the address of a device announced on the local network,
// like "dut.local". IPv4 addresses are preferred. Resolution is done by the
// host's resolver, which covers mDNS if the host is configured for it.
func Resolve(ctx context.Context, resolver HostResolver, target string) (netip.Addr, error) {
	if resolver == nil {
		resolver = net.DefaultResolver
	}

	if addr, err := netip.ParseAddr(target); err == nil {
		return addr, nil
	}

	hosts, err := resolver.LookupHost(ctx, target)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("resolve %s: %w", target, err)
	}

	addrs := make([]netip.Addr, 0, len(hosts))

	for _, host := range hosts {
		addr, err := netip.ParseAddr(host)
		if err == nil {
			addrs = append(addrs, addr.Unmap())
		}
	}

	if len(addrs) == 0 {
		return netip.Addr{}, fmt.Errorf("%w: %s", ErrNotResolved, target)
	}

	slices.SortStableFunc(addrs, func(a, b netip.Addr) int {
		switch {
		case a.Is4() == b.Is4():
			return 0
		case a.Is4():
			return -1
		default:
			return 1
		}
	})

	return addrs[0], nil
}
