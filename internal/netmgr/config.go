// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package netmgr

import (
	"fmt"
	"net/netip"
	"strings"
)

// Config describes the wanted bridge setup.
type Config struct {
	// Bridge is the name of the bridge. Generated from the instance ID if
	// empty and Autoconfigure is set.
	Bridge string
	// Address is the bridge address in CIDR notation. Probed if empty and
	// Autoconfigure is set.
	Address string
	// DHCPRange is the dnsmasq address range in the form "start,end".
	// Derived from Address if empty and Autoconfigure is set.
	DHCPRange string
	// Autoconfigure creates and configures the bridge and serves DHCP on it.
	// Without it, the bridge must exist already.
	Autoconfigure bool
	// NAT adds a masquerading rule for the bridge subnet.
	NAT bool
}

// Applied is the effective network setup after [Manager.Apply].
type Applied struct {
	Bridge    string
	Address   netip.Prefix
	DHCPStart netip.Addr
	DHCPEnd   netip.Addr
	NAT       bool
}

// HasDHCP reports whether dnsmasq serves the bridge.
func (a Applied) HasDHCP() bool {
	return a.DHCPStart.IsValid()
}

func (c Config) validate() error {
	if !c.Autoconfigure {
		if c.Bridge == "" {
			return &ConfigError{Msg: "bridge name required without autoconfigure"}
		}

		if c.Address != "" || c.DHCPRange != "" {
			return &ConfigError{Msg: "address and dhcp range require autoconfigure"}
		}

		return nil
	}

	if (c.Bridge == "") != (c.Address == "") {
		return &ConfigError{Msg: "bridge name and address must be given together"}
	}

	if c.DHCPRange != "" && c.Address == "" {
		return &ConfigError{Msg: "dhcp range requires a bridge address"}
	}

	return nil
}

// parseAddress parses a bridge address. A host address within the subnet is
// required, e.g. 10.10.1.1/24.
func parseAddress(s string) (netip.Prefix, error) {
	prefix, err := netip.ParsePrefix(s)
	if err != nil {
		return netip.Prefix{}, &ConfigError{Msg: fmt.Sprintf("bridge address %q: %v", s, err)}
	}

	if !prefix.Addr().Is4() {
		return netip.Prefix{}, &ConfigError{Msg: fmt.Sprintf("bridge address %q: not IPv4", s)}
	}

	if prefix.Bits() > 30 {
		return netip.Prefix{}, &ConfigError{Msg: fmt.Sprintf("bridge address %q: subnet too small", s)}
	}

	if prefix.Addr() == prefix.Masked().Addr() {
		return netip.Prefix{}, &ConfigError{Msg: fmt.Sprintf("bridge address %q: network address", s)}
	}

	return prefix, nil
}

// parseRange parses a "start,end" range that must be inside subnet.
func parseRange(s string, subnet netip.Prefix) (netip.Addr, netip.Addr, error) {
	first, last, found := strings.Cut(s, ",")
	if !found {
		return netip.Addr{}, netip.Addr{}, &ConfigError{Msg: fmt.Sprintf("dhcp range %q: want start,end", s)}
	}

	start, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, &ConfigError{Msg: fmt.Sprintf("dhcp range start: %v", err)}
	}

	end, err := netip.ParseAddr(strings.TrimSpace(last))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, &ConfigError{Msg: fmt.Sprintf("dhcp range end: %v", err)}
	}

	if end.Less(start) {
		return netip.Addr{}, netip.Addr{}, &ConfigError{Msg: fmt.Sprintf("dhcp range %q: end before start", s)}
	}

	subnet = subnet.Masked()
	if !subnet.Contains(start) || !subnet.Contains(end) {
		return netip.Addr{}, netip.Addr{}, &ConfigError{Msg: fmt.Sprintf("dhcp range %q: outside of %s", s, subnet)}
	}

	return start, end, nil
}

// defaultRange returns the range from the second to the last host address of
// the /24 based subnet.
func defaultRange(address netip.Prefix) (netip.Addr, netip.Addr) {
	subnet := address.Masked()
	start := subnet.Addr().Next().Next()

	end := start
	for next := end.Next(); subnet.Contains(next.Next()); next = next.Next() {
		end = next
	}

	return start, end
}
