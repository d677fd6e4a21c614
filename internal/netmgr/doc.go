// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package netmgr wires a virtual device into the host network: a bridge with
// an address, an optional masquerading NAT rule and a DHCP-only dnsmasq.
//
// All rules and names carry the instance ID, which is the only isolation
// between multiple workers sharing a host. Mutations are done by the host
// tools ip, iptables and dnsmasq. The host state is inspected via netlink.
package netmgr
