// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package netmgr

import (
	"errors"
	"fmt"
	"net/netip"
	"slices"
	"sync"

	"github.com/vishvananda/netlink"
)

// Host inspects the network state of the host.
type Host interface {
	// LinkExists reports whether a link with the given name exists.
	LinkExists(name string) (bool, error)
	// Prefixes returns the IPv4 addresses of the named link, or of all links
	// if name is empty.
	Prefixes(name string) ([]netip.Prefix, error)
}

// NetlinkHost is a [Host] using netlink.
type NetlinkHost struct{}

var _ Host = NetlinkHost{}

// LinkExists implements [Host].
func (NetlinkHost) LinkExists(name string) (bool, error) {
	_, err := netlink.LinkByName(name)
	if err == nil {
		return true, nil
	}

	var notFound netlink.LinkNotFoundError
	if errors.As(err, &notFound) {
		return false, nil
	}

	return false, fmt.Errorf("lookup link %s: %w", name, err)
}

// Prefixes implements [Host].
func (NetlinkHost) Prefixes(name string) ([]netip.Prefix, error) {
	var link netlink.Link

	if name != "" {
		var err error

		link, err = netlink.LinkByName(name)
		if err != nil {
			return nil, fmt.Errorf("lookup link %s: %w", name, err)
		}
	}

	addrs, err := netlink.AddrList(link, netlink.FAMILY_V4)
	if err != nil {
		return nil, fmt.Errorf("list addresses: %w", err)
	}

	prefixes := make([]netip.Prefix, 0, len(addrs))

	for _, addr := range addrs {
		ip, ok := netip.AddrFromSlice(addr.IP.To4())
		if !ok {
			continue
		}

		ones, _ := addr.Mask.Size()
		prefixes = append(prefixes, netip.PrefixFrom(ip, ones))
	}

	return prefixes, nil
}

// FakeHost is an in-memory [Host] for tests.
type FakeHost struct {
	mu    sync.Mutex
	links map[string][]netip.Prefix
}

var _ Host = (*FakeHost)(nil)

// AddLink adds a link with the given addresses.
func (h *FakeHost) AddLink(name string, prefixes ...netip.Prefix) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.links == nil {
		h.links = make(map[string][]netip.Prefix)
	}

	h.links[name] = append(h.links[name], prefixes...)
}

// DeleteLink removes the link.
func (h *FakeHost) DeleteLink(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.links, name)
}

// LinkExists implements [Host].
func (h *FakeHost) LinkExists(name string) (bool, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, exists := h.links[name]

	return exists, nil
}

// Prefixes implements [Host].
func (h *FakeHost) Prefixes(name string) ([]netip.Prefix, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if name != "" {
		return slices.Clone(h.links[name]), nil
	}

	var all []netip.Prefix
	for _, prefixes := range h.links {
		all = append(all, prefixes...)
	}

	return all, nil
}
