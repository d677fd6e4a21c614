// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package netmgr

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/aibor/dutrun/internal/logger"
	"github.com/aibor/dutrun/internal/retry"
	"github.com/aibor/dutrun/internal/sys"
)

const (
	dnsmasqExecutable = "dnsmasq"
	dnsmasqStopWait   = 5 * time.Second
	leaseTime         = "12h"
	maxSubnets        = 254
)

// Manager sets up and tears down the network of a single device instance.
//
// It is not safe for concurrent use of [Manager.Apply] and
// [Manager.Teardown].
type Manager struct {
	// ID is the instance ID used in generated names and rule comments.
	ID string
	// RuntimeDir is where the DHCP lease file is kept.
	RuntimeDir string

	Host   Host
	Runner sys.Runner
	// Start starts dnsmasq. [sys.StartProcess] is used if unset.
	Start sys.StartFunc

	mu      sync.Mutex
	applied *Applied
	dnsmasq *sys.Process
}

// NewManager creates a [Manager] operating on the real host.
func NewManager(id, runtimeDir string) *Manager {
	return &Manager{
		ID:         id,
		RuntimeDir: runtimeDir,
		Host:       NetlinkHost{},
		Runner:     sys.ExecRunner{},
		Start:      sys.StartProcess,
	}
}

// BridgeName returns the generated bridge name for the instance.
func (m *Manager) BridgeName() string {
	return "br-" + m.ID
}

// RuleComment is the comment tagging all firewall rules of the instance.
func (m *Manager) RuleComment() string {
	return "dutrun-" + m.ID
}

// Applied returns the current network setup, if any.
func (m *Manager) Applied() (Applied, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.applied == nil {
		return Applied{}, false
	}

	return *m.applied, true
}

// Apply sets up the network as described by cfg. Applying the same config
// again is a no-op for the host. Applying a different config tears down the
// previous one first.
func (m *Manager) Apply(ctx context.Context, cfg Config) (Applied, error) {
	err := cfg.validate()
	if err != nil {
		return Applied{}, err
	}

	ctx = logger.WithName(ctx, "netmgr")

	if !cfg.Autoconfigure {
		return m.useExisting(ctx, cfg.Bridge)
	}

	want, err := m.plan(ctx, cfg)
	if err != nil {
		return Applied{}, err
	}

	m.mu.Lock()
	current := m.applied
	m.mu.Unlock()

	if current != nil && *current != want {
		err := m.Teardown(ctx)
		if err != nil {
			logger.WarnKV(ctx, "teardown of previous network failed", "error", err)
		}
	}

	m.mu.Lock()
	m.applied = &want
	m.mu.Unlock()

	err = m.ensureBridge(ctx, want)
	if err != nil {
		return Applied{}, err
	}

	if want.NAT {
		err := m.ensureNAT(ctx, want)
		if err != nil {
			return Applied{}, err
		}
	}

	err = m.ensureDHCP(ctx, want)
	if err != nil {
		return Applied{}, err
	}

	logger.InfoKV(ctx, "network ready",
		"bridge", want.Bridge,
		"address", want.Address,
		"nat", want.NAT,
	)

	return want, nil
}

func (m *Manager) useExisting(ctx context.Context, bridge string) (Applied, error) {
	exists, err := m.Host.LinkExists(bridge)
	if err != nil {
		return Applied{}, err
	}

	if !exists {
		return Applied{}, &ConfigError{Msg: fmt.Sprintf("bridge %s does not exist", bridge)}
	}

	logger.DebugKV(ctx, "using existing bridge", "bridge", bridge)

	return Applied{Bridge: bridge}, nil
}

func (m *Manager) plan(ctx context.Context, cfg Config) (Applied, error) {
	applied := Applied{
		Bridge: cfg.Bridge,
		NAT:    cfg.NAT,
	}

	if cfg.Address == "" {
		m.mu.Lock()
		current := m.applied
		m.mu.Unlock()

		// Keep the probed subnet of an earlier apply. It is in use by our own
		// bridge by now.
		if current != nil && current.Bridge == m.BridgeName() {
			applied.Bridge = current.Bridge
			applied.Address = current.Address
			applied.DHCPStart, applied.DHCPEnd = current.DHCPStart, current.DHCPEnd

			return applied, nil
		}

		address, err := m.probeAddress(ctx)
		if err != nil {
			return Applied{}, err
		}

		applied.Bridge = m.BridgeName()
		applied.Address = address
		applied.DHCPStart, applied.DHCPEnd = defaultRange(address)

		return applied, nil
	}

	address, err := parseAddress(cfg.Address)
	if err != nil {
		return Applied{}, err
	}

	applied.Address = address

	if cfg.DHCPRange == "" {
		applied.DHCPStart, applied.DHCPEnd = defaultRange(address)
		return applied, nil
	}

	applied.DHCPStart, applied.DHCPEnd, err = parseRange(cfg.DHCPRange, address)
	if err != nil {
		return Applied{}, err
	}

	return applied, nil
}

// probeAddress finds the first 10.10.<n>.1/24 whose subnet does not overlap
// with any host address.
func (m *Manager) probeAddress(ctx context.Context) (netip.Prefix, error) {
	subnet := 0

	policy := retry.Policy{Attempts: maxSubnets}

	address, err := retry.Value(ctx, policy, func(context.Context) (netip.Prefix, error) {
		subnet++

		candidate := netip.PrefixFrom(netip.AddrFrom4([4]byte{10, 10, byte(subnet), 1}), 24)

		inUse, err := m.Host.Prefixes("")
		if err != nil {
			return netip.Prefix{}, retry.Permanent(err)
		}

		for _, prefix := range inUse {
			if prefix.Overlaps(candidate) {
				return netip.Prefix{}, fmt.Errorf("%s in use by %s", candidate, prefix)
			}
		}

		return candidate, nil
	})
	if errors.Is(err, retry.ErrAttemptsExhausted) {
		return netip.Prefix{}, fmt.Errorf("%w: %w", ErrNoFreeSubnet, err)
	}

	if err != nil {
		return netip.Prefix{}, fmt.Errorf("probe bridge address: %w", err)
	}

	logger.DebugKV(ctx, "found free subnet", "address", address)

	return address, nil
}

func (m *Manager) ensureBridge(ctx context.Context, applied Applied) error {
	exists, err := m.Host.LinkExists(applied.Bridge)
	if err != nil {
		return err
	}

	if !exists {
		_, err := m.Runner.Run(ctx, "ip", "link", "add", "name", applied.Bridge, "type", "bridge")
		if err != nil {
			return fmt.Errorf("create bridge: %w", err)
		}
	}

	_, err = m.Runner.Run(ctx, "ip", "link", "set", "dev", applied.Bridge, "up")
	if err != nil {
		return fmt.Errorf("set bridge up: %w", err)
	}

	assigned, err := m.Host.Prefixes(applied.Bridge)
	if err != nil {
		return err
	}

	for _, prefix := range assigned {
		if prefix == applied.Address {
			return nil
		}
	}

	_, err = m.Runner.Run(ctx, "ip", "addr", "add", applied.Address.String(), "dev", applied.Bridge)
	if err != nil {
		return fmt.Errorf("assign bridge address: %w", err)
	}

	return nil
}

func (m *Manager) natRule(op string, applied Applied) []string {
	return []string{
		"-t", "nat", op, "POSTROUTING",
		"-s", applied.Address.Masked().String(),
		"!", "-o", applied.Bridge,
		"-j", "MASQUERADE",
		"-m", "comment", "--comment", m.RuleComment(),
	}
}

func (m *Manager) ensureNAT(ctx context.Context, applied Applied) error {
	// The check fails with a non-zero exit if the rule is absent.
	_, err := m.Runner.Run(ctx, "iptables", m.natRule("-C", applied)...)
	if err == nil {
		return nil
	}

	var cmdErr *sys.CommandError
	if errors.As(err, &cmdErr) && cmdErr.ToolMissing() {
		return fmt.Errorf("check nat rule: %w", err)
	}

	_, err = m.Runner.Run(ctx, "iptables", m.natRule("-A", applied)...)
	if err != nil {
		return fmt.Errorf("add nat rule: %w", err)
	}

	return nil
}

func (m *Manager) ensureDHCP(ctx context.Context, applied Applied) error {
	m.mu.Lock()
	running := m.dnsmasq != nil && !m.dnsmasq.Exited()
	m.mu.Unlock()

	if running {
		return nil
	}

	dir := filepath.Join(m.RuntimeDir, "dnsmasq")

	err := os.MkdirAll(dir, 0o755)
	if err != nil {
		return fmt.Errorf("create dnsmasq dir: %w", err)
	}

	args := []string{
		"--port=0",
		"--conf-file=",
		"--bind-interfaces",
		"--except-interface=lo",
		"--interface=" + applied.Bridge,
		fmt.Sprintf("--dhcp-range=%s,%s,%s", applied.DHCPStart, applied.DHCPEnd, leaseTime),
		"--dhcp-leasefile=" + filepath.Join(dir, "leases"),
		"--keep-in-foreground",
	}

	start := m.Start
	if start == nil {
		start = sys.StartProcess
	}

	proc, err := start(dnsmasqExecutable, args, sys.ProcessIO{})
	if err != nil {
		return fmt.Errorf("start dhcp server: %w", err)
	}

	m.mu.Lock()
	m.dnsmasq = proc
	m.mu.Unlock()

	logger.DebugKV(ctx, "dhcp server started", "pid", proc.Pid(), "bridge", applied.Bridge)

	return nil
}

// Teardown removes everything [Manager.Apply] set up: the NAT rule, the
// bridge and the DHCP server. All steps are tried. Their errors are joined.
// It is a no-op if nothing is applied.
func (m *Manager) Teardown(ctx context.Context) error {
	m.mu.Lock()
	applied := m.applied
	dnsmasq := m.dnsmasq
	m.applied = nil
	m.dnsmasq = nil
	m.mu.Unlock()

	var errs []error

	if applied != nil {
		if applied.NAT {
			_, err := m.Runner.Run(ctx, "iptables", m.natRule("-D", *applied)...)
			if err != nil {
				errs = append(errs, fmt.Errorf("remove nat rule: %w", err))
			}
		}

		_, err := m.Runner.Run(ctx, "ip", "link", "set", "dev", applied.Bridge, "down")
		if err != nil {
			errs = append(errs, fmt.Errorf("set bridge down: %w", err))
		}

		_, err = m.Runner.Run(ctx, "ip", "link", "delete", "dev", applied.Bridge)
		if err != nil {
			errs = append(errs, fmt.Errorf("delete bridge: %w", err))
		}
	}

	if dnsmasq != nil {
		err := dnsmasq.Stop(ctx, unix.SIGTERM, dnsmasqStopWait)
		if err != nil {
			errs = append(errs, fmt.Errorf("stop dhcp server: %w", err))
		}
	}

	return errors.Join(errs...)
}
