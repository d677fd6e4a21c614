// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/aibor/dutrun/internal/sys"
)

// Kind names a backend.
type Kind string

// Known backend kinds.
const (
	KindQemu        Kind = "qemu"
	KindBlockDevice Kind = "blockdev"
)

// Storage interfaces of virtual disks.
const (
	StorageVirtio = "virtio"
	StorageNVMe   = "nvme"
)

const (
	gibibyte             = 1 << 30
	defaultDiskSize      = 8 * gibibyte
	defaultFlashTimeout  = 30 * time.Minute
	defaultMemoryMiB     = 2048
	defaultCPUs          = 2
	minimumDiskSizeBytes = gibibyte
)

// Options selects and configures a backend. The set of implementations is
// closed: [*QemuOptions] and [*BlockDeviceOptions].
type Options interface {
	Kind() Kind
	validate() error
}

// Duration is a [time.Duration] that is represented as string like "10m" or
// as number of seconds in JSON.
type Duration time.Duration

// UnmarshalJSON implements [json.Unmarshaler].
func (d *Duration) UnmarshalJSON(data []byte) error {
	var seconds float64
	if err := json.Unmarshal(data, &seconds); err == nil {
		*d = Duration(seconds * float64(time.Second))
		return nil
	}

	var text string
	if err := json.Unmarshal(data, &text); err != nil {
		return fmt.Errorf("duration must be string or number: %w", err)
	}

	parsed, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("parse duration: %w", err)
	}

	*d = Duration(parsed)

	return nil
}

// MarshalJSON implements [json.Marshaler].
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String()) //nolint:wrapcheck
}

// FirmwareOptions are explicit UEFI firmware paths.
type FirmwareOptions struct {
	Code string `json:"code"`
	Vars string `json:"vars"`
}

// QemuNetworkOptions configure the bridge the virtual machine is attached
// to. Bridge, Address and DHCPRange are either all set or all empty.
type QemuNetworkOptions struct {
	// Autoconfigure creates bridge, NAT and DHCP as needed. Without it, the
	// bridge must exist already.
	Autoconfigure bool   `json:"autoconfigure"`
	Bridge        string `json:"bridgeName,omitempty"`
	// Address of the bridge in CIDR notation, like 10.10.1.1/24.
	Address string `json:"bridgeAddress,omitempty"`
	// DHCPRange is "first,last" of the addresses to lease.
	DHCPRange string `json:"dhcpRange,omitempty"`
}

// QemuOptions configure the virtual machine backend.
type QemuOptions struct {
	Architecture     sys.Arch           `json:"architecture"`
	CPUs             uint               `json:"cpus"`
	MemoryMiB        uint               `json:"memory"`
	DiskSize         int64              `json:"diskSize"`
	StorageInterface string             `json:"storageInterface"`
	SecureBoot       bool               `json:"secureBoot"`
	TPM              bool               `json:"tpm"`
	ForceRAID        bool               `json:"forceRaid"`
	Graphics         bool               `json:"graphics"`
	Firmware         *FirmwareOptions   `json:"firmware,omitempty"`
	Network          QemuNetworkOptions `json:"network"`
	FlashTimeout     Duration           `json:"flashTimeout"`
	// RuntimeDir holds disks and per instance state. Defaults to a
	// directory in the system's temporary directory.
	RuntimeDir string `json:"runtimeDir,omitempty"`
}

// DefaultQemuOptions returns the defaults that are overridden by parsed
// options.
func DefaultQemuOptions() *QemuOptions {
	return &QemuOptions{
		Architecture:     sys.Native,
		CPUs:             defaultCPUs,
		MemoryMiB:        defaultMemoryMiB,
		DiskSize:         defaultDiskSize,
		StorageInterface: StorageVirtio,
		Network:          QemuNetworkOptions{Autoconfigure: true},
		FlashTimeout:     Duration(defaultFlashTimeout),
	}
}

// Kind implements [Options].
func (*QemuOptions) Kind() Kind {
	return KindQemu
}

func (o *QemuOptions) validate() error {
	switch {
	case o.Architecture.Set(string(o.Architecture)) != nil:
		return optionError("architecture %q not supported", o.Architecture)
	case o.CPUs == 0:
		return optionError("cpus must be positive")
	case o.MemoryMiB == 0:
		return optionError("memory must be positive")
	case o.DiskSize < minimumDiskSizeBytes:
		return optionError("disk size must be at least %d bytes", minimumDiskSizeBytes)
	case o.StorageInterface != StorageVirtio && o.StorageInterface != StorageNVMe:
		return optionError("unknown storage interface %q", o.StorageInterface)
	case o.FlashTimeout <= 0:
		return optionError("flash timeout must be positive")
	}

	if o.Firmware != nil && (o.Firmware.Code == "" || o.Firmware.Vars == "") {
		return optionError("firmware needs both code and vars path")
	}

	return o.Network.validate()
}

func (o QemuNetworkOptions) validate() error {
	set := 0

	for _, value := range []string{o.Bridge, o.Address, o.DHCPRange} {
		if value != "" {
			set++
		}
	}

	switch {
	case !o.Autoconfigure && o.Bridge == "":
		return optionError("network without autoconfigure requires a bridge name")
	case !o.Autoconfigure:
		return nil
	case set == 0:
		return nil
	case set != 3:
		return optionError("bridge name, address and DHCP range must be given together")
	}

	_, err := netip.ParsePrefix(o.Address)
	if err != nil {
		return optionError("bridge address: %v", err)
	}

	_, _, err = ParseDHCPRange(o.DHCPRange)
	if err != nil {
		return optionError("dhcp range: %v", err)
	}

	return nil
}

// ParseDHCPRange splits a "first,last" address range.
func ParseDHCPRange(s string) (netip.Addr, netip.Addr, error) {
	first, last, found := strings.Cut(s, ",")
	if !found {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("%w: %q is not first,last", ErrInvalidOption, s)
	}

	firstAddr, err := netip.ParseAddr(strings.TrimSpace(first))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}

	lastAddr, err := netip.ParseAddr(strings.TrimSpace(last))
	if err != nil {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("%w: %w", ErrInvalidOption, err)
	}

	if lastAddr.Less(firstAddr) {
		return netip.Addr{}, netip.Addr{}, fmt.Errorf("%w: range %q is reversed", ErrInvalidOption, s)
	}

	return firstAddr, lastAddr, nil
}

// BlockDeviceOptions configure a physical device whose storage is exposed
// to the worker as block device.
type BlockDeviceOptions struct {
	// Device is the block device path, like /dev/sda.
	Device string `json:"device"`
	// PowerOn and PowerOff are commands switching the device power.
	PowerOn  []string `json:"powerOn"`
	PowerOff []string `json:"powerOff"`
	// MuxHost and MuxDUT switch the storage between worker and device.
	// Optional.
	MuxHost []string `json:"muxHost,omitempty"`
	MuxDUT  []string `json:"muxDut,omitempty"`
}

// Kind implements [Options].
func (*BlockDeviceOptions) Kind() Kind {
	return KindBlockDevice
}

func (o *BlockDeviceOptions) validate() error {
	switch {
	case o.Device == "":
		return optionError("device path required")
	case len(o.PowerOn) == 0 || len(o.PowerOff) == 0:
		return optionError("power on and power off commands required")
	case (len(o.MuxHost) == 0) != (len(o.MuxDUT) == 0):
		return optionError("mux commands must be given together")
	}

	return nil
}

// ParseOptions decodes the options for the given backend kind. Unknown
// fields are rejected.
func ParseOptions(kind Kind, raw json.RawMessage) (Options, error) {
	var opts Options

	switch kind {
	case KindQemu:
		opts = DefaultQemuOptions()
	case KindBlockDevice:
		opts = &BlockDeviceOptions{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}

	if len(bytes.TrimSpace(raw)) > 0 && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		decoder := json.NewDecoder(bytes.NewReader(raw))
		decoder.DisallowUnknownFields()

		err := decoder.Decode(opts)
		if err != nil {
			return nil, fmt.Errorf("%w: %s options: %w", ErrInvalidOption, kind, err)
		}
	}

	err := opts.validate()
	if err != nil {
		return nil, err
	}

	return opts, nil
}

func optionError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidOption, fmt.Sprintf(format, args...))
}
