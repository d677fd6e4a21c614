// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"fmt"
	"strconv"

	"github.com/aibor/dutrun/internal/sys"
)

const (
	machineTypeQ35  = "q35"
	machineTypeVirt = "virt"
)

// Storage interfaces.
const (
	StorageVirtio = "virtio"
	StorageNVMe   = "nvme"
)

// Disk is a raw disk image attached to the machine.
type Disk struct {
	// ID must be unique among the disks. It is used as drive ID and serial.
	ID   string
	Path string
	// Boot marks the disk as first boot device.
	Boot bool
}

// Firmware is a pair of UEFI pflash images.
type Firmware struct {
	// Code is the read only firmware image.
	Code string
	// Vars is the writable variable store of this instance.
	Vars string
}

// Spec defines the parameters of an emulator invocation. Each group of
// fields translates into a group of arguments that is only present if the
// group is configured.
type Spec struct {
	// Path to the qemu-system binary.
	Executable string

	// Name of the machine as shown in QEMU.
	Name string

	// QEMU machine type to use. Depends on the QEMU binary used.
	Machine string

	// CPU type to use. Depends on machine type and QEMU binary used.
	CPU string

	// Number of CPUs for the guest.
	SMP uint

	// Memory for the machine in MiB.
	MemoryMiB uint

	// Disable KVM support.
	NoKVM bool

	// SerialLog is the file the serial console is written to.
	SerialLog string

	// Disks attached via StorageInterface.
	Disks            []Disk
	StorageInterface string

	// TPMSocket is the control socket of a running swtpm. Empty for no TPM.
	TPMSocket string

	// SecureBoot enables SMM and secure pflash access. Requires matching
	// firmware.
	SecureBoot bool

	// Graphics adds a GPU whose output is served via VNC on VNCDisplay,
	// listening on localhost only.
	Graphics   bool
	VNCDisplay int

	// Bridge the network interface is attached to. Empty for no network.
	Bridge string
	MAC    string

	Firmware Firmware

	// QMPSocket is the path of the management socket. Empty for none.
	QMPSocket string

	// arch is set by [Spec.AddDefaultsFor].
	arch sys.Arch
}

// AddDefaultsFor adds architecture specific default values to the spec if
// the fields are not set yet.
func (s *Spec) AddDefaultsFor(arch sys.Arch) error {
	var executable, machine string

	switch arch {
	case sys.AMD64:
		executable = "qemu-system-x86_64"
		machine = machineTypeQ35
	case sys.ARM64:
		executable = "qemu-system-aarch64"
		machine = machineTypeVirt
	case sys.RISCV64:
		executable = "qemu-system-riscv64"
		machine = machineTypeVirt
	default:
		return fmt.Errorf("%w: %s", sys.ErrArchNotSupported, arch)
	}

	s.arch = arch

	if s.Executable == "" {
		s.Executable = executable
	}

	if s.Machine == "" {
		s.Machine = machine
	}

	if s.CPU == "" {
		s.CPU = "max"
	}

	if !s.NoKVM {
		s.NoKVM = !arch.KVMAvailable()
	}

	if s.StorageInterface == "" {
		s.StorageInterface = StorageVirtio
	}

	return nil
}

// Validate checks for known incompatibilities.
func (s *Spec) Validate() error {
	switch {
	case s.Executable == "":
		return &ArgumentError{"no executable"}
	case s.Firmware.Code == "" || s.Firmware.Vars == "":
		return &ArgumentError{"firmware code and vars required"}
	case s.SecureBoot && s.Machine != machineTypeQ35:
		return &ArgumentError{"secure boot requires machine type q35"}
	case s.StorageInterface != StorageVirtio && s.StorageInterface != StorageNVMe:
		return &ArgumentError{"unknown storage interface: " + s.StorageInterface}
	case s.Bridge != "" && s.MAC == "":
		return &ArgumentError{"network requires a MAC address"}
	case len(s.Disks) == 0:
		return &ArgumentError{"no disks"}
	}

	return nil
}

// Arguments compiles the argument list for the emulator.
func (s *Spec) Arguments() []Argument {
	args := s.baseArgs()
	args = append(args, s.firmwareArgs()...)
	args = append(args, s.storageArgs()...)
	args = append(args, s.tpmArgs()...)
	args = append(args, s.graphicsArgs()...)
	args = append(args, s.networkArgs()...)
	args = append(args, s.qmpArgs()...)

	return args
}

// Command returns the executable and the argument strings.
func (s *Spec) Command() (string, []string, error) {
	err := s.Validate()
	if err != nil {
		return "", nil, err
	}

	args, err := BuildArgumentStrings(s.Arguments())
	if err != nil {
		return "", nil, err
	}

	return s.Executable, args, nil
}

func (s *Spec) baseArgs() []Argument {
	machine := []string{s.Machine}
	if s.SecureBoot {
		machine = append(machine, prop("smm", "on"))
	}

	args := []Argument{
		UniqueArg("machine", machine...),
		UniqueArg("cpu", s.CPU),
		// Disable the default devices, everything is added explicitly.
		UniqueArg("nodefaults"),
		// Do not load any user config files.
		UniqueArg("no-user-config"),
		// The monitor is replaced by the QMP socket.
		UniqueArg("monitor", "none"),
		// Graphics output is only served via VNC.
		UniqueArg("display", "none"),
	}

	if s.Name != "" {
		args = append(args, UniqueArg("name", s.Name))
	}

	if s.SMP != 0 {
		args = append(args, UniqueArg("smp", strconv.FormatUint(uint64(s.SMP), 10)))
	}

	if s.MemoryMiB != 0 {
		args = append(args, UniqueArg("m", strconv.FormatUint(uint64(s.MemoryMiB), 10)))
	}

	if !s.NoKVM {
		args = append(args, UniqueArg("enable-kvm"))
	}

	serial := "none"
	if s.SerialLog != "" {
		serial = "file:" + s.SerialLog
	}

	args = append(args, UniqueArg("serial", serial))

	return args
}

func (s *Spec) firmwareArgs() []Argument {
	args := []Argument{
		RepeatableArg("drive",
			prop("if", "pflash"),
			prop("format", "raw"),
			prop("unit", "0"),
			prop("file", s.Firmware.Code),
			prop("readonly", "on"),
		),
		RepeatableArg("drive",
			prop("if", "pflash"),
			prop("format", "raw"),
			prop("unit", "1"),
			prop("file", s.Firmware.Vars),
		),
	}

	if s.SecureBoot {
		args = append(args, RepeatableArg("global",
			prop("driver", "cfi.pflash01"),
			prop("property", "secure"),
			prop("value", "on"),
		))
	}

	return args
}

func (s *Spec) storageArgs() []Argument {
	device := "virtio-blk-pci"
	if s.StorageInterface == StorageNVMe {
		device = "nvme"
	}

	args := make([]Argument, 0, 2*len(s.Disks))

	for _, disk := range s.Disks {
		deviceProps := []string{
			device,
			prop("drive", disk.ID),
			prop("serial", disk.ID),
		}

		if disk.Boot {
			deviceProps = append(deviceProps, prop("bootindex", "0"))
		}

		args = append(args,
			RepeatableArg("drive",
				prop("if", "none"),
				prop("id", disk.ID),
				prop("format", "raw"),
				prop("file", disk.Path),
			),
			RepeatableArg("device", deviceProps...),
		)
	}

	return args
}

func (s *Spec) tpmArgs() []Argument {
	if s.TPMSocket == "" {
		return nil
	}

	device := "tpm-tis"
	if s.arch != sys.AMD64 {
		device = "tpm-tis-device"
	}

	return []Argument{
		RepeatableArg("chardev", "socket", prop("id", "chrtpm"), prop("path", s.TPMSocket)),
		UniqueArg("tpmdev", "emulator", prop("id", "tpm0"), prop("chardev", "chrtpm")),
		RepeatableArg("device", device, prop("tpmdev", "tpm0")),
	}
}

func (s *Spec) graphicsArgs() []Argument {
	if !s.Graphics {
		return nil
	}

	return []Argument{
		RepeatableArg("device", "virtio-gpu-pci"),
		UniqueArg("vnc", "127.0.0.1:"+strconv.Itoa(s.VNCDisplay)),
	}
}

func (s *Spec) networkArgs() []Argument {
	if s.Bridge == "" {
		return nil
	}

	return []Argument{
		RepeatableArg("netdev", "bridge", prop("id", "net0"), prop("br", s.Bridge)),
		RepeatableArg("device", "virtio-net-pci", prop("netdev", "net0"), prop("mac", s.MAC)),
	}
}

func (s *Spec) qmpArgs() []Argument {
	if s.QMPSocket == "" {
		return nil
	}

	return []Argument{
		UniqueArg("qmp", "unix:"+s.QMPSocket, prop("server", "on"), prop("wait", "off")),
	}
}
