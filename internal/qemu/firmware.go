// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package qemu

import (
	"io/fs"
	"path"
	"strings"

	"github.com/aibor/dutrun/internal/sys"
)

type firmwareCandidate struct {
	code   string
	vars   string
	secure bool
}

// firmwarePackages names the package providing firmware per architecture.
//
//nolint:gochecknoglobals
var firmwarePackages = map[sys.Arch]string{
	sys.AMD64:   "ovmf",
	sys.ARM64:   "qemu-efi-aarch64",
	sys.RISCV64: "qemu-efi-riscv64",
}

// firmwareCandidates are known firmware locations of common distributions.
// Order matters, the first existing pair wins.
//
//nolint:gochecknoglobals
var firmwareCandidates = map[sys.Arch][]firmwareCandidate{
	sys.AMD64: {
		// Debian, Ubuntu
		{"/usr/share/OVMF/OVMF_CODE_4M.secboot.fd", "/usr/share/OVMF/OVMF_VARS_4M.ms.fd", true},
		{"/usr/share/OVMF/OVMF_CODE_4M.fd", "/usr/share/OVMF/OVMF_VARS_4M.fd", false},
		{"/usr/share/OVMF/OVMF_CODE.secboot.fd", "/usr/share/OVMF/OVMF_VARS.ms.fd", true},
		{"/usr/share/OVMF/OVMF_CODE.fd", "/usr/share/OVMF/OVMF_VARS.fd", false},
		// Fedora
		{"/usr/share/edk2/ovmf/OVMF_CODE.secboot.fd", "/usr/share/edk2/ovmf/OVMF_VARS.secboot.fd", true},
		{"/usr/share/edk2/ovmf/OVMF_CODE.fd", "/usr/share/edk2/ovmf/OVMF_VARS.fd", false},
		// Arch
		{"/usr/share/edk2/x64/OVMF_CODE.secboot.4m.fd", "/usr/share/edk2/x64/OVMF_VARS.4m.fd", true},
		{"/usr/share/edk2/x64/OVMF_CODE.4m.fd", "/usr/share/edk2/x64/OVMF_VARS.4m.fd", false},
		// NixOS via libvirt
		{"/run/libvirt/nix-ovmf/OVMF_CODE.fd", "/run/libvirt/nix-ovmf/OVMF_VARS.fd", false},
		// QEMU bundled
		{"/usr/share/qemu/edk2-x86_64-secure-code.fd", "/usr/share/qemu/edk2-i386-vars.fd", true},
		{"/usr/share/qemu/edk2-x86_64-code.fd", "/usr/share/qemu/edk2-i386-vars.fd", false},
	},
	sys.ARM64: {
		// Debian, Ubuntu
		{"/usr/share/AAVMF/AAVMF_CODE.fd", "/usr/share/AAVMF/AAVMF_VARS.fd", false},
		// Fedora
		{"/usr/share/edk2/aarch64/QEMU_EFI-pflash.raw", "/usr/share/edk2/aarch64/vars-template-pflash.raw", false},
		// Arch
		{"/usr/share/edk2/aarch64/QEMU_CODE.fd", "/usr/share/edk2/aarch64/QEMU_VARS.fd", false},
		// QEMU bundled
		{"/usr/share/qemu/edk2-aarch64-code.fd", "/usr/share/qemu/edk2-arm-vars.fd", false},
	},
	sys.RISCV64: {
		{"/usr/share/qemu-efi-riscv64/RISCV_VIRT_CODE.fd", "/usr/share/qemu-efi-riscv64/RISCV_VIRT_VARS.fd", false},
		{"/usr/share/edk2/riscv/RISCV_VIRT_CODE.fd", "/usr/share/edk2/riscv/RISCV_VIRT_VARS.fd", false},
	},
}

// FindFirmware returns the first known firmware pair for the architecture
// whose code and vars file both exist in fsys. The file system is expected
// to be rooted at "/", like [os.DirFS]("/").
//
// With secureBoot, only secure boot capable firmware is considered,
// otherwise only firmware without secure boot enforcement.
func FindFirmware(fsys fs.FS, arch sys.Arch, secureBoot bool) (Firmware, error) {
	for _, candidate := range firmwareCandidates[arch] {
		if candidate.secure != secureBoot {
			continue
		}

		if exists(fsys, candidate.code) && exists(fsys, candidate.vars) {
			return Firmware{Code: candidate.code, Vars: candidate.vars}, nil
		}
	}

	return Firmware{}, &FirmwareNotFoundError{
		Arch:       string(arch),
		SecureBoot: secureBoot,
		Package:    firmwarePackages[arch],
	}
}

func exists(fsys fs.FS, name string) bool {
	info, err := fs.Stat(fsys, strings.TrimPrefix(path.Clean(name), "/"))
	return err == nil && !info.IsDir()
}
