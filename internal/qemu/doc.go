// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package qemu provides utilities for composing QEMU system emulator command
// lines for UEFI booted disk images, locating UEFI firmware on the host and
// talking to a running emulator via its QMP management socket.
//
// It expects the required QEMU binary and firmware packages to be present on
// the system.
package qemu
