// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package vm implements a device backend on top of a QEMU virtual machine.
//
// Each [Machine] owns a runtime directory with two raw disks, a copy of the
// UEFI variable store, the serial log and the management socket. The
// internal disk is the persistent storage of the device. The external disk
// receives the flashed image, like a USB stick plugged into a physical
// device. Images that install themselves onto the internal disk are
// detected by a marker file on their first partition. Their completion is
// observed via the reset event the guest triggers when it reboots.
package vm
