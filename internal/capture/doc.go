// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package capture records the screen of a device from an RFB (VNC) source
// into a directory of JPEG frames, one per second, and archives them.
package capture
