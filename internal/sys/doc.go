// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package sys provides facts about the host system and a thin layer for
// running host tools, like bridge, firewall or loop device utilities.
package sys
