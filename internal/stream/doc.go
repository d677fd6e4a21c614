// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package stream provides the newline delimited "key: value" text protocol
// used for long running HTTP responses, like the artifact upload
// acknowledgement and the flash event stream.
//
// Each line carries one event. Writers flush after every line, so the peer
// can react on events while the response is still open.
package stream
