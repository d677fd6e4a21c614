// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package worker provides the HTTP API of the worker daemon.
//
// The API drives the single [device.Manager] of the worker, receives
// artifact uploads and serves the control channel of test runs. A run
// requests the configured artifacts from the client and executes the test
// suite with a [Runner] while forwarding its output.
package worker
