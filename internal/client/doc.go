// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package client runs a test suite on a remote worker.
//
// The client connects to the control channel of the worker, answers its
// upload requests with the locally resolved artifacts and prints the output
// of the run. The exit code of the run is returned.
package client
