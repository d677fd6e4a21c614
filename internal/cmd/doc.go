// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package cmd provides the CLI entry points of dutrun and dutworker. It
// handles flag parsing, configuration loading, error handling, and output
// handling.
package cmd
