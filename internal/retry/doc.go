// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package retry provides a bounded retry loop with a fixed interval. It is
// used for all polling in the module: address probing, socket readiness and
// process state checks.
package retry
