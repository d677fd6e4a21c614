// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package device defines the contract of device backends and the [Manager]
// dispatching control operations to the single active backend of a worker.
//
// Backends are selected by [Options], a closed set of backend specific
// option types. The [Manager] tracks the lifecycle state of the device,
// rejects operations that are invalid in the current state and makes sure
// the active backend is torn down on SIGINT and SIGTERM.
package device
