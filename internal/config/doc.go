// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package config loads the YAML configuration files of worker and client.
//
// Unknown keys are rejected. Values not present in the file keep their
// defaults. Some values can be overridden by DUTRUN_* environment variables.
package config
