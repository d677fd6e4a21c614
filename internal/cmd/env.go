// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"os"
	"strings"
)

// EnvArgs returns additional arguments for the named binary from the
// environment, like DUTRUN_ARGS for "dutrun". They are prepended to the
// command line arguments.
func EnvArgs(name string) []string {
	key := strings.ToUpper(name) + "_ARGS"
	return strings.Fields(os.Getenv(key))
}
