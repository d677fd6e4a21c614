// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package netmgr

import "errors"

// ErrNoFreeSubnet is returned if all candidate subnets are in use.
var ErrNoFreeSubnet = errors.New("no free subnet for bridge")

// ConfigError is returned for invalid network configurations.
type ConfigError struct {
	Msg string
}

// Error implements the [error] interface.
func (e *ConfigError) Error() string {
	return "network config: " + e.Msg
}

// Is implements the [errors.Is] interface.
func (*ConfigError) Is(other error) bool {
	_, ok := other.(*ConfigError)
	return ok
}
