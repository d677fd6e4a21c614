// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package device

import (
	"fmt"
	"slices"
)

// State is the lifecycle state of the device.
type State int

// Lifecycle states.
const (
	StateUnconfigured State = iota
	StateReady
	// StateFlashing lasts from the start of a flash until the device is
	// powered on.
	StateFlashing
	StatePoweredOn
	StatePoweredOff
	StateTornDown
)

// String implements [fmt.Stringer].
func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateReady:
		return "ready"
	case StateFlashing:
		return "flashing"
	case StatePoweredOn:
		return "powered-on"
	case StatePoweredOff:
		return "powered-off"
	case StateTornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// MarshalText implements [encoding.TextMarshaler].
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements [encoding.TextUnmarshaler].
func (s *State) UnmarshalText(text []byte) error {
	for state := StateUnconfigured; state <= StateTornDown; state++ {
		if state.String() == string(text) {
			*s = state
			return nil
		}
	}

	return fmt.Errorf("unknown state %q", text)
}

// operation names as used in [StateError].
const (
	opFlash        = "flash"
	opPowerOn      = "power on"
	opPowerOff     = "power off"
	opNetwork      = "network"
	opStartCapture = "start capture"
	opStopCapture  = "stop capture"
)

// validFrom lists the states each operation is valid in. Teardown is valid
// in any state.
//
//nolint:gochecknoglobals
var validFrom = map[string][]State{
	opFlash:        {StateReady, StateFlashing, StatePoweredOn, StatePoweredOff},
	opPowerOn:      {StateFlashing, StatePoweredOn, StatePoweredOff},
	opPowerOff:     {StateFlashing, StatePoweredOn, StatePoweredOff},
	opNetwork:      {StateReady, StateFlashing, StatePoweredOn, StatePoweredOff},
	opStartCapture: {StateReady, StateFlashing, StatePoweredOn, StatePoweredOff},
	opStopCapture:  {StateReady, StateFlashing, StatePoweredOn, StatePoweredOff},
}

func checkTransition(op string, current State) error {
	if !slices.Contains(validFrom[op], current) {
		return &StateError{Op: op, State: current}
	}

	return nil
}
