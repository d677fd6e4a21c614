// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm

import (
	"io/fs"
	"os"
	"os/exec"
	"time"

	"github.com/aibor/dutrun/internal/netmgr"
	"github.com/aibor/dutrun/internal/retry"
	"github.com/aibor/dutrun/internal/sys"
)

const (
	defaultStopTimeout    = 10 * time.Second
	defaultSocketInterval = 100 * time.Millisecond
	defaultSocketAttempts = 100
)

// Env holds the host dependencies of a [Machine]. Zero fields are replaced
// with the real host implementations.
type Env struct {
	// RootFS is the host file system rooted at "/". Firmware files and the
	// IP forwarding state are read from it.
	RootFS fs.FS
	Runner sys.Runner
	Start  sys.StartFunc
	// LookPath finds required executables.
	LookPath func(file string) (string, error)
	NetHost  netmgr.Host
	// DetectFlasher inspects the flashed image.
	DetectFlasher FlasherDetector
	// SocketPolicy bounds waiting for the management and TPM sockets.
	SocketPolicy retry.Policy
	// StopTimeout bounds waiting for child processes after a termination
	// signal before they are killed.
	StopTimeout time.Duration
}

func (e *Env) setDefaults() {
	if e.RootFS == nil {
		e.RootFS = os.DirFS("/")
	}

	if e.Runner == nil {
		e.Runner = sys.ExecRunner{}
	}

	if e.Start == nil {
		e.Start = sys.StartProcess
	}

	if e.LookPath == nil {
		e.LookPath = exec.LookPath
	}

	if e.NetHost == nil {
		e.NetHost = netmgr.NetlinkHost{}
	}

	if e.DetectFlasher == nil {
		e.DetectFlasher = DetectFlasher
	}

	if e.SocketPolicy.Attempts == 0 {
		e.SocketPolicy = retry.Policy{
			Interval: defaultSocketInterval,
			Attempts: defaultSocketAttempts,
		}
	}

	if e.StopTimeout == 0 {
		e.StopTimeout = defaultStopTimeout
	}
}
