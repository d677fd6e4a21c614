// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys

import (
	"context"
	"strings"
	"sync"
)

// FakeRunner is a [Runner] for tests. It records all invocations and answers
// them with Handler, if set.
type FakeRunner struct {
	// Handler is called for each invocation. The joined command line is passed
	// as a single string, e.g. "ip link set dev br0 up".
	Handler func(cmdline string) ([]byte, error)

	mu    sync.Mutex
	calls []string
}

var _ Runner = (*FakeRunner)(nil)

// Run implements [Runner].
func (r *FakeRunner) Run(
	_ context.Context,
	name string,
	args ...string,
) ([]byte, error) {
	cmdline := strings.Join(append([]string{name}, args...), " ")

	r.mu.Lock()
	r.calls = append(r.calls, cmdline)
	r.mu.Unlock()

	if r.Handler == nil {
		return nil, nil
	}

	return r.Handler(cmdline)
}

// Calls returns all recorded command lines.
func (r *FakeRunner) Calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.calls...)
}

// CallsWithPrefix returns all recorded command lines starting with prefix.
func (r *FakeRunner) CallsWithPrefix(prefix string) []string {
	var matching []string

	for _, call := range r.Calls() {
		if strings.HasPrefix(call, prefix) {
			matching = append(matching, call)
		}
	}

	return matching
}
