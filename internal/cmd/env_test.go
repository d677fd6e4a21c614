// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/aibor/dutrun/internal/cmd"
)

func TestEnvArgs(t *testing.T) {
	tests := []struct {
		name   string
		binary string
		env    map[string]string
		output []string
	}{
		{
			name:   "empty",
			binary: cmd.ClientName,
			env:    map[string]string{"DUTRUN_ARGS": ""},
			output: []string{},
		},
		{
			name:   "multiple args",
			binary: cmd.ClientName,
			env:    map[string]string{"DUTRUN_ARGS": "--worker http://worker:8080  --log-level debug"},
			output: []string{"--worker", "http://worker:8080", "--log-level", "debug"},
		},
		{
			name:   "per binary",
			binary: cmd.WorkerName,
			env: map[string]string{
				"DUTRUN_ARGS":    "--worker http://worker:8080",
				"DUTWORKER_ARGS": "--listen :9000",
			},
			output: []string{"--listen", ":9000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			assert.Equal(t, tt.output, cmd.EnvArgs(tt.binary))
		})
	}
}
