// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package sys_test

import (
	"os/exec"
	"testing"

	"github.com/aibor/dutrun/internal/sys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner_Run(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		out, err := sys.ExecRunner{}.Run(t.Context(), "echo", "hello")
		require.NoError(t, err)
		assert.Equal(t, "hello\n", string(out))
	})

	t.Run("failure", func(t *testing.T) {
		_, err := sys.ExecRunner{}.Run(t.Context(), "sh", "-c", "echo oops >&2; exit 3")

		var cmdErr *sys.CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.Equal(t, 3, cmdErr.ExitCode())
		assert.Equal(t, "oops", cmdErr.Stderr)
		assert.False(t, cmdErr.ToolMissing())
	})

	t.Run("missing tool", func(t *testing.T) {
		_, err := sys.ExecRunner{}.Run(t.Context(), "dutrun-does-not-exist")

		var cmdErr *sys.CommandError
		require.ErrorAs(t, err, &cmdErr)
		assert.True(t, cmdErr.ToolMissing())
		assert.ErrorIs(t, err, exec.ErrNotFound)
		assert.Equal(t, -1, cmdErr.ExitCode())
	})
}
