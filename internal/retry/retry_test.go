// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aibor/dutrun/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errNotYet = errors.New("not yet")

func TestValue(t *testing.T) {
	policy := retry.Policy{Interval: time.Millisecond, Attempts: 5}

	t.Run("succeeds eventually", func(t *testing.T) {
		calls := 0

		value, err := retry.Value(t.Context(), policy,
			func(context.Context) (int, error) {
				calls++
				if calls < 3 {
					return 0, errNotYet
				}

				return 42, nil
			},
		)
		require.NoError(t, err)
		assert.Equal(t, 42, value)
		assert.Equal(t, 3, calls)
	})

	t.Run("exhausted", func(t *testing.T) {
		calls := 0

		_, err := retry.Value(t.Context(), policy,
			func(context.Context) (int, error) {
				calls++
				return 0, errNotYet
			},
		)
		require.ErrorIs(t, err, retry.ErrAttemptsExhausted)
		require.ErrorIs(t, err, errNotYet)
		assert.Equal(t, 5, calls)
	})

	t.Run("permanent", func(t *testing.T) {
		errFatal := errors.New("fatal")
		calls := 0

		_, err := retry.Value(t.Context(), policy,
			func(context.Context) (int, error) {
				calls++
				return 0, retry.Permanent(errFatal)
			},
		)
		require.ErrorIs(t, err, errFatal)
		require.NotErrorIs(t, err, retry.ErrAttemptsExhausted)
		assert.Equal(t, 1, calls)
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(t.Context())
		cancel()

		err := retry.Do(ctx, retry.Policy{Interval: time.Hour, Attempts: 3},
			func(context.Context) error { return errNotYet },
		)
		require.ErrorIs(t, err, context.Canceled)
	})
}
