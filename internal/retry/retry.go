// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package retry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// ErrAttemptsExhausted is returned if the operation did not succeed within
// the allowed number of attempts.
var ErrAttemptsExhausted = errors.New("attempts exhausted")

// Policy defines how often and how fast an operation is retried.
type Policy struct {
	// Interval between two attempts.
	Interval time.Duration
	// Attempts is the maximum number of attempts, including the first one.
	Attempts uint
}

// Permanent marks err as not retryable. The loop stops immediately and
// returns err.
func Permanent(err error) error {
	return backoff.Permanent(err)
}

// Value runs op until it succeeds, returns a permanent error, the context is
// done or the attempts of the policy are exhausted. In the last case the
// returned error wraps [ErrAttemptsExhausted] and the last error of op.
func Value[T any](
	ctx context.Context,
	policy Policy,
	op func(ctx context.Context) (T, error),
) (T, error) {
	var (
		attempts uint
		lastErr  error
	)

	operation := func() (T, error) {
		attempts++

		value, err := op(ctx)
		lastErr = err

		return value, err
	}

	value, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewConstantBackOff(policy.Interval)),
		backoff.WithMaxTries(policy.Attempts),
		backoff.WithMaxElapsedTime(0),
	)
	if err != nil {
		var permanent *backoff.PermanentError
		if errors.As(lastErr, &permanent) {
			return value, permanent.Unwrap()
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return value, fmt.Errorf("after %d attempts: %w", attempts, ctxErr)
		}

		if attempts >= policy.Attempts && lastErr != nil {
			return value, fmt.Errorf("%w after %d attempts: %w",
				ErrAttemptsExhausted, attempts, lastErr)
		}

		return value, err
	}

	return value, nil
}

// Do is like [Value] for operations without a result.
func Do(
	ctx context.Context,
	policy Policy,
	op func(ctx context.Context) error,
) error {
	_, err := Value(ctx, policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})

	return err
}
