// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package cmd

import (
	"context"
	"os/signal"

	"golang.org/x/sys/unix"
)

// NotifyContext returns a context that is canceled on the first SIGINT or
// SIGTERM. The registration ends with the context, so a repeated signal gets
// the default disposition and terminates the process.
func NotifyContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, stop := signal.NotifyContext(parent, unix.SIGINT, unix.SIGTERM)
	context.AfterFunc(ctx, stop)

	return ctx, stop
}
