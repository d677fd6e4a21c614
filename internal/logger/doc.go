// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package logger wraps zap with a process wide sugared logger and helpers to
// carry scoped loggers in a [context.Context].
package logger
