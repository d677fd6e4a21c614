// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package logger_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/aibor/dutrun/internal/logger"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
		ok       bool
	}{
		{input: "debug", expected: zapcore.DebugLevel, ok: true},
		{input: " INFO ", expected: zapcore.InfoLevel, ok: true},
		{input: "", expected: zapcore.InfoLevel, ok: true},
		{input: "warning", expected: zapcore.WarnLevel, ok: true},
		{input: "error", expected: zapcore.ErrorLevel, ok: true},
		{input: "loud", expected: zapcore.InfoLevel, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			level, ok := logger.ParseLevel(tt.input)
			assert.Equal(t, tt.expected, level)
			assert.Equal(t, tt.ok, ok)
		})
	}
}

func TestContext(t *testing.T) {
	var buf bytes.Buffer

	l := logger.New(&buf, zap.NewAtomicLevelAt(zapcore.DebugLevel))
	ctx := logger.ToContext(context.Background(), l)
	ctx = logger.WithKV(ctx, "instance", "abc")

	logger.InfoKV(ctx, "bridge created", "bridge", "br-abc")

	assert.Contains(t, buf.String(), "bridge created")
	assert.Contains(t, buf.String(), "instance")
	assert.Contains(t, buf.String(), "br-abc")
}

func TestFromContextDefault(t *testing.T) {
	assert.Same(t, logger.Logger(), logger.FromContext(context.Background()))
}
