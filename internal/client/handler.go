// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package client

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/aibor/dutrun/internal/artifact"
	"github.com/aibor/dutrun/internal/channel"
	"github.com/aibor/dutrun/internal/upload"
)

type handler struct {
	uploader  *upload.Uploader
	artifacts map[string]*artifact.Artifact
	output    io.Writer
	log       *zap.SugaredLogger
}

var _ channel.Handler = (*handler)(nil)

// Upload implements [channel.Handler].
func (h *handler) Upload(ctx context.Context, req channel.UploadRequest) error {
	art, exists := h.artifacts[req.Name]
	if !exists {
		return &channel.ProtocolError{Msg: "unknown artifact " + req.Name}
	}

	h.log.Infow("Uploading artifact", "artifact", art.String())

	result, err := h.uploader.Upload(ctx, art, req.Token)
	if err != nil {
		return err //nolint:wrapcheck
	}

	h.log.Infow("Artifact uploaded",
		"artifact", req.Name,
		"hash", result.Hash,
		"cached", result.Cached,
		"sent", result.Sent,
	)

	return nil
}

// Output implements [channel.Handler].
func (h *handler) Output(kind channel.Kind, text string) {
	switch kind {
	case channel.KindLog:
		if h.output != nil {
			_, _ = fmt.Fprintln(h.output, text)
		}
	case channel.KindStatus:
		h.log.Infow("Worker status", "status", text)
	default:
		h.log.Infow(text)
	}
}
