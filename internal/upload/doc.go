// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package upload implements the content addressed artifact transfer between
// client and worker.
//
// The client sends the packed artifact as request body along with its name
// and hash in the headers. The worker answers with [stream] lines while the
// body is still being sent: "upload: start" when it begins consuming the
// body, "upload: cache" if it already has an artifact with this hash, and
// "upload: done" once the artifact is stored. On a cache hit, the [Uploader]
// stops sending immediately and returns without waiting for buffered data to
// drain.
package upload
