// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package channel implements the control channel of a run.
//
// The channel is a WebSocket connection carrying JSON envelopes. The worker
// side [Session] requests artifact uploads and streams output. The client
// side [Conn] answers upload requests and presents the output. When the run
// is complete the worker closes the connection with a normal close frame
// whose reason is the decimal exit code of the run.
package channel
