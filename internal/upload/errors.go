// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package upload

import (
	"errors"
	"fmt"
)

// Header names of the upload request.
const (
	HeaderName  = "artifact-name"
	HeaderHash  = "artifact-hash"
	HeaderToken = "upload-token"
)

var (
	// ErrUploadInProgress is returned if an artifact with the same name is
	// currently streamed.
	ErrUploadInProgress = errors.New("upload already in progress")

	// ErrProtocol is returned if the worker answers with an unknown line.
	ErrProtocol = errors.New("upload protocol error")

	// ErrInvalidHash is returned by the receiver for hashes that are not
	// valid hex encoded MD5 digests.
	ErrInvalidHash = errors.New("invalid artifact hash")
)

// RemoteError is an error reported by the worker.
type RemoteError struct {
	StatusCode int
	Msg        string
}

// Error implements the [error] interface.
func (e *RemoteError) Error() string {
	return fmt.Sprintf("worker (status %d): %s", e.StatusCode, e.Msg)
}

// Is implements the [errors.Is] interface.
func (*RemoteError) Is(other error) bool {
	_, ok := other.(*RemoteError)
	return ok
}
