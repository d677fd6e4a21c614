// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package artifact

import "errors"

var (
	// ErrKindMismatch is returned if the artifact's path does not match its
	// kind, e.g. a file artifact pointing to a directory.
	ErrKindMismatch = errors.New("artifact kind does not match path")

	// ErrUnknownKind is returned for artifact kinds that are not supported.
	ErrUnknownKind = errors.New("unknown artifact kind")

	// ErrEmptyName is returned if an artifact has no name.
	ErrEmptyName = errors.New("artifact name must not be empty")

	// ErrUnsafePath is returned if an archive entry would be extracted
	// outside of the target directory.
	ErrUnsafePath = errors.New("unsafe path in archive")
)
