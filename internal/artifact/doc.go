// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package artifact computes content fingerprints of test artifacts and packs
// them into compressed archive streams.
//
// An [Artifact] is either a single file, a directory tree or an in-memory JSON
// document. Its hash is used as cache key by the worker, so it must be stable
// across runs and hosts: directory entries are ordered by their slash
// separated relative path using plain byte comparison. Archives are rooted at
// the artifact's logical name, so local absolute paths never leave the host.
package artifact
