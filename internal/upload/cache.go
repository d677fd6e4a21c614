// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package upload

import (
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/aibor/dutrun/internal/artifact"
)

// Cache is a content addressed store of unpacked artifacts. Each artifact
// lives in a directory named after its hash, containing the tree rooted at
// the artifact's name.
type Cache struct {
	Dir string
}

// ValidateHash checks that the hash is a hex encoded MD5 digest. This also
// guarantees it is safe to use as path component.
func ValidateHash(hash string) error {
	decoded, err := hex.DecodeString(hash)
	if err != nil || len(decoded) != 16 {
		return fmt.Errorf("%w: %q", ErrInvalidHash, hash)
	}

	return nil
}

// Lookup returns the path of the cached artifact root for the given hash.
func (c *Cache) Lookup(hash string) (string, bool) {
	entries, err := os.ReadDir(filepath.Join(c.Dir, hash))
	if err != nil || len(entries) != 1 {
		return "", false
	}

	return filepath.Join(c.Dir, hash, entries[0].Name()), true
}

// Store unpacks the archive read from r and stores it under the given hash.
// The archive is extracted into a temporary directory first and moved into
// place afterwards, so incomplete uploads never show up in [Cache.Lookup].
func (c *Cache) Store(hash, name string, r io.Reader) (string, error) {
	err := os.MkdirAll(c.Dir, 0o755)
	if err != nil {
		return "", fmt.Errorf("create cache dir: %w", err)
	}

	tmpDir, err := os.MkdirTemp(c.Dir, ".incoming-")
	if err != nil {
		return "", fmt.Errorf("create staging dir: %w", err)
	}
	defer os.RemoveAll(tmpDir)

	err = artifact.Unpack(r, tmpDir)
	if err != nil {
		return "", err //nolint:wrapcheck
	}

	_, err = os.Stat(filepath.Join(tmpDir, name))
	if err != nil {
		return "", fmt.Errorf("archive root %s: %w", name, err)
	}

	target := filepath.Join(c.Dir, hash)

	// ErrExist means a concurrent upload of the same content won the race.
	err = os.Rename(tmpDir, target)
	if err != nil && !errors.Is(err, fs.ErrExist) {
		return "", fmt.Errorf("move into cache: %w", err)
	}

	path, ok := c.Lookup(hash)
	if !ok {
		return "", fmt.Errorf("%w: cache entry %s", fs.ErrNotExist, hash)
	}

	return path, nil
}

// Remove deletes the entry for the given hash.
func (c *Cache) Remove(hash string) error {
	err := ValidateHash(hash)
	if err != nil {
		return err
	}

	return os.RemoveAll(filepath.Join(c.Dir, hash)) //nolint:wrapcheck
}
