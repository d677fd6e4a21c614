// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package artifact

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// entry is a regular file of a directory artifact.
type entry struct {
	// rel is the slash separated path relative to the artifact root.
	rel  string
	path string
	info fs.FileInfo
}

// Hash computes the content fingerprint of the artifact and stores it along
// with the content size in the artifact.
//
// The fingerprint of a file is the MD5 digest of its bytes. For a directory
// it is the MD5 digest of the concatenated hex digests of all files sorted by
// their relative path. Inline JSON is hashed over its serialized bytes.
func Hash(a *Artifact) (string, error) {
	err := a.validate()
	if err != nil {
		return "", err
	}

	var (
		sum  string
		size int64
	)

	switch a.Kind {
	case KindFile:
		sum, size, err = hashFile(a.Path)
	case KindDirectory:
		sum, size, err = hashDirectory(a)
	case KindInlineJSON:
		var data []byte

		data, err = a.inlineBytes()
		if err == nil {
			digest := md5.Sum(data) //nolint:gosec
			sum, size = hex.EncodeToString(digest[:]), int64(len(data))
		}
	}

	if err != nil {
		return "", fmt.Errorf("hash %s: %w", a.Name, err)
	}

	a.Hash = sum
	a.Size = size

	return sum, nil
}

func hashFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err //nolint:wrapcheck
	}
	defer file.Close()

	digest := md5.New() //nolint:gosec

	size, err := io.Copy(digest, file)
	if err != nil {
		return "", 0, fmt.Errorf("read %s: %w", path, err)
	}

	return hex.EncodeToString(digest.Sum(nil)), size, nil
}

func hashDirectory(a *Artifact) (string, int64, error) {
	entries, err := walk(a)
	if err != nil {
		return "", 0, err
	}

	var total int64

	digest := md5.New() //nolint:gosec

	for _, e := range entries {
		sum, size, err := hashFile(e.path)
		if err != nil {
			return "", 0, err
		}

		total += size

		_, _ = io.WriteString(digest, sum)
	}

	return hex.EncodeToString(digest.Sum(nil)), total, nil
}

// walk collects all regular files of a directory artifact ordered by their
// relative path. The order must not depend on the platform or locale.
func walk(a *Artifact) ([]entry, error) {
	var entries []entry

	err := filepath.WalkDir(a.Path, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		if path != a.Path && a.ignored(d.Name()) {
			if d.IsDir() {
				return filepath.SkipDir
			}

			return nil
		}

		if !d.Type().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(a.Path, path)
		if err != nil {
			return fmt.Errorf("relative path for %s: %w", path, err)
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		entries = append(entries, entry{
			rel:  filepath.ToSlash(rel),
			path: path,
			info: info,
		})

		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", a.Path, err)
	}

	slices.SortFunc(entries, func(a, b entry) int {
		return strings.Compare(a.rel, b.rel)
	})

	return entries, nil
}
