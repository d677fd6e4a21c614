// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package artifact_test

import (
	"crypto/md5" //nolint:gosec
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/aibor/dutrun/internal/artifact"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFiles(t *testing.T, dir string, files map[string]string, order []string) {
	t.Helper()

	for _, name := range order {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(files[name]), 0o644))
	}
}

func md5Hex(data string) string {
	sum := md5.Sum([]byte(data)) //nolint:gosec
	return hex.EncodeToString(sum[:])
}

func TestHash_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image.img")
	require.NoError(t, os.WriteFile(path, []byte("raw image bytes"), 0o644))

	a := &artifact.Artifact{Name: "image", Kind: artifact.KindFile, Path: path}

	sum, err := artifact.Hash(a)
	require.NoError(t, err)

	assert.Equal(t, md5Hex("raw image bytes"), sum)
	assert.Equal(t, sum, a.Hash)
	assert.Equal(t, int64(len("raw image bytes")), a.Size)
}

func TestHash_Directory(t *testing.T) {
	files := map[string]string{
		"suite.js":          "console.log(1)",
		"lib/helper.js":     "module.exports = {}",
		"lib/z/deep.txt":    "deep",
		"B.txt":             "upper case sorts first",
		"node_modules/x.js": "ignored",
		".git/HEAD":         "ignored",
	}

	forward := []string{
		"suite.js", "lib/helper.js", "lib/z/deep.txt", "B.txt",
		"node_modules/x.js", ".git/HEAD",
	}
	backward := []string{
		".git/HEAD", "node_modules/x.js", "B.txt", "lib/z/deep.txt",
		"lib/helper.js", "suite.js",
	}

	dirA := t.TempDir()
	dirB := t.TempDir()

	writeFiles(t, dirA, files, forward)
	writeFiles(t, dirB, files, backward)

	hashA, err := artifact.Hash(&artifact.Artifact{
		Name: "suite", Kind: artifact.KindDirectory, Path: dirA,
	})
	require.NoError(t, err)

	hashB, err := artifact.Hash(&artifact.Artifact{
		Name: "suite", Kind: artifact.KindDirectory, Path: dirB,
	})
	require.NoError(t, err)

	assert.Equal(t, hashA, hashB, "creation order must not matter")

	expected := md5Hex(
		md5Hex("upper case sorts first") +
			md5Hex("module.exports = {}") +
			md5Hex("deep") +
			md5Hex("console.log(1)"),
	)
	assert.Equal(t, expected, hashA, "byte-wise path order, ignored entries skipped")

	again, err := artifact.Hash(&artifact.Artifact{
		Name: "suite", Kind: artifact.KindDirectory, Path: dirA,
	})
	require.NoError(t, err)
	assert.Equal(t, hashA, again)

	require.NoError(t, os.WriteFile(
		filepath.Join(dirB, "lib", "z", "deep.txt"), []byte("deeP"), 0o644,
	))

	changed, err := artifact.Hash(&artifact.Artifact{
		Name: "suite", Kind: artifact.KindDirectory, Path: dirB,
	})
	require.NoError(t, err)
	assert.NotEqual(t, hashA, changed, "single byte change must change the hash")
}

func TestHash_InlineJSON(t *testing.T) {
	a := &artifact.Artifact{
		Name: "config",
		Kind: artifact.KindInlineJSON,
		Data: map[string]any{"deviceType": "x"},
	}

	sum, err := artifact.Hash(a)
	require.NoError(t, err)

	assert.Equal(t, md5Hex(`{"deviceType":"x"}`), sum)
	assert.Equal(t, int64(len(`{"deviceType":"x"}`)), a.Size)
}

func TestHash_KindMismatch(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "file")
	require.NoError(t, os.WriteFile(file, nil, 0o644))

	tests := []struct {
		name        string
		artifact    artifact.Artifact
		expectedErr error
	}{
		{
			name:        "file is directory",
			artifact:    artifact.Artifact{Name: "a", Kind: artifact.KindFile, Path: dir},
			expectedErr: artifact.ErrKindMismatch,
		},
		{
			name:        "directory is file",
			artifact:    artifact.Artifact{Name: "a", Kind: artifact.KindDirectory, Path: file},
			expectedErr: artifact.ErrKindMismatch,
		},
		{
			name:        "inline with path",
			artifact:    artifact.Artifact{Name: "a", Kind: artifact.KindInlineJSON, Path: file, Data: 1},
			expectedErr: artifact.ErrKindMismatch,
		},
		{
			name:        "unknown kind",
			artifact:    artifact.Artifact{Name: "a", Kind: "blob", Path: file},
			expectedErr: artifact.ErrUnknownKind,
		},
		{
			name:        "empty name",
			artifact:    artifact.Artifact{Kind: artifact.KindFile, Path: file},
			expectedErr: artifact.ErrEmptyName,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := artifact.Hash(&tt.artifact)
			assert.ErrorIs(t, err, tt.expectedErr)
		})
	}
}
