// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package artifact

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
)

// CompressionLevel is the gzip level used for packing. It is fixed, so equal
// content results in equal archives.
const CompressionLevel = gzip.DefaultCompression

//nolint:gochecknoglobals
var epoch = time.Unix(0, 0)

// Pack writes the artifact as gzip compressed tar archive to w.
//
// All entries are rooted at the artifact's name. Headers are normalized
// (modification time, ownership), so the archive only depends on content,
// names and permissions.
func Pack(ctx context.Context, a *Artifact, w io.Writer) error {
	err := a.validate()
	if err != nil {
		return err
	}

	compressor, err := gzip.NewWriterLevel(w, CompressionLevel)
	if err != nil {
		return fmt.Errorf("gzip writer: %w", err)
	}

	archive := tar.NewWriter(compressor)

	switch a.Kind {
	case KindFile:
		err = packFile(archive, a.Name, a.Path)
	case KindDirectory:
		err = packDirectory(ctx, archive, a)
	case KindInlineJSON:
		err = packInline(archive, a)
	}

	if err != nil {
		return fmt.Errorf("pack %s: %w", a.Name, err)
	}

	err = archive.Close()
	if err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	err = compressor.Close()
	if err != nil {
		return fmt.Errorf("close compressor: %w", err)
	}

	return nil
}

// Open returns a reader streaming the packed artifact. Packing runs in a
// separate goroutine that stops as soon as the reader is closed.
func Open(ctx context.Context, a *Artifact) io.ReadCloser {
	reader, writer := io.Pipe()

	go func() {
		writer.CloseWithError(Pack(ctx, a, writer))
	}()

	return reader
}

func regularHeader(name string, mode fs.FileMode, size int64) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     name,
		Mode:     int64(mode.Perm()),
		Size:     size,
		ModTime:  epoch,
	}
}

func packFile(archive *tar.Writer, name, filePath string) error {
	file, err := os.Open(filePath)
	if err != nil {
		return err //nolint:wrapcheck
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filePath, err)
	}

	err = archive.WriteHeader(regularHeader(name, info.Mode(), info.Size()))
	if err != nil {
		return fmt.Errorf("write header %s: %w", name, err)
	}

	_, err = io.Copy(archive, file)
	if err != nil {
		return fmt.Errorf("write body %s: %w", name, err)
	}

	return nil
}

func packDirectory(ctx context.Context, archive *tar.Writer, a *Artifact) error {
	entries, err := walk(a)
	if err != nil {
		return err
	}

	err = archive.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     a.Name + "/",
		Mode:     0o755,
		ModTime:  epoch,
	})
	if err != nil {
		return fmt.Errorf("write root header: %w", err)
	}

	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return err //nolint:wrapcheck
		}

		err := packFile(archive, path.Join(a.Name, e.rel), e.path)
		if err != nil {
			return err
		}
	}

	return nil
}

func packInline(archive *tar.Writer, a *Artifact) error {
	data, err := a.inlineBytes()
	if err != nil {
		return err
	}

	err = archive.WriteHeader(regularHeader(a.Name, 0o644, int64(len(data))))
	if err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	_, err = archive.Write(data)
	if err != nil {
		return fmt.Errorf("write body: %w", err)
	}

	return nil
}

// Unpack extracts a gzip compressed tar archive as written by [Pack] into
// dir. Entries escaping dir are rejected with [ErrUnsafePath].
func Unpack(r io.Reader, dir string) error {
	decompressor, err := gzip.NewReader(r)
	if err != nil {
		return fmt.Errorf("gzip reader: %w", err)
	}
	defer decompressor.Close()

	archive := tar.NewReader(decompressor)

	for {
		header, err := archive.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("read archive: %w", err)
		}

		target, err := safeJoin(dir, header.Name)
		if err != nil {
			return err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			err = os.MkdirAll(target, 0o755)
		case tar.TypeReg:
			err = extractFile(archive, target, fs.FileMode(header.Mode).Perm())
		default:
			continue
		}

		if err != nil {
			return fmt.Errorf("extract %s: %w", header.Name, err)
		}
	}
}

func safeJoin(dir, name string) (string, error) {
	if path.IsAbs(name) || slices.Contains(strings.Split(name, "/"), "..") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}

	return filepath.Join(dir, filepath.FromSlash(path.Clean(name))), nil
}

func extractFile(r io.Reader, target string, mode fs.FileMode) error {
	err := os.MkdirAll(filepath.Dir(target), 0o755)
	if err != nil {
		return err //nolint:wrapcheck
	}

	file, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return err //nolint:wrapcheck
	}

	_, err = io.Copy(file, r)
	if closeErr := file.Close(); err == nil {
		err = closeErr
	}

	return err //nolint:wrapcheck
}
