// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package capture

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	"github.com/cavaliergopher/cpio"
	"github.com/klauspost/compress/gzip"
)

// Frames returns the names of the captured frames in capture order.
func (c *Capture) Frames() ([]string, error) {
	frames, err := filepath.Glob(filepath.Join(c.Dir, "*.jpg"))
	if err != nil {
		return nil, fmt.Errorf("list frames: %w", err)
	}

	for idx, frame := range frames {
		frames[idx] = filepath.Base(frame)
	}

	slices.Sort(frames)

	return frames, nil
}

// Archive writes a gzip compressed cpio archive of all frames to w.
func (c *Capture) Archive(w io.Writer) error {
	frames, err := c.Frames()
	if err != nil {
		return err
	}

	gzipWriter := gzip.NewWriter(w)
	cpioWriter := cpio.NewWriter(gzipWriter)

	for _, frame := range frames {
		err := addFrame(cpioWriter, filepath.Join(c.Dir, frame), frame)
		if err != nil {
			return err
		}
	}

	err = cpioWriter.Close()
	if err != nil {
		return fmt.Errorf("close archive: %w", err)
	}

	err = gzipWriter.Close()
	if err != nil {
		return fmt.Errorf("close compression: %w", err)
	}

	return nil
}

func addFrame(w *cpio.Writer, path, name string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open frame: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return fmt.Errorf("stat frame: %w", err)
	}

	header := &cpio.Header{
		Name:    name,
		Mode:    cpio.TypeReg | 0o644,
		Size:    info.Size(),
		ModTime: info.ModTime(),
	}

	err = w.WriteHeader(header)
	if err != nil {
		return fmt.Errorf("write header for %s: %w", name, err)
	}

	_, err = io.Copy(w, file)
	if err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}

	return nil
}
