// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm

import (
	"fmt"
	"os"

	diskfs "github.com/diskfs/go-diskfs"
)

// FlasherMarker is the file on the first partition that marks an image as
// flasher.
const FlasherMarker = "balena-image-flasher"

// FlasherDetector reports whether the disk image at path is a flasher image.
type FlasherDetector func(path string) (bool, error)

// DetectFlasher looks for [FlasherMarker] in the root directory of the file
// system on partition 1 of the disk image. Images without partition table or
// with unsupported file systems are no flasher images.
func DetectFlasher(path string) (bool, error) {
	disk, err := diskfs.Open(path, diskfs.WithOpenMode(diskfs.ReadOnly))
	if err != nil {
		return false, fmt.Errorf("open disk image: %w", err)
	}
	defer disk.File.Close()

	fs, err := disk.GetFilesystem(1)
	if err != nil {
		// No partition table or no known file system on the partition.
		return false, nil //nolint:nilerr
	}

	file, err := fs.OpenFile("/"+FlasherMarker, os.O_RDONLY)
	if err != nil {
		// Absent files are reported differently by the file system drivers.
		return false, nil //nolint:nilerr
	}

	_ = file.Close()

	return true, nil
}
