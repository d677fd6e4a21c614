// SPDX-FileCopyrightText: 2026 Tobias Böhm <code@aibor.de>
//
// SPDX-License-Identifier: GPL-3.0-or-later

package vm_test

import (
	"os"
	"path/filepath"
	"testing"

	diskfs "github.com/diskfs/go-diskfs"
	"github.com/diskfs/go-diskfs/disk"
	"github.com/diskfs/go-diskfs/filesystem"
	"github.com/diskfs/go-diskfs/partition/mbr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aibor/dutrun/internal/vm"
)

const (
	imageSize   = 64 << 20
	sectorSize  = 512
	firstSector = 2048
)

// createImage creates a disk image with a single FAT32 partition containing
// the given files.
func createImage(t *testing.T, files ...string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "image.img")

	img, err := diskfs.Create(path, imageSize, diskfs.Raw, diskfs.SectorSizeDefault)
	require.NoError(t, err)

	defer img.File.Close()

	err = img.Partition(&mbr.Table{
		LogicalSectorSize:  sectorSize,
		PhysicalSectorSize: sectorSize,
		Partitions: []*mbr.Partition{
			{
				Bootable: true,
				Type:     mbr.Fat32LBA,
				Start:    firstSector,
				Size:     imageSize/sectorSize - firstSector,
			},
		},
	})
	require.NoError(t, err)

	fs, err := img.CreateFilesystem(disk.FilesystemSpec{
		Partition:   1,
		FSType:      filesystem.TypeFat32,
		VolumeLabel: "boot",
	})
	require.NoError(t, err)

	for _, name := range files {
		file, err := fs.OpenFile("/"+name, os.O_CREATE|os.O_RDWR)
		require.NoError(t, err)

		_, err = file.Write([]byte("1"))
		require.NoError(t, err)
		require.NoError(t, file.Close())
	}

	return path
}

func TestDetectFlasher(t *testing.T) {
	t.Run("marker present", func(t *testing.T) {
		flasher, err := vm.DetectFlasher(createImage(t, vm.FlasherMarker, "config.json"))
		require.NoError(t, err)
		assert.True(t, flasher)
	})

	t.Run("marker absent", func(t *testing.T) {
		flasher, err := vm.DetectFlasher(createImage(t, "config.json"))
		require.NoError(t, err)
		assert.False(t, flasher)
	})

	t.Run("no partition table", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "raw.img")
		require.NoError(t, os.WriteFile(path, make([]byte, 1<<20), 0o600))

		flasher, err := vm.DetectFlasher(path)
		require.NoError(t, err)
		assert.False(t, flasher)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := vm.DetectFlasher(filepath.Join(t.TempDir(), "missing.img"))
		require.Error(t, err)
	})
}
