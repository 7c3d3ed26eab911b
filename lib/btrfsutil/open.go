// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"fmt"
	"os"

	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
	"github.com/btrfscat/btrfscat/lib/diskio"
)

// superblockOffset is the byte offset, from the start of the device
// (or from partitionOffset, on a partition that doesn't start at the
// beginning of its backing device), of the primary superblock.
const superblockOffset = 0x10000

const superblockSize = 4096

// Open opens filename read-only and returns it as a diskio.File
// addressed by physical offset, without yet reading anything from
// it.
func Open(filename string) (*diskio.OSFile[btrfsvol.PhysicalAddr], error) {
	osFile, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open %q: %w", filename, err)
	}
	return &diskio.OSFile[btrfsvol.PhysicalAddr]{File: osFile}, nil
}

// ReadSuperblock reads the primary superblock at
// partitionOffset+0x10000. It returns ErrNotBtrfs if the magic
// number doesn't match. The superblock's self-checksum is not checked
// here; Superblock.ValidateChecksum does that.
func ReadSuperblock(file diskio.File[btrfsvol.PhysicalAddr], partitionOffset int64) (btrfs.Superblock, error) {
	var sb btrfs.Superblock

	buf := make([]byte, superblockSize)
	if _, err := file.ReadAt(buf, btrfsvol.PhysicalAddr(partitionOffset+superblockOffset)); err != nil {
		return sb, fmt.Errorf("reading superblock: %w", err)
	}
	if _, err := binstruct.Unmarshal(buf, &sb); err != nil {
		return sb, fmt.Errorf("unmarshaling superblock: %w", err)
	}
	if want := [8]byte{'_', 'B', 'H', 'R', 'f', 'S', '_', 'M'}; sb.Magic != want {
		return sb, ErrNotBtrfs
	}
	return sb, nil
}

// ErrNotBtrfs is returned by ReadSuperblock when the image doesn't
// carry the btrfs magic number at the expected offset.
var ErrNotBtrfs = fmt.Errorf("not a btrfs filesystem: bad magic number")
