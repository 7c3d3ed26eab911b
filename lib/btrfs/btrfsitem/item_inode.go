// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/fmtutil"
)

// Inode is a file/dir/whatever in the filesystem.
//
//	key.objectid = inode number
//	key.offset   = 0
type Inode struct { // INODE_ITEM=1
	Generation    btrfsprim.Generation `bin:"off=0x00, siz=0x08"`
	TransID       int64                `bin:"off=0x08, siz=0x08"`
	Size          int64                `bin:"off=0x10, siz=0x08"` // stat
	NumBytes      int64                `bin:"off=0x18, siz=0x08"` // allocated bytes, may be larger than size if there are holes
	BlockGroup    btrfsprim.ObjID      `bin:"off=0x20, siz=0x08"` // only used for freespace inodes
	NLink         int32                `bin:"off=0x28, siz=0x04"`
	UID           int32                `bin:"off=0x2C, siz=0x04"`
	GID           int32                `bin:"off=0x30, siz=0x04"`
	Mode          StatMode             `bin:"off=0x34, siz=0x04"`
	RDev          int64                `bin:"off=0x38, siz=0x08"`
	Flags         InodeFlags           `bin:"off=0x40, siz=0x08"`
	Sequence      int64                `bin:"off=0x48, siz=0x08"`
	Reserved      [4]int64             `bin:"off=0x50, siz=0x20"`
	ATime         btrfsprim.Time       `bin:"off=0x70, siz=0x0c"`
	CTime         btrfsprim.Time       `bin:"off=0x7c, siz=0x0c"`
	MTime         btrfsprim.Time       `bin:"off=0x88, siz=0x0c"`
	OTime         btrfsprim.Time       `bin:"off=0x94, siz=0x0c"` // statx.stx_btime
	binstruct.End `bin:"off=0xa0"`
}

func (Inode) isItem() {}

// StatMode is the mode word from an Inode: the 4-bit file-type field
// packed with the 12-bit permission bits, laid out the way the Linux
// stat(2) st_mode field is.
type StatMode uint32

const (
	ModeFmt StatMode = 0o17_0000 // mask for the type bits

	ModeFmtNamedPipe   StatMode = 0o01_0000
	ModeFmtCharDevice  StatMode = 0o02_0000
	ModeFmtDir         StatMode = 0o04_0000
	ModeFmtBlockDevice StatMode = 0o06_0000
	ModeFmtRegular     StatMode = 0o10_0000
	ModeFmtSymlink     StatMode = 0o12_0000
	ModeFmtSocket      StatMode = 0o14_0000

	ModePerm StatMode = 0o00_7777 // mask for permission bits
)

func (mode StatMode) IsDir() bool      { return mode&ModeFmt == ModeFmtDir }
func (mode StatMode) IsRegular() bool  { return mode&ModeFmt == ModeFmtRegular }
func (mode StatMode) IsSymlink() bool  { return mode&ModeFmt == ModeFmtSymlink }

// String renders the mode the way `ls -l` would show its first column.
func (mode StatMode) String() string {
	buf := [10]byte{
		"?pc?d?b?-?l?s???"[mode>>12],
		"-r"[(mode>>8)&0o1],
		"-w"[(mode>>7)&0o1],
		"-xSs"[((mode>>6)&0o1)|((mode>>10)&0o2)],
		"-r"[(mode>>5)&0o1],
		"-w"[(mode>>4)&0o1],
		"-xSs"[((mode>>3)&0o1)|((mode>>9)&0o2)],
		"-r"[(mode>>2)&0o1],
		"-w"[(mode>>1)&0o1],
		"-xTt"[((mode>>0)&0o1)|((mode>>8)&0o2)],
	}
	return string(buf[:])
}

type InodeFlags uint64

const (
	INODE_NODATASUM InodeFlags = 1 << iota
	INODE_NODATACOW
	INODE_READONLY
	INODE_NOCOMPRESS
	INODE_PREALLOC
	INODE_SYNC
	INODE_IMMUTABLE
	INODE_APPEND
	INODE_NODUMP
	INODE_NOATIME
	INODE_DIRSYNC
	INODE_COMPRESS
)

var inodeFlagNames = []string{
	"NODATASUM",
	"NODATACOW",
	"READONLY",
	"NOCOMPRESS",
	"PREALLOC",
	"SYNC",
	"IMMUTABLE",
	"APPEND",
	"NODUMP",
	"NOATIME",
	"DIRSYNC",
	"COMPRESS",
}

func (f InodeFlags) Has(req InodeFlags) bool { return f&req == req }
func (f InodeFlags) String() string {
	return fmtutil.BitfieldString(f, inodeFlagNames, fmtutil.HexLower)
}
