// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"
	"hash/crc32"

	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
)

// NameHash is the CRC32C-based hash btrfs uses to derive a DIR_ITEM's
// or XATTR_ITEM's key.offset from the entry's name.
func NameHash(dat []byte) uint64 {
	return uint64(^crc32.Update(1, crc32.MakeTable(crc32.Castagnoli), dat))
}

// DirList is the payload of a DIR_ITEM, XATTR_ITEM, or DIR_INDEX key.
// Despite the key being unique, more than one DirEntry can be packed
// into a single item when several names hash to the same key.offset.
//
//	key.objectid = inode of directory containing this entry
//	key.offset   =
//	   - for DIR_ITEM and XATTR_ITEM: NameHash(name)
//	   - for DIR_INDEX:               index within the directory (starting at 2, for "." and "..")
type DirList []DirEntry // DIR_ITEM=84, DIR_INDEX=96, XATTR_ITEM=24

func (DirList) isItem() {}

func (o *DirList) UnmarshalBinary(dat []byte) (int, error) {
	n := 0
	for n < len(dat) {
		var entry DirEntry
		_n, err := binstruct.Unmarshal(dat[n:], &entry)
		n += _n
		if err != nil {
			return n, err
		}
		*o = append(*o, entry)
	}
	return n, nil
}

func (o DirList) MarshalBinary() ([]byte, error) {
	var ret []byte
	for _, entry := range o {
		bs, err := binstruct.Marshal(entry)
		ret = append(ret, bs...)
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}

// DirEntry is one packed entry of a DirList: a name plus the key of
// the inode (or, for XATTR_ITEM, the xattr Data) it names.
type DirEntry struct {
	Location      btrfsprim.Key `bin:"off=0x0, siz=0x11"`
	TransID       int64         `bin:"off=0x11, siz=8"`
	DataLen       uint16        `bin:"off=0x19, siz=2"` // [ignored-when-writing]
	NameLen       uint16        `bin:"off=0x1b, siz=2"` // [ignored-when-writing]
	Type          FileType      `bin:"off=0x1d, siz=1"`
	binstruct.End `bin:"off=0x1e"`
	Data          []byte `bin:"-"` // xattr value (only for XATTR_ITEM)
	Name          []byte `bin:"-"`
}

func (o *DirEntry) UnmarshalBinary(dat []byte) (int, error) {
	if err := binstruct.NeedNBytes(dat, 0x1e); err != nil {
		return 0, err
	}
	n, err := binstruct.UnmarshalWithoutInterface(dat, o)
	if err != nil {
		return n, err
	}
	if o.NameLen > MaxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", MaxNameLen, o.NameLen)
	}
	if err := binstruct.NeedNBytes(dat, 0x1e+int(o.DataLen)+int(o.NameLen)); err != nil {
		return 0, err
	}
	o.Name = append([]byte(nil), dat[n:n+int(o.NameLen)]...)
	n += int(o.NameLen)
	o.Data = append([]byte(nil), dat[n:n+int(o.DataLen)]...)
	n += int(o.DataLen)
	return n, nil
}

func (o DirEntry) MarshalBinary() ([]byte, error) {
	o.DataLen = uint16(len(o.Data))
	o.NameLen = uint16(len(o.Name))
	dat, err := binstruct.MarshalWithoutInterface(o)
	if err != nil {
		return dat, err
	}
	dat = append(dat, o.Name...)
	dat = append(dat, o.Data...)
	return dat, nil
}

type FileType uint8

const (
	FT_UNKNOWN FileType = iota
	FT_REG_FILE
	FT_DIR
	FT_CHRDEV
	FT_BLKDEV
	FT_FIFO
	FT_SOCK
	FT_SYMLINK
	FT_XATTR

	FT_MAX
)

var fileTypeNames = []string{
	"UNKNOWN",
	"FILE", // NB: just "FILE", despite corresponding to REG_FILE
	"DIR",
	"CHRDEV",
	"BLKDEV",
	"FIFO",
	"SOCK",
	"SYMLINK",
	"XATTR",
}

func (ft FileType) String() string {
	if ft < FT_MAX {
		return fileTypeNames[ft]
	}
	return fmt.Sprintf("DIR_ITEM.%d", uint8(ft))
}
