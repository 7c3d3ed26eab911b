// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"github.com/btrfscat/btrfscat/lib/binstruct"
)

const MaxNameLen = 255

// InodeRef records one hardlink of a file into a directory.
//
//	key.objectid = inode number of the file
//	key.offset   = inode number of the parent directory
type InodeRef struct { // INODE_REF=12
	Index         int64  `bin:"off=0x0, siz=0x8"`
	NameLen       uint16 `bin:"off=0x8, siz=0x2"` // [ignored-when-writing]
	binstruct.End `bin:"off=0xa"`
	Name          []byte `bin:"-"`
}

func (InodeRef) isItem() {}

func (o *InodeRef) UnmarshalBinary(dat []byte) (int, error) {
	if err := binstruct.NeedNBytes(dat, 0xa); err != nil {
		return 0, err
	}
	n, err := binstruct.UnmarshalWithoutInterface(dat, o)
	if err != nil {
		return n, err
	}
	if o.NameLen > MaxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", MaxNameLen, o.NameLen)
	}
	if err := binstruct.NeedNBytes(dat, 0xa+int(o.NameLen)); err != nil {
		return 0, err
	}
	dat = dat[n:]
	o.Name = append([]byte(nil), dat[:o.NameLen]...)
	n += int(o.NameLen)
	return n, nil
}

func (o InodeRef) MarshalBinary() ([]byte, error) {
	o.NameLen = uint16(len(o.Name))
	dat, err := binstruct.MarshalWithoutInterface(o)
	if err != nil {
		return dat, err
	}
	dat = append(dat, o.Name...)
	return dat, nil
}
