// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfssum"
)

// ExtentCSum is the payload of an EXTENT_CSUM item: a run of per-block
// digests for the logical range starting at key.offset.
//
//	key.objectid = EXTENT_CSUM_OBJECTID
//	key.offset   = logical address of the first checksummed block
type ExtentCSum struct { // EXTENT_CSUM=128
	ChecksumSize int
	Sums         []btrfssum.CSum
}

func (ExtentCSum) isItem() {}

func (o *ExtentCSum) UnmarshalBinary(dat []byte) (int, error) {
	if o.ChecksumSize == 0 {
		return 0, fmt.Errorf("ExtentCSum.UnmarshalBinary: ChecksumSize must be set")
	}
	for len(dat) >= o.ChecksumSize {
		var csum btrfssum.CSum
		copy(csum[:], dat[:o.ChecksumSize])
		dat = dat[o.ChecksumSize:]
		o.Sums = append(o.Sums, csum)
	}
	return len(o.Sums) * o.ChecksumSize, nil
}

func (o ExtentCSum) MarshalBinary() ([]byte, error) {
	if o.ChecksumSize == 0 {
		return nil, fmt.Errorf("ExtentCSum.MarshalBinary: ChecksumSize must be set")
	}
	var dat []byte
	for _, csum := range o.Sums {
		dat = append(dat, csum[:o.ChecksumSize]...)
	}
	return dat, nil
}
