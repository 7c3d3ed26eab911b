// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import (
	"fmt"
	"math"

	"github.com/btrfscat/btrfscat/lib/binstruct"
)

// Key is the fixed-size sort key that precedes every item stored in
// a btrfs tree.
type Key struct {
	ObjectID      ObjID    `bin:"off=0x0, siz=0x8"` // Each tree has its own set of Object IDs.
	ItemType      ItemType `bin:"off=0x8, siz=0x1"`
	Offset        uint64   `bin:"off=0x9, siz=0x8"` // The meaning depends on the item type.
	binstruct.End `bin:"off=0x11"`
}

const MaxOffset uint64 = math.MaxUint64

// Format mimics print-tree.c:btrfs_print_key(), rendering the
// ObjectID and Offset fields the way the tree they live in would.
func (key Key) Format(tree ObjID) string {
	switch tree {
	case UUID_TREE_OBJECTID:
		return fmt.Sprintf("(%v %v %#08x)", key.ObjectID.Format(tree), key.ItemType, key.Offset)
	case ROOT_TREE_OBJECTID, QUOTA_TREE_OBJECTID:
		return fmt.Sprintf("(%v %v %v)", key.ObjectID.Format(tree), key.ItemType, ObjID(key.Offset).Format(tree))
	default:
		if key.Offset == math.MaxUint64 {
			return fmt.Sprintf("(%v %v -1)", key.ObjectID.Format(tree), key.ItemType)
		}
		return fmt.Sprintf("(%v %v %v)", key.ObjectID.Format(tree), key.ItemType, key.Offset)
	}
}

func (key Key) String() string {
	return key.Format(0)
}

var MaxKey = Key{
	ObjectID: math.MaxUint64,
	ItemType: math.MaxUint8,
	Offset:   math.MaxUint64,
}

// Compare orders keys the way a btrfs tree does: by ObjectID, then
// ItemType, then Offset.
func (a Key) Compare(b Key) int {
	switch {
	case a.ObjectID < b.ObjectID:
		return -1
	case a.ObjectID > b.ObjectID:
		return 1
	}
	switch {
	case a.ItemType < b.ItemType:
		return -1
	case a.ItemType > b.ItemType:
		return 1
	}
	switch {
	case a.Offset < b.Offset:
		return -1
	case a.Offset > b.Offset:
		return 1
	}
	return 0
}
