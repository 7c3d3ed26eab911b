// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import "fmt"

// ItemType is the second field of a Key; it says how to interpret
// the item's payload bytes.
type ItemType uint8

const MAX_KEY = ItemType(0xff)

const (
	UNTYPED_KEY  = ItemType(0)
	INODE_ITEM_KEY = ItemType(1)
	INODE_REF_KEY  = ItemType(12)
	INODE_EXTREF_KEY = ItemType(13)
	XATTR_ITEM_KEY = ItemType(24)
	DIR_ITEM_KEY   = ItemType(84)
	DIR_INDEX_KEY  = ItemType(96)
	EXTENT_DATA_KEY = ItemType(108)
	EXTENT_CSUM_KEY = ItemType(128)
	ROOT_ITEM_KEY   = ItemType(132)
	ROOT_BACKREF_KEY = ItemType(144)
	ROOT_REF_KEY    = ItemType(156)
	CHUNK_ITEM_KEY  = ItemType(228)
	DEV_ITEM_KEY    = ItemType(216)
	DEV_EXTENT_KEY  = ItemType(204)
	PERSISTENT_ITEM_KEY = ItemType(249)
)

var itemTypeNames = map[ItemType]string{
	UNTYPED_KEY:      "UNTYPED",
	INODE_ITEM_KEY:   "INODE_ITEM",
	INODE_REF_KEY:    "INODE_REF",
	INODE_EXTREF_KEY: "INODE_EXTREF",
	XATTR_ITEM_KEY:   "XATTR_ITEM",
	DIR_ITEM_KEY:     "DIR_ITEM",
	DIR_INDEX_KEY:    "DIR_INDEX",
	EXTENT_DATA_KEY:  "EXTENT_DATA",
	EXTENT_CSUM_KEY:  "EXTENT_CSUM",
	ROOT_ITEM_KEY:    "ROOT_ITEM",
	ROOT_BACKREF_KEY: "ROOT_BACKREF",
	ROOT_REF_KEY:     "ROOT_REF",
	CHUNK_ITEM_KEY:   "CHUNK_ITEM",
	DEV_ITEM_KEY:     "DEV_ITEM",
	DEV_EXTENT_KEY:   "DEV_EXTENT",
	PERSISTENT_ITEM_KEY: "PERSISTENT_ITEM",
}

func (t ItemType) String() string {
	if name, ok := itemTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("UNKNOWN.%d", uint8(t))
}
