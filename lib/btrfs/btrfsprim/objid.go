// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import "fmt"

// ObjID is the first field of a Key. Its meaning is tree-dependent:
// in the root tree it names a subvolume/tree root, in an fs tree it
// is an inode number (or, for DIR_ITEM/DIR_INDEX/XATTR_ITEM keys,
// the inode number of the containing directory).
type ObjID uint64

const maxUint64pp = 0x1_00000000_00000000

const (
	ROOT_TREE_OBJECTID        ObjID = 1
	EXTENT_TREE_OBJECTID      ObjID = 2
	CHUNK_TREE_OBJECTID       ObjID = 3
	DEV_TREE_OBJECTID         ObjID = 4
	FS_TREE_OBJECTID          ObjID = 5
	ROOT_TREE_DIR_OBJECTID    ObjID = 6
	CSUM_TREE_OBJECTID        ObjID = 7
	QUOTA_TREE_OBJECTID       ObjID = 8
	UUID_TREE_OBJECTID        ObjID = 9
	FREE_SPACE_TREE_OBJECTID  ObjID = 10
	BLOCK_GROUP_TREE_OBJECTID ObjID = 11

	DEV_STATS_OBJECTID ObjID = 0

	BALANCE_OBJECTID         ObjID = maxUint64pp - 4
	ORPHAN_OBJECTID          ObjID = maxUint64pp - 5
	TREE_LOG_OBJECTID        ObjID = maxUint64pp - 6
	TREE_LOG_FIXUP_OBJECTID  ObjID = maxUint64pp - 7
	TREE_RELOC_OBJECTID      ObjID = maxUint64pp - 8
	DATA_RELOC_TREE_OBJECTID ObjID = maxUint64pp - 9
	EXTENT_CSUM_OBJECTID     ObjID = maxUint64pp - 10
	FREE_SPACE_OBJECTID      ObjID = maxUint64pp - 11
	FREE_INO_OBJECTID        ObjID = maxUint64pp - 12

	MULTIPLE_OBJECTIDS ObjID = maxUint64pp - 255

	FIRST_FREE_OBJECTID ObjID = 256
	LAST_FREE_OBJECTID  ObjID = maxUint64pp - 256

	DEV_ITEMS_OBJECTID        ObjID = 1
	FIRST_CHUNK_TREE_OBJECTID ObjID = 256

	EMPTY_SUBVOL_DIR_OBJECTID ObjID = 2
)

var (
	objidCommonNames = map[ObjID]string{
		BALANCE_OBJECTID:         "BALANCE",
		ORPHAN_OBJECTID:          "ORPHAN",
		TREE_LOG_OBJECTID:        "TREE_LOG",
		TREE_LOG_FIXUP_OBJECTID:  "TREE_LOG_FIXUP",
		TREE_RELOC_OBJECTID:      "TREE_RELOC",
		DATA_RELOC_TREE_OBJECTID: "DATA_RELOC_TREE",
		EXTENT_CSUM_OBJECTID:     "EXTENT_CSUM",
		FREE_SPACE_OBJECTID:      "FREE_SPACE",
		FREE_INO_OBJECTID:        "FREE_INO",
		MULTIPLE_OBJECTIDS:       "MULTIPLE",
	}
	objidChunkTreeNames = map[ObjID]string{
		DEV_ITEMS_OBJECTID:        "DEV_ITEMS",
		FIRST_CHUNK_TREE_OBJECTID: "FIRST_CHUNK_TREE",
	}
	objidRootTreeNames = map[ObjID]string{
		ROOT_TREE_OBJECTID:        "ROOT_TREE",
		EXTENT_TREE_OBJECTID:      "EXTENT_TREE",
		CHUNK_TREE_OBJECTID:       "CHUNK_TREE",
		DEV_TREE_OBJECTID:         "DEV_TREE",
		FS_TREE_OBJECTID:          "FS_TREE",
		ROOT_TREE_DIR_OBJECTID:    "ROOT_TREE_DIR",
		CSUM_TREE_OBJECTID:        "CSUM_TREE",
		QUOTA_TREE_OBJECTID:       "QUOTA_TREE",
		UUID_TREE_OBJECTID:        "UUID_TREE",
		FREE_SPACE_TREE_OBJECTID:  "FREE_SPACE_TREE",
		BLOCK_GROUP_TREE_OBJECTID: "BLOCK_GROUP_TREE",
	}
)

// Format renders id the way it would print in the given tree; some
// object IDs are packed fields (e.g. qgroup level/subvolume) whose
// meaning depends on which tree they're found in.
func (id ObjID) Format(tree ObjID) string {
	switch tree {
	case QUOTA_TREE_OBJECTID:
		if id == 0 {
			return "0"
		}
		return fmt.Sprintf("%d/%d", uint64(id)>>48, uint64(id)&((1<<48)-1))
	case UUID_TREE_OBJECTID:
		return fmt.Sprintf("%#016x", uint64(id))
	case CHUNK_TREE_OBJECTID:
		if name, ok := objidCommonNames[id]; ok {
			return name
		}
		if name, ok := objidChunkTreeNames[id]; ok {
			return name
		}
		return fmt.Sprintf("%d", int64(id))
	default:
		if name, ok := objidCommonNames[id]; ok {
			return name
		}
		if name, ok := objidRootTreeNames[id]; ok {
			return name
		}
		return fmt.Sprintf("%d", int64(id))
	}
}

func (id ObjID) String() string {
	return id.Format(0)
}

// IsSubvolume reports whether id names a subvolume/snapshot root in
// the root tree, as opposed to one of the fixed-id system trees.
func IsSubvolume(id ObjID) bool {
	return id == FS_TREE_OBJECTID || (id >= FIRST_FREE_OBJECTID && id <= LAST_FREE_OBJECTID)
}
