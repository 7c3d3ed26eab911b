// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsitem decodes the payload bytes of leaf items, choosing
// the concrete Go type from the item's key.
package btrfsitem

import (
	"fmt"

	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfssum"
)

type Item interface {
	isItem()
}

// Error wraps an item that could not be decoded. The raw bytes are
// kept so a caller can report the offending key and keep walking
// instead of aborting.
type Error struct {
	Dat []byte
	Err error
}

func (Error) isItem() {}

func (o Error) Error() string { return o.Err.Error() }
func (o Error) Unwrap() error { return o.Err }

type unmarshaler interface {
	UnmarshalBinary([]byte) (int, error)
}

// UnmarshalItem decodes a leaf item's payload according to its key.
// Unknown item types decode to Unknown; malformed payloads of a known
// type decode to Error, rather than returning a separate error value
// that would force every caller to special-case one item out of a
// whole tree walk.
func UnmarshalItem(key btrfsprim.Key, csumType btrfssum.CSumType, dat []byte) Item {
	var v any
	switch key.ItemType {
	case btrfsprim.INODE_ITEM_KEY:
		v = new(Inode)
	case btrfsprim.INODE_REF_KEY:
		v = new(InodeRef)
	case btrfsprim.XATTR_ITEM_KEY, btrfsprim.DIR_ITEM_KEY, btrfsprim.DIR_INDEX_KEY:
		v = new(DirList)
	case btrfsprim.EXTENT_DATA_KEY:
		v = new(FileExtent)
	case btrfsprim.EXTENT_CSUM_KEY:
		v = &ExtentCSum{ChecksumSize: csumType.Size()}
	case btrfsprim.ROOT_ITEM_KEY:
		v = new(Root)
	case btrfsprim.ROOT_REF_KEY, btrfsprim.ROOT_BACKREF_KEY:
		v = new(RootRef)
	case btrfsprim.CHUNK_ITEM_KEY:
		v = new(Chunk)
	default:
		return Unknown{Dat: dat}
	}

	n, err := binstruct.Unmarshal(dat, v)
	if err != nil {
		return Error{Dat: dat, Err: fmt.Errorf("%v: %w", key, err)}
	}
	if n != len(dat) {
		return Error{Dat: dat, Err: fmt.Errorf("%v: left over data: read %d of %d bytes", key, n, len(dat))}
	}
	return v.(Item)
}

// Unknown is an item whose type this package has no decoder for. The
// raw payload is retained verbatim.
type Unknown struct {
	Dat []byte
}

func (Unknown) isItem() {}
