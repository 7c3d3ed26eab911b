// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
)

// A Chunk maps a run of logical addresses to one or more physical
// stripes.
//
//	key.objectid = FIRST_CHUNK_TREE_OBJECTID
//	key.offset   = logical address of the chunk
type Chunk struct { // CHUNK_ITEM=228
	Head    ChunkHeader
	Stripes []ChunkStripe
}

func (Chunk) isItem() {}

type ChunkHeader struct {
	Size           btrfsvol.AddrDelta       `bin:"off=0x0,  siz=0x8"`
	Owner          btrfsprim.ObjID          `bin:"off=0x8,  siz=0x8"` // root referencing this chunk (always EXTENT_TREE_OBJECTID)
	StripeLen      uint64                   `bin:"off=0x10, siz=0x8"`
	Type           btrfsvol.BlockGroupFlags `bin:"off=0x18, siz=0x8"`
	IOOptimalAlign uint32                   `bin:"off=0x20, siz=0x4"`
	IOOptimalWidth uint32                   `bin:"off=0x24, siz=0x4"`
	IOMinSize      uint32                   `bin:"off=0x28, siz=0x4"` // sector size
	NumStripes     uint16                   `bin:"off=0x2c, siz=0x2"` // [ignored-when-writing]
	SubStripes     uint16                   `bin:"off=0x2e, siz=0x2"`
	binstruct.End  `bin:"off=0x30"`
}

type ChunkStripe struct {
	DeviceID      btrfsvol.DeviceID     `bin:"off=0x0,  siz=0x8"`
	Offset        btrfsvol.PhysicalAddr `bin:"off=0x8,  siz=0x8"`
	DeviceUUID    btrfsprim.UUID        `bin:"off=0x10, siz=0x10"`
	binstruct.End `bin:"off=0x20"`
}

// Mapping returns the chunk's logical-to-physical translation as a
// single stripe: stripe 0, covering the whole chunk. That resolves
// addresses correctly for single, DUP and mirrored (RAID1*) chunks,
// whose stripes each hold a full copy; for striped profiles (RAID0,
// RAID10, RAID5, RAID6) the result does not follow the striping.
func (chunk Chunk) Mapping(key btrfsprim.Key) (btrfsvol.Mapping, bool) {
	if len(chunk.Stripes) == 0 {
		return btrfsvol.Mapping{}, false
	}
	stripe := chunk.Stripes[0]
	return btrfsvol.Mapping{
		LAddr: btrfsvol.LogicalAddr(key.Offset),
		PAddr: btrfsvol.QualifiedPhysicalAddr{
			Dev:  stripe.DeviceID,
			Addr: stripe.Offset,
		},
		Size:  chunk.Head.Size,
		Flags: chunk.Head.Type,
	}, true
}

func (chunk *Chunk) UnmarshalBinary(dat []byte) (int, error) {
	n, err := binstruct.Unmarshal(dat, &chunk.Head)
	if err != nil {
		return n, err
	}
	chunk.Stripes = make([]ChunkStripe, chunk.Head.NumStripes)
	for i := range chunk.Stripes {
		_n, err := binstruct.Unmarshal(dat[n:], &chunk.Stripes[i])
		n += _n
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (chunk Chunk) MarshalBinary() ([]byte, error) {
	chunk.Head.NumStripes = uint16(len(chunk.Stripes))
	ret, err := binstruct.Marshal(chunk.Head)
	if err != nil {
		return ret, err
	}
	for _, stripe := range chunk.Stripes {
		_ret, err := binstruct.Marshal(stripe)
		ret = append(ret, _ret...)
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}
