// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsitem"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfssum"
)

func TestUnmarshalItemUnknown(t *testing.T) {
	t.Parallel()
	key := btrfsprim.Key{ObjectID: 1, ItemType: btrfsprim.DEV_ITEM_KEY}
	item := btrfsitem.UnmarshalItem(key, btrfssum.TYPE_CRC32, []byte{1, 2, 3})
	unk, ok := item.(btrfsitem.Unknown)
	require.True(t, ok)
	assert.Equal(t, []byte{1, 2, 3}, unk.Dat)
}

func TestUnmarshalItemMalformed(t *testing.T) {
	t.Parallel()
	key := btrfsprim.Key{ObjectID: 1, ItemType: btrfsprim.INODE_ITEM_KEY}
	item := btrfsitem.UnmarshalItem(key, btrfssum.TYPE_CRC32, []byte{1, 2, 3})
	errItem, ok := item.(btrfsitem.Error)
	require.True(t, ok)
	assert.Error(t, errItem.Err)
}

func TestInodeRefRoundTrip(t *testing.T) {
	t.Parallel()
	in := btrfsitem.InodeRef{Index: 7, Name: []byte("hello.txt")}
	dat, err := in.MarshalBinary()
	require.NoError(t, err)

	var out btrfsitem.InodeRef
	n, err := out.UnmarshalBinary(dat)
	require.NoError(t, err)
	assert.Equal(t, len(dat), n)
	assert.Equal(t, in.Index, out.Index)
	assert.Equal(t, in.Name, out.Name)
}

func TestDirListRoundTrip(t *testing.T) {
	t.Parallel()
	in := btrfsitem.DirList{
		{
			Location: btrfsprim.Key{ObjectID: 258, ItemType: btrfsprim.INODE_ITEM_KEY},
			Type:     btrfsitem.FT_REG_FILE,
			Name:     []byte("a"),
		},
		{
			Location: btrfsprim.Key{ObjectID: 259, ItemType: btrfsprim.INODE_ITEM_KEY},
			Type:     btrfsitem.FT_DIR,
			Name:     []byte("b"),
		},
	}
	dat, err := in.MarshalBinary()
	require.NoError(t, err)

	var out btrfsitem.DirList
	n, err := out.UnmarshalBinary(dat)
	require.NoError(t, err)
	assert.Equal(t, len(dat), n)
	require.Len(t, out, 2)
	assert.Equal(t, "a", string(out[0].Name))
	assert.Equal(t, "b", string(out[1].Name))
}

func TestFileExtentInline(t *testing.T) {
	t.Parallel()
	in := btrfsitem.FileExtent{
		Type:       btrfsitem.FILE_EXTENT_INLINE,
		BodyInline: []byte("hello world"),
	}
	dat, err := in.MarshalBinary()
	require.NoError(t, err)

	var out btrfsitem.FileExtent
	n, err := out.UnmarshalBinary(dat)
	require.NoError(t, err)
	assert.Equal(t, len(dat), n)
	assert.Equal(t, in.BodyInline, out.BodyInline)
	size, err := out.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(len("hello world")), size)
}

func TestChunkRoundTrip(t *testing.T) {
	t.Parallel()
	in := btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{Size: 0x40000000, StripeLen: 0x10000},
		Stripes: []btrfsitem.ChunkStripe{
			{DeviceID: 1, Offset: 0x100000},
		},
	}
	dat, err := in.MarshalBinary()
	require.NoError(t, err)

	var out btrfsitem.Chunk
	n, err := binstruct.Unmarshal(dat, &out)
	require.NoError(t, err)
	assert.Equal(t, len(dat), n)
	require.Len(t, out.Stripes, 1)
	assert.Equal(t, in.Stripes[0].DeviceID, out.Stripes[0].DeviceID)

	key := btrfsprim.Key{Offset: 0x1000000}
	mapping, ok := out.Mapping(key)
	require.True(t, ok)
	assert.Equal(t, in.Head.Size, mapping.Size)
}

func TestExtentCSum(t *testing.T) {
	t.Parallel()
	csum, err := btrfssum.TYPE_CRC32.Sum([]byte("data"))
	require.NoError(t, err)
	in := btrfsitem.ExtentCSum{ChecksumSize: btrfssum.TYPE_CRC32.Size(), Sums: []btrfssum.CSum{csum}}
	dat, err := in.MarshalBinary()
	require.NoError(t, err)

	out := btrfsitem.ExtentCSum{ChecksumSize: btrfssum.TYPE_CRC32.Size()}
	n, err := out.UnmarshalBinary(dat)
	require.NoError(t, err)
	assert.Equal(t, len(dat), n)
	require.Len(t, out.Sums, 1)
	assert.Equal(t, csum.Fmt(btrfssum.TYPE_CRC32), out.Sums[0].Fmt(btrfssum.TYPE_CRC32))
}
