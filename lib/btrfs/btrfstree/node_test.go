// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsitem"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfssum"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfstree"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
)

func mkLeaf(t *testing.T) btrfstree.Node {
	t.Helper()
	node := btrfstree.Node{
		Size:         0x1000,
		ChecksumType: btrfssum.TYPE_CRC32,
		Head: btrfstree.NodeHeader{
			Addr:       0x4000,
			Generation: 7,
			Owner:      btrfsprim.ObjID(5),
			Level:      0,
		},
		BodyLeaf: []btrfstree.Item{
			{
				Key:  btrfsprim.Key{ObjectID: 256, ItemType: btrfsprim.INODE_ITEM_KEY},
				Body: &btrfsitem.Inode{Size: 4096, NLink: 1},
			},
		},
	}
	return node
}

func TestNodeRoundTrip(t *testing.T) {
	t.Parallel()
	node := mkLeaf(t)

	dat, err := node.MarshalBinary()
	require.NoError(t, err)
	require.Len(t, dat, int(node.Size))

	var out btrfstree.Node
	out.ChecksumType = btrfssum.TYPE_CRC32
	n, err := out.UnmarshalBinary(dat)
	require.NoError(t, err)
	assert.Equal(t, len(dat), n)
	require.Len(t, out.BodyLeaf, 1)
	assert.Equal(t, node.BodyLeaf[0].Key, out.BodyLeaf[0].Key)
	assert.Equal(t, node.Head.Addr, out.Head.Addr)
}

func TestNodeChecksum(t *testing.T) {
	t.Parallel()
	node := mkLeaf(t)
	dat, err := node.MarshalBinary()
	require.NoError(t, err)

	var out btrfstree.Node
	out.ChecksumType = btrfssum.TYPE_CRC32
	_, err = out.UnmarshalBinary(dat)
	require.NoError(t, err)

	// The marshaled Checksum field is zero, so it should not
	// validate until it's filled in with the real digest.
	assert.Error(t, out.ValidateChecksum())

	calced, err := out.CalculateChecksum()
	require.NoError(t, err)
	out.Head.Checksum = calced
	assert.NoError(t, out.ValidateChecksum())
}

func TestMaxItems(t *testing.T) {
	t.Parallel()
	node := btrfstree.Node{Size: 0x1000}
	assert.Positive(t, node.MaxItems())
}

func TestKeyPointerStaticSize(t *testing.T) {
	t.Parallel()
	assert.Equal(t, 0x21, binstruct.StaticSize(btrfstree.KeyPointer{}))
}

func TestReadNodeChecksumMismatch(t *testing.T) {
	t.Parallel()
	node := mkLeaf(t)
	dat, err := node.MarshalBinary()
	require.NoError(t, err)

	f := &memFile{name: "test", data: make([]byte, 0x10000)}
	copy(f.data[0x4000:], dat)

	chunks := new(btrfsvol.ChunkMap)
	require.NoError(t, chunks.Insert(btrfsvol.Mapping{
		LAddr: 0x4000,
		PAddr: btrfsvol.QualifiedPhysicalAddr{Dev: 1, Addr: 0x4000},
		Size:  0x1000,
	}))

	sb := btrfstree.Superblock{NodeSize: 0x1000, ChecksumType: btrfssum.TYPE_CRC32}
	_, err = btrfstree.ReadNode(f, chunks, sb, 0x4000, btrfstree.NodeExpectations{})
	require.Error(t, err)
	var nodeErr *btrfstree.NodeError
	require.ErrorAs(t, err, &nodeErr)
}

type memFile struct {
	name string
	data []byte
}

func (f *memFile) Name() string                    { return f.name }
func (f *memFile) Size() btrfsvol.PhysicalAddr      { return btrfsvol.PhysicalAddr(len(f.data)) }
func (f *memFile) Close() error                     { return nil }
func (f *memFile) WriteAt(p []byte, off btrfsvol.PhysicalAddr) (int, error) {
	copy(f.data[off:], p)
	return len(p), nil
}
func (f *memFile) ReadAt(p []byte, off btrfsvol.PhysicalAddr) (int, error) {
	return copy(p, f.data[off:]), nil
}
