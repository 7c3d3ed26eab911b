// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
)

func TestKeyCompare(t *testing.T) {
	t.Parallel()
	a := btrfsprim.Key{ObjectID: 256, ItemType: btrfsprim.INODE_ITEM_KEY, Offset: 0}
	b := btrfsprim.Key{ObjectID: 256, ItemType: btrfsprim.INODE_REF_KEY, Offset: 0}
	c := btrfsprim.Key{ObjectID: 257, ItemType: btrfsprim.INODE_ITEM_KEY, Offset: 0}

	assert.Negative(t, a.Compare(b))
	assert.Positive(t, b.Compare(a))
	assert.Zero(t, a.Compare(a))
	assert.Negative(t, a.Compare(c))
}

func TestKeyRoundTrip(t *testing.T) {
	t.Parallel()
	key := btrfsprim.Key{ObjectID: 5, ItemType: btrfsprim.DIR_ITEM_KEY, Offset: 0xdeadbeef}
	dat, err := binstruct.Marshal(key)
	assert.NoError(t, err)
	assert.Len(t, dat, 0x11)

	var got btrfsprim.Key
	n, err := binstruct.Unmarshal(dat, &got)
	assert.NoError(t, err)
	assert.Equal(t, 0x11, n)
	assert.Equal(t, key, got)
}

func TestItemTypeString(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "INODE_ITEM", btrfsprim.INODE_ITEM_KEY.String())
	assert.Equal(t, "CHUNK_ITEM", btrfsprim.CHUNK_ITEM_KEY.String())
	assert.Contains(t, btrfsprim.ItemType(200).String(), "UNKNOWN")
}
