// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
)

func TestNodeCacheNilIsANoop(t *testing.T) {
	t.Parallel()
	var cache *NodeCache
	assert.NotPanics(t, func() {
		cache.add(btrfsvol.LogicalAddr(0x4000), nil)
		_, ok := cache.get(btrfsvol.LogicalAddr(0x4000))
		assert.False(t, ok)
	})
}

func TestNodeCacheStoresAndFetches(t *testing.T) {
	t.Parallel()
	cache := NewNodeCache(4)
	node := &Node{Size: 0x1000}

	cache.add(btrfsvol.LogicalAddr(0x4000), node)
	got, ok := cache.get(btrfsvol.LogicalAddr(0x4000))
	assert.True(t, ok)
	assert.Same(t, node, got)

	_, ok = cache.get(btrfsvol.LogicalAddr(0x9000))
	assert.False(t, ok)
}
