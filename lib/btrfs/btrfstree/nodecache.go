// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	lru "github.com/hashicorp/golang-lru"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
)

// NodeCache holds recently-decoded nodes keyed by logical address, so
// that a block shared by several subvolumes (or repeatedly searched,
// as name resolution does against one directory) is only read and
// unmarshaled once. A nil *NodeCache disables caching.
type NodeCache struct {
	inner *lru.ARCCache
}

// NewNodeCache allocates a cache holding up to size nodes.
func NewNodeCache(size int) *NodeCache {
	inner, err := lru.NewARC(size)
	if err != nil {
		// Only returns an error for size<=0.
		panic(err)
	}
	return &NodeCache{inner: inner}
}

func (c *NodeCache) get(addr btrfsvol.LogicalAddr) (*Node, bool) {
	if c == nil {
		return nil, false
	}
	val, ok := c.inner.Get(addr)
	if !ok {
		return nil, false
	}
	//nolint:forcetypeassert // typed wrapper around an untyped cache
	return val.(*Node), true
}

func (c *NodeCache) add(addr btrfsvol.LogicalAddr, node *Node) {
	if c == nil {
		return
	}
	c.inner.Add(addr, node)
}
