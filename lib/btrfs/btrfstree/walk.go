// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"context"
	"errors"

	"github.com/datawire/dlib/dlog"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsitem"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
	"github.com/btrfscat/btrfscat/lib/diskio"
)

// ErrCycle is reported (never returned as a hard error) when a tree
// walk revisits a logical block address it has already descended
// into.
var ErrCycle = errors.New("cycle detected: node already visited in this tree walk")

// TreeReader is what WalkTree and SearchTree need in order to pull
// nodes off of disk: a single-device file plus the chunk map that
// resolves logical addresses against it.
type TreeReader struct {
	File   diskio.File[btrfsvol.PhysicalAddr]
	Chunks *btrfsvol.ChunkMap
	SB     Superblock

	// Cache, if non-nil, is consulted before reading a node from
	// File and populated after. Sharing one Cache across the
	// several tree walks a full reconstruction performs (root
	// tree, each subvolume, checksum tree, plus every repeated
	// SearchTree during name resolution) avoids re-reading nodes
	// that more than one of those walks visits.
	Cache *NodeCache
}

// PathElem identifies one node of the path from a tree's root down to
// wherever a WalkTree callback currently is.
type PathElem struct {
	Addr  btrfsvol.LogicalAddr
	Level uint8
}

// Visitor receives callbacks during WalkTree. A nil callback is
// simply not called; all callbacks are optional.
type Visitor struct {
	// Node is called for every node that could be decoded (including
	// one that is also reported through BadNode), before its
	// children/items are visited.
	Node func(path []PathElem, node *Node)
	// Item is called for every leaf item.
	Item func(path []PathElem, key btrfsprim.Key, body btrfsitem.Item)
	// BadNode is called when a node fails to read or validate, or is
	// revisited. A revisited node, or one of which nothing could be
	// decoded, has its subtree skipped; otherwise whatever was decoded
	// is still visited.
	BadNode func(path []PathElem, err error)
}

// WalkTree does a depth-first, left-to-right walk of the tree rooted
// at rootAddr, calling the visitor's callbacks along the way.
//
// A node address that has already been visited in this walk is
// skipped (and reported through BadNode as an ErrCycle) rather than
// re-descended into, since this reader has no repair machinery to
// fall back on if the tree is cyclic.
func WalkTree(ctx context.Context, tr TreeReader, rootAddr btrfsvol.LogicalAddr, visitor Visitor) {
	visited := make(map[btrfsvol.LogicalAddr]struct{})
	walkNode(ctx, tr, rootAddr, nil, NodeExpectations{}, visited, visitor)
}

func walkNode(
	ctx context.Context,
	tr TreeReader,
	addr btrfsvol.LogicalAddr,
	parentPath []PathElem,
	exp NodeExpectations,
	visited map[btrfsvol.LogicalAddr]struct{},
	visitor Visitor,
) {
	if addr == 0 {
		return
	}
	if _, ok := visited[addr]; ok {
		dlog.Warnf(ctx, "btrfstree.WalkTree: %v: %v", addr, ErrCycle)
		if visitor.BadNode != nil {
			visitor.BadNode(parentPath, ErrCycle)
		}
		return
	}
	visited[addr] = struct{}{}

	node, ok := tr.Cache.get(addr)
	var err error
	if !ok {
		node, err = ReadNode(tr.File, tr.Chunks, tr.SB, addr, exp)
		if err == nil {
			tr.Cache.add(addr, node)
		}
	}
	path := append(append([]PathElem(nil), parentPath...), PathElem{Addr: addr})
	if err != nil {
		dlog.Warnf(ctx, "btrfstree.WalkTree: %v", err)
		if visitor.BadNode != nil {
			visitor.BadNode(path, err)
		}
		if node == nil {
			return
		}
	}
	path[len(path)-1].Level = node.Head.Level

	if visitor.Node != nil {
		visitor.Node(path, node)
	}

	if node.Head.Level > 0 {
		for i, kp := range node.BodyInternal {
			var childExp NodeExpectations
			childExp.LAddr, childExp.LAddrOK = kp.BlockPtr, true
			childExp.Level, childExp.LevelOK = node.Head.Level-1, true
			childExp.Generation, childExp.GenerationOK = kp.Generation, true
			childExp.Owner, childExp.OwnerOK = node.Head.Owner, true
			childExp.MinItem, childExp.MinItemOK = kp.Key, true
			if i+1 < len(node.BodyInternal) {
				childExp.MaxItem, childExp.MaxItemOK = node.BodyInternal[i+1].Key, true
			}
			walkNode(ctx, tr, kp.BlockPtr, path, childExp, visited, visitor)
		}
		return
	}

	if visitor.Item != nil {
		for _, item := range node.BodyLeaf {
			visitor.Item(path, item.Key, item.Body)
		}
	}
}

// SearchTree walks the tree rooted at rootAddr and returns every item
// whose key has the given objectID and, if itemType is non-nil, the
// given item type too.
func SearchTree(ctx context.Context, tr TreeReader, rootAddr btrfsvol.LogicalAddr, objectID btrfsprim.ObjID, itemType *btrfsprim.ItemType) []Item {
	var out []Item
	WalkTree(ctx, tr, rootAddr, Visitor{
		Item: func(_ []PathElem, key btrfsprim.Key, body btrfsitem.Item) {
			if key.ObjectID != objectID {
				return
			}
			if itemType != nil && key.ItemType != *itemType {
				return
			}
			out = append(out, Item{Key: key, Body: body})
		},
	})
	return out
}
