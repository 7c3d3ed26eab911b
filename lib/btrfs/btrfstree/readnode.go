// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"errors"
	"fmt"

	"github.com/datawire/dlib/derror"

	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfssum"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
	"github.com/btrfscat/btrfscat/lib/diskio"
)

var ErrNotANode = errors.New("does not look like a node")

// ErrTruncatedRecord is wrapped into a *NodeError when a leaf item's
// header or body claims a span that doesn't fit within the node.
var ErrTruncatedRecord = errors.New("truncated record")

// ErrUnmappedLogicalAddress is wrapped into a *NodeError when the
// ChunkMap has no mapping covering a logical address a caller asked
// to read.
var ErrUnmappedLogicalAddress = errors.New("logical address is not mapped by any chunk")

// NodeExpectations describes what the caller already knows about a
// node before reading it, gathered from the parent that pointed at
// it. Zero-value fields with their matching *OK flag unset are not
// checked.
type NodeExpectations struct {
	LAddr   btrfsvol.LogicalAddr
	LAddrOK bool

	Level   uint8
	LevelOK bool

	Generation   btrfsprim.Generation
	GenerationOK bool

	Owner   btrfsprim.ObjID
	OwnerOK bool

	MinItem   btrfsprim.Key
	MinItemOK bool

	MaxItem   btrfsprim.Key
	MaxItemOK bool
}

type NodeError struct {
	Op       string
	NodeAddr btrfsvol.LogicalAddr
	Err      error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("%s: node@%v: %v", e.Op, e.NodeAddr, e.Err)
}
func (e *NodeError) Unwrap() error { return e.Err }

type IOError struct {
	Err error
}

func (e *IOError) Error() string { return "i/o error: " + e.Err.Error() }
func (e *IOError) Unwrap() error { return e.Err }

// Superblock is the subset of the filesystem superblock that
// ReadNode needs, factored out as an interface so this package
// doesn't need to import the superblock's package.
type Superblock struct {
	NodeSize     uint32
	ChecksumType btrfssum.CSumType
	MetadataUUID btrfsprim.UUID
}

// ReadNode reads and validates the node at logical address addr.
// chunks resolves the logical address to the physical address that
// fs.ReadAt is called with.
//
// It is possible for both a non-nil *Node and an error to be
// returned. The error (if non-nil) is always of type *NodeError.
// Notable errors that may be wrapped inside of the NodeError are
// ErrNotANode and *IOError.
func ReadNode(
	fs diskio.File[btrfsvol.PhysicalAddr],
	chunks *btrfsvol.ChunkMap,
	sb Superblock,
	addr btrfsvol.LogicalAddr,
	exp NodeExpectations,
) (*Node, error) {
	if int(sb.NodeSize) < binstruct.StaticSize(NodeHeader{}) {
		return nil, &NodeError{
			Op: "btrfstree.ReadNode", NodeAddr: addr,
			Err: fmt.Errorf("superblock.NodeSize=%v is too small to contain even a node header (%v bytes)",
				sb.NodeSize, binstruct.StaticSize(NodeHeader{})),
		}
	}

	paddr, ok := chunks.Resolve(addr)
	if !ok {
		return nil, &NodeError{Op: "btrfstree.ReadNode", NodeAddr: addr, Err: fmt.Errorf("%w: %v", ErrUnmappedLogicalAddress, addr)}
	}

	nodeBuf := make([]byte, sb.NodeSize)
	if _, err := fs.ReadAt(nodeBuf, paddr.Addr); err != nil {
		return nil, &NodeError{Op: "btrfstree.ReadNode", NodeAddr: addr, Err: &IOError{Err: err}}
	}

	// parse (early)

	node := &Node{
		Size:         sb.NodeSize,
		ChecksumType: sb.ChecksumType,
	}
	if _, err := binstruct.Unmarshal(nodeBuf, &node.Head); err != nil {
		// If there are enough bytes there (and we checked that
		// above), then it shouldn't be possible for this
		// unmarshal to fail.
		panic(fmt.Errorf("should not happen: %w", err))
	}

	// sanity checking (that prevents the main parse)

	if node.Head.MetadataUUID != sb.MetadataUUID {
		return node, &NodeError{Op: "btrfstree.ReadNode", NodeAddr: addr, Err: ErrNotANode}
	}

	stored := node.Head.Checksum
	calced, err := node.ChecksumType.Sum(nodeBuf[binstruct.StaticSize(btrfssum.CSum{}):])
	if err != nil {
		return node, &NodeError{Op: "btrfstree.ReadNode", NodeAddr: addr, Err: err}
	}
	if stored != calced {
		return node, &NodeError{
			Op: "btrfstree.ReadNode", NodeAddr: addr,
			Err: fmt.Errorf("looks like a node but is corrupt: checksum mismatch: stored=%v calculated=%v",
				stored, calced),
		}
	}

	// parse (main)
	//
	// If the above sanity checks passed, then this is at least
	// node data that got written by the filesystem; even if it's
	// invalid in a way the checks below catch, it's worth parsing.

	if _, err := binstruct.Unmarshal(nodeBuf, node); err != nil {
		return node, &NodeError{Op: "btrfstree.ReadNode", NodeAddr: addr, Err: err}
	}

	// sanity checking (that doesn't prevent parsing)

	var errs derror.MultiError
	if exp.LAddrOK && node.Head.Addr != exp.LAddr {
		errs = append(errs, fmt.Errorf("read from laddr=%v but claims to be at laddr=%v", exp.LAddr, node.Head.Addr))
	}
	if exp.LevelOK && node.Head.Level != exp.Level {
		errs = append(errs, fmt.Errorf("expected level=%v but claims to be level=%v", exp.Level, node.Head.Level))
	}
	if exp.GenerationOK && node.Head.Generation != exp.Generation {
		errs = append(errs, fmt.Errorf("expected generation=%v but claims to be generation=%v", exp.Generation, node.Head.Generation))
	}
	if exp.OwnerOK && node.Head.Owner != exp.Owner {
		errs = append(errs, fmt.Errorf("expected owner=%v but claims to be owner=%v", exp.Owner, node.Head.Owner))
	}
	if node.Head.NumItems == 0 {
		errs = append(errs, fmt.Errorf("has no items"))
	} else {
		if minItem, _ := node.MinItem(); exp.MinItemOK && exp.MinItem.Compare(minItem) > 0 {
			errs = append(errs, fmt.Errorf("expected minItem>=%v but node has minItem=%v", exp.MinItem, minItem))
		}
		if maxItem, _ := node.MaxItem(); exp.MaxItemOK && exp.MaxItem.Compare(maxItem) < 0 {
			errs = append(errs, fmt.Errorf("expected maxItem<=%v but node has maxItem=%v", exp.MaxItem, maxItem))
		}
	}
	if len(errs) > 0 {
		return node, &NodeError{Op: "btrfstree.ReadNode", NodeAddr: addr, Err: errs}
	}

	return node, nil
}
