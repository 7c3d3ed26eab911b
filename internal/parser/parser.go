// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package parser wires together the on-disk-format decoders in
// lib/btrfs and the reconstruction logic in lib/btrfsutil into the
// single entry point that cmd/btrfscat drives.
package parser

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"github.com/btrfscat/btrfscat/lib/btrfs"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfstree"
	"github.com/btrfscat/btrfscat/lib/btrfsutil"
)

// Options controls how much of an image Parse examines.
type Options struct {
	// InfoOnly stops after reading and validating the
	// superblock; no tree is walked and no files are emitted.
	InfoOnly bool

	// Verbose requests a few Info-level summary lines via dlog
	// (after the superblock read, after the chunk map is built,
	// and after reconstruction), in addition to the Warn-level
	// logging that always happens for localized errors.
	Verbose bool
}

// Error kinds, re-exported from the packages that actually detect
// them so that callers of this package can use errors.Is without
// reaching into lib/btrfstree or lib/btrfsutil directly.
var (
	ErrNotBtrfs               = btrfsutil.ErrNotBtrfs
	ErrShortRead              = btrfsutil.ErrShortRead
	ErrTruncatedRecord        = btrfstree.ErrTruncatedRecord
	ErrUnmappedLogicalAddress = btrfstree.ErrUnmappedLogicalAddress
	ErrCycle                  = btrfstree.ErrCycle
	ErrPathDepthExceeded      = btrfsutil.ErrPathDepthExceeded
)

// ErrUnsupportedCompression is returned (wrapped, and only via the
// logger, never as Parse's return value) when an extent uses a
// compression code Parse doesn't recognize.
type ErrUnsupportedCompression = btrfsutil.ErrUnsupportedCompression

// Parse opens the image at imagePath, reads its superblock at
// partitionOffset+0x10000, and — unless opts.InfoOnly is set —
// reconstructs every subvolume's filesystem tree into a flat list of
// FileEntry records.
//
// Errors encountered while walking an individual node or
// reassembling an individual file (ErrTruncatedRecord,
// ErrUnmappedLogicalAddress, ErrShortRead, ErrUnsupportedCompression,
// ErrCycle, ErrPathDepthExceeded) are logged via dlog and localized
// to the affected item; they never cause Parse itself to return an
// error. Only ErrNotBtrfs and an outright failure to open the image
// or build the chunk map are returned here.
func Parse(ctx context.Context, imagePath string, partitionOffset int64, opts Options) (btrfs.Superblock, []btrfsutil.FileEntry, error) {
	var sb btrfs.Superblock

	file, err := btrfsutil.Open(imagePath)
	if err != nil {
		return sb, nil, err
	}
	defer file.Close()

	sb, err = btrfsutil.ReadSuperblock(file, partitionOffset)
	if err != nil {
		return sb, nil, err
	}
	if err := sb.ValidateChecksum(); err != nil {
		dlog.Warnf(ctx, "parser: superblock checksum: %v", err)
	}

	if opts.Verbose {
		dlog.Infof(ctx, "parser: read superblock: label=%q root_tree=%v chunk_tree=%v",
			sb.Label, sb.RootTree, sb.ChunkTree)
	}

	if opts.InfoOnly {
		return sb, nil, nil
	}

	// Shared across chunk-tree bootstrap and every subsequent tree
	// walk, since the same nodes are commonly revisited: siblings
	// in the chunk tree overlap physically adjacent metadata
	// blocks, and name resolution re-searches the same directories
	// this reconstruction already walked once.
	cache := btrfstree.NewNodeCache(4096)

	chunks, err := btrfsutil.BuildChunkMap(ctx, file, sb, cache, partitionOffset)
	if err != nil {
		return sb, nil, fmt.Errorf("building chunk map: %w", err)
	}
	if opts.Verbose {
		dlog.Infof(ctx, "parser: chunk map has %d mappings", chunks.Len())
	}

	tr := btrfstree.TreeReader{
		File:   file,
		Chunks: chunks,
		SB: btrfstree.Superblock{
			NodeSize:     sb.NodeSize,
			ChecksumType: sb.ChecksumType,
			MetadataUUID: sb.EffectiveMetadataUUID(),
		},
		Cache: cache,
	}

	fs := btrfsutil.Reconstruct(ctx, tr, tr.SB, sb.RootTree)
	if opts.Verbose {
		dlog.Infof(ctx, "parser: reconstructed %d subvolumes, %d inodes", len(fs.Subvolumes), len(fs.Inodes))
	}

	entries := fs.Emit(ctx, file, chunks)

	return sb, entries, nil
}
