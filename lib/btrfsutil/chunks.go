// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"context"
	"fmt"

	"github.com/datawire/dlib/dlog"

	"github.com/btrfscat/btrfscat/lib/btrfs"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsitem"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfstree"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
	"github.com/btrfscat/btrfscat/lib/diskio"
)

// BuildChunkMap bootstraps a ChunkMap from the superblock's embedded
// sys_chunk_array, then extends it by walking the full chunk tree.
// The bootstrap entries are what make the chunk tree's own root
// readable in the first place; a real chunk-tree entry with the same
// logical start as a bootstrap entry silently replaces it.
//
// partitionOffset is the byte offset of the btrfs partition within
// file, the same value passed to ReadSuperblock; every mapping the
// returned ChunkMap resolves is offset by it, since chunk-tree
// physical addresses are partition-relative but file is opened
// against the whole image.
func BuildChunkMap(ctx context.Context, file diskio.File[btrfsvol.PhysicalAddr], sb btrfs.Superblock, cache *btrfstree.NodeCache, partitionOffset int64) (*btrfsvol.ChunkMap, error) {
	chunks := new(btrfsvol.ChunkMap)
	chunks.PartitionOffset = btrfsvol.PhysicalAddr(partitionOffset)

	pairs, err := sb.ParseSysChunkArray()
	if err != nil {
		return nil, fmt.Errorf("sys_chunk_array: %w", err)
	}
	for _, pair := range pairs {
		if pair.Key.ItemType != btrfsprim.CHUNK_ITEM_KEY {
			continue
		}
		insertChunk(ctx, chunks, pair.Key, pair.Chunk)
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

	btrfstree.WalkTree(ctx, tr, sb.ChunkTree, btrfstree.Visitor{
		Item: func(_ []btrfstree.PathElem, key btrfsprim.Key, body btrfsitem.Item) {
			if key.ItemType != btrfsprim.CHUNK_ITEM_KEY {
				return
			}
			chunk, ok := body.(*btrfsitem.Chunk)
			if !ok {
				return
			}
			insertChunk(ctx, chunks, key, *chunk)
		},
	})

	return chunks, nil
}

func insertChunk(ctx context.Context, chunks *btrfsvol.ChunkMap, key btrfsprim.Key, chunk btrfsitem.Chunk) {
	mapping, ok := chunk.Mapping(key)
	if !ok {
		return
	}
	if chunk.Head.NumStripes > 1 {
		dlog.Warnf(ctx, "btrfsutil.BuildChunkMap: chunk at %v has %d stripes; only stripe 0 is honored",
			key.Offset, chunk.Head.NumStripes)
	}
	if err := chunks.Insert(mapping); err != nil {
		dlog.Warnf(ctx, "btrfsutil.BuildChunkMap: %v", err)
	}
}
