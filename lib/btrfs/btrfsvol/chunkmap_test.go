// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
)

func TestChunkMapResolve(t *testing.T) {
	t.Parallel()
	var cm btrfsvol.ChunkMap
	require.NoError(t, cm.Insert(btrfsvol.Mapping{
		LAddr: 0x1000,
		PAddr: btrfsvol.QualifiedPhysicalAddr{Dev: 1, Addr: 0x100000},
		Size:  0x1000,
	}))
	require.NoError(t, cm.Insert(btrfsvol.Mapping{
		LAddr: 0x5000,
		PAddr: btrfsvol.QualifiedPhysicalAddr{Dev: 1, Addr: 0x200000},
		Size:  0x1000,
	}))

	got, ok := cm.Resolve(0x1500)
	require.True(t, ok)
	assert.Equal(t, btrfsvol.QualifiedPhysicalAddr{Dev: 1, Addr: 0x100500}, got)

	_, ok = cm.Resolve(0x2000)
	assert.False(t, ok)

	assert.True(t, cm.Covers(0x1000, 0x1000))
	assert.False(t, cm.Covers(0x1000, 0x2000))
}

func TestChunkMapResolveAppliesPartitionOffset(t *testing.T) {
	t.Parallel()
	cm := btrfsvol.ChunkMap{PartitionOffset: 0x20000}
	require.NoError(t, cm.Insert(btrfsvol.Mapping{
		LAddr: 0x1000,
		PAddr: btrfsvol.QualifiedPhysicalAddr{Dev: 1, Addr: 0x100000},
		Size:  0x1000,
	}))

	got, ok := cm.Resolve(0x1500)
	require.True(t, ok)
	assert.Equal(t, btrfsvol.QualifiedPhysicalAddr{Dev: 1, Addr: 0x120500}, got)
}

func TestChunkMapRejectsOverlap(t *testing.T) {
	t.Parallel()
	var cm btrfsvol.ChunkMap
	require.NoError(t, cm.Insert(btrfsvol.Mapping{LAddr: 0x1000, Size: 0x1000}))
	err := cm.Insert(btrfsvol.Mapping{LAddr: 0x1500, Size: 0x1000})
	assert.Error(t, err)
}
