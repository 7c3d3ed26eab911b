// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package parser_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/btrfscat/btrfscat/internal/parser"
	"github.com/btrfscat/btrfscat/lib/binstruct"
	"github.com/btrfscat/btrfscat/lib/btrfs"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfssum"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
)

func writeImage(t *testing.T, sb btrfs.Superblock) string {
	t.Helper()

	sum, err := sb.CalculateChecksum()
	require.NoError(t, err)
	sb.Checksum = sum

	dat, err := binstruct.Marshal(sb)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "image.btrfs")
	image := make([]byte, 0x10000+len(dat))
	copy(image[0x10000:], dat)
	require.NoError(t, os.WriteFile(path, image, 0o600))
	return path
}

func TestParseRejectsNonBtrfsImage(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "garbage")
	require.NoError(t, os.WriteFile(path, make([]byte, 0x20000), 0o600))

	_, _, err := parser.Parse(context.Background(), path, 0, parser.Options{InfoOnly: true})
	require.ErrorIs(t, err, parser.ErrNotBtrfs)
}

func TestParseInfoOnlyStopsAfterSuperblock(t *testing.T) {
	t.Parallel()

	var sb btrfs.Superblock
	copy(sb.Magic[:], "_BHRfS_M")
	sb.NodeSize = 0x1000
	sb.SectorSize = 0x1000
	sb.ChecksumType = btrfssum.TYPE_CRC32
	sb.RootTree = 0x4000
	sb.ChunkTree = 0x5000
	copy(sb.Label[:], "mylabel")

	path := writeImage(t, sb)

	gotSB, entries, err := parser.Parse(context.Background(), path, 0, parser.Options{InfoOnly: true})
	require.NoError(t, err)
	require.Nil(t, entries)
	require.Equal(t, btrfsvol.LogicalAddr(0x4000), gotSB.RootTree)
	require.Equal(t, btrfsvol.LogicalAddr(0x5000), gotSB.ChunkTree)
}

func TestParseMissingFile(t *testing.T) {
	t.Parallel()
	_, _, err := parser.Parse(context.Background(), filepath.Join(t.TempDir(), "does-not-exist"), 0, parser.Options{InfoOnly: true})
	require.Error(t, err)
}
