// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfsutil"
)

func TestPathOrdinary(t *testing.T) {
	t.Parallel()
	root := btrfsutil.QualifyID(5, btrfsprim.ObjID(256))
	dir := btrfsutil.QualifyID(5, btrfsprim.ObjID(257))
	file := btrfsutil.QualifyID(5, btrfsprim.ObjID(258))

	fs := &btrfsutil.FileSystem{
		Names: map[btrfsutil.QualID]string{
			dir:  "home",
			file: "notes.txt",
		},
		Parents: map[btrfsutil.QualID]btrfsutil.QualID{
			dir:  root,
			file: dir,
		},
	}

	assert.Equal(t, "/home/notes.txt", fs.Path(file))
	assert.Equal(t, "/home", fs.Path(dir))
	assert.Equal(t, "/", fs.Path(root))
}

func TestPathCycleIsMarkedBroken(t *testing.T) {
	t.Parallel()
	a := btrfsutil.QualifyID(5, btrfsprim.ObjID(256))
	b := btrfsutil.QualifyID(5, btrfsprim.ObjID(257))

	fs := &btrfsutil.FileSystem{
		Names: map[btrfsutil.QualID]string{
			a: "a",
			b: "b",
		},
		Parents: map[btrfsutil.QualID]btrfsutil.QualID{
			a: b,
			b: a,
		},
	}

	got := fs.Path(a)
	assert.Contains(t, got, "<broken>")
}

func TestPathDeepChainIsMarkedBroken(t *testing.T) {
	t.Parallel()
	const depth = 200

	names := make(map[btrfsutil.QualID]string, depth)
	parents := make(map[btrfsutil.QualID]btrfsutil.QualID, depth)
	for i := 0; i < depth; i++ {
		id := btrfsutil.QualifyID(5, btrfsprim.ObjID(256+i))
		names[id] = "d"
		if i > 0 {
			parents[id] = btrfsutil.QualifyID(5, btrfsprim.ObjID(256+i-1))
		}
	}

	fs := &btrfsutil.FileSystem{Names: names, Parents: parents}
	leaf := btrfsutil.QualifyID(5, btrfsprim.ObjID(256+depth-1))

	got := fs.Path(leaf)
	assert.Contains(t, got, "<broken>")
}
