// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsitem"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
)

// emptyFile is a no-op diskio.File[btrfsvol.PhysicalAddr]; the passwd
// tests only exercise inline extents, which never touch it.
type emptyFile struct{}

func (emptyFile) Name() string                                            { return "empty" }
func (emptyFile) Size() btrfsvol.PhysicalAddr                             { return 0 }
func (emptyFile) Close() error                                            { return nil }
func (emptyFile) ReadAt([]byte, btrfsvol.PhysicalAddr) (int, error)       { return 0, errors.New("empty") }
func (emptyFile) WriteAt([]byte, btrfsvol.PhysicalAddr) (int, error)      { return 0, errors.New("empty") }

func TestResolveNamesFromPasswdAndGroup(t *testing.T) {
	t.Parallel()

	root := QualifyID(5, btrfsprim.ObjID(256))
	etc := QualifyID(5, btrfsprim.ObjID(257))
	passwdFile := QualifyID(5, btrfsprim.ObjID(258))
	groupFile := QualifyID(5, btrfsprim.ObjID(259))

	passwdData := []byte("root:x:0:0:root:/root:/bin/bash\nalice:x:1000:1000:Alice:/home/alice:/bin/sh\n")
	groupData := []byte("root:x:0:\nalice:x:1000:\n")

	fs := &FileSystem{
		Names: map[QualID]string{
			etc:        "etc",
			passwdFile: "passwd",
			groupFile:  "group",
		},
		Parents: map[QualID]QualID{
			etc:        root,
			passwdFile: etc,
			groupFile:  etc,
		},
		Inodes: map[QualID]*btrfsitem.Inode{
			passwdFile: {Size: int64(len(passwdData))},
			groupFile:  {Size: int64(len(groupData))},
		},
		Extents: map[QualID][]Extent{
			passwdFile: {{
				Type:        btrfsitem.FILE_EXTENT_INLINE,
				Compression: btrfsitem.COMPRESS_NONE,
				Inline:      passwdData,
				NumBytes:    int64(len(passwdData)),
			}},
			groupFile: {{
				Type:        btrfsitem.FILE_EXTENT_INLINE,
				Compression: btrfsitem.COMPRESS_NONE,
				Inline:      groupData,
				NumBytes:    int64(len(groupData)),
			}},
		},
	}

	names := ResolveNames(fs, emptyFile{}, new(btrfsvol.ChunkMap))

	assert.Equal(t, "root", names.uidName(0))
	assert.Equal(t, "alice", names.uidName(1000))
	assert.Equal(t, "", names.uidName(9999))

	assert.Equal(t, "root", names.gidName(0))
	assert.Equal(t, "alice", names.gidName(1000))
}

func TestParsePasswdIgnoresMalformedLines(t *testing.T) {
	t.Parallel()
	out := map[int32]string{}
	parsePasswd([]byte("ok:x:5:5:...\n\nnofields\nbad:x:notanumber:0:\n"), out)
	assert.Equal(t, map[int32]string{5: "ok"}, out)
}
