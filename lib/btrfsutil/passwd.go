// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"strconv"
	"strings"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
	"github.com/btrfscat/btrfscat/lib/diskio"
)

// nameTable holds uid/gid → name lookups resolved from /etc/passwd
// and /etc/group. A lookup miss (file absent, unparsable, or id not
// present) yields the empty string, never an error: name resolution
// is a display nicety, not something that should abort a scan.
type nameTable struct {
	uids map[int32]string
	gids map[int32]string
}

func (t nameTable) uidName(uid int32) string { return t.uids[uid] }
func (t nameTable) gidName(gid int32) string { return t.gids[gid] }

// ResolveNames looks for the files whose reconstructed path is
// /etc/passwd or /root/etc/passwd (and likewise for group) and parses
// whichever are found; copies at other paths are not considered.
func ResolveNames(fs *FileSystem, file diskio.File[btrfsvol.PhysicalAddr], chunks *btrfsvol.ChunkMap) nameTable {
	table := nameTable{uids: map[int32]string{}, gids: map[int32]string{}}

	passwdID, ok := findPath(fs, "/etc/passwd")
	if ok {
		if dat, err := readInodeFile(fs, file, chunks, passwdID); err == nil {
			parsePasswd(dat, table.uids)
		}
	}
	groupID, ok := findPath(fs, "/etc/group")
	if ok {
		if dat, err := readInodeFile(fs, file, chunks, groupID); err == nil {
			parseGroup(dat, table.gids)
		}
	}
	return table
}

func findPath(fs *FileSystem, want string) (QualID, bool) {
	for id := range fs.Inodes {
		p := fs.Path(id)
		if p == want || p == "/root"+want {
			return id, true
		}
	}
	return 0, false
}

func readInodeFile(fs *FileSystem, file diskio.File[btrfsvol.PhysicalAddr], chunks *btrfsvol.ChunkMap, id QualID) ([]byte, error) {
	inode := fs.Inodes[id]
	return ReassembleFile(file, chunks, fs.Extents[id], inode.Size)
}

// parsePasswd parses colon-separated /etc/passwd lines:
// name:passwd:uid:gid:gecos:home:shell
func parsePasswd(dat []byte, out map[int32]string) {
	for _, line := range strings.Split(string(dat), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 3 {
			continue
		}
		uid, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			continue
		}
		out[int32(uid)] = fields[0]
	}
}

// parseGroup parses colon-separated /etc/group lines:
// name:passwd:gid:members
func parseGroup(dat []byte, out map[int32]string) {
	for _, line := range strings.Split(string(dat), "\n") {
		fields := strings.Split(line, ":")
		if len(fields) < 3 {
			continue
		}
		gid, err := strconv.ParseInt(fields[2], 10, 32)
		if err != nil {
			continue
		}
		out[int32(gid)] = fields[0]
	}
}
