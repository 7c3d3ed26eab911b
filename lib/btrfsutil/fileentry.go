// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"context"
	"crypto/md5" //nolint:gosec // MD5 is emitted as a legacy fixity check, not for security.
	"crypto/sha256"
	"strings"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsitem"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
	"github.com/btrfscat/btrfscat/lib/diskio"
	"github.com/btrfscat/btrfscat/lib/textui"
)

const isoTimeLayout = "2006-01-02T15:04:05"

// FileEntry is one emitted catalog record: everything known about a
// single subvolume-qualified inode.
type FileEntry struct {
	InodeNumber uint64
	SubvolumeID uint64

	Name string
	Path string

	Size int64
	Type string

	Mode      uint32
	ModeStr   string
	UID       int32
	UIDName   *string
	GID       int32
	GIDName   *string
	NLink     int32
	ATime     string
	CTime     string
	MTime     string
	OTime     string
	ParentID  uint64
	Generation uint64
	TransID   uint64

	Flags    uint64
	FlagsStr string

	XAttrCount     int
	ExtentCount    int
	DiskBytes      int64
	PhysicalOffset *int64
	ChecksumCount  int

	MD5    []byte
	SHA256 []byte
}

func fileType(mode btrfsitem.StatMode) string {
	switch mode & btrfsitem.ModeFmt {
	case btrfsitem.ModeFmtRegular:
		return "file"
	case btrfsitem.ModeFmtDir:
		return "directory"
	case btrfsitem.ModeFmtSymlink:
		return "symlink"
	case btrfsitem.ModeFmtCharDevice:
		return "char_device"
	case btrfsitem.ModeFmtBlockDevice:
		return "block_device"
	case btrfsitem.ModeFmtNamedPipe:
		return "fifo"
	case btrfsitem.ModeFmtSocket:
		return "socket"
	default:
		return "unknown"
	}
}

// Emit walks every reconstructed inode and produces its FileEntry.
// Content hashes are computed only for regular files, and only when
// the file's extents reassemble cleanly; a reassembly failure is
// logged and localized to that one entry rather than aborting the run.
//
// Progress is reported via dlog at info level as inodes are hashed,
// since that's the slow part on a large image; it's a no-op unless
// the caller's logger has been raised to at least that level.
func (fs *FileSystem) Emit(ctx context.Context, file diskio.File[btrfsvol.PhysicalAddr], chunks *btrfsvol.ChunkMap) []FileEntry {
	names := ResolveNames(fs, file, chunks)

	progress := textui.NewProgress[textui.Portion[int64]](ctx, dlog.LogLevelInfo, textui.Tunable(1*time.Second))
	defer progress.Done()
	total := int64(len(fs.Inodes))
	var done int64

	entries := make([]FileEntry, 0, len(fs.Inodes))
	for id, inode := range fs.Inodes {
		done++
		progress.Set(textui.Portion[int64]{N: done, D: total})
		path := fs.Path(id)
		if strings.HasPrefix(path, "<broken>") {
			dlog.Warnf(ctx, "btrfsutil.Emit: inode %#x: %v", id, ErrPathDepthExceeded)
		}
		entry := FileEntry{
			InodeNumber: uint64(id.InodeNumber()),
			SubvolumeID: uint64(id.SubvolumeID()),
			Name:        fs.Names[id],
			Path:        path,
			Size:        inode.Size,
			Type:        fileType(inode.Mode),
			Mode:        uint32(inode.Mode),
			ModeStr:     inode.Mode.String(),
			UID:         inode.UID,
			GID:         inode.GID,
			NLink:       inode.NLink,
			ATime:       inode.ATime.ToStd().UTC().Format(isoTimeLayout),
			CTime:       inode.CTime.ToStd().UTC().Format(isoTimeLayout),
			MTime:       inode.MTime.ToStd().UTC().Format(isoTimeLayout),
			OTime:       inode.OTime.ToStd().UTC().Format(isoTimeLayout),
			Generation:  uint64(inode.Generation),
			TransID:     uint64(inode.TransID),
			Flags:       uint64(inode.Flags),
			FlagsStr:    inode.Flags.String(),
			XAttrCount:  len(fs.XAttrs[id]),
			ExtentCount: len(fs.Extents[id]),
		}
		if parent, ok := fs.Parents[id]; ok {
			entry.ParentID = uint64(parent.InodeNumber())
		}
		if name := names.uidName(inode.UID); name != "" {
			entry.UIDName = &name
		}
		if name := names.gidName(inode.GID); name != "" {
			entry.GIDName = &name
		}

		for _, ext := range fs.Extents[id] {
			entry.DiskBytes += int64(ext.DiskNumBytes)
			entry.ChecksumCount += fs.Checksums[ext.DiskByteNr]
		}
		if len(fs.Extents[id]) > 0 {
			if paddr, ok := chunks.Resolve(fs.Extents[id][0].DiskByteNr); ok {
				off := int64(paddr.Addr)
				entry.PhysicalOffset = &off
			}
		}

		if inode.Mode.IsRegular() {
			data, err := ReassembleFile(file, chunks, fs.Extents[id], inode.Size)
			if err != nil {
				dlog.Warnf(ctx, "btrfsutil.Emit: inode %#x: %v", id, err)
			} else {
				md5sum := md5.Sum(data)   //nolint:gosec
				sha := sha256.Sum256(data)
				entry.MD5 = md5sum[:]
				entry.SHA256 = sha[:]
			}
		}

		entries = append(entries, entry)
	}
	return entries
}
