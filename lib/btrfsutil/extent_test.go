// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil_test

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsitem"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
	"github.com/btrfscat/btrfscat/lib/btrfsutil"
)

// memFile is a diskio.File[btrfsvol.PhysicalAddr] backed by an
// in-memory byte slice, standing in for an opened image during tests
// that don't need a real file on disk.
type memFile struct {
	data []byte
}

func (f *memFile) Name() string                 { return "memfile" }
func (f *memFile) Size() btrfsvol.PhysicalAddr  { return btrfsvol.PhysicalAddr(len(f.data)) }
func (f *memFile) Close() error                 { return nil }
func (f *memFile) WriteAt([]byte, btrfsvol.PhysicalAddr) (int, error) {
	return 0, errors.New("memFile is read-only")
}
func (f *memFile) ReadAt(p []byte, off btrfsvol.PhysicalAddr) (int, error) {
	if int64(off) >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func TestReassembleFileInlineUncompressed(t *testing.T) {
	t.Parallel()
	want := []byte("hello, world")
	extents := []btrfsutil.Extent{{
		FileOffset:  0,
		Type:        btrfsitem.FILE_EXTENT_INLINE,
		Compression: btrfsitem.COMPRESS_NONE,
		Inline:      want,
		NumBytes:    int64(len(want)),
	}}

	got, err := btrfsutil.ReassembleFile(&memFile{}, new(btrfsvol.ChunkMap), extents, int64(len(want)))
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestReassembleFileHole(t *testing.T) {
	t.Parallel()
	extents := []btrfsutil.Extent{{
		FileOffset: 0,
		Type:       btrfsitem.FILE_EXTENT_REG,
		DiskByteNr: 0, // hole
		NumBytes:   4096,
	}}

	got, err := btrfsutil.ReassembleFile(&memFile{}, new(btrfsvol.ChunkMap), extents, 4096)
	require.NoError(t, err)
	require.Equal(t, make([]byte, 4096), got)
}

func TestReassembleFileZlibCompressed(t *testing.T) {
	t.Parallel()
	plain := bytes.Repeat([]byte("btrfs"), 100)

	var compressed bytes.Buffer
	w := zlib.NewWriter(&compressed)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	const (
		diskOffset  = 0x10000 // physical
		logicalAddr = 0x2000  // logical; must be nonzero, or ReassembleFile treats the extent as a hole
	)
	image := make([]byte, diskOffset+compressed.Len())
	copy(image[diskOffset:], compressed.Bytes())

	var chunks btrfsvol.ChunkMap
	require.NoError(t, chunks.Insert(btrfsvol.Mapping{
		LAddr: logicalAddr,
		PAddr: btrfsvol.QualifiedPhysicalAddr{Addr: diskOffset},
		Size:  btrfsvol.AddrDelta(compressed.Len()),
	}))

	extents := []btrfsutil.Extent{{
		FileOffset:   0,
		Type:         btrfsitem.FILE_EXTENT_REG,
		Compression:  btrfsitem.COMPRESS_ZLIB,
		DiskByteNr:   logicalAddr,
		DiskNumBytes: btrfsvol.AddrDelta(compressed.Len()),
		Offset:       0,
		NumBytes:     int64(len(plain)),
	}}

	got, err := btrfsutil.ReassembleFile(&memFile{data: image}, &chunks, extents, int64(len(plain)))
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

// TestReassembleFileLZOCompressed round-trips a hand-built LZO1X
// stream through the real decoder: an initial literal run, a short
// (M1) match, a trailing literal byte, and the M4 end-of-stream
// marker. The distance/length arithmetic here is exactly what earlier
// had the M1 high/low bits swapped.
func TestReassembleFileLZOCompressed(t *testing.T) {
	t.Parallel()
	plain := []byte("AAAAAA")

	raw := []byte{
		0x06, 'A', 'A', 'A', // initial literal run, length 3
		0x01, 0x00, // M1 match: length 2, distance 1
		'A',              // trailing literal byte (low 2 bits of the M1 opcode)
		0x11, 0x00, 0x00, // M4 end-of-stream marker
	}

	var framed bytes.Buffer
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(plain)))
	framed.Write(lenBuf[:])
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(raw)))
	framed.Write(lenBuf[:])
	framed.Write(raw)

	const (
		diskOffset  = 0x10000
		logicalAddr = 0x2000
	)
	image := make([]byte, diskOffset+framed.Len())
	copy(image[diskOffset:], framed.Bytes())

	var chunks btrfsvol.ChunkMap
	require.NoError(t, chunks.Insert(btrfsvol.Mapping{
		LAddr: logicalAddr,
		PAddr: btrfsvol.QualifiedPhysicalAddr{Addr: diskOffset},
		Size:  btrfsvol.AddrDelta(framed.Len()),
	}))

	extents := []btrfsutil.Extent{{
		FileOffset:   0,
		Type:         btrfsitem.FILE_EXTENT_REG,
		Compression:  btrfsitem.COMPRESS_LZO,
		DiskByteNr:   logicalAddr,
		DiskNumBytes: btrfsvol.AddrDelta(framed.Len()),
		Offset:       0,
		NumBytes:     int64(len(plain)),
	}}

	got, err := btrfsutil.ReassembleFile(&memFile{data: image}, &chunks, extents, int64(len(plain)))
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

func TestReassembleFileZstdCompressed(t *testing.T) {
	t.Parallel()
	plain := bytes.Repeat([]byte("btrfs"), 100)

	enc, err := zstd.NewWriter(nil)
	require.NoError(t, err)
	compressed := enc.EncodeAll(plain, nil)
	require.NoError(t, enc.Close())

	const (
		diskOffset  = 0x10000
		logicalAddr = 0x2000
	)
	image := make([]byte, diskOffset+len(compressed))
	copy(image[diskOffset:], compressed)

	var chunks btrfsvol.ChunkMap
	require.NoError(t, chunks.Insert(btrfsvol.Mapping{
		LAddr: logicalAddr,
		PAddr: btrfsvol.QualifiedPhysicalAddr{Addr: diskOffset},
		Size:  btrfsvol.AddrDelta(len(compressed)),
	}))

	extents := []btrfsutil.Extent{{
		FileOffset:   0,
		Type:         btrfsitem.FILE_EXTENT_REG,
		Compression:  btrfsitem.COMPRESS_ZSTD,
		DiskByteNr:   logicalAddr,
		DiskNumBytes: btrfsvol.AddrDelta(len(compressed)),
		Offset:       0,
		NumBytes:     int64(len(plain)),
	}}

	got, err := btrfsutil.ReassembleFile(&memFile{data: image}, &chunks, extents, int64(len(plain)))
	require.NoError(t, err)
	require.Equal(t, plain, got)
}

func TestReassembleFileDeclaredSizeTruncatesAndPads(t *testing.T) {
	t.Parallel()
	full := []byte("0123456789")
	extents := []btrfsutil.Extent{{
		Type:        btrfsitem.FILE_EXTENT_INLINE,
		Compression: btrfsitem.COMPRESS_NONE,
		Inline:      full,
		NumBytes:    int64(len(full)),
	}}

	got, err := btrfsutil.ReassembleFile(&memFile{}, new(btrfsvol.ChunkMap), extents, 5)
	require.NoError(t, err)
	require.Equal(t, full[:5], got)

	got, err = btrfsutil.ReassembleFile(&memFile{}, new(btrfsvol.ChunkMap), extents, 15)
	require.NoError(t, err)
	require.Len(t, got, 15)
	require.Equal(t, full, got[:10])
}
