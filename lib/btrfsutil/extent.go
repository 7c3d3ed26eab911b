// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsitem"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfstree"
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
	"github.com/btrfscat/btrfscat/lib/diskio"
)

// ErrUnsupportedCompression is returned when an extent's compression
// code is not one of the four defined values.
type ErrUnsupportedCompression struct {
	Code btrfsitem.CompressionType
}

func (e ErrUnsupportedCompression) Error() string {
	return fmt.Sprintf("unsupported compression code %d", uint8(e.Code))
}

// ErrShortRead is returned when reassembling an extent would require
// reading past the end of the image.
var ErrShortRead = fmt.Errorf("short read: extent extends past end of device")

// ReassembleFile concatenates id's extents in file-offset order and
// truncates the result to declaredSize, translating each regular
// extent's disk address through chunks and decompressing per its
// codec.
func ReassembleFile(file diskio.File[btrfsvol.PhysicalAddr], chunks *btrfsvol.ChunkMap, extents []Extent, declaredSize int64) ([]byte, error) {
	sorted := append([]Extent(nil), extents...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].FileOffset < sorted[j].FileOffset })

	var buf bytes.Buffer
	for _, ext := range sorted {
		chunk, err := reassembleExtent(file, chunks, ext)
		if err != nil {
			return nil, fmt.Errorf("extent at file offset %d: %w", ext.FileOffset, err)
		}
		buf.Write(chunk)
	}

	out := buf.Bytes()
	if int64(len(out)) > declaredSize {
		out = out[:declaredSize]
	} else if int64(len(out)) < declaredSize {
		padded := make([]byte, declaredSize)
		copy(padded, out)
		out = padded
	}
	return out, nil
}

func reassembleExtent(file diskio.File[btrfsvol.PhysicalAddr], chunks *btrfsvol.ChunkMap, ext Extent) ([]byte, error) {
	switch ext.Type {
	case btrfsitem.FILE_EXTENT_INLINE:
		if ext.Compression == btrfsitem.COMPRESS_NONE {
			return ext.Inline, nil
		}
		return decompress(ext.Compression, ext.Inline, ext.NumBytes)
	}

	if ext.DiskByteNr == 0 {
		return make([]byte, ext.NumBytes), nil // hole
	}

	if ext.Compression != btrfsitem.COMPRESS_NONE {
		raw, err := readLogical(file, chunks, ext.DiskByteNr, int64(ext.DiskNumBytes))
		if err != nil {
			return nil, err
		}
		full, err := decompress(ext.Compression, raw, -1)
		if err != nil {
			return nil, err
		}
		lo := ext.Offset
		hi := ext.Offset + btrfsvol.AddrDelta(ext.NumBytes)
		if int64(hi) > int64(len(full)) {
			return nil, ErrShortRead
		}
		return full[lo:hi], nil
	}

	start := ext.DiskByteNr.Add(ext.Offset)
	return readLogical(file, chunks, start, ext.NumBytes)
}

func readLogical(file diskio.File[btrfsvol.PhysicalAddr], chunks *btrfsvol.ChunkMap, laddr btrfsvol.LogicalAddr, size int64) ([]byte, error) {
	paddr, ok := chunks.Resolve(laddr)
	if !ok {
		return nil, fmt.Errorf("%w: %v", btrfstree.ErrUnmappedLogicalAddress, laddr)
	}
	buf := make([]byte, size)
	n, err := file.ReadAt(buf, paddr.Addr)
	if err != nil && err != io.EOF {
		return nil, err
	}
	if int64(n) < size {
		return nil, ErrShortRead
	}
	return buf, nil
}

// decompress decodes buf per code. ramBytes is the declared
// uncompressed size when known (inline extents); pass -1 when the
// caller will slice the result itself (regular compressed extents).
func decompress(code btrfsitem.CompressionType, buf []byte, ramBytes int64) ([]byte, error) {
	switch code {
	case btrfsitem.COMPRESS_NONE:
		return buf, nil
	case btrfsitem.COMPRESS_ZLIB:
		r, err := zlib.NewReader(bytes.NewReader(buf))
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		defer r.Close()
		out, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("zlib: %w", err)
		}
		return clampRAM(out, ramBytes), nil
	case btrfsitem.COMPRESS_LZO:
		out, err := decompressLZO(buf)
		if err != nil {
			return nil, err
		}
		return clampRAM(out, ramBytes), nil
	case btrfsitem.COMPRESS_ZSTD:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		defer dec.Close()
		out, err := dec.DecodeAll(buf, nil)
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return clampRAM(out, ramBytes), nil
	default:
		return nil, ErrUnsupportedCompression{Code: code}
	}
}

func clampRAM(dat []byte, ramBytes int64) []byte {
	if ramBytes >= 0 && int64(len(dat)) > ramBytes {
		return dat[:ramBytes]
	}
	return dat
}
