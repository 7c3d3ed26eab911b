// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfssum

import (
	"fmt"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsvol"
)

// BlockSize is the granularity that btrfs computes data checksums at,
// regardless of the filesystem's sector size.
const BlockSize = 4096

// SumRun is the decoded payload of one EXTENT_CSUM item: a run of
// per-block digests for the logical range starting at Addr.
type SumRun struct {
	ChecksumSize int
	Addr         btrfsvol.LogicalAddr
	Sums         []byte // ChecksumSize-byte digests, concatenated
}

// DecodeSumRun splits a raw EXTENT_CSUM item payload into a SumRun.
func DecodeSumRun(addr btrfsvol.LogicalAddr, typ CSumType, dat []byte) (SumRun, error) {
	sz := typ.Size()
	if len(dat)%sz != 0 {
		return SumRun{}, fmt.Errorf("btrfssum: EXTENT_CSUM payload of %d bytes is not a multiple of digest size %d", len(dat), sz)
	}
	return SumRun{ChecksumSize: sz, Addr: addr, Sums: dat}, nil
}

func (run SumRun) NumSums() int {
	return len(run.Sums) / run.ChecksumSize
}

func (run SumRun) Size() btrfsvol.AddrDelta {
	return btrfsvol.AddrDelta(run.NumSums()) * BlockSize
}

// SumForAddr returns the digest covering the block containing addr.
func (run SumRun) SumForAddr(addr btrfsvol.LogicalAddr) (CSum, bool) {
	if addr < run.Addr || addr >= run.Addr.Add(run.Size()) {
		return CSum{}, false
	}
	off := int((addr-run.Addr)/BlockSize) * run.ChecksumSize
	var ret CSum
	copy(ret[:], run.Sums[off:off+run.ChecksumSize])
	return ret, true
}

// Walk visits every (block address, digest) pair in the run in order.
func (run SumRun) Walk(fn func(btrfsvol.LogicalAddr, CSum)) {
	for addr, off := run.Addr, 0; off < len(run.Sums); addr, off = addr+BlockSize, off+run.ChecksumSize {
		var sum CSum
		copy(sum[:], run.Sums[off:off+run.ChecksumSize])
		fn(addr, sum)
	}
}
