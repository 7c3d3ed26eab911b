// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol

import (
	"fmt"
	"sort"
)

// Mapping is one chunk-tree stripe: a contiguous run of logical
// addresses that live at a contiguous run of physical addresses on
// one device.
//
// Multi-stripe profiles describe several stripes that share a logical
// range; only the first (stripe 0) is kept. For single, DUP and
// mirrored (RAID1*) chunks that stripe holds a complete copy of the
// data; for striped profiles (RAID0, RAID10, RAID5, RAID6) it does not.
type Mapping struct {
	LAddr LogicalAddr
	PAddr QualifiedPhysicalAddr
	Size  AddrDelta
	Flags BlockGroupFlags
}

func (m Mapping) end() LogicalAddr { return m.LAddr.Add(m.Size) }

// ChunkMap resolves logical addresses to physical addresses. Mappings
// are kept in a sorted slice rather than the interval-tree/RAID-aware
// structure a full read-write mount would need, since a read-only
// pass only ever resolves single points and only ever sees one stripe
// per chunk.
type ChunkMap struct {
	// PartitionOffset is added to every resolved physical address:
	// the constant byte offset, within the backing image, of the
	// partition that the mapped physical addresses are relative to.
	// Zero for an image that starts at partition_offset=0.
	PartitionOffset PhysicalAddr

	mappings []Mapping // sorted by LAddr, non-overlapping
}

// Insert adds a chunk mapping. A mapping with the same LAddr as an
// entry already present (as happens when a real chunk-tree entry
// supersedes one bootstrapped from the superblock's sys_chunk_array)
// silently replaces it. It is an error for the new mapping to
// otherwise overlap a logical range that is already mapped, since
// that would mean the chunk tree itself is corrupt or
// self-contradictory.
func (cm *ChunkMap) Insert(m Mapping) error {
	i := sort.Search(len(cm.mappings), func(i int) bool {
		return cm.mappings[i].LAddr >= m.LAddr
	})
	if i < len(cm.mappings) && cm.mappings[i].LAddr == m.LAddr {
		cm.mappings[i] = m
		return nil
	}
	if i > 0 && cm.mappings[i-1].end() > m.LAddr {
		return fmt.Errorf("chunk mapping %v overlaps existing mapping %v", m, cm.mappings[i-1])
	}
	if i < len(cm.mappings) && m.end() > cm.mappings[i].LAddr {
		return fmt.Errorf("chunk mapping %v overlaps existing mapping %v", m, cm.mappings[i])
	}
	cm.mappings = append(cm.mappings, Mapping{})
	copy(cm.mappings[i+1:], cm.mappings[i:])
	cm.mappings[i] = m
	return nil
}

// Resolve translates a logical address to its physical location,
// already offset by PartitionOffset so that callers can pass the
// result straight to a diskio.File opened on the whole image.
func (cm *ChunkMap) Resolve(laddr LogicalAddr) (QualifiedPhysicalAddr, bool) {
	i := sort.Search(len(cm.mappings), func(i int) bool {
		return cm.mappings[i].end() > laddr
	})
	if i == len(cm.mappings) || cm.mappings[i].LAddr > laddr {
		return QualifiedPhysicalAddr{}, false
	}
	m := cm.mappings[i]
	paddr := m.PAddr.Add(laddr.Sub(m.LAddr))
	paddr.Addr += cm.PartitionOffset
	return paddr, true
}

// Covers reports whether the entire logical range [laddr, laddr+size)
// is backed by a single contiguous chunk mapping.
func (cm *ChunkMap) Covers(laddr LogicalAddr, size AddrDelta) bool {
	i := sort.Search(len(cm.mappings), func(i int) bool {
		return cm.mappings[i].end() > laddr
	})
	if i == len(cm.mappings) || cm.mappings[i].LAddr > laddr {
		return false
	}
	return cm.mappings[i].end() >= laddr.Add(size)
}

// Len returns the number of distinct chunk mappings.
func (cm *ChunkMap) Len() int { return len(cm.mappings) }

// All returns the mappings in ascending logical order. The returned
// slice is owned by the caller.
func (cm *ChunkMap) All() []Mapping {
	out := make([]Mapping, len(cm.mappings))
	copy(out, cm.mappings)
	return out
}
