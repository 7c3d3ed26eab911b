// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsvol translates between the logical address space that
// tree items and extents are described in and the physical address
// space of the underlying block device(s).
package btrfsvol

import "fmt"

type (
	PhysicalAddr int64
	LogicalAddr  int64
	AddrDelta    int64
)

func (a PhysicalAddr) String() string { return fmt.Sprintf("%#016x", int64(a)) }
func (a LogicalAddr) String() string  { return fmt.Sprintf("%#016x", int64(a)) }
func (d AddrDelta) String() string    { return fmt.Sprintf("%#016x", int64(d)) }

func (a PhysicalAddr) Sub(b PhysicalAddr) AddrDelta { return AddrDelta(a - b) }
func (a LogicalAddr) Sub(b LogicalAddr) AddrDelta   { return AddrDelta(a - b) }

func (a PhysicalAddr) Add(b AddrDelta) PhysicalAddr { return a + PhysicalAddr(b) }
func (a LogicalAddr) Add(b AddrDelta) LogicalAddr   { return a + LogicalAddr(b) }

// DeviceID identifies one of the (possibly several) block devices
// that make up a filesystem.
type DeviceID uint64

type QualifiedPhysicalAddr struct {
	Dev  DeviceID
	Addr PhysicalAddr
}

func (a QualifiedPhysicalAddr) Add(b AddrDelta) QualifiedPhysicalAddr {
	return QualifiedPhysicalAddr{Dev: a.Dev, Addr: a.Addr.Add(b)}
}
