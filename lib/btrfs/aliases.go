// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfs

import (
	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
)

type (
	Generation = btrfsprim.Generation
	ObjID      = btrfsprim.ObjID

	Key  = btrfsprim.Key
	Time = btrfsprim.Time
	UUID = btrfsprim.UUID
)
