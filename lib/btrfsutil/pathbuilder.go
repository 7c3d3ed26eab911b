// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"errors"
	"strings"
)

const maxPathDepth = 100

// ErrPathDepthExceeded classifies why Path returned a "<broken>/…"
// path: either a genuine cycle in the parent chain, or a chain
// longer than maxPathDepth (itself almost certainly indicating a
// cycle that the depth cap caught before consuming unbounded memory).
var ErrPathDepthExceeded = errors.New("parent chain exceeds maximum path depth")

// Path reconstructs the absolute path of id within its subvolume by
// walking the parent chain collected during reconstruction. A cycle
// or a chain longer than maxPathDepth yields a partial path prefixed
// with "<broken>/" rather than looping forever or panicking.
func (fs *FileSystem) Path(id QualID) string {
	var parts []string
	seen := make(map[QualID]struct{})
	cur := id
	broken := false

	for depth := 0; ; depth++ {
		if depth > maxPathDepth {
			broken = true
			break
		}
		if _, ok := seen[cur]; ok {
			broken = true
			break
		}
		seen[cur] = struct{}{}

		parent, hasParent := fs.Parents[cur]
		name, hasName := fs.Names[cur]
		if !hasParent {
			// Reached the subvolume root: no INODE_REF recorded for it.
			break
		}
		if !hasName || strings.HasPrefix(name, "/") {
			break
		}
		parts = append(parts, name)
		cur = parent
	}

	// parts were collected leaf-to-root; reverse them.
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}

	path := "/" + strings.Join(parts, "/")
	if broken {
		return "<broken>" + path
	}
	return path
}
