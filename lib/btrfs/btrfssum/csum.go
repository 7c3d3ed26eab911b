// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfssum decodes the checksum tree's on-disk records: the
// digest type the filesystem was formatted with, and the fixed-size
// digest values it stores per data block.
package btrfssum

import (
	"crypto/sha256"
	"encoding"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"hash/crc32"
)

// CSum holds a digest value. Only the leading typ.Size() bytes are
// meaningful; the type is sized for the largest supported digest
// (sha256) so it can be embedded in fixed-layout structs.
type CSum [0x20]byte

var (
	_ fmt.Stringer             = CSum{}
	_ encoding.TextMarshaler   = CSum{}
	_ encoding.TextUnmarshaler = (*CSum)(nil)
)

func (csum CSum) String() string {
	return hex.EncodeToString(csum[:])
}

func (csum CSum) MarshalText() ([]byte, error) {
	var ret [len(csum) * 2]byte
	hex.Encode(ret[:], csum[:])
	return ret[:], nil
}

func (csum *CSum) UnmarshalText(text []byte) error {
	*csum = CSum{}
	_, err := hex.Decode(csum[:], text)
	return err
}

// Fmt renders only the bytes that are significant for typ.
func (csum CSum) Fmt(typ CSumType) string {
	return hex.EncodeToString(csum[:typ.Size()])
}

type CSumType uint16

const (
	TYPE_CRC32 = CSumType(iota)
	TYPE_XXHASH
	TYPE_SHA256
	TYPE_BLAKE2
)

func (typ CSumType) String() string {
	names := map[CSumType]string{
		TYPE_CRC32:  "crc32c",
		TYPE_XXHASH: "xxhash64",
		TYPE_SHA256: "sha256",
		TYPE_BLAKE2: "blake2",
	}
	if name, ok := names[typ]; ok {
		return name
	}
	return fmt.Sprintf("%d", uint16(typ))
}

func (typ CSumType) Size() int {
	sizes := map[CSumType]int{
		TYPE_CRC32:  4,
		TYPE_XXHASH: 8,
		TYPE_SHA256: 32,
		TYPE_BLAKE2: 32,
	}
	if size, ok := sizes[typ]; ok {
		return size
	}
	return len(CSum{})
}

// Sum computes the digest of data under typ. Only CRC32C (the
// original and still-default btrfs checksum) and SHA256 (the modern
// alternative most commonly enabled) are implemented; xxhash64 and
// blake2 filesystems are recognized and reported but their block
// checksums cannot be verified.
func (typ CSumType) Sum(data []byte) (CSum, error) {
	switch typ {
	case TYPE_CRC32:
		crc := crc32.Update(0, crc32.MakeTable(crc32.Castagnoli), data)
		var ret CSum
		binary.LittleEndian.PutUint32(ret[:], crc)
		return ret, nil
	case TYPE_SHA256:
		sum := sha256.Sum256(data)
		var ret CSum
		copy(ret[:], sum[:])
		return ret, nil
	default:
		return CSum{}, fmt.Errorf("checksum type %v is not implemented", typ)
	}
}
