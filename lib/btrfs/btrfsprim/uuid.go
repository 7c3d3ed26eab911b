// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import (
	"bytes"
	"encoding"
	"fmt"

	"github.com/google/uuid"
)

type UUID [16]byte

var (
	_ fmt.Stringer             = UUID{}
	_ encoding.TextMarshaler   = UUID{}
	_ encoding.TextUnmarshaler = (*UUID)(nil)
)

// String formats the UUID as lowercase 8-4-4-4-12 hex, via
// github.com/google/uuid.
func (u UUID) String() string {
	return uuid.UUID(u).String()
}

func (u UUID) MarshalText() ([]byte, error) {
	return uuid.UUID(u).MarshalText()
}

func (u *UUID) UnmarshalText(text []byte) error {
	parsed, err := uuid.ParseBytes(text)
	if err != nil {
		return fmt.Errorf("illegal btrfs UUID %q: %w", text, err)
	}
	*u = UUID(parsed)
	return nil
}

func (a UUID) Compare(b UUID) int {
	return bytes.Compare(a[:], b[:])
}

// ParseUUID parses a canonical 8-4-4-4-12 hex UUID string.
func ParseUUID(str string) (UUID, error) {
	parsed, err := uuid.Parse(str)
	if err != nil {
		return UUID{}, fmt.Errorf("illegal btrfs UUID %q: %w", str, err)
	}
	return UUID(parsed), nil
}

func MustParseUUID(str string) UUID {
	ret, err := ParseUUID(str)
	if err != nil {
		panic(err)
	}
	return ret
}
