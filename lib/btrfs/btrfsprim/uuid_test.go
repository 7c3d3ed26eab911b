// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/btrfscat/btrfscat/lib/btrfs/btrfsprim"
)

func TestUUIDRoundTrip(t *testing.T) {
	t.Parallel()
	str := "12345678-9abc-def0-1234-56789abcdef0"
	uuid, err := btrfsprim.ParseUUID(str)
	require.NoError(t, err)
	assert.Equal(t, str, uuid.String())
}

func TestUUIDParseError(t *testing.T) {
	t.Parallel()
	_, err := btrfsprim.ParseUUID("not-a-uuid-zz")
	assert.Error(t, err)
}
