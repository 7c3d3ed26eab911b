// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestLZO1XDecompressStateFourMatch exercises the one branch of the
// LZO1X state machine that a short stream can't reach: a t<16 match
// whose distance is encoded relative to a literal run long enough to
// have set state 4 (op-2048-(t>>2)-(b<<2)), rather than the ordinary
// two-byte/length-2 form. That branch only fires with a distance of
// at least 2048, so the fixture pads the output past that with a
// chain of M2 matches before triggering it.
func TestLZO1XDecompressStateFourMatch(t *testing.T) {
	t.Parallel()

	var raw bytes.Buffer
	raw.WriteByte(0x07) // initial literal run, length 4
	raw.WriteString("AAAA")

	const padOps = 256 // 256 * 8 = 2048 bytes of padding
	for i := 0; i < padOps; i++ {
		raw.WriteByte(0xE0) // M2: length 8, high distance bits 0, trailing 0
		raw.WriteByte(0x00) // distance byte: distance = (0<<3)|0, +1 = 1
	}

	raw.WriteByte(0x05) // state==0 literal run opcode, varlen field 5
	raw.WriteString("BBBBBBBB") // length 5+3 = 8, sets state 4

	raw.WriteByte(0x04) // t<16 match, state==4: distance = 2048 + (4>>2) + (0<<2) = 2049
	raw.WriteByte(0x00)

	raw.WriteByte(0x11) // M4 end-of-stream marker
	raw.WriteByte(0x00)
	raw.WriteByte(0x00)

	got, err := lzo1xDecompress(raw.Bytes())
	require.NoError(t, err)

	want := strings.Repeat("A", 4+8*padOps) + "BBBBBBBB" + "AAA"
	require.Equal(t, want, string(got))
}
