// Copyright (C) 2022-2024  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsutil

import (
	"encoding/binary"
	"fmt"
)

// decompressLZO decompresses a BTRFS-framed LZO1X stream: a 4-byte
// total length, followed by one or more 4-byte-length-prefixed
// segments of raw LZO1X-compressed data, each segment covering at
// most one 4KiB page of the decompressed output. There is no
// ecosystem Go package for this framing or for LZO1X itself (see
// DESIGN.md), so both are decoded by hand here.
func decompressLZO(dat []byte) ([]byte, error) {
	if len(dat) < 4 {
		return nil, fmt.Errorf("lzo: input too short for header")
	}
	totalLen := binary.LittleEndian.Uint32(dat[0:4])
	pos := 4
	out := make([]byte, 0, totalLen)

	for pos+4 <= len(dat) && uint32(len(out)) < totalLen {
		segLen := binary.LittleEndian.Uint32(dat[pos : pos+4])
		pos += 4
		if segLen == 0 || pos+int(segLen) > len(dat) {
			return nil, fmt.Errorf("lzo: segment length %d overruns input", segLen)
		}
		seg, err := lzo1xDecompress(dat[pos : pos+int(segLen)])
		if err != nil {
			return nil, fmt.Errorf("lzo: segment at %#x: %w", pos, err)
		}
		out = append(out, seg...)
		pos += int(segLen)
	}
	if uint32(len(out)) > totalLen {
		out = out[:totalLen]
	}
	return out, nil
}

// lzo1xDecompress implements the LZO1X byte-stream algorithm used by
// minilzo and the Linux kernel's lzo_decompress. It follows the
// reference state machine directly rather than a table-driven
// reimplementation, matching how the format itself is specified.
func lzo1xDecompress(src []byte) ([]byte, error) {
	var out []byte
	i := 0
	n := len(src)

	next := func() (byte, error) {
		if i >= n {
			return 0, fmt.Errorf("unexpected end of input")
		}
		b := src[i]
		i++
		return b, nil
	}

	readVarLen := func(t int) (int, error) {
		if t != 0 {
			return t, nil
		}
		total := 0
		for {
			b, err := next()
			if err != nil {
				return 0, err
			}
			if b != 0 {
				return total + int(b), nil
			}
			total += 255
		}
	}

	copyLiteral := func(l int) error {
		if l < 0 || i+l > n {
			return fmt.Errorf("literal run of %d overruns input", l)
		}
		out = append(out, src[i:i+l]...)
		i += l
		return nil
	}

	copyMatch := func(distance, l int) error {
		if distance <= 0 || distance > len(out) {
			return fmt.Errorf("match distance %d out of range (have %d bytes)", distance, len(out))
		}
		start := len(out) - distance
		for k := 0; k < l; k++ {
			out = append(out, out[start+k])
		}
		return nil
	}

	// state tracks what produced the most recent literal run: 0..3 is
	// the trailing-literal count copied after an ordinary match, 4
	// marks a literal-only run of more than 3 bytes (from the
	// stream's initial instruction, or from a fresh literal-run
	// opcode reached with state==0), which changes the distance
	// encoding of the very next t<16 match.
	state := 0

	// The very first instruction is special: a length byte >17 means
	// "copy (t-17) literals with no match to follow yet"; 0..17 is
	// reserved for very short initial literal runs.
	b0, err := next()
	if err != nil {
		return nil, err
	}
	t := int(b0)
	if t > 17 {
		l := t - 17
		if err := copyLiteral(l); err != nil {
			return nil, err
		}
		if l > 3 {
			state = 4
		} else {
			state = l
		}
		t = 0
	} else if t >= 4 {
		l := t - 3
		if err := copyLiteral(l); err != nil {
			return nil, err
		}
		if l > 3 {
			state = 4
		} else {
			state = l
		}
		t = 0
	}
	// else: t stays as the small instruction byte and falls straight
	// into the main loop below as the first opcode.

	for {
		if t == 0 {
			b, err := next()
			if err != nil {
				return nil, err
			}
			t = int(b)
		}

		var distance, length int
		trailing := t & 0x3
		switch {
		case t >= 64: // 1MMDDDSS: 3-bit length, 3-bit high distance
			length = (t >> 5) + 1
			b, err := next()
			if err != nil {
				return nil, err
			}
			distance = (int(b) << 3) | ((t >> 2) & 0x7)
			distance++
		case t >= 32: // 001LLLLL: 5-bit length, 14-bit distance
			l, err := readVarLen(t & 0x1f)
			if err != nil {
				return nil, err
			}
			length = l + 2
			lo, err := next()
			if err != nil {
				return nil, err
			}
			hi, err := next()
			if err != nil {
				return nil, err
			}
			distance = (int(hi)<<6 | int(lo)>>2) + 1
			trailing = int(lo) & 0x3
		case t >= 16: // 0001HLLL: 3-bit length, 13-bit distance + high bit
			l, err := readVarLen(t & 0x7)
			if err != nil {
				return nil, err
			}
			length = l + 2
			high := (t & 0x8) << 11
			lo, err := next()
			if err != nil {
				return nil, err
			}
			hi, err := next()
			if err != nil {
				return nil, err
			}
			trailing = int(lo) & 0x3
			distance = high | (int(hi)<<6 | int(lo)>>2)
			if distance == 0 {
				// end-of-stream marker
				return out, nil
			}
			distance += 0x4000
		default: // t < 16: short match, only valid right after a literal run
			if state == 0 {
				l, err := readVarLen(t)
				if err != nil {
					return nil, err
				}
				if err := copyLiteral(l + 3); err != nil {
					return nil, err
				}
				if l > 0 {
					state = 4
				} else {
					state = 3
				}
				t = 0
				continue
			}
			b, err := next()
			if err != nil {
				return nil, err
			}
			if state == 4 {
				// 3-byte-addressed length-3 match, only
				// reachable right after a literal run long
				// enough that the 2-byte/length-2 form below
				// can't have produced it.
				distance = 2048 + (t >> 2) + (int(b) << 2)
				length = 3
			} else {
				distance = (int(b) << 2) | (t >> 2)
				distance++
				length = 2
			}
		}

		if err := copyMatch(distance, length); err != nil {
			return nil, err
		}

		// The low 2 bits of the opcode we just consumed (or, for the
		// long forms, of the first distance byte) give the length of
		// the literal run that follows the match.
		state = trailing
		if trailing > 0 {
			if err := copyLiteral(trailing); err != nil {
				return nil, err
			}
		}
		t = 0
	}
}
