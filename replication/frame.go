/*
Copyright (C) 2026  Contributors

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package replication

import (
	"encoding/binary"
	"fmt"

	"github.com/pierrec/lz4/v4"
)

// Wire frames are lz4 block-compressed JSON, one operation per websocket
// binary message. The leading byte distinguishes a compressed payload
// (followed by a 4-byte little-endian original length) from a payload lz4
// could not shrink, which travels raw instead of paying the header cost.
const (
	frameFlagRaw        byte = 0
	frameFlagCompressed byte = 1
)

func compressFrame(src []byte) []byte {
	bound := lz4.CompressBlockBound(len(src))
	dst := make([]byte, bound)
	var c lz4.Compressor
	n, err := c.CompressBlock(src, dst)
	if err != nil || n == 0 || n >= len(src) {
		out := make([]byte, 1+len(src))
		out[0] = frameFlagRaw
		copy(out[1:], src)
		return out
	}
	out := make([]byte, 5+n)
	out[0] = frameFlagCompressed
	binary.LittleEndian.PutUint32(out[1:5], uint32(len(src)))
	copy(out[5:], dst[:n])
	return out
}

func decompressFrame(frame []byte) ([]byte, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("replication: empty frame")
	}
	switch frame[0] {
	case frameFlagRaw:
		return frame[1:], nil
	case frameFlagCompressed:
		if len(frame) < 5 {
			return nil, fmt.Errorf("replication: truncated frame header")
		}
		origLen := binary.LittleEndian.Uint32(frame[1:5])
		dst := make([]byte, origLen)
		n, err := lz4.UncompressBlock(frame[5:], dst)
		if err != nil {
			return nil, fmt.Errorf("replication: decompressing frame: %w", err)
		}
		return dst[:n], nil
	default:
		return nil, fmt.Errorf("replication: unknown frame flag %d", frame[0])
	}
}
