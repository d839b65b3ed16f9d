// SPDX-License-Identifier: MIT

package audio

import "encoding/binary"

// Binary audio frames fanned out to TPA links carry an 8-byte big-endian
// sequence prefix so subscribers can detect gaps; the payload stays opaque.

// EncodeFrame prepends the sequence number to the payload.
func EncodeFrame(seq uint64, payload []byte) []byte {
	out := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(out, seq)
	copy(out[8:], payload)
	return out
}

// DecodeFrame splits a fanned-out frame back into sequence and payload.
// ok is false for frames too short to carry the prefix.
func DecodeFrame(data []byte) (seq uint64, payload []byte, ok bool) {
	if len(data) < 8 {
		return 0, nil, false
	}
	return binary.BigEndian.Uint64(data), data[8:], true
}
