package graph

import (
	"encoding/base64"
	"encoding/binary"
)

// QuickXorHash parameters: a 160-bit circular XOR buffer, advancing 11
// bits per input byte.
const (
	qxWidthBytes = 20
	qxWidthBits  = qxWidthBytes * 8
	qxShift      = 11
)

// ContentHash returns the base64 QuickXorHash of content, the digest
// OneDrive reports under file.hashes.quickXorHash.
func ContentHash(content []byte) string {
	var buf [qxWidthBytes]byte

	pos := 0

	// Bytes that land on the same position (every 160 input bytes) are
	// folded together before being shifted into place.
	n := min(len(content), qxWidthBits)
	for i := range n {
		var b byte
		for j := i; j < len(content); j += qxWidthBits {
			b ^= content[j]
		}

		idx, off := pos/8, uint(pos%8)
		buf[idx] ^= b << off

		if off > 0 {
			buf[(idx+1)%qxWidthBytes] ^= b >> (8 - off)
		}

		pos = (pos + qxShift) % qxWidthBits
	}

	var length [8]byte
	binary.LittleEndian.PutUint64(length[:], uint64(len(content)))

	for i, lb := range length {
		buf[qxWidthBytes-len(length)+i] ^= lb
	}

	return base64.StdEncoding.EncodeToString(buf[:])
}
