// Package bitstream converts between bytes and MSB-first bit sequences.
package bitstream

import "github.com/faanross/simulacra_doc/internal/spec"

// BytesToBits expands each byte into 8 bits, high bit first.
func BytesToBits(data []byte) []bool {
	bits := make([]bool, len(data)*spec.BITS_PER_BYTE)
	for i, b := range data {
		for j := 0; j < 8; j++ {
			bits[i*8+j] = (b & (1 << (7 - j))) != 0
		}
	}
	return bits
}

// BitsToBytes packs bits MSB-first. An incomplete final byte is
// zero-padded on the low end.
func BitsToBytes(bits []bool) []byte {
	out := make([]byte, (len(bits)+spec.BITS_PER_BYTE-1)/spec.BITS_PER_BYTE)
	for i, bit := range bits {
		if bit {
			out[i/8] |= 1 << (7 - i%8)
		}
	}
	return out
}

// String renders bits as a string of '0' and '1'.
func String(bits []bool) string {
	buf := make([]byte, len(bits))
	for i, bit := range bits {
		if bit {
			buf[i] = '1'
		} else {
			buf[i] = '0'
		}
	}
	return string(buf)
}
