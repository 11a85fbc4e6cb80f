package scrypto

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/faanross/simulacra_doc/internal/spec"
)

// Frame prepends the 4-byte big-endian byte length of message.
func Frame(message []byte) ([]byte, error) {
	if uint64(len(message)) > math.MaxUint32 {
		return nil, fmt.Errorf("message too large to frame: %d bytes", len(message))
	}

	payload := make([]byte, spec.HEADER_SIZE+len(message))
	binary.BigEndian.PutUint32(payload[:spec.HEADER_SIZE], uint32(len(message)))
	copy(payload[spec.HEADER_SIZE:], message)

	return payload, nil
}

// Unframe reads the length header and returns the message it describes.
// The returned slice aliases payload.
func Unframe(payload []byte) ([]byte, error) {
	if len(payload) < spec.HEADER_SIZE {
		return nil, fmt.Errorf("%w: %d bytes available, need %d for the length header",
			spec.ErrMalformedStegoData, len(payload), spec.HEADER_SIZE)
	}

	msgLen := uint64(binary.BigEndian.Uint32(payload[:spec.HEADER_SIZE]))
	available := uint64(len(payload) - spec.HEADER_SIZE)
	if msgLen > available {
		return nil, fmt.Errorf("%w: header claims %d bytes, %d available",
			spec.ErrDecodedLengthOutOfRange, msgLen, available)
	}

	return payload[spec.HEADER_SIZE : spec.HEADER_SIZE+int(msgLen)], nil
}

// XORKeyStream XORs data with the keystream of matching length.
// Encryption and decryption are the same operation.
func (kg *KeystreamGenerator) XORKeyStream(data, key []byte) []byte {
	ks := kg.Generate(key, len(data))
	out := make([]byte, len(data))
	for i := range data {
		out[i] = data[i] ^ ks[i]
	}
	return out
}

// Encrypt XORs payload with the keystream for key.
func (kg *KeystreamGenerator) Encrypt(payload, key []byte) []byte {
	return kg.XORKeyStream(payload, key)
}

// Decrypt is Encrypt; XOR is self-inverse.
func (kg *KeystreamGenerator) Decrypt(ciphertext, key []byte) []byte {
	return kg.XORKeyStream(ciphertext, key)
}
