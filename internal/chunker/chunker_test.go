package chunker

import (
	"bytes"
	"crypto/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.Read(b)
	require.NoError(t, err)
	return b
}

func TestPayloadSize(t *testing.T) {
	hexSize, err := NewChunker(ChunkerConfig{Encoding: ENCODE_HEX}).PayloadSize()
	require.NoError(t, err)
	assert.Equal(t, 125-METADATA_OVERHEAD, hexSize)

	b32Size, err := NewChunker(ChunkerConfig{Encoding: ENCODE_BASE32}).PayloadSize()
	require.NoError(t, err)
	assert.Equal(t, 156-METADATA_OVERHEAD, b32Size)

	_, err = NewChunker(ChunkerConfig{Encoding: "base64"}).PayloadSize()
	assert.Error(t, err)

	_, err = NewChunker(ChunkerConfig{Encoding: ENCODE_HEX, MaxChunkSize: 40}).PayloadSize()
	assert.Error(t, err)
}

func TestChunkAndReassemble(t *testing.T) {
	tests := []struct {
		name     string
		encoding string
		compress bool
		data     []byte
	}{
		{"base32 random", ENCODE_BASE32, false, randomBytes(t, 1000)},
		{"hex random", ENCODE_HEX, false, randomBytes(t, 777)},
		{"single chunk", ENCODE_BASE32, false, []byte("tiny")},
		{"compressible", ENCODE_BASE32, true, bytes.Repeat([]byte("cover text "), 400)},
		{"incompressible", ENCODE_HEX, true, randomBytes(t, 500)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chk := NewChunker(ChunkerConfig{Encoding: tt.encoding, Compression: tt.compress})
			msg, err := chk.ChunkMessage(tt.data)
			require.NoError(t, err)

			for _, c := range msg.Chunks {
				assert.LessOrEqual(t, len(c.Encoded), SAFE_CHUNK_SIZE)
				require.NoError(t, chk.ValidateChunk(&c))
			}

			// Reverse the order to simulate out-of-order delivery.
			decoded := make([]Chunk, 0, len(msg.Chunks))
			for i := len(msg.Chunks) - 1; i >= 0; i-- {
				c, err := NewChunker(ChunkerConfig{}).DecodeChunk(msg.Chunks[i].Encoded)
				require.NoError(t, err)
				decoded = append(decoded, *c)
			}

			out, err := chk.ReassembleMessage(decoded)
			require.NoError(t, err)
			assert.Equal(t, tt.data, out)
		})
	}
}

func TestCompressionShrinksChunkCount(t *testing.T) {
	data := bytes.Repeat([]byte("the same paragraph again "), 200)

	plain, err := NewChunker(ChunkerConfig{}).ChunkMessage(data)
	require.NoError(t, err)
	packed, err := NewChunker(ChunkerConfig{Compression: true}).ChunkMessage(data)
	require.NoError(t, err)

	assert.True(t, packed.Compressed)
	assert.False(t, plain.Compressed)
	assert.Less(t, len(packed.Chunks), len(plain.Chunks))
	assert.Equal(t, uint8(FLAG_ZSTD), packed.Chunks[0].Metadata.Flags)
}

func TestReassembleErrors(t *testing.T) {
	chk := NewChunker(ChunkerConfig{})

	_, err := chk.ReassembleMessage(nil)
	assert.Error(t, err)

	msg, err := chk.ChunkMessage(randomBytes(t, 600))
	require.NoError(t, err)
	require.Greater(t, len(msg.Chunks), 2)

	_, err = chk.ReassembleMessage(msg.Chunks[1:])
	assert.ErrorContains(t, err, "missing chunks [0]")

	other, err := chk.ChunkMessage(randomBytes(t, 600))
	require.NoError(t, err)
	mixed := append([]Chunk{other.Chunks[0]}, msg.Chunks[1:]...)
	_, err = chk.ReassembleMessage(mixed)
	assert.ErrorContains(t, err, "mixed messages")

	corrupt := append([]Chunk(nil), msg.Chunks...)
	corrupt[1].Payload = append([]byte{corrupt[1].Payload[0] ^ 0xff}, corrupt[1].Payload[1:]...)
	_, err = chk.ReassembleMessage(corrupt)
	assert.ErrorContains(t, err, "checksum failed")
}

func TestDecodeChunkErrors(t *testing.T) {
	chk := NewChunker(ChunkerConfig{Encoding: ENCODE_HEX})

	_, err := chk.DecodeChunk("zz")
	assert.Error(t, err)

	_, err = chk.DecodeChunk("00ff")
	assert.ErrorContains(t, err, "too small")

	_, err = chk.DecodeChunk(strings.Repeat("00", METADATA_OVERHEAD+1))
	assert.ErrorContains(t, err, "invalid magic")
}

func TestChunkEmpty(t *testing.T) {
	_, err := NewChunker(ChunkerConfig{}).ChunkMessage(nil)
	assert.Error(t, err)
}
