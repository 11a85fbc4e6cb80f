// Package chunker fragments a stego document into DNS TXT sized records and
// reassembles it on the far side.
//
// Wire format of one chunk, before text encoding:
//
//	[MAGIC(4)][MSGID(16)][SEQ(2)][TOTAL(2)][FLAGS(1)][CHECKSUM(4)][PAYLOAD]
//
// DNS makes no ordering or delivery guarantees, so every chunk carries its
// own identity, position, total and checksum.
package chunker

import (
	"crypto/rand"
	"encoding/base32"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/sirupsen/logrus"
)

const (
	// MAX_DNS_STRING_SIZE is the length limit of one TXT character-string
	MAX_DNS_STRING_SIZE = 255

	// SAFE_CHUNK_SIZE leaves headroom below the protocol limit
	SAFE_CHUNK_SIZE = 250

	// METADATA_OVERHEAD = Magic(4) + MessageID(16) + Sequence(2) + Total(2) + Flags(1) + Checksum(4)
	METADATA_OVERHEAD = 29

	ENCODE_HEX    = "hex"
	ENCODE_BASE32 = "base32"

	// CHUNK_MAGIC is "DNSC"
	CHUNK_MAGIC = 0x444E5343

	// FLAG_ZSTD marks a message whose reassembled bytes are zstd-compressed
	FLAG_ZSTD = 1 << 0
)

var b32 = base32.StdEncoding.WithPadding(base32.NoPadding)

// ChunkMetadata contains all information needed to reassemble a message
type ChunkMetadata struct {
	Magic       uint32
	MessageID   [16]byte
	Sequence    uint16 // 0-based
	TotalChunks uint16
	Flags       uint8
	Checksum    uint32 // low 32 bits of xxhash64(payload)
	PayloadSize uint16
}

// Chunk represents a single DNS-ready fragment
type Chunk struct {
	Metadata ChunkMetadata
	Payload  []byte // raw bytes before encoding
	Encoded  string // DNS-ready encoded string
}

// Message represents a complete message for chunking
type Message struct {
	ID         [16]byte
	Data       []byte // original document bytes
	Chunks     []Chunk
	Encoding   string
	Compressed bool
	CreatedAt  time.Time
}

// ChunkerConfig allows customization of chunking behavior
type ChunkerConfig struct {
	Encoding     string // hex or base32; empty on decode means detect
	MaxChunkSize int    // encoded length limit, defaults to SAFE_CHUNK_SIZE
	Compression  bool   // zstd-compress the document before splitting
	Logger       *logrus.Logger
}

// Chunker handles message fragmentation
type Chunker struct {
	config ChunkerConfig
	log    *logrus.Logger
	stats  ChunkingStats
}

// ChunkingStats tracks performance metrics
type ChunkingStats struct {
	MessagesChunked  int
	TotalChunks      int
	TotalBytes       int
	CompressionRatio float64
	LastChunkingTime time.Duration
}

// NewChunker creates a configured chunker instance
func NewChunker(config ChunkerConfig) *Chunker {
	if config.MaxChunkSize == 0 {
		config.MaxChunkSize = SAFE_CHUNK_SIZE
	}
	log := config.Logger
	if log == nil {
		log = logrus.New()
	}

	return &Chunker{config: config, log: log}
}

func (c *Chunker) encoding() string {
	if c.config.Encoding == "" {
		return ENCODE_BASE32
	}
	return c.config.Encoding
}

// ChunkMessage fragments data into DNS-ready chunks
func (c *Chunker) ChunkMessage(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, errors.New("nothing to chunk")
	}

	startTime := time.Now()

	var messageID [16]byte
	if _, err := rand.Read(messageID[:]); err != nil {
		return nil, fmt.Errorf("message id: %w", err)
	}

	wire := data
	var flags uint8
	if c.config.Compression {
		compressed, err := compressWithZstd(data)
		if err != nil {
			return nil, fmt.Errorf("compression failed: %w", err)
		}
		// Already-compressed containers such as docx rarely shrink further.
		if len(compressed) < len(data) {
			wire = compressed
			flags |= FLAG_ZSTD
		}
	}

	payloadSize, err := c.PayloadSize()
	if err != nil {
		return nil, err
	}

	totalChunks := (len(wire) + payloadSize - 1) / payloadSize
	if totalChunks > math.MaxUint16 {
		return nil, fmt.Errorf("message too large: requires %d chunks (max %d)",
			totalChunks, math.MaxUint16)
	}

	message := &Message{
		ID:         messageID,
		Data:       data,
		Chunks:     make([]Chunk, 0, totalChunks),
		Encoding:   c.encoding(),
		Compressed: flags&FLAG_ZSTD != 0,
		CreatedAt:  time.Now(),
	}

	for i := 0; i < totalChunks; i++ {
		start := i * payloadSize
		end := min(start+payloadSize, len(wire))

		meta := ChunkMetadata{
			Magic:       CHUNK_MAGIC,
			MessageID:   messageID,
			Sequence:    uint16(i),
			TotalChunks: uint16(totalChunks),
			Flags:       flags,
			Checksum:    Checksum(wire[start:end]),
			PayloadSize: uint16(end - start),
		}
		message.Chunks = append(message.Chunks, Chunk{
			Metadata: meta,
			Payload:  wire[start:end],
			Encoded:  c.encodeChunk(meta, wire[start:end]),
		})
	}

	c.stats.MessagesChunked++
	c.stats.TotalChunks += totalChunks
	c.stats.TotalBytes += len(data)
	c.stats.CompressionRatio = float64(len(wire)) / float64(len(data))
	c.stats.LastChunkingTime = time.Since(startTime)

	c.log.WithFields(logrus.Fields{
		"bytes":      len(data),
		"wire_bytes": len(wire),
		"chunks":     totalChunks,
		"encoding":   message.Encoding,
		"compressed": message.Compressed,
	}).Debug("message chunked")

	return message, nil
}

// PayloadSize is the number of raw payload bytes that fit one chunk once the
// header is added and the whole is text-encoded.
func (c *Chunker) PayloadSize() (int, error) {
	var raw int
	switch c.encoding() {
	case ENCODE_HEX:
		raw = c.config.MaxChunkSize / 2
	case ENCODE_BASE32:
		raw = c.config.MaxChunkSize * 5 / 8
	default:
		return 0, fmt.Errorf("unknown chunk encoding %q", c.config.Encoding)
	}

	if raw <= METADATA_OVERHEAD {
		return 0, fmt.Errorf("chunk size %d leaves no room for payload", c.config.MaxChunkSize)
	}
	return raw - METADATA_OVERHEAD, nil
}

// encodeChunk serializes the header and payload into a DNS-safe string
func (c *Chunker) encodeChunk(meta ChunkMetadata, payload []byte) string {
	buf := make([]byte, METADATA_OVERHEAD, METADATA_OVERHEAD+len(payload))

	binary.BigEndian.PutUint32(buf[0:4], meta.Magic)
	copy(buf[4:20], meta.MessageID[:])
	binary.BigEndian.PutUint16(buf[20:22], meta.Sequence)
	binary.BigEndian.PutUint16(buf[22:24], meta.TotalChunks)
	buf[24] = meta.Flags
	binary.BigEndian.PutUint32(buf[25:29], meta.Checksum)
	buf = append(buf, payload...)

	if c.encoding() == ENCODE_HEX {
		return hex.EncodeToString(buf)
	}
	return b32.EncodeToString(buf)
}

// DecodeChunk parses a TXT value back into a Chunk
func (c *Chunker) DecodeChunk(encoded string) (*Chunk, error) {
	var decoders []func(string) ([]byte, error)
	switch c.config.Encoding {
	case ENCODE_HEX:
		decoders = append(decoders, hex.DecodeString)
	case ENCODE_BASE32:
		decoders = append(decoders, b32.DecodeString)
	default:
		decoders = append(decoders, hex.DecodeString, b32.DecodeString)
	}

	var lastErr error
	for _, decode := range decoders {
		raw, err := decode(encoded)
		if err != nil {
			lastErr = fmt.Errorf("decode failed: %w", err)
			continue
		}
		chunk, err := parseChunk(raw)
		if err != nil {
			lastErr = err
			continue
		}
		chunk.Encoded = encoded
		return chunk, nil
	}
	return nil, lastErr
}

func parseChunk(raw []byte) (*Chunk, error) {
	if len(raw) < METADATA_OVERHEAD {
		return nil, fmt.Errorf("chunk too small: %d bytes", len(raw))
	}

	meta := ChunkMetadata{
		Magic:       binary.BigEndian.Uint32(raw[0:4]),
		Sequence:    binary.BigEndian.Uint16(raw[20:22]),
		TotalChunks: binary.BigEndian.Uint16(raw[22:24]),
		Flags:       raw[24],
		Checksum:    binary.BigEndian.Uint32(raw[25:29]),
	}
	if meta.Magic != CHUNK_MAGIC {
		return nil, fmt.Errorf("invalid magic: %x", meta.Magic)
	}
	copy(meta.MessageID[:], raw[4:20])

	payload := raw[METADATA_OVERHEAD:]
	meta.PayloadSize = uint16(len(payload))

	return &Chunk{Metadata: meta, Payload: payload}, nil
}

// ReassembleMessage reconstructs the original bytes from chunks in any order
func (c *Chunker) ReassembleMessage(chunks []Chunk) ([]byte, error) {
	if len(chunks) == 0 {
		return nil, errors.New("no chunks provided")
	}

	first := chunks[0].Metadata
	for _, chunk := range chunks {
		if chunk.Metadata.MessageID != first.MessageID {
			return nil, fmt.Errorf("mixed messages detected: %x vs %x",
				first.MessageID[:8], chunk.Metadata.MessageID[:8])
		}
		if chunk.Metadata.TotalChunks != first.TotalChunks {
			return nil, fmt.Errorf("inconsistent total chunks: %d vs %d",
				first.TotalChunks, chunk.Metadata.TotalChunks)
		}
		if chunk.Metadata.Flags != first.Flags {
			return nil, errors.New("inconsistent flags across chunks")
		}
	}

	if len(chunks) != int(first.TotalChunks) {
		missing := findMissingChunks(chunks, first.TotalChunks)
		return nil, fmt.Errorf("incomplete message: missing chunks %v", missing)
	}

	sorted := make([]Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Metadata.Sequence < sorted[j].Metadata.Sequence
	})

	var wire []byte
	for i, chunk := range sorted {
		if chunk.Metadata.Sequence != uint16(i) {
			return nil, fmt.Errorf("sequence error at position %d", i)
		}
		if Checksum(chunk.Payload) != chunk.Metadata.Checksum {
			return nil, fmt.Errorf("checksum failed for chunk %d", i)
		}
		wire = append(wire, chunk.Payload...)
	}

	if first.Flags&FLAG_ZSTD != 0 {
		data, err := decompressWithZstd(wire)
		if err != nil {
			return nil, err
		}
		wire = data
	}

	c.log.WithFields(logrus.Fields{
		"chunks": len(chunks),
		"bytes":  len(wire),
	}).Debug("message reassembled")

	return wire, nil
}

// ValidateChunk performs standalone checks on one chunk
func (c *Chunker) ValidateChunk(chunk *Chunk) error {
	if chunk.Metadata.Magic != CHUNK_MAGIC {
		return fmt.Errorf("invalid magic number: %x", chunk.Metadata.Magic)
	}

	if calculated := Checksum(chunk.Payload); calculated != chunk.Metadata.Checksum {
		return fmt.Errorf("checksum mismatch: expected %x, got %x",
			chunk.Metadata.Checksum, calculated)
	}

	if chunk.Metadata.Sequence >= chunk.Metadata.TotalChunks {
		return fmt.Errorf("sequence %d out of bounds (total: %d)",
			chunk.Metadata.Sequence, chunk.Metadata.TotalChunks)
	}

	if len(chunk.Payload) == 0 {
		return errors.New("empty payload")
	}

	return nil
}

// GetStats returns chunking statistics
func (c *Chunker) GetStats() ChunkingStats {
	return c.stats
}

// Checksum is the low 32 bits of the xxhash64 digest of data.
func Checksum(data []byte) uint32 {
	return uint32(xxhash.Sum64(data))
}

func findMissingChunks(chunks []Chunk, total uint16) []uint16 {
	present := make(map[uint16]bool)
	for _, chunk := range chunks {
		present[chunk.Metadata.Sequence] = true
	}

	var missing []uint16
	for i := uint16(0); i < total; i++ {
		if !present[i] {
			missing = append(missing, i)
		}
	}
	return missing
}
