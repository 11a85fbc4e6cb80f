package chunker

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/miekg/dns"
)

// RECORD_TTL balances resolver caching against freshness
const RECORD_TTL = 300

// DNSEncoder maps chunked messages onto TXT record names under a domain
type DNSEncoder struct {
	domain    string
	subdomain string
}

// NewDNSEncoder creates an encoder for DNS transport
func NewDNSEncoder(domain string) *DNSEncoder {
	return &DNSEncoder{
		domain:    strings.TrimSuffix(strings.ToLower(domain), "."),
		subdomain: "data",
	}
}

// DNSManifest describes a complete message for DNS transport.
// On the wire it is the TXT value "total:checksum:timestamp:ext".
type DNSManifest struct {
	MessageID   string
	TotalChunks int
	Checksum    string // xxhash64 of the original document, hex
	Timestamp   time.Time
	Ext         string // document extension without the dot
}

// Value renders the manifest TXT value.
func (m *DNSManifest) Value() string {
	return fmt.Sprintf("%d:%s:%d:%s", m.TotalChunks, m.Checksum, m.Timestamp.Unix(), m.Ext)
}

// Verify reports whether data matches the manifest checksum.
func (m *DNSManifest) Verify(data []byte) bool {
	return m.Checksum == DocumentChecksum(data)
}

// ParseManifest parses a manifest TXT value for message id.
func ParseManifest(id, value string) (*DNSManifest, error) {
	parts := strings.Split(value, ":")
	if len(parts) < 3 {
		return nil, fmt.Errorf("malformed manifest %q", value)
	}

	total, err := strconv.Atoi(parts[0])
	if err != nil || total <= 0 {
		return nil, fmt.Errorf("malformed manifest chunk count %q", parts[0])
	}
	ts, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed manifest timestamp %q", parts[2])
	}

	m := &DNSManifest{
		MessageID:   id,
		TotalChunks: total,
		Checksum:    parts[1],
		Timestamp:   time.Unix(ts, 0),
	}
	if len(parts) > 3 {
		m.Ext = parts[3]
	}
	return m, nil
}

// DocumentChecksum is the manifest checksum of a whole document.
func DocumentChecksum(data []byte) string {
	return fmt.Sprintf("%016x", xxhash.Sum64(data))
}

// DNSRecord represents a DNS TXT record
type DNSRecord struct {
	Name  string // without trailing dot
	Type  string
	TTL   int
	Value string
}

// MessageIDString is the DNS label form of a message id.
func MessageIDString(id [16]byte) string {
	return hex.EncodeToString(id[:8])
}

// ManifestName is the record name of the manifest for msgID.
func (de *DNSEncoder) ManifestName(msgID string) string {
	return fmt.Sprintf("m-%s.%s.%s", msgID, de.subdomain, de.domain)
}

// ChunkName is the record name of chunk seq of msgID.
func (de *DNSEncoder) ChunkName(seq int, msgID string) string {
	return fmt.Sprintf("c-%d-%s.%s.%s", seq, msgID, de.subdomain, de.domain)
}

// EncodeToDNS converts a chunked message into TXT records, manifest first.
func (de *DNSEncoder) EncodeToDNS(msg *Message, ext string) (*DNSManifest, []DNSRecord, error) {
	if len(msg.Chunks) == 0 {
		return nil, nil, errors.New("message has no chunks")
	}

	manifest := &DNSManifest{
		MessageID:   MessageIDString(msg.ID),
		TotalChunks: len(msg.Chunks),
		Checksum:    DocumentChecksum(msg.Data),
		Timestamp:   msg.CreatedAt,
		Ext:         strings.TrimPrefix(ext, "."),
	}

	records := make([]DNSRecord, 0, len(msg.Chunks)+1)
	records = append(records, DNSRecord{
		Name:  de.ManifestName(manifest.MessageID),
		Type:  "TXT",
		TTL:   RECORD_TTL,
		Value: manifest.Value(),
	})

	for i, chunk := range msg.Chunks {
		if len(chunk.Encoded) > MAX_DNS_STRING_SIZE {
			return nil, nil, fmt.Errorf("chunk %d encodes to %d bytes, over the TXT string limit", i, len(chunk.Encoded))
		}
		records = append(records, DNSRecord{
			Name:  de.ChunkName(i, manifest.MessageID),
			Type:  "TXT",
			TTL:   RECORD_TTL,
			Value: chunk.Encoded,
		})
	}

	return manifest, records, nil
}

// ParseFromDNS reconstructs chunks and the manifest from TXT records.
func (de *DNSEncoder) ParseFromDNS(records []DNSRecord) ([]Chunk, *DNSManifest, error) {
	var manifest *DNSManifest
	var chunks []Chunk
	chk := NewChunker(ChunkerConfig{})

	for _, record := range records {
		label, _, _ := strings.Cut(record.Name, ".")

		switch {
		case strings.HasPrefix(label, "m-"):
			m, err := ParseManifest(strings.TrimPrefix(label, "m-"), record.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", record.Name, err)
			}
			manifest = m

		case strings.HasPrefix(label, "c-"):
			chunk, err := chk.DecodeChunk(record.Value)
			if err != nil {
				return nil, nil, fmt.Errorf("%s: %w", record.Name, err)
			}
			chunks = append(chunks, *chunk)
		}
	}

	if manifest == nil {
		return chunks, nil, errors.New("no manifest record found")
	}
	return chunks, manifest, nil
}

// RR converts a record into a miekg/dns TXT resource record.
func (r DNSRecord) RR() *dns.TXT {
	return &dns.TXT{
		Hdr: dns.RR_Header{
			Name:   dns.Fqdn(r.Name),
			Rrtype: dns.TypeTXT,
			Class:  dns.ClassINET,
			Ttl:    uint32(r.TTL),
		},
		Txt: []string{r.Value},
	}
}

// GenerateZoneFile creates a BIND-compatible zone file
func (de *DNSEncoder) GenerateZoneFile(records []DNSRecord) string {
	var zone strings.Builder

	zone.WriteString("; DNS relay zone file\n")
	fmt.Fprintf(&zone, "; Generated: %s\n", time.Now().Format(time.RFC3339))
	fmt.Fprintf(&zone, "; Records: %d\n\n", len(records))

	for _, record := range records {
		zone.WriteString(record.RR().String())
		zone.WriteByte('\n')
	}

	return zone.String()
}

// ParseZoneFile reads the TXT records of a zone file.
func ParseZoneFile(content string) ([]DNSRecord, error) {
	zp := dns.NewZoneParser(strings.NewReader(content), "", "")

	var records []DNSRecord
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		txt, isTXT := rr.(*dns.TXT)
		if !isTXT {
			continue
		}
		records = append(records, DNSRecord{
			Name:  strings.TrimSuffix(txt.Hdr.Name, "."),
			Type:  "TXT",
			TTL:   int(txt.Hdr.Ttl),
			Value: strings.Join(txt.Txt, ""),
		})
	}
	if err := zp.Err(); err != nil {
		return nil, fmt.Errorf("parse zone: %w", err)
	}
	return records, nil
}
