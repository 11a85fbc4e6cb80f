package decoder

import (
	"errors"
	"fmt"

	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/spec"
)

// SecurityReport counts the carrier symbols present in a document.
type SecurityReport struct {
	SpaceZeros     int
	SpaceOnes      int
	ZeroWidthZeros int
	ZeroWidthOnes  int
}

// LikelyMethod guesses which carrier method was used, or "" when neither
// leaves a trace. Ordinary spaces alone are not evidence.
func (r *SecurityReport) LikelyMethod() string {
	switch {
	case r.ZeroWidthZeros+r.ZeroWidthOnes >= spec.HEADER_BITS:
		return spec.METHOD_ZEROWIDTH
	case r.SpaceOnes > 0:
		return spec.METHOD_SPACE
	default:
		return ""
	}
}

// EstimatedBits is the number of embedded bits implied by the likely method.
// For the space method this includes trailing filler.
func (r *SecurityReport) EstimatedBits() int {
	switch r.LikelyMethod() {
	case spec.METHOD_ZEROWIDTH:
		return r.ZeroWidthZeros + r.ZeroWidthOnes
	case spec.METHOD_SPACE:
		return r.SpaceZeros + r.SpaceOnes
	default:
		return 0
	}
}

// AnalyzeSecurity scans the raw source and the regions of doc for symbols
// of both carrier methods.
func AnalyzeSecurity(doc carrier.Document) *SecurityReport {
	r := &SecurityReport{}

	for _, region := range doc.Regions() {
		z, o := carrier.SpaceSymbols.Count(region.Text())
		r.SpaceZeros += z
		r.SpaceOnes += o
	}
	r.ZeroWidthZeros, r.ZeroWidthOnes = carrier.ZeroWidthSymbols.Count(doc.Raw())

	// Raw is empty for documents built in memory.
	if r.ZeroWidthZeros+r.ZeroWidthOnes == 0 {
		for _, region := range doc.Regions() {
			z, o := carrier.ZeroWidthSymbols.Count(region.Text())
			r.ZeroWidthZeros += z
			r.ZeroWidthOnes += o
		}
	}

	return r
}

// PrintSecurityReport writes a human readable summary to stdout.
func PrintSecurityReport(r *SecurityReport) {
	fmt.Printf("\n🔒 Security Analysis:\n")
	fmt.Printf("   Space symbols: %d zero / %d one\n", r.SpaceZeros, r.SpaceOnes)
	fmt.Printf("   Zero-width symbols: %d zero / %d one\n", r.ZeroWidthZeros, r.ZeroWidthOnes)

	switch r.LikelyMethod() {
	case spec.METHOD_ZEROWIDTH:
		fmt.Printf("   🔐 Zero-width markers present (~%d bits)\n", r.EstimatedBits())
	case spec.METHOD_SPACE:
		fmt.Printf("   🔐 Narrow no-break spaces present (~%d bits)\n", r.EstimatedBits())
	default:
		fmt.Printf("   📄 No carrier symbols found\n")
	}
}

// TryMultipleKeys attempts extraction with each key in turn and returns the
// first that yields a valid UTF-8 message along with its index.
func TryMultipleKeys(doc carrier.Document, keys [][]byte, cfg Config) (*ExtractedMessage, int, error) {
	var lastErr error

	for i, key := range keys {
		if len(key) == 0 {
			continue
		}

		ssd, err := NewSecureStegoDecoder(key, cfg)
		if err != nil {
			return nil, -1, err
		}

		msg, err := ssd.Decode(doc)
		if err != nil {
			// Malformed data does not depend on the key.
			if errors.Is(err, spec.ErrMalformedStegoData) {
				return nil, -1, err
			}
			lastErr = err
			continue
		}
		if msg.ValidUTF8 {
			return msg, i, nil
		}
	}

	if lastErr == nil {
		lastErr = errors.New("no key produced a valid message")
	}
	return nil, -1, fmt.Errorf("all %d keys failed: %w", len(keys), lastErr)
}
