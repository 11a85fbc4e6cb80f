package encoder

import (
	"fmt"
	"unicode/utf8"

	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/spec"
)

// RequiredBits is the number of carrier slots a message of n bytes needs.
func RequiredBits(n int) int {
	return (spec.HEADER_SIZE + n) * spec.BITS_PER_BYTE
}

// MaxMessageBytes is the largest message that fits in slots carrier slots.
func MaxMessageBytes(slots int) int {
	n := slots/spec.BITS_PER_BYTE - spec.HEADER_SIZE
	if n < 0 {
		return 0
	}
	return n
}

// CapacityReport describes how a message fits a cover.
type CapacityReport struct {
	Strategy        string
	Slots           int
	RequiredBits    int
	MaxMessageBytes int
	Fits            bool
}

// AnalyzeCapacity measures doc under strategy for a message of messageLen bytes.
func AnalyzeCapacity(strategy carrier.Strategy, doc carrier.Document, messageLen int) (*CapacityReport, error) {
	slots, err := strategy.Capacity(doc)
	if err != nil {
		return nil, err
	}

	required := RequiredBits(messageLen)
	return &CapacityReport{
		Strategy:        strategy.Name(),
		Slots:           slots,
		RequiredBits:    required,
		MaxMessageBytes: MaxMessageBytes(slots),
		Fits:            required <= slots,
	}, nil
}

// PrintCapacityReport writes a human readable summary to stdout.
func PrintCapacityReport(r *CapacityReport) {
	fmt.Printf("\n📏 Capacity (%s):\n", r.Strategy)
	fmt.Printf("   Carrier slots: %d\n", r.Slots)
	fmt.Printf("   Required bits: %d\n", r.RequiredBits)
	fmt.Printf("   Max message: %d bytes\n", r.MaxMessageBytes)
	if r.Fits {
		fmt.Printf("   ✅ Message fits\n")
	} else {
		fmt.Printf("   ❌ Cover too small\n")
	}
}

// ValidateMessage rejects messages that are not UTF-8 text.
func ValidateMessage(message []byte) error {
	if !utf8.Valid(message) {
		return fmt.Errorf("message is not valid UTF-8")
	}
	return nil
}
