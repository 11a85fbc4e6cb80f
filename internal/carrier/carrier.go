// Package carrier maps bit sequences onto pairs of near-identical characters
// in cover text, and reads them back.
//
// A Strategy never touches files or document formats directly. It works on a
// Document: an ordered list of mutable text regions plus the raw source the
// document was read from. Text-family strategies (docx, txt) flatten every
// region into one body and need the document to implement Flattener; markup
// strategies (html) rewrite qualifying regions in place.
package carrier

import (
	"fmt"
	"strings"

	"github.com/faanross/simulacra_doc/internal/spec"
)

// Format families
const (
	FamilyText   = "text"
	FamilyMarkup = "markup"
)

// Region is one mutable run of document text.
type Region interface {
	Text() string
	SetText(text string)
}

// Document is the view a strategy gets of a cover or stego document.
type Document interface {
	// Regions returns the carrier-eligible text regions in document order.
	Regions() []Region
	// Raw returns the underlying source as it was read.
	Raw() string
}

// Flattener replaces the whole document body with a single text block.
type Flattener interface {
	Flatten(text string)
}

// Strategy embeds bits into, and extracts bits from, a Document.
type Strategy interface {
	Name() string
	// Capacity is the number of bits the document can carry.
	Capacity(doc Document) (int, error)
	// Embed mutates doc so that it carries bits. Nothing is mutated on error.
	Embed(doc Document, bits []bool) error
	// Extract returns every bit symbol found, in encounter order.
	Extract(doc Document) ([]bool, error)
}

// New returns the strategy for a carrier method and format family.
func New(method, family string) (Strategy, error) {
	switch {
	case method == spec.METHOD_SPACE && family == FamilyText:
		return NewSpaceText(), nil
	case method == spec.METHOD_SPACE && family == FamilyMarkup:
		return NewSpaceMarkup(), nil
	case method == spec.METHOD_ZEROWIDTH && family == FamilyText:
		return NewZeroWidthText(), nil
	case method == spec.METHOD_ZEROWIDTH && family == FamilyMarkup:
		return NewZeroWidthMarkup(), nil
	case method != spec.METHOD_SPACE && method != spec.METHOD_ZEROWIDTH:
		return nil, fmt.Errorf("%w: %q", spec.ErrUnknownMethod, method)
	default:
		return nil, fmt.Errorf("%w: family %q", spec.ErrUnsupportedFormat, family)
	}
}

// SymbolPair is the two reserved characters of a method.
type SymbolPair struct {
	Zero rune
	One  rune
}

var (
	SpaceSymbols     = SymbolPair{Zero: spec.SPACE_0, One: spec.SPACE_1}
	ZeroWidthSymbols = SymbolPair{Zero: spec.ZW_0, One: spec.ZW_1}
)

// Symbols returns the symbol pair of method.
func Symbols(method string) (SymbolPair, error) {
	switch method {
	case spec.METHOD_SPACE:
		return SpaceSymbols, nil
	case spec.METHOD_ZEROWIDTH:
		return ZeroWidthSymbols, nil
	default:
		return SymbolPair{}, fmt.Errorf("%w: %q", spec.ErrUnknownMethod, method)
	}
}

func (p SymbolPair) symbol(bit bool) rune {
	if bit {
		return p.One
	}
	return p.Zero
}

// Collect appends one bit per symbol occurrence in s.
func (p SymbolPair) Collect(bits []bool, s string) []bool {
	for _, r := range s {
		switch r {
		case p.Zero:
			bits = append(bits, false)
		case p.One:
			bits = append(bits, true)
		}
	}
	return bits
}

// Count reports how many zero and one symbols s contains.
func (p SymbolPair) Count(s string) (zeros, ones int) {
	for _, r := range s {
		switch r {
		case p.Zero:
			zeros++
		case p.One:
			ones++
		}
	}
	return zeros, ones
}

func capacityError(required, available int) error {
	return fmt.Errorf("%w: need %d bits, cover provides %d slots",
		spec.ErrInsufficientCapacity, required, available)
}

func flattener(doc Document) (Flattener, error) {
	f, ok := doc.(Flattener)
	if !ok {
		return nil, fmt.Errorf("%w: document cannot be flattened into a single body", spec.ErrUnsupportedFormat)
	}
	return f, nil
}

// joinRegions joins region texts with sep, optionally dropping blank regions.
func joinRegions(doc Document, sep string, skipBlank bool) string {
	regions := doc.Regions()
	parts := make([]string, 0, len(regions))
	for _, r := range regions {
		text := r.Text()
		if skipBlank && strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, sep)
}
