package carrier

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/faanross/simulacra_doc/internal/spec"
)

// ZeroWidthText inserts an invisible marker after each character of the
// flattened document: zero-width space for 0, zero-width non-joiner for 1.
type ZeroWidthText struct{}

func NewZeroWidthText() *ZeroWidthText { return &ZeroWidthText{} }

func (z *ZeroWidthText) Name() string { return spec.METHOD_ZEROWIDTH + "/" + FamilyText }

// flatten concatenates every region with no separator.
func (z *ZeroWidthText) flatten(doc Document) string {
	return joinRegions(doc, "", false)
}

func (z *ZeroWidthText) Capacity(doc Document) (int, error) {
	cover := z.flatten(doc)
	if cover == "" {
		return 0, spec.ErrEmptyCarrierSource
	}
	return utf8.RuneCountInString(cover), nil
}

func (z *ZeroWidthText) Embed(doc Document, bits []bool) error {
	f, err := flattener(doc)
	if err != nil {
		return err
	}

	cover := z.flatten(doc)
	if cover == "" {
		return spec.ErrEmptyCarrierSource
	}

	stego, err := EmbedZeroWidth(cover, bits)
	if err != nil {
		return err
	}

	f.Flatten(stego)
	return nil
}

func (z *ZeroWidthText) Extract(doc Document) ([]bool, error) {
	return ExtractZeroWidth(z.flatten(doc))
}

// EmbedZeroWidth writes the marker for bit i after character i of cover.
func EmbedZeroWidth(cover string, bits []bool) (string, error) {
	chars := utf8.RuneCountInString(cover)
	if len(bits) > chars {
		return "", capacityError(len(bits), chars)
	}

	var b strings.Builder
	b.Grow(len(cover) + len(bits)*3)

	i := 0
	for _, r := range cover {
		b.WriteRune(r)
		if i < len(bits) {
			b.WriteRune(ZeroWidthSymbols.symbol(bits[i]))
		}
		i++
	}

	return b.String(), nil
}

// ExtractZeroWidth collects every marker in text. Fewer markers than a
// length header is malformed.
func ExtractZeroWidth(text string) ([]bool, error) {
	bits := ZeroWidthSymbols.Collect(nil, text)
	if len(bits) < spec.HEADER_BITS {
		return nil, fmt.Errorf("%w: found %d markers, need at least %d",
			spec.ErrMalformedStegoData, len(bits), spec.HEADER_BITS)
	}
	return bits, nil
}

// ZeroWidthMarkup inserts a marker after every non-whitespace character of
// qualifying text regions, consuming bits from one running index.
type ZeroWidthMarkup struct{}

func NewZeroWidthMarkup() *ZeroWidthMarkup { return &ZeroWidthMarkup{} }

func (z *ZeroWidthMarkup) Name() string { return spec.METHOD_ZEROWIDTH + "/" + FamilyMarkup }

func (z *ZeroWidthMarkup) Capacity(doc Document) (int, error) {
	regions := doc.Regions()
	if len(regions) == 0 {
		return 0, spec.ErrEmptyCarrierSource
	}

	total := 0
	for _, r := range regions {
		for _, c := range r.Text() {
			if !unicode.IsSpace(c) {
				total++
			}
		}
	}
	return total, nil
}

func (z *ZeroWidthMarkup) Embed(doc Document, bits []bool) error {
	available, err := z.Capacity(doc)
	if err != nil {
		return err
	}
	if len(bits) > available {
		return capacityError(len(bits), available)
	}

	idx := 0
	for _, r := range doc.Regions() {
		if idx >= len(bits) {
			break
		}

		var b strings.Builder
		for _, c := range r.Text() {
			b.WriteRune(c)
			if idx < len(bits) && !unicode.IsSpace(c) {
				b.WriteRune(ZeroWidthSymbols.symbol(bits[idx]))
				idx++
			}
		}
		r.SetText(b.String())
	}

	return nil
}

// Extract scans the raw source, not just visible text: markers anywhere in
// the markup count.
func (z *ZeroWidthMarkup) Extract(doc Document) ([]bool, error) {
	return ExtractZeroWidth(doc.Raw())
}
