package carrier

import (
	"strings"
	"unicode"

	"github.com/faanross/simulacra_doc/internal/spec"
)

// SpaceText encodes one bit per inter-word gap of the flattened document:
// an ordinary space for 0, a narrow no-break space for 1.
type SpaceText struct{}

func NewSpaceText() *SpaceText { return &SpaceText{} }

func (s *SpaceText) Name() string { return spec.METHOD_SPACE + "/" + FamilyText }

// flatten joins the non-blank regions with single spaces.
func (s *SpaceText) flatten(doc Document) string {
	return joinRegions(doc, " ", true)
}

func (s *SpaceText) Capacity(doc Document) (int, error) {
	cover := s.flatten(doc)
	if cover == "" {
		return 0, spec.ErrEmptyCarrierSource
	}
	return strings.Count(cover, " "), nil
}

func (s *SpaceText) Embed(doc Document, bits []bool) error {
	f, err := flattener(doc)
	if err != nil {
		return err
	}

	cover := s.flatten(doc)
	if cover == "" {
		return spec.ErrEmptyCarrierSource
	}

	stego, err := EmbedSpaces(cover, bits)
	if err != nil {
		return err
	}

	f.Flatten(stego)
	return nil
}

func (s *SpaceText) Extract(doc Document) ([]bool, error) {
	return ExtractSpaces(s.flatten(doc)), nil
}

// EmbedSpaces splits cover on ordinary spaces and rejoins the words, writing
// the symbol for bit i into gap i. Gaps past the last bit get an ordinary space.
func EmbedSpaces(cover string, bits []bool) (string, error) {
	words := strings.Split(cover, " ")
	gaps := len(words) - 1
	if len(bits) > gaps {
		return "", capacityError(len(bits), gaps)
	}

	var b strings.Builder
	b.Grow(len(cover) + len(bits)*2)

	for i, w := range words {
		b.WriteString(w)
		if i == gaps {
			break
		}
		if i < len(bits) {
			b.WriteRune(SpaceSymbols.symbol(bits[i]))
		} else {
			b.WriteRune(spec.SPACE_0)
		}
	}

	return b.String(), nil
}

// ExtractSpaces returns one bit per space symbol in text.
func ExtractSpaces(text string) []bool {
	return SpaceSymbols.Collect(nil, text)
}

// SpaceMarkup applies the gap rule inside each qualifying text region,
// consuming bits from one running index across regions.
type SpaceMarkup struct{}

func NewSpaceMarkup() *SpaceMarkup { return &SpaceMarkup{} }

func (s *SpaceMarkup) Name() string { return spec.METHOD_SPACE + "/" + FamilyMarkup }

func (s *SpaceMarkup) Capacity(doc Document) (int, error) {
	regions := doc.Regions()
	if len(regions) == 0 {
		return 0, spec.ErrEmptyCarrierSource
	}

	total := 0
	for _, r := range regions {
		if words := strings.Fields(r.Text()); len(words) >= 2 {
			total += len(words) - 1
		}
	}
	return total, nil
}

func (s *SpaceMarkup) Embed(doc Document, bits []bool) error {
	available, err := s.Capacity(doc)
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

		// Single-word regions have no gap and are left untouched
		words := strings.Fields(r.Text())
		if len(words) < 2 {
			continue
		}

		text := r.Text()
		lead := text[:len(text)-len(strings.TrimLeftFunc(text, unicode.IsSpace))]
		trail := text[len(strings.TrimRightFunc(text, unicode.IsSpace)):]

		var b strings.Builder
		b.WriteString(lead)
		for i, w := range words {
			b.WriteString(w)
			if i == len(words)-1 {
				break
			}
			if idx < len(bits) {
				b.WriteRune(SpaceSymbols.symbol(bits[idx]))
				idx++
			} else {
				b.WriteRune(spec.SPACE_0)
			}
		}
		b.WriteString(trail)
		r.SetText(b.String())
	}

	return nil
}

// Extract reads symbols from the trimmed text of each region, so leading and
// trailing whitespace of untouched regions never contributes bits.
func (s *SpaceMarkup) Extract(doc Document) ([]bool, error) {
	var bits []bool
	for _, r := range doc.Regions() {
		bits = SpaceSymbols.Collect(bits, strings.TrimSpace(r.Text()))
	}
	return bits, nil
}
