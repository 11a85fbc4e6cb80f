package document

import (
	"strings"

	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/spec"
)

// TextDocument is a plain text file split into lines.
type TextDocument struct {
	lines []*textRegion
	raw   string
}

var _ carrier.Flattener = (*TextDocument)(nil)

func ParseText(data []byte, opts Options) *TextDocument {
	raw := strings.ReplaceAll(string(data), "\r\n", "\n")
	doc := &TextDocument{raw: raw}
	for _, line := range strings.Split(strings.TrimSuffix(raw, "\n"), "\n") {
		doc.lines = append(doc.lines, &textRegion{text: normalize(line, opts.NormalizeUnicode)})
	}
	return doc
}

func (d *TextDocument) Format() string            { return spec.FORMAT_TXT }
func (d *TextDocument) Regions() []carrier.Region { return toRegions(d.lines) }
func (d *TextDocument) Raw() string               { return d.raw }

func (d *TextDocument) Flatten(text string) {
	d.lines = []*textRegion{{text: text}}
}

func (d *TextDocument) Bytes() ([]byte, error) {
	parts := make([]string, len(d.lines))
	for i, l := range d.lines {
		parts[i] = l.text
	}
	return []byte(strings.Join(parts, "\n") + "\n"), nil
}
