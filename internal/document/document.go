// Package document adapts concrete file formats to the carrier.Document view:
// an ordered list of mutable text regions plus the raw source.
package document

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/spec"
	"golang.org/x/text/unicode/norm"
)

// Document is a parsed file that strategies can read and rewrite.
type Document interface {
	carrier.Document
	Format() string
	// Bytes serializes the document back into its format.
	Bytes() ([]byte, error)
}

// Options controls parsing.
type Options struct {
	// NormalizeUnicode converts flattened formats (docx, txt) to NFC on read.
	NormalizeUnicode bool
}

// DetectFormat maps a file extension onto a supported format.
func DetectFormat(path string) (string, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".docx":
		return spec.FORMAT_DOCX, nil
	case ".html", ".htm":
		return spec.FORMAT_HTML, nil
	case ".txt":
		return spec.FORMAT_TXT, nil
	default:
		return "", fmt.Errorf("%w: %q", spec.ErrUnsupportedFormat, filepath.Ext(path))
	}
}

// Family returns the carrier family a format belongs to.
func Family(format string) (string, error) {
	switch format {
	case spec.FORMAT_DOCX, spec.FORMAT_TXT:
		return carrier.FamilyText, nil
	case spec.FORMAT_HTML:
		return carrier.FamilyMarkup, nil
	default:
		return "", fmt.Errorf("%w: %q", spec.ErrUnsupportedFormat, format)
	}
}

// Extension returns the canonical file extension of format, with the dot.
func Extension(format string) string {
	return "." + format
}

// Parse builds a Document of the given format from raw file content.
func Parse(format string, data []byte, opts Options) (Document, error) {
	switch format {
	case spec.FORMAT_DOCX:
		return ParseDocx(data, opts)
	case spec.FORMAT_HTML:
		return ParseHTML(data)
	case spec.FORMAT_TXT:
		return ParseText(data, opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", spec.ErrUnsupportedFormat, format)
	}
}

// Load reads and parses path. An empty format is detected from the extension.
func Load(path, format string, opts Options) (Document, error) {
	if format == "" {
		var err error
		if format, err = DetectFormat(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	doc, err := Parse(format, data, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

// Save serializes doc and writes it to path.
func Save(doc Document, path string) error {
	data, err := doc.Bytes()
	if err != nil {
		return fmt.Errorf("serialize %s document: %w", doc.Format(), err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

func normalize(text string, enabled bool) string {
	if !enabled {
		return text
	}
	return norm.NFC.String(text)
}

// textRegion is a plain string region shared by the flattened formats.
type textRegion struct {
	text string
}

func (r *textRegion) Text() string        { return r.text }
func (r *textRegion) SetText(text string) { r.text = text }

func toRegions(rs []*textRegion) []carrier.Region {
	out := make([]carrier.Region, len(rs))
	for i, r := range rs {
		out[i] = r
	}
	return out
}
