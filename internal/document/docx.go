package document

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strings"

	"github.com/fumiama/go-docx"

	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/spec"
)

const (
	wordNS       = docx.XMLNS_W
	mainPartName = "word/document.xml"
)

// DocxDocument holds the body paragraphs of a word-processing document.
// Serializing always produces a fresh package: formatting of the cover is
// not carried over.
type DocxDocument struct {
	paragraphs []*textRegion
	raw        string
}

var _ carrier.Flattener = (*DocxDocument)(nil)

// ParseDocx reads the body paragraphs of a .docx package.
func ParseDocx(data []byte, opts Options) (*DocxDocument, error) {
	parsed, err := docx.Parse(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open docx container: %w", err)
	}
	if parsed.Document.XMLName.Local == "" {
		return nil, fmt.Errorf("%w: %s missing from package", spec.ErrUnsupportedFormat, mainPartName)
	}

	raw, err := xml.Marshal(&parsed.Document)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", mainPartName, err)
	}

	doc := &DocxDocument{raw: string(raw)}
	for _, item := range parsed.Document.Body.Items {
		// tables and section properties are not body paragraphs
		p, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		doc.paragraphs = append(doc.paragraphs, &textRegion{text: normalize(paragraphText(p), opts.NormalizeUnicode)})
	}
	return doc, nil
}

// paragraphText joins the run text of p. Drawings, and the text boxes they
// carry, are left out.
func paragraphText(p *docx.Paragraph) string {
	var sb strings.Builder
	for _, child := range p.Children {
		switch c := child.(type) {
		case *docx.Run:
			writeRunText(&sb, c)
		case *docx.Hyperlink:
			writeRunText(&sb, &c.Run)
		}
	}
	return sb.String()
}

func writeRunText(sb *strings.Builder, r *docx.Run) {
	for _, child := range r.Children {
		switch c := child.(type) {
		case *docx.Text:
			sb.WriteString(c.Text)
		case *docx.Tab:
			sb.WriteByte('\t')
		case *docx.BarterRabbet:
			sb.WriteByte('\n')
		}
	}
}

// NewDocx builds a document from paragraph texts.
func NewDocx(paragraphs ...string) *DocxDocument {
	doc := &DocxDocument{}
	for _, p := range paragraphs {
		doc.paragraphs = append(doc.paragraphs, &textRegion{text: p})
	}
	return doc
}

func (d *DocxDocument) Format() string { return spec.FORMAT_DOCX }

func (d *DocxDocument) Regions() []carrier.Region { return toRegions(d.paragraphs) }

// Raw returns the main document part as parsed.
func (d *DocxDocument) Raw() string { return d.raw }

// Flatten replaces every paragraph with a single one holding text.
func (d *DocxDocument) Flatten(text string) {
	d.paragraphs = []*textRegion{{text: text}}
}

// Paragraphs returns the current paragraph texts.
func (d *DocxDocument) Paragraphs() []string {
	out := make([]string, len(d.paragraphs))
	for i, p := range d.paragraphs {
		out[i] = p.text
	}
	return out
}

func (d *DocxDocument) Bytes() ([]byte, error) {
	out := docx.New().WithDefaultTheme()
	for _, p := range d.paragraphs {
		para := out.AddParagraph()
		if p.text != "" {
			para.Children = append(para.Children, textRun(p.text))
		}
	}

	var buf bytes.Buffer
	if _, err := out.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write docx container: %w", err)
	}
	return buf.Bytes(), nil
}

// textRun turns tabs and newlines into their own run elements so they
// survive a re-read. Text segments keep their surrounding whitespace.
func textRun(text string) *docx.Run {
	run := &docx.Run{}
	for i, line := range strings.Split(text, "\n") {
		if i > 0 {
			run.Children = append(run.Children, &docx.BarterRabbet{})
		}
		for j, seg := range strings.Split(line, "\t") {
			if j > 0 {
				run.Children = append(run.Children, &docx.Tab{})
			}
			if seg != "" {
				run.Children = append(run.Children, &docx.Text{Text: seg, XMLSpace: "preserve"})
			}
		}
	}
	return run
}
