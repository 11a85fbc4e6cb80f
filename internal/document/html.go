package document

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/faanross/simulacra_doc/internal/carrier"
	"github.com/faanross/simulacra_doc/internal/spec"
	"golang.org/x/net/html"
	"golang.org/x/net/html/charset"
)

// HTMLDocument is a parsed page. Its regions are the visible text nodes.
type HTMLDocument struct {
	root    *html.Node
	raw     string
	regions []*textNode
}

type textNode struct {
	n *html.Node
}

func (t *textNode) Text() string        { return t.n.Data }
func (t *textNode) SetText(text string) { t.n.Data = text }

// ParseHTML parses data into a DOM. Input that is not valid UTF-8 is decoded
// using the declared or sniffed charset first.
func ParseHTML(data []byte) (*HTMLDocument, error) {
	src, err := decodeHTML(data)
	if err != nil {
		return nil, err
	}

	root, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	doc := &HTMLDocument{root: root, raw: src}
	doc.collect(root)
	return doc, nil
}

func decodeHTML(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}

	enc, name, _ := charset.DetermineEncoding(data, "text/html")

	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return "", fmt.Errorf("decode %s html: %w", name, err)
	}
	return string(out), nil
}

// collect walks the tree in document order, keeping text nodes whose parent
// is not a skipped container and whose trimmed content is non-empty.
func (d *HTMLDocument) collect(n *html.Node) {
	if n.Type == html.TextNode && qualifies(n) {
		d.regions = append(d.regions, &textNode{n: n})
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		d.collect(c)
	}
}

func qualifies(n *html.Node) bool {
	if strings.TrimSpace(n.Data) == "" {
		return false
	}
	p := n.Parent
	if p != nil && p.Type == html.ElementNode && spec.SkippedContainers[p.Data] {
		return false
	}
	return true
}

func (d *HTMLDocument) Format() string { return spec.FORMAT_HTML }

func (d *HTMLDocument) Regions() []carrier.Region {
	out := make([]carrier.Region, len(d.regions))
	for i, r := range d.regions {
		out[i] = r
	}
	return out
}

// Raw returns the page source as decoded at parse time. Edits made through
// regions are not reflected.
func (d *HTMLDocument) Raw() string { return d.raw }

// Bytes renders the current tree as UTF-8.
func (d *HTMLDocument) Bytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := html.Render(&buf, d.root); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}
