package document

import (
	"archive/zip"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildDocx(t *testing.T, body string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(mainPartName)
	require.NoError(t, err)
	_, err = w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?>` +
		`<w:document xmlns:w="` + wordNS + `"><w:body>` + body + `</w:body></w:document>`))
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func TestParseDocxBodyParagraphs(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>Hello </w:t></w:r><w:r><w:t>world</w:t></w:r></w:p>`+
			`<w:p/>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>in a table</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`+
			`<w:p><w:r><w:t>a</w:t><w:tab/><w:t>b</w:t><w:br/><w:t>c</w:t></w:r></w:p>`+
			`<w:p><w:r><w:t>boxed</w:t><w:pict><w:txbxContent><w:p><w:r><w:t>hidden</w:t></w:r></w:p></w:txbxContent></w:pict></w:r></w:p>`)

	doc, err := ParseDocx(data, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Hello world", "", "a\tb\nc", "boxed"}, doc.Paragraphs())
}

func TestParseDocxHyperlinkText(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t xml:space="preserve">see </w:t></w:r>`+
			`<w:hyperlink w:anchor="top"><w:r><w:t>here</w:t></w:r></w:hyperlink></w:p>`)

	doc, err := ParseDocx(data, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"see here"}, doc.Paragraphs())
}

func TestParseDocxRejectsOtherContainers(t *testing.T) {
	_, err := ParseDocx([]byte("not a zip"), Options{})
	assert.Error(t, err)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	_, err = zw.Create("something/else.xml")
	require.NoError(t, err)
	require.NoError(t, zw.Close())

	_, err = ParseDocx(buf.Bytes(), Options{})
	assert.Error(t, err)
}

func TestDocxBytesRoundTrip(t *testing.T) {
	paragraphs := []string{
		"Plain <escaped> & text",
		"",
		"tab\there",
		"  leading and trailing  ",
		"narrow\u202fspace and zero\u200bwidth\u200c",
	}

	out, err := NewDocx(paragraphs...).Bytes()
	require.NoError(t, err)

	doc, err := ParseDocx(out, Options{})
	require.NoError(t, err)
	assert.Equal(t, paragraphs, doc.Paragraphs())
	assert.Contains(t, doc.Raw(), "w:body")
}

func TestDocxBytesWritesFullPackage(t *testing.T) {
	out, err := NewDocx("one", "two").Bytes()
	require.NoError(t, err)

	zr, err := zip.NewReader(bytes.NewReader(out), int64(len(out)))
	require.NoError(t, err)

	var names []string
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	assert.Contains(t, names, "[Content_Types].xml")
	assert.Contains(t, names, "word/styles.xml")
	assert.Contains(t, names, mainPartName)
}

func TestDocxRawKeepsZeroWidthFromTables(t *testing.T) {
	data := buildDocx(t,
		`<w:p><w:r><w:t>body</w:t></w:r></w:p>`+
			`<w:tbl><w:tr><w:tc><w:p><w:r><w:t>cell`+"\u200b\u200c"+`</w:t></w:r></w:p></w:tc></w:tr></w:tbl>`)

	doc, err := ParseDocx(data, Options{})
	require.NoError(t, err)
	assert.Equal(t, []string{"body"}, doc.Paragraphs())
	assert.Contains(t, doc.Raw(), "\u200b\u200c")
}

func TestDocxFlatten(t *testing.T) {
	doc := NewDocx("a", "b", "c")
	doc.Flatten("a b c")
	assert.Equal(t, []string{"a b c"}, doc.Paragraphs())
	require.Len(t, doc.Regions(), 1)

	doc.Regions()[0].SetText("changed")
	assert.Equal(t, []string{"changed"}, doc.Paragraphs())
}
