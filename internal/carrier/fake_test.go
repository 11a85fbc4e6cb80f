package carrier

import "strings"

type fakeRegion struct {
	text string
}

func (r *fakeRegion) Text() string        { return r.text }
func (r *fakeRegion) SetText(text string) { r.text = text }

// fakeDoc stands in for a parsed document. Raw renders the current regions
// wrapped in markup so markers inside tags can be simulated.
type fakeDoc struct {
	regions []*fakeRegion
	prefix  string
}

func newFakeDoc(texts ...string) *fakeDoc {
	d := &fakeDoc{}
	for _, t := range texts {
		d.regions = append(d.regions, &fakeRegion{text: t})
	}
	return d
}

func (d *fakeDoc) Regions() []Region {
	out := make([]Region, len(d.regions))
	for i, r := range d.regions {
		out[i] = r
	}
	return out
}

func (d *fakeDoc) Raw() string {
	var b strings.Builder
	b.WriteString("<html>" + d.prefix)
	for _, r := range d.regions {
		b.WriteString("<p>" + r.text + "</p>")
	}
	b.WriteString("</html>")
	return b.String()
}

func (d *fakeDoc) Flatten(text string) {
	d.regions = []*fakeRegion{{text: text}}
}

func (d *fakeDoc) texts() []string {
	out := make([]string, len(d.regions))
	for i, r := range d.regions {
		out[i] = r.text
	}
	return out
}

// markupOnly hides Flatten so text strategies must reject it.
type markupOnly struct {
	doc *fakeDoc
}

func (m markupOnly) Regions() []Region { return m.doc.Regions() }
func (m markupOnly) Raw() string       { return m.doc.Raw() }

func words(n int) string {
	w := make([]string, n)
	for i := range w {
		w[i] = "w"
	}
	return strings.Join(w, " ")
}

func pattern(n int) []bool {
	bits := make([]bool, n)
	for i := range bits {
		bits[i] = i%3 == 0 || i%7 == 0
	}
	return bits
}
