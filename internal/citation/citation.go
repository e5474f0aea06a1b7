// Package citation projects retrieval results onto display-ready source references.
package citation

import (
	"strconv"
	"strings"

	"edurag/internal/domain"
)

type key struct {
	source  string
	page    int
	hasPage bool
	chapter string
}

// Format returns one citation per distinct (source, page, chapter) in the
// order the combinations first appear in r.
func Format(r domain.RetrievalResult) []domain.Citation {
	seen := make(map[key]struct{}, len(r.Items))
	out := make([]domain.Citation, 0, len(r.Items))
	for _, it := range r.Items {
		m := it.Chunk.Metadata
		k := key{source: m.Source, chapter: m.Chapter}
		if m.Page != nil {
			k.page, k.hasPage = *m.Page, true
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		c := domain.Citation{Source: m.Source, Chapter: m.Chapter}
		if m.Page != nil {
			p := *m.Page
			c.Page = &p
		}
		out = append(out, c)
	}
	return out
}

type labels struct{ page, chapter string }

var localized = map[domain.Language]labels{
	domain.Gujarati: {page: "પૃષ્ઠ", chapter: "પ્રકરણ"},
	domain.Hindi:    {page: "पृष्ठ", chapter: "अध्याय"},
	domain.English:  {page: "page", chapter: "chapter"},
}

// Render lists citations one per line as "[n] source, <page> p, <chapter>: c"
// with labels in lang. Unsupported languages use English labels.
func Render(citations []domain.Citation, lang domain.Language) string {
	l := localized[lang.Or(domain.English)]
	var b strings.Builder
	for i, c := range citations {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString("[" + strconv.Itoa(i+1) + "] " + c.Source)
		if c.Page != nil {
			b.WriteString(", " + l.page + " " + strconv.Itoa(*c.Page))
		}
		if c.Chapter != "" {
			b.WriteString(", " + l.chapter + ": " + c.Chapter)
		}
	}
	return b.String()
}
