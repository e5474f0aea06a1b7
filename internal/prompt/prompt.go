// Package prompt assembles the grounded prompt handed to a generation model.
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"text/template"
	"unicode/utf8"

	"edurag/internal/domain"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

var notAvailable = map[domain.Language]string{
	domain.English:  "The answer is not available in the provided content.",
	domain.Gujarati: "આ માહિતી આપેલ સામગ્રીમાં ઉપલબ્ધ નથી.",
	domain.Hindi:    "यह जानकारी दी गई सामग्री में उपलब्ध नहीं है।",
}

// NotAvailable returns the localized sentence a generator must answer with
// when the material does not cover the question.
func NotAvailable(lang domain.Language) string {
	return notAvailable[lang.Or(domain.English)]
}

type taggedChunk struct {
	N    int
	Text string
}

type promptData struct {
	Question     string
	Chunks       []taggedChunk
	NotAvailable string
}

// Composer renders retrieval results into prompt text.
type Composer struct {
	defaultLang     domain.Language
	maxContextRunes int
}

// NewComposer returns a Composer. Unsupported languages fall back to
// defaultLang. A positive maxContextRunes limits the context section; chunks
// past the limit are dropped whole, but the best chunk is always kept.
func NewComposer(defaultLang domain.Language, maxContextRunes int) *Composer {
	return &Composer{
		defaultLang:     defaultLang.Or(domain.Gujarati),
		maxContextRunes: maxContextRunes,
	}
}

// Compose builds the prompt for question. An empty result selects the
// no-context variant, which tells the generator to state that the answer is
// unavailable.
func (c *Composer) Compose(question string, result domain.RetrievalResult, lang domain.Language) (string, error) {
	lang = lang.Or(c.defaultLang)
	data := promptData{
		Question:     strings.TrimSpace(question),
		Chunks:       c.budget(result.Items),
		NotAvailable: NotAvailable(lang),
	}
	name := string(lang) + ".grounded"
	if len(data.Chunks) == 0 {
		name = string(lang) + ".ungrounded"
	}
	var b strings.Builder
	if err := templates.ExecuteTemplate(&b, name, data); err != nil {
		return "", fmt.Errorf("render %s prompt: %w", name, err)
	}
	return b.String(), nil
}

func (c *Composer) budget(items []domain.ScoredChunk) []taggedChunk {
	out := make([]taggedChunk, 0, len(items))
	used := 0
	for i, it := range items {
		n := utf8.RuneCountInString(it.Chunk.Text)
		if c.maxContextRunes > 0 && i > 0 && used+n > c.maxContextRunes {
			break
		}
		used += n
		out = append(out, taggedChunk{N: i + 1, Text: it.Chunk.Text})
	}
	return out
}

// Kept reports how many of result's chunks Compose places in the context.
func (c *Composer) Kept(result domain.RetrievalResult) int {
	return len(c.budget(result.Items))
}
