// Package normalize canonicalizes raw document text before chunking.
package normalize

import (
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"
)

var (
	lineBreaks       = strings.NewReplacer("\r\n", "\n", "\r", "\n")
	horizontalSpace  = regexp.MustCompile(`[\t\f\v\p{Zs}]+`)
	newlinePadding   = regexp.MustCompile(` *\n *`)
	paragraphBreaks  = regexp.MustCompile(`\n{3,}`)
	repeatedDanda    = regexp.MustCompile(`।(?: ?।)+`)
	spaceBeforePunct = regexp.MustCompile(` ([।॥,;!?])`)
	dandaWithoutGap  = regexp.MustCompile(`।([^\s।॥,;!?.:])`)
)

// Normalize applies NFC composition, collapses whitespace while keeping
// paragraph breaks, and repairs common OCR artifacts in Indic scripts.
// Normalize(Normalize(x)) == Normalize(x) for every input.
func Normalize(text string) string {
	if text == "" {
		return ""
	}
	out := norm.NFC.String(text)
	out = lineBreaks.Replace(out)
	out = horizontalSpace.ReplaceAllString(out, " ")
	out = newlinePadding.ReplaceAllString(out, "\n")
	out = paragraphBreaks.ReplaceAllString(out, "\n\n")

	// OCR repair
	out = repeatedDanda.ReplaceAllString(out, "।")
	out = spaceBeforePunct.ReplaceAllString(out, "$1")
	out = dandaWithoutGap.ReplaceAllString(out, "। $1")

	return strings.TrimSpace(out)
}
