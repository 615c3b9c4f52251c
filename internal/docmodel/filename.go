package docmodel

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DeriveFilename maps a title to an output filename: diacritics are folded,
// the result is lower-cased, every run of characters outside [a-z0-9] becomes
// a single hyphen and leading or trailing hyphens are trimmed. Titles with no
// retainable characters fall back to "<id>.html".
func DeriveFilename(id, title string) string {
	folded := foldTitle(title)

	var b strings.Builder
	b.Grow(len(folded) + len(".html"))
	pendingSep := false
	for _, r := range folded {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	if b.Len() == 0 {
		return id + ".html"
	}
	b.WriteString(".html")
	return b.String()
}

func foldTitle(title string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	stripped, _, err := transform.String(t, title)
	if err != nil {
		stripped = title
	}
	return cases.Lower(language.Und).String(stripped)
}
