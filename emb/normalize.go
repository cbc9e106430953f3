package emb

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// NormalizeText folds compatibility forms with NFKC, drops control runes other
// than newline and tab, and trims surrounding whitespace. Full-width ASCII and
// the ideographic space found in patent abstracts become their ASCII forms.
func NormalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range norm.NFKC.String(text) {
		if unicode.IsControl(r) && r != '\n' && r != '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return strings.TrimSpace(b.String())
}
