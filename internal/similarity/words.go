package similarity

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/adverant/nexus/legalstruct-worker/internal/textnorm"
)

var (
	articleMarkerRe = regexp.MustCompile(`^(?:art[ií]culos?|arts?)$`)
	numberRe        = regexp.MustCompile(`^\d+(?:[.,/\-]\d+)*[º°ª]?$`)
)

// ContentWords reduces text to the ordered list of words that carry legal
// content. Text is NFC-normalized and lowercased; surrounding punctuation is
// stripped; article markers ("artículo", "art."), standalone numbers,
// punctuation-only tokens, dashes and single characters are dropped.
func ContentWords(text string) []string {
	fields := strings.Fields(strings.ToLower(textnorm.Normalize(text)))
	words := make([]string, 0, len(fields))
	for _, tok := range fields {
		tok = strings.TrimLeftFunc(tok, isOpening)
		tok = strings.TrimRightFunc(tok, isTrailingPunct)
		if isStructuralToken(tok) {
			continue
		}
		words = append(words, tok)
	}
	return words
}

func isStructuralToken(tok string) bool {
	if len([]rune(tok)) < 2 {
		return true
	}
	return articleMarkerRe.MatchString(tok) || numberRe.MatchString(tok)
}

func isTrailingPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}

func isOpening(r rune) bool {
	switch r {
	case '(', '[', '{', '"', '\'', '«', '“', '‘', '¿', '¡', '—', '–', '-':
		return true
	}
	return false
}

func wordSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
