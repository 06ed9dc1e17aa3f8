/**
 * Text normalization for OCR-derived legal text
 *
 * Normalize puts text into NFC and drops control characters so that the same
 * sentence compares equal regardless of how the OCR engine encoded accents.
 * Purify additionally repairs common OCR layout artifacts before the text is
 * sent to a model.
 */

package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	hyphenBreakRe = regexp.MustCompile(`(\p{L})[-\x{00AD}]\n[ \t]*(\p{Ll})`)
	pageLineRe    = regexp.MustCompile(`(?i)^(?:-\s*\d+\s*-|p[áa]g(?:ina)?\.?\s*\d+(?:\s*(?:de|/)\s*\d+)?|\d+\s*(?:de|/)\s*\d+)$`)
	ruleLineRe    = regexp.MustCompile(`^[-_=*·.\s]{3,}$`)
	spaceRunRe    = regexp.MustCompile(`[ \t\x{00A0}]+`)
	blankRunRe    = regexp.MustCompile(`\n{3,}`)
)

var dropControls = runes.Remove(runes.Predicate(func(r rune) bool {
	return unicode.IsControl(r) && r != '\n' && r != '\t'
}))

// Normalize converts text to NFC, unifies line endings and removes control
// characters other than newline and tab.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\f", "\n")

	t := transform.Chain(norm.NFC, dropControls)
	out, _, err := transform.String(t, s)
	if err != nil {
		return norm.NFC.String(s)
	}
	return out
}

// CollapseSpaces replaces every run of whitespace with a single space.
func CollapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Purify repairs OCR layout noise: words split by an end-of-line hyphen are
// rejoined, page counters and ruler lines are removed, and whitespace is
// collapsed without merging paragraphs.
func Purify(s string) string {
	s = Normalize(s)
	s = hyphenBreakRe.ReplaceAllString(s, "$1$2")

	lines := strings.Split(s, "\n")
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(spaceRunRe.ReplaceAllString(line, " "))
		if line != "" && (pageLineRe.MatchString(line) || ruleLineRe.MatchString(line)) {
			continue
		}
		kept = append(kept, line)
	}

	s = strings.Join(kept, "\n")
	s = blankRunRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
