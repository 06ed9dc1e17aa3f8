package quality

import (
	"regexp"
	"strings"

	"github.com/pmezard/go-difflib/difflib"

	"github.com/adverant/nexus/legalstruct-worker/internal/textnorm"
)

var (
	headerRe       = regexp.MustCompile(`(?im)^\s*art[ií]culo\s+\d+\s*[º°ª]?\s*(?:[.:\-–—]\s*)*`)
	sentenceEndRe  = regexp.MustCompile(`([.;:])\s+`)
	changedLinePfx = []string{"+", "-"}
)

// cleanForDiff turns text into one sentence per line with article headers
// removed, so that the diff reflects content rather than layout.
func cleanForDiff(text string) string {
	text = textnorm.Normalize(text)
	text = headerRe.ReplaceAllString(text, "")
	text = textnorm.CollapseSpaces(strings.ReplaceAll(text, "\n", " "))
	text = sentenceEndRe.ReplaceAllString(text, "$1\n")

	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// contentDiff returns a unified diff of the cleaned texts and the number of
// characters on changed lines.
func contentDiff(original, extracted string) (string, int, error) {
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(cleanForDiff(original)),
		B:        difflib.SplitLines(cleanForDiff(extracted)),
		FromFile: "original",
		ToFile:   "extracted",
		Context:  1,
	})
	if err != nil {
		return "", 0, err
	}
	return diff, changedChars(diff), nil
}

func changedChars(diff string) int {
	total := 0
	for _, line := range strings.Split(diff, "\n") {
		if strings.HasPrefix(line, "+++") || strings.HasPrefix(line, "---") {
			continue
		}
		for _, pfx := range changedLinePfx {
			if strings.HasPrefix(line, pfx) {
				total += len([]rune(strings.TrimSpace(line[1:])))
			}
		}
	}
	return total
}
