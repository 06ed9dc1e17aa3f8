package document

import "strings"

// ExtractText linearizes the content of a document in reading order: the
// preamble, the root articles, each division (title, body, articles, then
// subdivisions) and finally the references. Names, ordinals and order
// values are labels, not content, and are left out so renumbering never reads
// as drift. Each non-empty piece lands on its own line.
func ExtractText(doc *Document) string {
	if doc == nil {
		return ""
	}
	var parts []string
	parts = appendText(parts, doc.Preamble)
	parts = appendArticles(parts, doc.Articles)
	parts = appendDivisions(parts, doc.Divisions)
	for _, ref := range doc.References {
		parts = appendText(parts, ref.Body)
	}
	return strings.Join(parts, "\n")
}

func appendDivisions(parts []string, divisions []Division) []string {
	for i := range divisions {
		d := &divisions[i]
		parts = appendText(parts, d.Title)
		parts = appendText(parts, d.Body)
		parts = appendArticles(parts, d.Articles)
		parts = appendDivisions(parts, d.Divisions)
	}
	return parts
}

func appendArticles(parts []string, articles []Article) []string {
	for i := range articles {
		parts = appendText(parts, articles[i].Body)
		parts = appendArticles(parts, articles[i].Articles)
	}
	return parts
}

func appendText(parts []string, s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return parts
	}
	return append(parts, s)
}
