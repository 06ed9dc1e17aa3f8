/**
 * Structured legal document model
 *
 * A document is a tree of divisions (books, titles, chapters, sections) that
 * contain articles, which may themselves contain sub-articles. The model
 * returns the tree as JSON; Order values are never trusted from the model and
 * are stamped by InjectOrder.
 */

package document

// Document is the root of a structured legal text
type Document struct {
	Preamble   string      `json:"preamble,omitempty"`
	Divisions  []Division  `json:"divisions"`
	Articles   []Article   `json:"articles"`
	References []Reference `json:"references,omitempty"`
}

// Division is a structural section such as a chapter or title
type Division struct {
	Name      string     `json:"name"`
	Ordinal   string     `json:"ordinal"`
	Title     string     `json:"title"`
	Body      string     `json:"body"`
	Order     int        `json:"order"`
	Articles  []Article  `json:"articles"`
	Divisions []Division `json:"divisions"`
}

// Article is a numbered legal provision; nested articles hold sub-paragraphs
type Article struct {
	Ordinal  string    `json:"ordinal"`
	Body     string    `json:"body"`
	Order    int       `json:"order"`
	Articles []Article `json:"articles"`
}

// Reference is a trailing citation, annex or signature block
type Reference struct {
	Name  string `json:"name"`
	Body  string `json:"body"`
	Order int    `json:"order"`
}

// CountArticles returns the number of articles at every depth
func (d *Document) CountArticles() int {
	if d == nil {
		return 0
	}
	n := countArticles(d.Articles)
	for i := range d.Divisions {
		n += d.Divisions[i].countArticles()
	}
	return n
}

func (d *Division) countArticles() int {
	n := countArticles(d.Articles)
	for i := range d.Divisions {
		n += d.Divisions[i].countArticles()
	}
	return n
}

func countArticles(articles []Article) int {
	n := len(articles)
	for i := range articles {
		n += countArticles(articles[i].Articles)
	}
	return n
}
