package document

// InjectOrder stamps every node with its 1-based position among its siblings,
// at every depth. Any order the model emitted is overwritten.
func InjectOrder(doc *Document) {
	if doc == nil {
		return
	}
	orderDivisions(doc.Divisions)
	orderArticles(doc.Articles)
	for i := range doc.References {
		doc.References[i].Order = i + 1
	}
}

func orderDivisions(divisions []Division) {
	for i := range divisions {
		divisions[i].Order = i + 1
		orderArticles(divisions[i].Articles)
		orderDivisions(divisions[i].Divisions)
	}
}

func orderArticles(articles []Article) {
	for i := range articles {
		articles[i].Order = i + 1
		orderArticles(articles[i].Articles)
	}
}
