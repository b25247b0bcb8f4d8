package monitoring

// IndexTotals summarizes the search index for the admin surface.
type IndexTotals struct {
	Documents      int64 `json:"documents"`
	Repositories   int64 `json:"repositories"`
	WithEmbeddings int64 `json:"withEmbeddings"`
}

// LanguageCount is one language's share of the indexed documents.
type LanguageCount struct {
	Lang  string `json:"lang"`
	Count int64  `json:"count"`
}
