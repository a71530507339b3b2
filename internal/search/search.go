package search

// SummaryRecord is the data indexed for a question summary.
type SummaryRecord struct {
	ID           string `json:"id"`
	CreatorID    string `json:"creatorId"`
	LanguageCode string `json:"languageCode"`
	Status       string `json:"status"`
	Excerpt      string `json:"excerpt"`
}

// Query describes a summary search request.
type Query struct {
	Text      string
	CreatorID string // empty = all creators
	Status    string // empty = all statuses
	Limit     int
	Offset    int
}

// Result is a single search hit returned to the caller.
type Result struct {
	ID           string `json:"id"`
	CreatorID    string `json:"creatorId"`
	LanguageCode string `json:"languageCode"`
	Status       string `json:"status"`
	Snippet      string `json:"snippet"`
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search over summaries.
type Searcher interface {
	Search(q Query) ([]Result, int, error)
	Healthy() bool
}
