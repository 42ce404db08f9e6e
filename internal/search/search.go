package search

import "context"

// ResultType identifies the kind of dossier entity in a search result.
type ResultType string

const (
	ResultClaim    ResultType = "claim"
	ResultQuestion ResultType = "open_question"
	ResultSource   ResultType = "source"
)

// Result is a single search hit returned to the caller.
type Result struct {
	Type      ResultType `json:"type"`
	ID        string     `json:"id"`
	DossierID string     `json:"dossierId"`
	Title     string     `json:"title"`
	Snippet   string     `json:"snippet"`
	Status    string     `json:"status,omitempty"`
}

// Query describes a search request.
type Query struct {
	Text            string
	FilterType      ResultType // empty = all types
	FilterDossierID string
	Limit           int
	Offset          int
}

// Response is the envelope returned by the search endpoint.
type Response struct {
	Results []Result `json:"results"`
	Total   int      `json:"total"`
	Query   string   `json:"query"`
}

// Searcher can execute a full-text search.
type Searcher interface {
	Search(ctx context.Context, q Query) ([]Result, int, error)
	Healthy() bool
}

// Indexer can push dossier entities into a search index.
type Indexer interface {
	IndexClaims(claims []ClaimRecord) error
	IndexQuestions(questions []QuestionRecord) error
	IndexSources(sources []SourceRecord) error
}

// ClaimRecord is the data we index for a claim. ID is the claim's business
// key, which is unique only within its dossier, so the document key is
// derived from both.
type ClaimRecord struct {
	Key       string `json:"key"`
	ID        string `json:"id"`
	DossierID string `json:"dossierId"`
	Text      string `json:"text"`
	Kind      string `json:"kind"`
	Status    string `json:"status"`
}

type QuestionRecord struct {
	Key            string `json:"key"`
	ID             string `json:"id"`
	DossierID      string `json:"dossierId"`
	Text           string `json:"text"`
	Status         string `json:"status"`
	Responsibility string `json:"responsibility"`
}

type SourceRecord struct {
	Key       string `json:"key"`
	ID        string `json:"id"`
	DossierID string `json:"dossierId"`
	URL       string `json:"url"`
	Title     string `json:"title"`
	Publisher string `json:"publisher"`
	Snippet   string `json:"snippet"`
	Type      string `json:"type"`
}
