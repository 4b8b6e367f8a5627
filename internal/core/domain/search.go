package domain

// HybridSearchQuery carries one search request after HTTP-level parsing.
// Zero values for the optional knobs mean "use defaults".
type HybridSearchQuery struct {
	TenantID       string
	Query          string
	Limit          int
	Offset         int
	SemanticK      int
	SemanticRecall int
	RRFK           int
}

// SearchResultItem is a single ranked hit in a search response.
type SearchResultItem struct {
	ID      string  `json:"id"`
	Title   string  `json:"title"`
	Snippet string  `json:"snippet"`
	Score   float64 `json:"score"`
	URL     string  `json:"url,omitempty"`
}

// SearchResponse is the paginated answer to a hybrid search call.
// Degraded is set when the semantic path was skipped or failed and the
// response is lexical-only.
type SearchResponse struct {
	Total    int                `json:"total"`
	Items    []SearchResultItem `json:"items"`
	Page     int                `json:"page"`
	PageSize int                `json:"page_size"`
	Degraded bool               `json:"degraded,omitempty"`
}

// LexicalResult is the raw output of the full-text search backend.
type LexicalResult struct {
	Total int
	Items []SearchResultItem
}

// Candidate is a nearest-neighbor chunk hit before reranking.
type Candidate struct {
	DocumentID string
	ChunkIndex int
	Content    string
	Distance   float64
	Similarity float64
}

// SemanticResult is a reranked candidate, ordered by rerank score.
type SemanticResult struct {
	Candidate
	RerankScore float64
}

// RerankedDocument pairs a candidate index with its rerank score.
type RerankedDocument struct {
	Index int
	Score float64
}

// DocumentMetadata backs the title/snippet backfill for documents that
// surfaced only through the semantic path.
type DocumentMetadata struct {
	ID      string
	Title   string
	Content string
}
