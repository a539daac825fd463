package models

// SearchSource records which retrieval path contributed a hit.
type SearchSource string

const (
	SourceKeyword  SearchSource = "keyword"
	SourceSemantic SearchSource = "semantic"
)

// SearchFilters restrict results by note metadata. Filters are applied to
// both retrieval paths after scoring, never as a pre-filter.
type SearchFilters struct {
	Category string   `json:"category,omitempty"`
	Tags     []string `json:"tags,omitempty"`
}

// SearchQuery is a hybrid search request.
type SearchQuery struct {
	Query   string        `json:"query"`
	Limit   int           `json:"limit,omitempty"`
	Filters SearchFilters `json:"filters,omitempty"`
	// KeywordWeight and SemanticWeight are independent merge weights.
	// When both are zero the defaults (0.6 / 0.4) apply.
	KeywordWeight  float64 `json:"keyword_weight,omitempty"`
	SemanticWeight float64 `json:"semantic_weight,omitempty"`
	// EF overrides the vector index search breadth for this query.
	EF int `json:"ef,omitempty"`
}

// KeywordHit is a single keyword-path result.
type KeywordHit struct {
	NoteID  string  `json:"note_id"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet,omitempty"`
}

// SemanticHit is a single semantic-path result on the 0-100 scale.
type SemanticHit struct {
	NoteID     string  `json:"note_id"`
	Score      float64 `json:"score"`
	Similarity float64 `json:"similarity"`
}

// SearchResult is one merged hybrid hit.
type SearchResult struct {
	Note          *Note          `json:"note"`
	Score         float64        `json:"score"`
	KeywordScore  float64        `json:"keyword_score,omitempty"`
	SemanticScore float64        `json:"semantic_score,omitempty"`
	Sources       []SearchSource `json:"sources"`
	Snippet       string         `json:"snippet,omitempty"`
	Rank          int            `json:"rank"`
}

// SearchResponse is the response for a hybrid search request.
type SearchResponse struct {
	Results   []*SearchResult `json:"results"`
	Total     int             `json:"total"`
	QueryTime int64           `json:"query_time_ms"`
	Query     string          `json:"query"`
}
