// Package searchindex implements hybrid BM25 + deterministic hash
// embedding retrieval: a lexical index over weighted fields fused
// with cosine similarity on in-memory vectors, filtered by
// tag/layer/platform facets.
package searchindex

// SearchDoc is the indexed representation of one skill, denormalized
// for lexical scoring and carrying its dense vector.
type SearchDoc struct {
	ID          string
	Name        string
	Description string
	Tags        []string
	Layer       string
	Platforms   []string
	Deprecated  bool
	BodyText    string
	Vector      []float64
}

// Query is a parsed search request.
type Query struct {
	Text              string
	Tags              []string // AND
	Layers            []string // OR
	Platforms         []string // OR
	IncludeDeprecated bool
	K                 int
}

// SearchResult is one ranked hit.
type SearchResult struct {
	ID       string
	Score    float64
	BM25     float64
	Semantic float64
}

// FieldWeights are the per-field BM25 weights, ordered
// name > tags > description > body.
type FieldWeights struct {
	Name        float64
	Tags        float64
	Description float64
	Body        float64
}

// DefaultFieldWeights biases ranking toward name and tag matches.
var DefaultFieldWeights = FieldWeights{Name: 4.0, Tags: 2.0, Description: 1.5, Body: 1.0}

// FusionWeights controls the BM25/semantic blend in the final score.
type FusionWeights struct {
	BM25     float64
	Semantic float64
}
