package searchindex

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/skillwb/skillwb/pkg/spec"
	"github.com/skillwb/skillwb/pkg/specid"
)

// Embedder is the pluggable embedding-generator seam: any
// implementation must produce L2-normalized output of a fixed
// dimension, deterministically, with no hidden state. HashEmbedder is
// the only backend the core ships; "local" and "api" backends are
// declared against this same interface (see Config.EmbeddingBackend
// in internal/config) so a future implementation drops in without
// changing Engine.
type Embedder interface {
	Embed(text string) []float64
}

// DefaultSemanticFloor is the minimum candidate-pool size below which
// Search scores every indexed vector instead of only the lexical
// candidate pool.
const DefaultSemanticFloor = 200

// DefaultLexicalMultiplier is k_lex's multiplier over k.
const DefaultLexicalMultiplier = 4

// Engine is the hybrid BM25 + embedding index: a lexical index and an
// in-memory vector store behind one reader-preferring lock, fused at
// query time. Through the adapter in coordinator_adapter.go it also
// serves as the 2PC coordinator's index writer, staging and promoting
// index segments as part of an atomic write.
type Engine struct {
	mu       sync.RWMutex
	lexical  *bm25Index
	docs     map[string]SearchDoc
	embedder Embedder

	fieldWeights  FieldWeights
	fusionWeights FusionWeights
	semanticFloor int

	staging sync.Map // id -> *stagedDoc, pending Promote/Discard
}

// NewEngine builds an Engine. A zero-value FusionWeights defaults to
// bm25-only; a zero semanticFloor uses DefaultSemanticFloor.
func NewEngine(embedder Embedder, fieldWeights FieldWeights, fusionWeights FusionWeights, semanticFloor int) *Engine {
	if semanticFloor <= 0 {
		semanticFloor = DefaultSemanticFloor
	}
	return &Engine{
		lexical:       newBM25Index(fieldWeights),
		docs:          map[string]SearchDoc{},
		embedder:      embedder,
		fieldWeights:  fieldWeights,
		fusionWeights: fusionWeights,
		semanticFloor: semanticFloor,
	}
}

// DocFromSpec builds the denormalized SearchDoc for a resolved spec at
// a layer, embedding its body text with e's embedder.
func (e *Engine) DocFromSpec(s *spec.SkillSpec, layer string, deprecated bool) SearchDoc {
	body := bodyText(s)
	return SearchDoc{
		ID:          s.Metadata.ID,
		Name:        s.Metadata.Name,
		Description: s.Metadata.Description,
		Tags:        append([]string(nil), s.Metadata.Tags...),
		Layer:       layer,
		Platforms:   append([]string(nil), s.Metadata.Platforms...),
		Deprecated:  deprecated,
		BodyText:    body,
		Vector:      e.embedder.Embed(s.Metadata.Name + " " + s.Metadata.Description + " " + body),
	}
}

func bodyText(s *spec.SkillSpec) string {
	var b strings.Builder
	for _, sec := range s.Sections {
		b.WriteString(sec.Title)
		b.WriteString(" ")
		for _, blk := range sec.Blocks {
			b.WriteString(blk.Content)
			b.WriteString(" ")
		}
	}
	return b.String()
}

// Upsert adds or replaces doc in the live index directly, bypassing
// staging — used by tests and by Rebuild.
func (e *Engine) Upsert(doc SearchDoc) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.docs[doc.ID] = doc
	e.lexical.Upsert(doc)
}

// RemoveDoc drops id from the live index directly.
func (e *Engine) RemoveDoc(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.docs, id)
	e.lexical.Remove(id)
}

// stagedDoc is the StagedSegment the coordinator promotes or discards.
type stagedDoc struct {
	engine *Engine
	doc    SearchDoc
}

func (sd *stagedDoc) Promote(ctx context.Context) error {
	sd.engine.Upsert(sd.doc)
	sd.engine.staging.Delete(sd.doc.ID)
	return nil
}

func (sd *stagedDoc) Discard(ctx context.Context) error {
	sd.engine.staging.Delete(sd.doc.ID)
	return nil
}

// PrepareSegment builds the doc for s at layer but does not touch the
// live index until Promote.
func (e *Engine) PrepareSegment(ctx context.Context, layer, id string, s *spec.SkillSpec) (*stagedDoc, error) {
	doc := e.DocFromSpec(s, layer, false)
	sd := &stagedDoc{engine: e, doc: doc}
	e.staging.Store(id, sd)
	return sd, nil
}

// Rebuild re-materializes id's doc directly into the live index, the
// recovery path's idempotent write.
func (e *Engine) Rebuild(ctx context.Context, layer, id string, deprecated bool, s *spec.SkillSpec) error {
	e.Upsert(e.DocFromSpec(s, layer, deprecated))
	return nil
}

// Remove drops id's doc from the live index.
func (e *Engine) Remove(ctx context.Context, id string) error {
	e.RemoveDoc(id)
	return nil
}

// SetDeprecated flags an already-indexed doc as deprecated or not,
// without requiring a full spec rebuild. The deprecated flag lives on
// the metadata row and is mirrored into the index by the caller after
// a metadata-only update.
func (e *Engine) SetDeprecated(id string, deprecated bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if d, ok := e.docs[id]; ok {
		d.Deprecated = deprecated
		e.docs[id] = d
		e.lexical.Upsert(d)
	}
}

// Len reports the number of live indexed documents.
func (e *Engine) Len() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.docs)
}

// Response is Search's result: ranked hits plus an optional structured
// warning (e.g. "index empty") that does not constitute a failure.
type Response struct {
	Results []SearchResult
	Warning string
}

// ParseQuery validates raw filter strings into a Query, returning a
// specid.ErrParse-wrapped error for any filter referencing an
// unrecognized layer or platform. Unknown tags are not an error; they
// simply match nothing.
func ParseQuery(text string, tags, layers, platforms []string, includeDeprecated bool, k int) (Query, error) {
	for _, l := range layers {
		if _, err := spec.ParseLayer(l); err != nil {
			return Query{}, fmt.Errorf("%w: unknown layer %q", specid.ErrParse, l)
		}
	}
	for _, p := range platforms {
		if !spec.RecognizedPlatforms[p] {
			return Query{}, fmt.Errorf("%w: unknown platform %q", specid.ErrParse, p)
		}
	}
	if k < 0 {
		return Query{}, fmt.Errorf("%w: negative k %d", specid.ErrParse, k)
	}
	return Query{
		Text:              text,
		Tags:              append([]string(nil), tags...),
		Layers:            append([]string(nil), layers...),
		Platforms:         append([]string(nil), platforms...),
		IncludeDeprecated: includeDeprecated,
		K:                 k,
	}, nil
}

// Search runs the full hybrid query: lexical ranking, semantic
// scoring over the candidate pool (or the whole index when that pool
// is smaller than the semantic floor), min-max normalization, weighted
// fusion, facet filtering, and deterministic tiebreaking.
func (e *Engine) Search(ctx context.Context, q Query) (Response, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if len(e.docs) == 0 {
		return Response{Warning: "search index is empty"}, nil
	}

	k := q.K
	if k <= 0 {
		k = len(e.docs)
	}
	kLex := k * DefaultLexicalMultiplier

	tokens := tokenize(q.Text)
	lexCandidates := e.lexical.TopK(tokens, kLex)

	candidateSet := make(map[string]bool, len(lexCandidates))
	for _, id := range lexCandidates {
		candidateSet[id] = true
	}
	if len(candidateSet) < e.semanticFloor {
		for id := range e.docs {
			candidateSet[id] = true
		}
	}

	queryVec := e.embedder.Embed(q.Text)

	lexScores := make(map[string]float64, len(candidateSet))
	semScores := make(map[string]float64, len(candidateSet))
	for id := range candidateSet {
		lexScores[id] = e.lexical.Score(tokens, id)
		semScores[id] = CosineSimilarity(queryVec, e.docs[id].Vector)
	}

	lexNorm := minMaxNormalize(lexScores)
	semNorm := minMaxNormalize(semScores)

	wBM25, wSem := e.fusionWeights.BM25, e.fusionWeights.Semantic
	if wBM25+wSem == 0 {
		wBM25, wSem = 1, 0
	}

	type hit struct {
		id    string
		final float64
		lex   float64
		sem   float64
	}
	hits := make([]hit, 0, len(candidateSet))
	for id := range candidateSet {
		doc := e.docs[id]
		if !passesFilters(doc, q) {
			continue
		}
		final := wBM25*lexNorm[id] + wSem*semNorm[id]
		hits = append(hits, hit{id: id, final: final, lex: lexScores[id], sem: semScores[id]})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].final != hits[j].final {
			return hits[i].final > hits[j].final
		}
		return hits[i].id < hits[j].id
	})
	if k < len(hits) {
		hits = hits[:k]
	}

	results := make([]SearchResult, len(hits))
	for i, h := range hits {
		results[i] = SearchResult{ID: h.id, Score: h.final, BM25: h.lex, Semantic: h.sem}
	}
	return Response{Results: results}, nil
}

func passesFilters(doc SearchDoc, q Query) bool {
	if !q.IncludeDeprecated && doc.Deprecated {
		return false
	}
	for _, t := range q.Tags {
		if !containsString(doc.Tags, t) {
			return false
		}
	}
	if len(q.Layers) > 0 && !containsString(q.Layers, doc.Layer) {
		return false
	}
	if len(q.Platforms) > 0 && !anyStringIn(doc.Platforms, q.Platforms) {
		return false
	}
	return true
}

func containsString(hay []string, needle string) bool {
	for _, h := range hay {
		if h == needle {
			return true
		}
	}
	return false
}

func anyStringIn(a, b []string) bool {
	for _, x := range a {
		if containsString(b, x) {
			return true
		}
	}
	return false
}

// minMaxNormalize scales scores into [0,1] independently over the
// given map; a degenerate (all-equal) set maps every member to 1 when
// the shared score is positive and to 0 otherwise.
func minMaxNormalize(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	min, max := minMax(scores)
	spread := max - min
	for id, s := range scores {
		if spread == 0 {
			if s > 0 {
				out[id] = 1
			} else {
				out[id] = 0
			}
			continue
		}
		out[id] = (s - min) / spread
	}
	return out
}

func minMax(scores map[string]float64) (min, max float64) {
	first := true
	for _, s := range scores {
		if first {
			min, max = s, s
			first = false
			continue
		}
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	return
}
