package searchindex

import (
	"math"
	"strings"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75
)

// bm25Field is one weighted, tokenized field of a document.
type bm25Field struct {
	tokens []string
	weight float64
}

func fieldsOf(d SearchDoc, w FieldWeights) []bm25Field {
	return []bm25Field{
		{tokens: tokenize(d.Name), weight: w.Name},
		{tokens: tokenize(strings.Join(d.Tags, " ")), weight: w.Tags},
		{tokens: tokenize(d.Description), weight: w.Description},
		{tokens: tokenize(d.BodyText), weight: w.Body},
	}
}

// bm25Index scores documents against a query using BM25 over the
// concatenation of weighted fields, field weights applied as term
// frequency multipliers so name and tag matches outrank description
// and body matches.
type bm25Index struct {
	weights  FieldWeights
	docs     map[string]SearchDoc
	docLen   map[string]float64
	avgDocLn float64
	df       map[string]int // document frequency per term
	n        int
}

func newBM25Index(weights FieldWeights) *bm25Index {
	return &bm25Index{
		weights: weights,
		docs:    map[string]SearchDoc{},
		docLen:  map[string]float64{},
		df:      map[string]int{},
	}
}

func (idx *bm25Index) Upsert(d SearchDoc) {
	if _, exists := idx.docs[d.ID]; exists {
		idx.Remove(d.ID)
	}
	idx.docs[d.ID] = d

	terms := weightedTermFreq(d, idx.weights)
	var length float64
	seen := map[string]bool{}
	for term, freq := range terms {
		length += freq
		if !seen[term] {
			idx.df[term]++
			seen[term] = true
		}
	}
	idx.docLen[d.ID] = length
	idx.n++
	idx.recomputeAvgLen()
}

func (idx *bm25Index) Remove(id string) {
	if _, ok := idx.docs[id]; !ok {
		return
	}
	terms := weightedTermFreq(idx.docs[id], idx.weights)
	for term := range terms {
		if idx.df[term] > 0 {
			idx.df[term]--
		}
	}
	delete(idx.docs, id)
	delete(idx.docLen, id)
	idx.n--
	idx.recomputeAvgLen()
}

func (idx *bm25Index) recomputeAvgLen() {
	if idx.n == 0 {
		idx.avgDocLn = 0
		return
	}
	var total float64
	for _, l := range idx.docLen {
		total += l
	}
	idx.avgDocLn = total / float64(idx.n)
}

// weightedTermFreq returns, for each token, a weighted occurrence
// count summed across fields (a name-field hit counts more than a
// body-field hit).
func weightedTermFreq(d SearchDoc, w FieldWeights) map[string]float64 {
	freq := map[string]float64{}
	for _, f := range fieldsOf(d, w) {
		for _, tok := range f.tokens {
			freq[tok] += f.weight
		}
	}
	return freq
}

// Score returns the BM25 score of doc against the query's tokens,
// or 0 if the doc is not indexed.
func (idx *bm25Index) Score(queryTokens []string, id string) float64 {
	d, ok := idx.docs[id]
	if !ok {
		return 0
	}
	terms := weightedTermFreq(d, idx.weights)
	length := idx.docLen[id]
	avgLen := idx.avgDocLn
	if avgLen == 0 {
		avgLen = 1
	}

	var score float64
	for _, qt := range queryTokens {
		tf := terms[qt]
		if tf == 0 {
			continue
		}
		df := idx.df[qt]
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(idx.n)-float64(df)+0.5)/(float64(df)+0.5))
		num := tf * (bm25K1 + 1)
		den := tf + bm25K1*(1-bm25B+bm25B*length/avgLen)
		score += idf * num / den
	}
	return score
}

// TopK returns up to k candidate ids ranked by raw BM25 score
// descending, ties broken by id ascending.
func (idx *bm25Index) TopK(queryTokens []string, k int) []string {
	type scored struct {
		id    string
		score float64
	}
	scoredDocs := make([]scored, 0, len(idx.docs))
	for id := range idx.docs {
		s := idx.Score(queryTokens, id)
		if s > 0 {
			scoredDocs = append(scoredDocs, scored{id, s})
		}
	}
	sortByScoreThenID(scoredDocs, func(i int) (float64, string) { return scoredDocs[i].score, scoredDocs[i].id })
	if k > 0 && k < len(scoredDocs) {
		scoredDocs = scoredDocs[:k]
	}
	out := make([]string, len(scoredDocs))
	for i, sd := range scoredDocs {
		out[i] = sd.id
	}
	return out
}
