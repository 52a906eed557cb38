package searchindex

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEngineSearchRanksRelevantSkillFirst(t *testing.T) {
	embedder := NewHashEmbedder(64)
	eng := NewEngine(embedder, DefaultFieldWeights, FusionWeights{BM25: 0.5, Semantic: 0.5}, 1)

	eng.Upsert(SearchDoc{
		ID:          "git-commits",
		Name:        "git commits",
		Description: "a git commit workflow for tidy history",
		Layer:       "base",
		BodyText:    "stage files and write a git commit message describing the workflow",
		Vector:      embedder.Embed("git commits a git commit workflow for tidy history stage files and write a git commit message describing the workflow"),
	})
	eng.Upsert(SearchDoc{
		ID:          "quantum-photons",
		Name:        "quantum photons",
		Description: "entangled photon pair experiments",
		Layer:       "base",
		BodyText:    "quantum optics lab notes about photon polarization",
		Vector:      embedder.Embed("quantum photons entangled photon pair experiments quantum optics lab notes about photon polarization"),
	})

	q := Query{Text: "git commit workflow", K: 5}
	resp, err := eng.Search(context.Background(), q)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "git-commits", resp.Results[0].ID)
	require.Greater(t, resp.Results[0].Score, 0.0)
	for _, r := range resp.Results {
		require.NotEqual(t, "quantum-photons", r.ID)
	}
}

func TestEngineSearchEmptyIndexReturnsWarning(t *testing.T) {
	eng := NewEngine(NewHashEmbedder(32), DefaultFieldWeights, FusionWeights{}, 1)
	resp, err := eng.Search(context.Background(), Query{Text: "anything"})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
	require.NotEmpty(t, resp.Warning)
}

func TestEngineSearchFiltersUnknownTagReturnsEmptyNotError(t *testing.T) {
	eng := NewEngine(NewHashEmbedder(32), DefaultFieldWeights, FusionWeights{}, 1)
	eng.Upsert(SearchDoc{ID: "a", Name: "a", Tags: []string{"x"}, Layer: "base", Vector: []float64{1, 0}})

	resp, err := eng.Search(context.Background(), Query{Text: "a", Tags: []string{"does-not-exist"}})
	require.NoError(t, err)
	require.Empty(t, resp.Results)
}

func TestEngineDeterministicTiebreak(t *testing.T) {
	eng := NewEngine(NewHashEmbedder(32), DefaultFieldWeights, FusionWeights{BM25: 1}, 1)
	eng.Upsert(SearchDoc{ID: "b-skill", Name: "widget", BodyText: "widget widget", Layer: "base"})
	eng.Upsert(SearchDoc{ID: "a-skill", Name: "widget", BodyText: "widget widget", Layer: "base"})

	resp, err := eng.Search(context.Background(), Query{Text: "widget"})
	require.NoError(t, err)
	require.Len(t, resp.Results, 2)
	require.Equal(t, "a-skill", resp.Results[0].ID)
	require.Equal(t, "b-skill", resp.Results[1].ID)
}

func TestParseQueryRejectsUnknownLayer(t *testing.T) {
	_, err := ParseQuery("x", nil, []string{"nope"}, nil, false, 10)
	require.Error(t, err)
}

// TestSaveLoadRoundTrip checks that a persisted index reloads into
// identical ranked results.
func TestSaveLoadRoundTrip(t *testing.T) {
	embedder := NewHashEmbedder(64)
	eng := NewEngine(embedder, DefaultFieldWeights, FusionWeights{BM25: 0.5, Semantic: 0.5}, 1)
	eng.Upsert(SearchDoc{
		ID: "alpha", Name: "alpha skill", Description: "about widgets",
		Tags: []string{"x"}, Layer: "base", BodyText: "widget assembly notes",
		Vector: embedder.Embed("alpha skill about widgets widget assembly notes"),
	})
	eng.Upsert(SearchDoc{
		ID: "beta", Name: "beta skill", Description: "about gadgets",
		Layer: "project", BodyText: "gadget repair notes",
		Vector: embedder.Embed("beta skill about gadgets gadget repair notes"),
	})

	dir := t.TempDir()
	docsPath := filepath.Join(dir, "index.jsonl")
	vecPath := filepath.Join(dir, "embeddings.bin")
	require.NoError(t, eng.Save(docsPath, vecPath))

	loaded := NewEngine(embedder, DefaultFieldWeights, FusionWeights{BM25: 0.5, Semantic: 0.5}, 1)
	require.NoError(t, loaded.Load(docsPath, vecPath))
	require.Equal(t, 2, loaded.Len())

	q := Query{Text: "widget assembly", K: 2}
	want, err := eng.Search(context.Background(), q)
	require.NoError(t, err)
	got, err := loaded.Search(context.Background(), q)
	require.NoError(t, err)
	require.Equal(t, len(want.Results), len(got.Results))
	for i := range want.Results {
		require.Equal(t, want.Results[i].ID, got.Results[i].ID)
		require.InDelta(t, want.Results[i].Score, got.Results[i].Score, 1e-9)
	}
}
