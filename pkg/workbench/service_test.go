package workbench

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillwb/skillwb/pkg/archive"
	"github.com/skillwb/skillwb/pkg/metadata"
	"github.com/skillwb/skillwb/pkg/packer"
	"github.com/skillwb/skillwb/pkg/safety"
	"github.com/skillwb/skillwb/pkg/searchindex"
	"github.com/skillwb/skillwb/pkg/specid"
)

type stubClassifier struct {
	resp *safety.ClassifierResponse
	err  error
}

func (s stubClassifier) Classify(ctx context.Context, command string, packs []string) (*safety.ClassifierResponse, error) {
	return s.resp, s.err
}

func newTestService(t *testing.T, classifier safety.Classifier) *Service {
	t.Helper()
	dir := t.TempDir()
	a, err := archive.Open(dir)
	require.NoError(t, err)
	m, err := metadata.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	idx := searchindex.NewEngine(
		searchindex.NewHashEmbedder(searchindex.DefaultDims),
		searchindex.DefaultFieldWeights,
		searchindex.FusionWeights{BM25: 0.5, Semantic: 0.5},
		searchindex.DefaultSemanticFloor,
	)
	gate := safety.NewGate(classifier, safety.NewMemoryAuditLog(), true, "SKILLWB_APPROVE", nil, "v1")
	return New(a, m, idx, gate, nil)
}

const gitCommitsSkill = `---
id: git-commits
name: "Git Commits"
version: 1.0.0
description: a git commit workflow skill
tags: [git, workflow]
---
# Git Commits

## Overview

Follow a git commit workflow when committing changes.

! Never force-push a shared branch.

$ git commit -m "message"
`

const quantumPhotonsSkill = `---
id: quantum-photons
name: "Quantum Photons"
version: 1.0.0
description: entangled photon pair generation
tags: [physics]
---
# Quantum Photons

## Overview

Photon pairs are generated via spontaneous parametric down-conversion.
`

// TestServiceSaveAndSearch checks that a query matching one skill's
// name/description ranks it above an unrelated skill.
func TestServiceSaveAndSearch(t *testing.T) {
	svc := newTestService(t, stubClassifier{resp: &safety.ClassifierResponse{Decision: "allow"}})
	ctx := context.Background()

	_, err := svc.Save(ctx, gitCommitsSkill, "base")
	require.NoError(t, err)
	_, err = svc.Save(ctx, quantumPhotonsSkill, "base")
	require.NoError(t, err)

	q, err := searchindex.ParseQuery("git commit workflow", nil, nil, nil, false, 10)
	require.NoError(t, err)

	resp, err := svc.Search(ctx, q)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)
	require.Equal(t, "git-commits", resp.Results[0].ID)
	require.Greater(t, resp.Results[0].Score, 0.0)
	for _, r := range resp.Results {
		require.NotEqual(t, "quantum-photons", r.ID, "unrelated skill must not outrank the match")
	}
}

func TestServiceResolveUnknownSkill(t *testing.T) {
	svc := newTestService(t, stubClassifier{resp: &safety.ClassifierResponse{Decision: "allow"}})
	_, _, err := svc.Resolve(context.Background(), "missing-skill", nil)
	require.ErrorIs(t, err, specid.ErrNotFound)
}

func TestServicePack(t *testing.T) {
	svc := newTestService(t, stubClassifier{resp: &safety.ClassifierResponse{Decision: "allow"}})

	candidates := []packer.Slice{
		{SkillID: "git-commits", SectionID: "overview", BlockID: "b1", Group: packer.GroupOverview, BaseScore: 1, TokenCount: 100},
		{SkillID: "git-commits", SectionID: "pitfalls", BlockID: "b2", Group: packer.GroupPitfalls, BaseScore: 1, TokenCount: 100},
	}
	result, err := svc.Pack(context.Background(), candidates, packer.PresetLearn, 150)
	require.NoError(t, err)
	require.LessOrEqual(t, result.TotalTokens, 150)
}

// TestServiceEvaluateFailsClosed checks the fail-closed invariant at
// the service level: an unavailable classifier denies every command.
func TestServiceEvaluateFailsClosed(t *testing.T) {
	svc := newTestService(t, stubClassifier{err: errors.New("exec: no such file")})

	decision, err := svc.Evaluate(context.Background(), "", "rm -rf /tmp/example")
	require.ErrorIs(t, err, specid.ErrDestructiveBlocked)
	require.Equal(t, safety.TierCritical, decision.Tier)
	require.False(t, decision.Allowed)
}

func TestServiceDeprecateHidesSkillFromDefaultSearch(t *testing.T) {
	svc := newTestService(t, stubClassifier{resp: &safety.ClassifierResponse{Decision: "allow"}})
	ctx := context.Background()

	_, err := svc.Save(ctx, gitCommitsSkill, "base")
	require.NoError(t, err)

	require.NoError(t, svc.Deprecate(ctx, "git-commits", "base", "superseded", "git-commits-v2"))

	q, err := searchindex.ParseQuery("git commit workflow", nil, nil, nil, false, 10)
	require.NoError(t, err)
	resp, err := svc.Search(ctx, q)
	require.NoError(t, err)
	require.Empty(t, resp.Results)

	q.IncludeDeprecated = true
	resp, err = svc.Search(ctx, q)
	require.NoError(t, err)
	require.NotEmpty(t, resp.Results)

	canonical, ok, err := svc.Metadata.ResolveAlias(ctx, "git-commits")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "git-commits-v2", canonical)
}

func TestServicePackSkill(t *testing.T) {
	svc := newTestService(t, stubClassifier{resp: &safety.ClassifierResponse{Decision: "allow"}})
	ctx := context.Background()

	_, err := svc.Save(ctx, gitCommitsSkill, "base")
	require.NoError(t, err)

	result, err := svc.PackSkill(ctx, "git-commits", nil, 1.0, packer.PresetDebug, 200)
	require.NoError(t, err)
	require.NotEmpty(t, result.Picked)
	require.LessOrEqual(t, result.TotalTokens, 200)
	for _, s := range result.Picked {
		require.Equal(t, "git-commits", s.SkillID)
	}
}

func TestServiceRecoverIsIdempotent(t *testing.T) {
	svc := newTestService(t, stubClassifier{resp: &safety.ClassifierResponse{Decision: "allow"}})
	ctx := context.Background()

	_, err := svc.Save(ctx, gitCommitsSkill, "base")
	require.NoError(t, err)

	_, err = svc.Recover(ctx)
	require.NoError(t, err)
	_, err = svc.Recover(ctx)
	require.NoError(t, err)
}
