package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/skillwb/skillwb/internal/config"
	"github.com/skillwb/skillwb/pkg/archive"
	"github.com/skillwb/skillwb/pkg/metadata"
	"github.com/skillwb/skillwb/pkg/safety"
	"github.com/skillwb/skillwb/pkg/searchindex"
	"github.com/skillwb/skillwb/pkg/specid"
	"github.com/skillwb/skillwb/pkg/workbench"
)

// buildService opens the archive and metadata stores, wires the
// safety gate from cfg, and runs the startup crash-recovery scan —
// which also heals any orphaned writes and populates the in-memory
// search index from whatever the archive and metadata DB hold.
func buildService(ctx context.Context, cfg *config.Config) (*workbench.Service, func(), error) {
	log, err := newLogger()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: building logger: %v", specid.ErrConfigError, err)
	}

	a, err := archive.Open(archiveRoot)
	if err != nil {
		return nil, nil, err
	}

	if metadataDB != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(metadataDB), 0o755); err != nil {
			return nil, nil, fmt.Errorf("%w: creating metadata db directory: %v", specid.ErrExternalUnavailable, err)
		}
	}
	m, err := metadata.Open(ctx, metadataDB)
	if err != nil {
		return nil, nil, err
	}

	embedder := searchindex.NewHashEmbedder(cfg.Search.EmbeddingDims)
	idx := searchindex.NewEngine(
		embedder,
		searchindex.DefaultFieldWeights,
		searchindex.FusionWeights{BM25: cfg.Search.BM25Weight, Semantic: cfg.Search.SemanticWeight},
		searchindex.DefaultSemanticFloor,
	)

	var audit safety.AuditLog
	if metadataDB == ":memory:" {
		audit = safety.NewMemoryAuditLog()
	} else {
		audit, err = safety.NewFileAuditLog(filepath.Join(filepath.Dir(metadataDB), "audit.log"))
		if err != nil {
			_ = m.Close()
			return nil, nil, err
		}
	}

	gate := safety.NewGate(
		safety.NewExecClassifier(cfg.Safety.ClassifierBin, cfg.Safety.ApprovalChannel+"_PACKS", cfg.Safety.ClassifierTimeout),
		audit,
		cfg.Safety.RequireVerbatimApproval,
		cfg.Safety.ApprovalChannel,
		cfg.Safety.Packs,
		"dcg-dev",
	)

	svc := workbench.New(a, m, idx, gate, log)

	// Startup recovery: scan for orphaned writes and reconcile the
	// three stores before serving anything. This is also what fills
	// the in-memory index from the live rows.
	if _, err := svc.Recover(ctx); err != nil {
		_ = m.Close()
		return nil, nil, fmt.Errorf("startup recovery: %w", err)
	}

	// Persist the rebuilt index next to the metadata DB. Both files
	// are caches; a failed write is not fatal.
	if metadataDB != ":memory:" {
		dir := filepath.Dir(metadataDB)
		_ = idx.Save(filepath.Join(dir, "index.jsonl"), filepath.Join(dir, "embeddings.bin"))
	}

	cleanup := func() {
		_ = m.Close()
		_ = log.Sync()
	}
	return svc, cleanup, nil
}
