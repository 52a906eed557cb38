// Package workbench composes the skill lens, archive/2PC coordinator,
// layer resolver, hybrid retrieval index, context packer, and safety
// gate into the single service surface a CLI or other consumer calls.
package workbench

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/skillwb/skillwb/internal/logging"
	"github.com/skillwb/skillwb/pkg/archive"
	"github.com/skillwb/skillwb/pkg/coordinator"
	"github.com/skillwb/skillwb/pkg/layering"
	"github.com/skillwb/skillwb/pkg/metadata"
	"github.com/skillwb/skillwb/pkg/packer"
	"github.com/skillwb/skillwb/pkg/safety"
	"github.com/skillwb/skillwb/pkg/searchindex"
	"github.com/skillwb/skillwb/pkg/spec"
	"github.com/skillwb/skillwb/pkg/specid"
)

var tracer = otel.Tracer("skillwb.workbench")

// Service ties the core components together behind the operations a
// consumer (CLI, future HTTP surface, etc.) actually needs: save,
// resolve, search, pack, and gate.
type Service struct {
	Archive     *archive.Archive
	Metadata    *metadata.Store
	Coordinator *coordinator.Coordinator
	Index       *searchindex.Engine
	Safety      *safety.Gate
	Log         *logging.Logger
}

// New builds a Service from its already-opened stores. A nil log
// discards everything.
func New(a *archive.Archive, m *metadata.Store, idx *searchindex.Engine, gate *safety.Gate, log *logging.Logger) *Service {
	if log == nil {
		log = logging.Nop()
	}
	c := coordinator.New(a, m, searchindex.AsIndexWriter(idx))
	return &Service{Archive: a, Metadata: m, Coordinator: c, Index: idx, Safety: gate, Log: log}
}

// Save parses, validates, and atomically commits a skill Markdown
// document at a layer through the 2PC coordinator.
func (s *Service) Save(ctx context.Context, markdown, layer string) (*spec.SkillSpec, error) {
	ctx, span := tracer.Start(ctx, "workbench.Save")
	defer span.End()

	sp, err := spec.ParseMarkdown(markdown)
	if err != nil {
		return nil, err
	}
	if err := spec.Validate(sp); err != nil {
		return nil, err
	}
	if err := s.Coordinator.Write(ctx, sp, layer); err != nil {
		s.Log.Error(ctx, "skill write failed",
			zap.String("layer", layer), zap.String("id", sp.Metadata.ID), zap.Error(err))
		return nil, err
	}
	s.Log.Info(ctx, "skill saved",
		zap.String("layer", layer), zap.String("id", sp.Metadata.ID),
		zap.String("version", sp.Metadata.Version))
	return sp, nil
}

// Resolve composes the effective spec for a skill id across every
// layer that has a record for it, applying any registered overlays.
func (s *Service) Resolve(ctx context.Context, id string, overlays []layering.SkillOverlay) (*spec.SkillSpec, *layering.ConflictReport, error) {
	ctx, span := tracer.Start(ctx, "workbench.Resolve")
	defer span.End()

	rows, err := s.Metadata.GetAllLayers(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: skill %q", specid.ErrNotFound, id)
	}

	records := make([]layering.Record, 0, len(rows))
	for _, row := range rows {
		sp, err := s.Archive.ReadSpec(row.Layer, id)
		if err != nil {
			continue
		}
		layer, err := spec.ParseLayer(row.Layer)
		if err != nil {
			continue
		}
		records = append(records, layering.Record{Layer: layer, Spec: sp})
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("%w: skill %q has no readable archive records", specid.ErrNotFound, id)
	}

	return layering.ResolveSkill(records, overlays)
}

// Search runs a hybrid retrieval query against the live index.
func (s *Service) Search(ctx context.Context, q searchindex.Query) (searchindex.Response, error) {
	ctx, span := tracer.Start(ctx, "workbench.Search")
	defer span.End()
	resp, err := s.Index.Search(ctx, q)
	if err == nil {
		s.Log.Debug(ctx, "search completed",
			zap.String("query", q.Text), zap.Int("results", len(resp.Results)))
		if resp.Warning != "" {
			s.Log.Warn(ctx, "search degraded", zap.String("warning", resp.Warning))
		}
	}
	return resp, err
}

// Pack runs the context packer over a set of candidate slices.
func (s *Service) Pack(ctx context.Context, candidates []packer.Slice, contract packer.Contract, budget int) (packer.Result, error) {
	_, span := tracer.Start(ctx, "workbench.Pack")
	defer span.End()
	return packer.Pack(candidates, contract, budget)
}

// PackSkill resolves a skill across its layers and overlays, flattens
// its blocks into candidate slices scored by their search relevance
// (score 1.0 when the caller has none), and packs them against
// contract within budget.
func (s *Service) PackSkill(ctx context.Context, id string, overlays []layering.SkillOverlay, baseScore float64, contract packer.Contract, budget int) (packer.Result, error) {
	ctx, span := tracer.Start(ctx, "workbench.PackSkill")
	defer span.End()

	resolved, _, err := s.Resolve(ctx, id, overlays)
	if err != nil {
		return packer.Result{}, err
	}
	if baseScore <= 0 {
		baseScore = 1.0
	}
	candidates := packer.SlicesFromSpec(resolved, baseScore, packer.HeuristicTokenCounter{})
	return packer.Pack(candidates, contract, budget)
}

// Evaluate gates a command through the safety gate, generating a
// session id if one isn't supplied.
func (s *Service) Evaluate(ctx context.Context, sessionID, command string) (safety.Decision, error) {
	ctx, span := tracer.Start(ctx, "workbench.Evaluate")
	defer span.End()
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	ctx = logging.WithSessionID(ctx, sessionID)
	decision, err := s.Safety.Evaluate(ctx, sessionID, command)
	if decision.Allowed {
		s.Log.Info(ctx, "command allowed",
			zap.String("tier", decision.Tier.String()), zap.Bool("approved", decision.Approved))
	} else {
		s.Log.Warn(ctx, "command denied",
			zap.String("tier", decision.Tier.String()), zap.String("reason", decision.Reason))
	}
	return decision, err
}

// Remove atomically deletes a skill at layer through the 2PC
// coordinator: the archive directory, metadata row, and search doc are
// all dropped together.
func (s *Service) Remove(ctx context.Context, id, layer, version string) error {
	ctx, span := tracer.Start(ctx, "workbench.Remove")
	defer span.End()
	if err := s.Coordinator.Remove(ctx, id, layer, version); err != nil {
		return err
	}
	s.Log.Info(ctx, "skill removed", zap.String("layer", layer), zap.String("id", id))
	return nil
}

// Deprecate retires a skill at layer, recording a reason and an
// optional alias to its replacement. The archive bytes are untouched;
// deprecated skills stop surfacing in default searches.
func (s *Service) Deprecate(ctx context.Context, id, layer, reason, replacement string) error {
	ctx, span := tracer.Start(ctx, "workbench.Deprecate")
	defer span.End()
	if err := s.Coordinator.Deprecate(ctx, id, layer, true, reason, replacement); err != nil {
		return err
	}
	s.Log.Info(ctx, "skill deprecated",
		zap.String("layer", layer), zap.String("id", id), zap.String("replaced_by", replacement))
	return nil
}

// Recover runs the 2PC coordinator's crash-recovery scan, typically
// called once at process startup.
func (s *Service) Recover(ctx context.Context) ([]string, error) {
	ctx, span := tracer.Start(ctx, "workbench.Recover")
	defer span.End()
	recovered, err := s.Coordinator.Recover(ctx)
	for _, entry := range recovered {
		s.Log.Info(ctx, "recovered orphaned write", zap.String("entry", entry))
	}
	if err != nil {
		s.Log.Error(ctx, "recovery failed", zap.Error(err))
	}
	return recovered, err
}
