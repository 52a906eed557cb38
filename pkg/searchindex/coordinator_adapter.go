package searchindex

import (
	"context"

	"github.com/skillwb/skillwb/pkg/coordinator"
	"github.com/skillwb/skillwb/pkg/spec"
)

// CoordinatorIndexWriter adapts an Engine to coordinator.IndexWriter.
// The interface is owned by the coordinator package; only this thin
// adapter needs to know its concrete name, keeping Engine itself free
// of a coordinator import.
type CoordinatorIndexWriter struct {
	*Engine
}

// AsIndexWriter wraps e for use as a coordinator.Coordinator's Index field.
func AsIndexWriter(e *Engine) CoordinatorIndexWriter {
	return CoordinatorIndexWriter{Engine: e}
}

func (w CoordinatorIndexWriter) PrepareSegment(ctx context.Context, layer, id string, s *spec.SkillSpec) (coordinator.StagedSegment, error) {
	return w.Engine.PrepareSegment(ctx, layer, id, s)
}

func (w CoordinatorIndexWriter) Rebuild(ctx context.Context, layer, id string, deprecated bool, s *spec.SkillSpec) error {
	return w.Engine.Rebuild(ctx, layer, id, deprecated, s)
}

func (w CoordinatorIndexWriter) Remove(ctx context.Context, id string) error {
	return w.Engine.Remove(ctx, id)
}

func (w CoordinatorIndexWriter) SetDeprecated(ctx context.Context, id string, deprecated bool) error {
	w.Engine.SetDeprecated(id, deprecated)
	return nil
}
