package layering

import (
	"fmt"

	"github.com/skillwb/skillwb/pkg/spec"
)

// Record pairs a layer with the SkillSpec stored at that layer.
type Record struct {
	Layer spec.SkillLayer
	Spec  *spec.SkillSpec
}

// ResolveSkill resolves the effective spec for one skill id: given
// all SkillSpec records and SkillOverlay records for it, pick the
// highest-priority spec as the base (not the highest overlay), then
// apply overlays from lower to higher priority.
func ResolveSkill(records []Record, overlays []SkillOverlay) (*spec.SkillSpec, *ConflictReport, error) {
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("no records to resolve")
	}

	base := records[0]
	for _, r := range records[1:] {
		if r.Layer > base.Layer {
			base = r
		}
	}

	return Resolve(base.Spec, base.Layer, overlays)
}
