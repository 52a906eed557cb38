// Package layering implements the layer resolver and overlay
// composition: resolving the effective SkillSpec for a skill id by
// layering Base/Org/Project/User records, applying sparse overlay
// patches low-to-high priority, and reporting (not silently merging)
// conflicts.
//
// Overlays address blocks by stable (section_id, block_id) keys, not
// by pointer; applying an overlay is a pure function producing a new
// block arena.
package layering

import (
	"fmt"
	"sort"

	"github.com/skillwb/skillwb/pkg/spec"
)

// Patch is a sparse edit to one block. At least one of Replace,
// Remove, or AppendAfter is set; Replace and AppendAfter may be
// combined on the same key ("replace r2, then append r2a").
type Patch struct {
	Replace     *spec.SkillBlock
	Remove      bool
	AppendAfter *spec.SkillBlock
}

// SectionOverlay is the sparse set of block patches for one section.
type SectionOverlay struct {
	Blocks map[string]Patch
}

// SkillOverlay is a named (per-layer) sparse patch over a base
// SkillSpec, keyed by section id then block id.
type SkillOverlay struct {
	Layer    spec.SkillLayer
	Sections map[string]SectionOverlay
}

// ConflictEntry records that two overlays patched the same
// (section_id.block_id) path; the resolver applies the
// highest_priority_wins default policy and still surfaces the
// conflict for the caller to inspect.
type ConflictEntry struct {
	LayerA string
	LayerB string
	Path   string
}

// ConflictReport is the resolver's conflict output.
type ConflictReport struct {
	Conflicts []ConflictEntry
}

func (r *ConflictReport) add(layerA, layerB spec.SkillLayer, path string) {
	r.Conflicts = append(r.Conflicts, ConflictEntry{
		LayerA: layerA.String(),
		LayerB: layerB.String(),
		Path:   path,
	})
}

// Resolve composes a base spec with a set of overlays sorted and
// applied from Base to User priority, then re-runs spec.Validate on
// the result.
func Resolve(base *spec.SkillSpec, baseLayer spec.SkillLayer, overlays []SkillOverlay) (*spec.SkillSpec, *ConflictReport, error) {
	sorted := append([]SkillOverlay(nil), overlays...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Layer < sorted[j].Layer })

	applicable := make([]SkillOverlay, 0, len(sorted))
	for _, ov := range sorted {
		if ov.Layer < baseLayer {
			// Overlays from lower-priority layers never apply to a
			// higher-priority base; overlays at or above the base's own
			// layer are exactly the ones meant to patch it.
			continue
		}
		applicable = append(applicable, ov)
	}

	if err := checkAcyclicAppends(applicable); err != nil {
		return nil, nil, err
	}

	out := base.Clone()
	report := &ConflictReport{}
	touchedBy := make(map[string]spec.SkillLayer) // path -> last overlay layer that touched it

	for _, ov := range applicable {
		for sectionID, so := range ov.Sections {
			sec, ok := out.Section(sectionID)
			if !ok {
				continue
			}
			// Stable key order so conflict reports and application
			// order are deterministic across runs.
			blockIDs := make([]string, 0, len(so.Blocks))
			for id := range so.Blocks {
				blockIDs = append(blockIDs, id)
			}
			sort.Strings(blockIDs)

			for _, blockID := range blockIDs {
				patch := so.Blocks[blockID]
				path := sectionID + "." + blockID
				// Any two overlays touching the same path conflict,
				// including two overlays at the same layer.
				if prevLayer, seen := touchedBy[path]; seen {
					report.add(prevLayer, ov.Layer, path)
				}
				touchedBy[path] = ov.Layer

				applyPatch(sec, blockID, patch)
			}
		}
	}

	if err := spec.Validate(out); err != nil {
		return nil, nil, err
	}

	return out, report, nil
}

func applyPatch(sec *spec.SkillSection, blockID string, patch Patch) {
	idx := -1
	for i, b := range sec.Blocks {
		if b.ID == blockID {
			idx = i
			break
		}
	}

	if patch.Remove {
		if idx >= 0 {
			sec.Blocks = append(sec.Blocks[:idx], sec.Blocks[idx+1:]...)
		}
		return
	}

	if patch.Replace != nil {
		if idx >= 0 {
			sec.Blocks[idx] = *patch.Replace
		} else {
			sec.Blocks = append(sec.Blocks, *patch.Replace)
			idx = len(sec.Blocks) - 1
		}
	}

	if patch.AppendAfter != nil {
		// Re-find idx: Replace above may have changed positions, and
		// Remove returns early, so idx here always refers to the
		// (possibly just-replaced) anchor block.
		anchor := -1
		for i, b := range sec.Blocks {
			if b.ID == blockID {
				anchor = i
				break
			}
		}
		if anchor < 0 {
			sec.Blocks = append(sec.Blocks, *patch.AppendAfter)
			return
		}
		tail := append([]spec.SkillBlock(nil), sec.Blocks[anchor+1:]...)
		sec.Blocks = append(sec.Blocks[:anchor+1], *patch.AppendAfter)
		sec.Blocks = append(sec.Blocks, tail...)
	}
}

// checkAcyclicAppends asserts that append_after references form no
// cycle: a new block appended after key K cannot itself be the
// target of another append_after whose chain leads back to K.
func checkAcyclicAppends(overlays []SkillOverlay) error {
	edges := make(map[string]string) // key path -> new block's path (same section)
	for _, ov := range overlays {
		for sectionID, so := range ov.Sections {
			for blockID, patch := range so.Blocks {
				if patch.AppendAfter == nil {
					continue
				}
				from := sectionID + "." + blockID
				to := sectionID + "." + patch.AppendAfter.ID
				edges[from] = to
			}
		}
	}

	const (
		white = 0
		gray  = 1
		black = 2
	)
	color := make(map[string]int, len(edges))
	var visit func(node string) error
	visit = func(node string) error {
		switch color[node] {
		case gray:
			return fmt.Errorf("cyclic append_after reference detected at %s", node)
		case black:
			return nil
		}
		color[node] = gray
		if next, ok := edges[node]; ok {
			if err := visit(next); err != nil {
				return err
			}
		}
		color[node] = black
		return nil
	}

	for node := range edges {
		if err := visit(node); err != nil {
			return err
		}
	}
	return nil
}
