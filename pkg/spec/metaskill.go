package spec

import (
	"fmt"

	"github.com/BurntSushi/toml"

	"github.com/skillwb/skillwb/pkg/specid"
)

// PinStrategy controls how a MetaSkill resolves skill versions when
// its slices are loaded.
type PinStrategy string

const (
	PinLatestCompatible PinStrategy = "latest_compatible"
	PinFloatingMajor    PinStrategy = "floating_major"
	PinLocalInstalled   PinStrategy = "local_installed"
	PinExactVersion     PinStrategy = "exact_version"
)

// MetaSkillSliceRef references a subset of a skill's blocks, grouped
// under a MetaSkill bundle.
type MetaSkillSliceRef struct {
	SkillID  string   `toml:"skill_id"`
	SliceIDs []string `toml:"slice_ids"`
	Priority uint8    `toml:"priority"`
	Required bool     `toml:"required"`
}

func (r MetaSkillSliceRef) validate() error {
	if r.SkillID == "" {
		return specid.NewValidationError("slices[].skill_id", "must be non-empty")
	}
	return nil
}

// MetaSkill is an author-curated, named, versioned bundle of slices
// from one or more skills — a fixed, hand-picked set, in contrast to
// the packer's runtime-ranked selection.
type MetaSkill struct {
	ID          string
	Name        string
	Description string
	PinStrategy PinStrategy
	Slices      []MetaSkillSliceRef
}

func (m *MetaSkill) validate() error {
	if m.ID == "" {
		return specid.NewValidationError("meta_skill.id", "must be non-empty")
	}
	if m.Name == "" {
		return specid.NewValidationError("meta_skill.name", "must be non-empty")
	}
	if m.Description == "" {
		return specid.NewValidationError("meta_skill.description", "must be non-empty")
	}
	if len(m.Slices) == 0 {
		return specid.NewValidationError("meta_skill.slices", "must include at least one slice")
	}
	for i, s := range m.Slices {
		if err := s.validate(); err != nil {
			return fmt.Errorf("slices[%d]: %w", i, err)
		}
	}
	return nil
}

// metaSkillHeader is the `[meta_skill]` TOML table.
type metaSkillHeader struct {
	ID          string      `toml:"id"`
	Name        string      `toml:"name"`
	Description string      `toml:"description"`
	PinStrategy PinStrategy `toml:"pin_strategy"`
}

// metaSkillDoc is the on-disk TOML document shape: a `[meta_skill]`
// header table plus repeated `[[slices]]` tables.
type metaSkillDoc struct {
	MetaSkill metaSkillHeader     `toml:"meta_skill"`
	Slices    []MetaSkillSliceRef `toml:"slices"`
}

// ParseMetaSkillTOML parses a meta-skill bundle document.
func ParseMetaSkillTOML(text string) (*MetaSkill, error) {
	var doc metaSkillDoc
	if _, err := toml.Decode(text, &doc); err != nil {
		return nil, specid.NewParseError(0, fmt.Sprintf("invalid meta-skill TOML: %v", err))
	}

	pin := doc.MetaSkill.PinStrategy
	if pin == "" {
		pin = PinLatestCompatible
	}

	m := &MetaSkill{
		ID:          doc.MetaSkill.ID,
		Name:        doc.MetaSkill.Name,
		Description: doc.MetaSkill.Description,
		PinStrategy: pin,
		Slices:      doc.Slices,
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// MandatorySlices flattens a MetaSkill's required slice refs into the
// (skill_id, block_id) pairs a pack contract's mandatory slice list
// expects.
func (m *MetaSkill) MandatorySlices() [][2]string {
	var out [][2]string
	for _, ref := range m.Slices {
		if !ref.Required {
			continue
		}
		for _, blockID := range ref.SliceIDs {
			out = append(out, [2]string{ref.SkillID, blockID})
		}
	}
	return out
}
