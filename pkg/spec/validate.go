package spec

import (
	"fmt"

	"github.com/Masterminds/semver/v3"

	"github.com/skillwb/skillwb/pkg/specid"
)

// Validate enforces the spec's structural invariants: format_version,
// id grammar, semver version, required fields, reference
// well-formedness, the recognized platform set, and uniqueness of
// section/block ids.
func Validate(s *SkillSpec) error {
	if s.FormatVersion != FormatVersion {
		return specid.NewValidationError("format_version",
			fmt.Sprintf("expected %q, got %q", FormatVersion, s.FormatVersion))
	}

	if err := specid.ValidateSlug("metadata.id", s.Metadata.ID); err != nil {
		return err
	}

	if s.Metadata.Name == "" {
		return specid.NewValidationError("metadata.name", "must be non-empty")
	}

	if _, err := semver.NewVersion(s.Metadata.Version); err != nil {
		return specid.NewValidationError("metadata.version",
			fmt.Sprintf("not a valid semver: %v", err))
	}

	for i, req := range s.Metadata.Requires {
		if err := specid.ValidateSlug(fmt.Sprintf("metadata.requires[%d]", i), req); err != nil {
			return err
		}
	}
	for i, prov := range s.Metadata.Provides {
		if prov == "" {
			return specid.NewValidationError(fmt.Sprintf("metadata.provides[%d]", i), "must be non-empty")
		}
	}
	for i, plat := range s.Metadata.Platforms {
		if !RecognizedPlatforms[plat] {
			return specid.NewValidationError(fmt.Sprintf("metadata.platforms[%d]", i),
				fmt.Sprintf("unrecognized platform %q", plat))
		}
	}

	seenSections := make(map[string]bool, len(s.Sections))
	for si, sec := range s.Sections {
		if seenSections[sec.ID] {
			return specid.NewValidationError(fmt.Sprintf("sections[%d].id", si),
				fmt.Sprintf("duplicate section id %q", sec.ID))
		}
		seenSections[sec.ID] = true

		seenBlocks := make(map[string]bool, len(sec.Blocks))
		for bi, b := range sec.Blocks {
			if seenBlocks[b.ID] {
				return specid.NewValidationError(fmt.Sprintf("sections[%d].blocks[%d].id", si, bi),
					fmt.Sprintf("duplicate block id %q within section %q", b.ID, sec.ID))
			}
			seenBlocks[b.ID] = true

			switch b.Type {
			case BlockText, BlockCode, BlockRule, BlockPitfall, BlockCommand, BlockChecklist:
			default:
				return specid.NewValidationError(fmt.Sprintf("sections[%d].blocks[%d].block_type", si, bi),
					fmt.Sprintf("unrecognized block type %q", b.Type))
			}
		}
	}

	return nil
}
