package packer

import (
	"github.com/skillwb/skillwb/pkg/spec"
)

// HeuristicTokenCounter approximates one token per four characters,
// with a one-token floor. It is monotone: counting a concatenation
// never yields fewer tokens than counting a prefix.
type HeuristicTokenCounter struct{}

func (HeuristicTokenCounter) Count(content string) int {
	n := (len(content) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// GroupForBlockType maps a block's tagged type to its packer group.
func GroupForBlockType(t spec.BlockType) Group {
	switch t {
	case spec.BlockCode:
		return GroupExamples
	case spec.BlockRule:
		return GroupRules
	case spec.BlockPitfall:
		return GroupPitfalls
	case spec.BlockCommand:
		return GroupCommands
	case spec.BlockChecklist:
		return GroupChecklists
	default:
		return GroupOverview
	}
}

// SlicesFromSpec flattens a resolved spec into candidate slices for
// Pack, one per block, carrying the skill's tags, a uniform base
// score, and counter-measured token counts. Order preserves block
// position within the skill so emission ordering stays stable.
func SlicesFromSpec(s *spec.SkillSpec, baseScore float64, counter TokenCounter) []Slice {
	if counter == nil {
		counter = HeuristicTokenCounter{}
	}
	var out []Slice
	order := 0
	for _, sec := range s.Sections {
		for _, blk := range sec.Blocks {
			out = append(out, Slice{
				SkillID:    s.Metadata.ID,
				SectionID:  sec.ID,
				BlockID:    blk.ID,
				Group:      GroupForBlockType(blk.Type),
				Tags:       append([]string(nil), s.Metadata.Tags...),
				BaseScore:  baseScore,
				TokenCount: counter.Count(blk.Content),
				Order:      order,
			})
			order++
		}
	}
	return out
}
