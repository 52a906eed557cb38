package packer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/skillwb/skillwb/pkg/spec"
)

func slice(skill, section, block string, group Group, order int) Slice {
	return Slice{
		SkillID: skill, SectionID: section, BlockID: block,
		Group: group, BaseScore: 1.0, TokenCount: 100, Order: order,
	}
}

// TestPackCoverageScenario: 3 examples, 2 rules, 4 pitfalls (each 100
// tokens), a debug-shaped contract with required groups
// [pitfalls,rules,commands], max 2 per group, budget 400. Section ids
// are chosen so the fill phase's lexicographic tiebreak (pitfalls <
// examples < rules) gives the expected pick: 2 pitfalls + 1 rule + 0
// commands + 1 example.
func TestPackCoverageScenario(t *testing.T) {
	var candidates []Slice
	for i, id := range []string{"p1", "p2", "p3", "p4"} {
		candidates = append(candidates, slice("demo", "a-pitfalls", id, GroupPitfalls, i))
	}
	for i, id := range []string{"r1", "r2"} {
		candidates = append(candidates, slice("demo", "c-rules", id, GroupRules, i))
	}
	for i, id := range []string{"e1", "e2", "e3"} {
		candidates = append(candidates, slice("demo", "b-examples", id, GroupExamples, i))
	}

	contract := Contract{
		ID:             "debug-test",
		RequiredGroups: []Group{GroupPitfalls, GroupRules, GroupCommands},
		MaxPerGroup:    2,
	}

	result, err := Pack(candidates, contract, 400)
	require.NoError(t, err)
	require.Equal(t, 400, result.TotalTokens)
	require.Equal(t, []Group{GroupCommands}, result.CoverageGaps)

	counts := map[Group]int{}
	for _, s := range result.Picked {
		counts[s.Group]++
	}
	require.Equal(t, 2, counts[GroupPitfalls])
	require.Equal(t, 1, counts[GroupRules])
	require.Equal(t, 1, counts[GroupExamples])
	require.Equal(t, 0, counts[GroupCommands])
}

func TestPackBudgetExceededByMandatory(t *testing.T) {
	candidates := []Slice{slice("demo", "sec", "b1", GroupRules, 0)}
	contract := Contract{
		ID:              "tight",
		MandatorySlices: []MandatorySlice{{SkillID: "demo", BlockID: "b1"}},
	}
	_, err := Pack(candidates, contract, 50)
	require.ErrorIs(t, err, ErrBudgetExceeded)
}

func TestPackNoCandidates(t *testing.T) {
	_, err := Pack(nil, Contract{}, 100)
	require.ErrorIs(t, err, ErrNoCandidates)
}

func TestPackDeterministic(t *testing.T) {
	candidates := []Slice{
		slice("a", "sec", "b1", GroupRules, 0),
		slice("b", "sec", "b2", GroupRules, 1),
		slice("c", "sec", "b3", GroupExamples, 2),
	}
	contract := Contract{RequiredGroups: []Group{GroupRules}}

	r1, err := Pack(candidates, contract, 250)
	require.NoError(t, err)
	r2, err := Pack(candidates, contract, 250)
	require.NoError(t, err)
	require.Equal(t, r1.Picked, r2.Picked)
}

func TestSlicesFromSpec(t *testing.T) {
	s := &spec.SkillSpec{
		FormatVersion: spec.FormatVersion,
		Metadata: spec.SkillMetadata{
			ID: "demo-skill", Name: "Demo Skill", Version: "1.0.0",
			Tags: []string{"go"},
		},
		Sections: []spec.SkillSection{
			{ID: "overview", Title: "Overview", Blocks: []spec.SkillBlock{
				{ID: "t1", Type: spec.BlockText, Content: "some overview text"},
				{ID: "c1", Type: spec.BlockCode, Content: "fmt.Println()"},
			}},
			{ID: "pitfalls", Title: "Pitfalls", Blocks: []spec.SkillBlock{
				{ID: "p1", Type: spec.BlockPitfall, Content: "! careful"},
			}},
		},
	}

	slices := SlicesFromSpec(s, 1.0, nil)
	require.Len(t, slices, 3)
	require.Equal(t, GroupOverview, slices[0].Group)
	require.Equal(t, GroupExamples, slices[1].Group)
	require.Equal(t, GroupPitfalls, slices[2].Group)
	require.Equal(t, []int{0, 1, 2}, []int{slices[0].Order, slices[1].Order, slices[2].Order})
	for _, sl := range slices {
		require.Equal(t, "demo-skill", sl.SkillID)
		require.Equal(t, []string{"go"}, sl.Tags)
		require.Positive(t, sl.TokenCount)
	}
}

func TestHeuristicTokenCounterMonotone(t *testing.T) {
	c := HeuristicTokenCounter{}
	require.GreaterOrEqual(t, c.Count("abcdefgh"), c.Count("abcd"))
	require.Equal(t, 1, c.Count(""))
}

func TestPackMandatoryAlwaysIncluded(t *testing.T) {
	candidates := []Slice{
		slice("a", "sec", "must", GroupPitfalls, 0),
		slice("a", "sec", "extra1", GroupPitfalls, 1),
		slice("a", "sec", "extra2", GroupPitfalls, 2),
	}
	contract := Contract{
		MandatorySlices: []MandatorySlice{{SkillID: "a", BlockID: "must"}},
	}
	result, err := Pack(candidates, contract, 150)
	require.NoError(t, err)
	var found bool
	for _, s := range result.Picked {
		if s.BlockID == "must" {
			found = true
		}
	}
	require.True(t, found)
	require.LessOrEqual(t, result.TotalTokens, 150)
}
