package spec

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoSkillMD = `---
id: demo-skill
name: "Demo Skill"
version: 0.1.0
tags: [x, a]
---

# Demo Skill

## Overview

This is an overview paragraph.

` + "```go" + `
fmt.Println("hi")
` + "```" + `

## Pitfalls

! Watch out for this mistake.
`

func TestParseMarkdown_DemoSkill(t *testing.T) {
	s, err := ParseMarkdown(demoSkillMD)
	require.NoError(t, err)

	assert.Equal(t, "demo-skill", s.Metadata.ID)
	assert.Equal(t, "Demo Skill", s.Metadata.Name)
	assert.Equal(t, "0.1.0", s.Metadata.Version)
	assert.ElementsMatch(t, []string{"x", "a"}, s.Metadata.Tags)

	require.Len(t, s.Sections, 2)

	overview := s.Sections[0]
	assert.Equal(t, "overview", overview.ID)
	require.Len(t, overview.Blocks, 2)
	assert.Equal(t, BlockText, overview.Blocks[0].Type)
	assert.Equal(t, BlockCode, overview.Blocks[1].Type)
	assert.Equal(t, "go", overview.Blocks[1].Lang)
	assert.Contains(t, overview.Blocks[1].Content, "fmt.Println")

	pitfalls := s.Sections[1]
	assert.Equal(t, "pitfalls", pitfalls.ID)
	require.Len(t, pitfalls.Blocks, 1)
	assert.Equal(t, BlockPitfall, pitfalls.Blocks[0].Type)
}

func TestParseMarkdown_CanonicalJSONRoundTrip(t *testing.T) {
	s, err := ParseMarkdown(demoSkillMD)
	require.NoError(t, err)

	j1, err := SerializeJSON(s)
	require.NoError(t, err)

	back, err := ParseJSON(j1)
	require.NoError(t, err)

	j2, err := SerializeJSON(back)
	require.NoError(t, err)

	assert.Equal(t, j1, j2, "parse(serialize_json(s)) must round-trip byte-for-byte")
	assert.False(t, strings.Contains(j1, "\r"), "canonical JSON must use LF newlines only")
	assert.Equal(t, []string{"a", "x"}, back.Metadata.Tags, "tags must be sorted alphabetically")
}

func TestParseMarkdown_MarkdownRoundTrip(t *testing.T) {
	s, err := ParseMarkdown(demoSkillMD)
	require.NoError(t, err)

	rendered, err := SerializeMarkdown(s)
	require.NoError(t, err)

	reparsed, err := ParseMarkdown(rendered)
	require.NoError(t, err)

	j1, err := SerializeJSON(s)
	require.NoError(t, err)
	j2, err := SerializeJSON(reparsed)
	require.NoError(t, err)
	assert.Equal(t, j1, j2)
}

func TestParseMarkdown_TitleMismatch(t *testing.T) {
	bad := strings.Replace(demoSkillMD, "# Demo Skill", "# Something Else", 1)
	_, err := ParseMarkdown(bad)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TitleMismatch")
}

func TestParseMarkdown_MissingFrontMatter(t *testing.T) {
	_, err := ParseMarkdown("# No front matter\n\nbody")
	require.Error(t, err)
}

func TestParseMarkdown_NeverPanics(t *testing.T) {
	inputs := []string{
		"",
		"---",
		"---\n---\n",
		"---\nid: x\n---\n",
		"\x00\x01\x02 garbage",
		"---\nname: Foo\n---\n# Foo\n## \n- item with no section before\n",
	}
	for _, in := range inputs {
		assert.NotPanics(t, func() {
			_, _ = ParseMarkdown(in)
		})
	}
}

func TestBlockID_Deterministic(t *testing.T) {
	id1 := BlockID("overview", 0, BlockText)
	id2 := BlockID("overview", 0, BlockText)
	assert.Equal(t, id1, id2)

	id3 := BlockID("overview", 1, BlockText)
	assert.NotEqual(t, id1, id3)
}

func TestKebab(t *testing.T) {
	assert.Equal(t, "overview", Kebab("Overview"))
	assert.Equal(t, "common-pitfalls", Kebab("Common Pitfalls!"))
	assert.Equal(t, "section", Kebab("!!!"))
}
