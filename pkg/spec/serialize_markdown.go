package spec

import (
	"strings"

	"gopkg.in/yaml.v3"
)

// SerializeMarkdown renders a SkillSpec back to Markdown-with-front-matter,
// the inverse of ParseMarkdown. Whitespace is normalized (each block is
// separated by exactly one blank line) and front matter tags are sorted
// alphabetically.
func SerializeMarkdown(s *SkillSpec) (string, error) {
	fm := frontMatter{
		ID:          s.Metadata.ID,
		Name:        s.Metadata.Name,
		Version:     s.Metadata.Version,
		Description: s.Metadata.Description,
		Tags:        sortTags(s.Metadata.Tags),
		Requires:    s.Metadata.Requires,
		Provides:    s.Metadata.Provides,
		Platforms:   s.Metadata.Platforms,
		Author:      s.Metadata.Author,
		License:     s.Metadata.License,
	}

	yamlBytes, err := yaml.Marshal(&fm)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("---\n")
	b.Write(yamlBytes)
	b.WriteString("---\n\n")
	b.WriteString("# ")
	b.WriteString(s.Metadata.Name)
	b.WriteString("\n")

	for _, sec := range s.Sections {
		b.WriteString("\n## ")
		b.WriteString(sec.Title)
		b.WriteString("\n")
		for _, blk := range sec.Blocks {
			b.WriteString("\n")
			writeBlock(&b, blk)
		}
	}

	return b.String(), nil
}

func writeBlock(b *strings.Builder, blk SkillBlock) {
	if blk.Type == BlockCode {
		b.WriteString("```")
		b.WriteString(blk.Lang)
		b.WriteString("\n")
		b.WriteString(blk.Content)
		b.WriteString("\n```\n")
		return
	}
	b.WriteString(blk.Content)
	b.WriteString("\n")
}
