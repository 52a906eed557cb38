package spec

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/skillwb/skillwb/pkg/specid"
)

// frontMatter is the YAML document between the first pair of `---`
// fences at the top of a SKILL.md file.
type frontMatter struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
	Requires    []string `yaml:"requires"`
	Provides    []string `yaml:"provides"`
	Platforms   []string `yaml:"platforms"`
	Author      string   `yaml:"author"`
	License     string   `yaml:"license"`
}

// ParseMarkdown splits front matter from body and builds a SkillSpec.
// It does not call Validate — parsing and validation are distinct
// stages, and callers that need a fully-checked spec call
// Validate(spec) afterward.
func ParseMarkdown(text string) (*SkillSpec, error) {
	fm, body, bodyOffset, err := splitFrontMatter(text)
	if err != nil {
		return nil, err
	}

	var doc frontMatter
	if err := yaml.Unmarshal([]byte(fm), &doc); err != nil {
		return nil, specid.NewParseError(0, fmt.Sprintf("invalid front matter YAML: %v", err))
	}

	s := &SkillSpec{
		FormatVersion: FormatVersion,
		Metadata: SkillMetadata{
			ID:          doc.ID,
			Name:        doc.Name,
			Version:     doc.Version,
			Description: doc.Description,
			Tags:        doc.Tags,
			Requires:    doc.Requires,
			Provides:    doc.Provides,
			Platforms:   doc.Platforms,
			Author:      doc.Author,
			License:     doc.License,
		},
	}

	if err := parseBody(s, body, bodyOffset); err != nil {
		return nil, err
	}

	return s, nil
}

// splitFrontMatter returns the YAML text, the remaining body, and the
// byte offset of the body within the original input.
func splitFrontMatter(text string) (fm, body string, bodyOffset int, err error) {
	const fence = "---"
	trimmed := strings.TrimLeft(text, "\n")
	leadingNL := len(text) - len(trimmed)

	if !strings.HasPrefix(trimmed, fence) {
		return "", "", 0, specid.NewParseError(0, "missing front matter opening '---' fence")
	}
	rest := trimmed[len(fence):]
	nl := strings.IndexByte(rest, '\n')
	if nl < 0 {
		return "", "", 0, specid.NewParseError(leadingNL, "front matter opening fence has no body")
	}
	rest = rest[nl+1:]
	consumed := leadingNL + len(fence) + nl + 1

	closeMarker := "\n" + fence
	closeIdx := strings.Index(rest, closeMarker)
	if closeIdx < 0 {
		return "", "", 0, specid.NewParseError(consumed, "missing front matter closing '---' fence")
	}

	yamlPart := rest[:closeIdx]
	afterFence := rest[closeIdx+len(closeMarker):]
	// consume the rest of the closing fence line
	if i := strings.IndexByte(afterFence, '\n'); i >= 0 {
		afterFence = afterFence[i+1:]
	} else {
		afterFence = ""
	}

	bodyOffset = consumed + len(yamlPart) + len(closeMarker)
	return yamlPart, afterFence, bodyOffset, nil
}

// parseBody scans the Markdown body top-down, extracting the H1
// title, H2-delimited sections, and the blocks within each section.
func parseBody(s *SkillSpec, body string, bodyOffset int) error {
	lines := strings.Split(body, "\n")

	var curSection *SkillSection
	var paraLines []string
	sawTitle := false

	flushParagraph := func() {
		if curSection == nil || len(paraLines) == 0 {
			paraLines = nil
			return
		}
		text := strings.Join(paraLines, "\n")
		paraLines = nil
		if strings.TrimSpace(text) == "" {
			return
		}
		appendParagraphBlock(curSection, text)
	}

	offset := bodyOffset
	i := 0
	for i < len(lines) {
		line := strings.TrimRight(lines[i], "\r")
		lineBytes := len(lines[i]) + 1

		switch {
		case strings.HasPrefix(line, "# "):
			flushParagraph()
			title := strings.TrimSpace(strings.TrimPrefix(line, "# "))
			if sawTitle {
				paraLines = append(paraLines, line)
				break
			}
			sawTitle = true
			if title != s.Metadata.Name {
				return specid.NewParseError(offset, fmt.Sprintf(
					"title %q does not match metadata.name %q (TitleMismatch)", title, s.Metadata.Name))
			}

		case strings.HasPrefix(line, "## "):
			flushParagraph()
			heading := strings.TrimSpace(strings.TrimPrefix(line, "## "))
			s.Sections = append(s.Sections, SkillSection{ID: Kebab(heading), Title: heading})
			curSection = &s.Sections[len(s.Sections)-1]

		case strings.HasPrefix(strings.TrimSpace(line), "```"):
			flushParagraph()
			lang := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(line), "```"))
			var codeLines []string
			j := i + 1
			closed := false
			for j < len(lines) {
				if strings.TrimSpace(strings.TrimRight(lines[j], "\r")) == "```" {
					closed = true
					break
				}
				codeLines = append(codeLines, lines[j])
				j++
			}
			if !closed {
				return specid.NewParseError(offset, "unterminated fenced code block")
			}
			if curSection != nil {
				appendBlock(curSection, BlockCode, strings.Join(codeLines, "\n"), lang)
			}
			for k := i; k <= j; k++ {
				offset += len(lines[k]) + 1
			}
			i = j + 1
			continue

		default:
			if strings.TrimSpace(line) == "" {
				flushParagraph()
			} else {
				paraLines = append(paraLines, line)
			}
		}

		offset += lineBytes
		i++
	}
	flushParagraph()

	if !sawTitle {
		return specid.NewParseError(bodyOffset, "missing H1 title")
	}

	return nil
}

// appendParagraphBlock classifies a paragraph's first line into one
// of the five non-code block types and appends it to the section.
func appendParagraphBlock(sec *SkillSection, text string) {
	firstLine := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		firstLine = text[:i]
	}

	switch {
	case strings.HasPrefix(firstLine, "- "):
		appendBlock(sec, BlockChecklist, text, "")
	case strings.HasPrefix(firstLine, "> "):
		appendBlock(sec, BlockRule, text, "")
	case strings.HasPrefix(firstLine, "!"):
		appendBlock(sec, BlockPitfall, text, "")
	case strings.HasPrefix(firstLine, "$ "):
		appendBlock(sec, BlockCommand, text, "")
	default:
		appendBlock(sec, BlockText, text, "")
	}
}

// appendBlock assigns a deterministic id and appends the block.
func appendBlock(sec *SkillSection, t BlockType, content, lang string) {
	ordinal := len(sec.Blocks)
	sec.Blocks = append(sec.Blocks, SkillBlock{
		ID:      BlockID(sec.ID, ordinal, t),
		Type:    t,
		Content: content,
		Lang:    lang,
	})
}

// Kebab lower-cases and hyphenates arbitrary heading text into a
// section id, collapsing runs of non-alphanumeric characters.
func Kebab(s string) string {
	var b strings.Builder
	prevDash := true // swallow leading separators
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevDash = false
		default:
			if !prevDash {
				b.WriteByte('-')
				prevDash = true
			}
		}
	}
	out := strings.TrimRight(b.String(), "-")
	if out == "" {
		return "section"
	}
	return out
}
