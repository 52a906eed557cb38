package spec

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/skillwb/skillwb/pkg/specid"
)

// SerializeJSON renders the canonical JSON form: UTF-8, LF newlines,
// sorted keys at the top level (format_version < metadata < sections,
// which is also SkillSpec's declared field order), arrays in their
// original order, and no trailing whitespace.
func SerializeJSON(s *SkillSpec) (string, error) {
	out := SkillSpec{
		FormatVersion: s.FormatVersion,
		Metadata:      s.Metadata,
		Sections:      s.Sections,
	}
	out.Metadata.Tags = sortTags(s.Metadata.Tags)
	if out.Sections == nil {
		out.Sections = []SkillSection{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&out); err != nil {
		return "", fmt.Errorf("encoding canonical JSON: %w", err)
	}

	// json.Encoder.Encode appends a trailing '\n'; keep exactly one,
	// strip any trailing whitespace on the final line otherwise.
	rendered := bytes.TrimRight(buf.Bytes(), "\n")
	rendered = append(rendered, '\n')

	return string(rendered), nil
}

// ParseJSON parses the canonical JSON form back into a SkillSpec. It
// does not call Validate; see ParseMarkdown for the same convention.
func ParseJSON(text string) (*SkillSpec, error) {
	var s SkillSpec
	dec := json.NewDecoder(bytes.NewReader([]byte(text)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&s); err != nil {
		return nil, specid.NewParseError(0, fmt.Sprintf("invalid canonical JSON: %v", err))
	}
	return &s, nil
}
