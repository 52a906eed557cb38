package packer

// Built-in presets: six named contract shapes tuned for different
// consumption modes, selectable by name or via internal/config's
// disclosure.default_level.
var (
	PresetComplete = Contract{
		ID:             "complete",
		Description:    "every group, generous caps, for full-context consumption",
		RequiredGroups: []Group{GroupOverview, GroupRules, GroupPitfalls, GroupExamples, GroupCommands, GroupChecklists, GroupReference},
		MaxPerGroup:    8,
	}

	PresetDebug = Contract{
		ID:             "debug",
		Description:    "pitfalls and rules first, commands for reproduction",
		RequiredGroups: []Group{GroupPitfalls, GroupRules, GroupCommands},
		MaxPerGroup:    2,
		GroupWeights: map[Group]float64{
			GroupPitfalls: 1.5,
			GroupRules:    1.2,
		},
	}

	PresetRefactor = Contract{
		ID:             "refactor",
		Description:    "rules and examples weighted for structural changes",
		RequiredGroups: []Group{GroupRules, GroupExamples},
		MaxPerGroup:    3,
		GroupWeights: map[Group]float64{
			GroupRules:    1.3,
			GroupExamples: 1.1,
		},
	}

	PresetLearn = Contract{
		ID:             "learn",
		Description:    "overview and examples first, for onboarding",
		RequiredGroups: []Group{GroupOverview, GroupExamples, GroupPitfalls},
		MaxPerGroup:    4,
		GroupWeights: map[Group]float64{
			GroupOverview: 1.4,
		},
	}

	PresetQuickref = Contract{
		ID:             "quickref",
		Description:    "commands and checklists only, minimal tokens",
		RequiredGroups: []Group{GroupCommands, GroupChecklists},
		MaxPerGroup:    1,
	}

	PresetCodegen = Contract{
		ID:             "codegen",
		Description:    "examples and rules weighted heavily, commands secondary",
		RequiredGroups: []Group{GroupExamples, GroupRules, GroupCommands},
		MaxPerGroup:    3,
		GroupWeights: map[Group]float64{
			GroupExamples: 1.5,
			GroupRules:    1.2,
		},
	}
)

// BuiltinPresets indexes the six presets by id.
var BuiltinPresets = map[string]Contract{
	PresetComplete.ID:  PresetComplete,
	PresetDebug.ID:     PresetDebug,
	PresetRefactor.ID:  PresetRefactor,
	PresetLearn.ID:     PresetLearn,
	PresetQuickref.ID:  PresetQuickref,
	PresetCodegen.ID:   PresetCodegen,
}

// DisclosureLevel is internal/config's disclosure.default_level enum.
type DisclosureLevel string

const (
	DisclosureMinimal  DisclosureLevel = "minimal"
	DisclosureModerate DisclosureLevel = "moderate"
	DisclosureStandard DisclosureLevel = "standard"
	DisclosureFull     DisclosureLevel = "full"
)

// PresetForDisclosureLevel maps a configured default disclosure level
// to one of the built-in presets when no contract is named explicitly.
func PresetForDisclosureLevel(level DisclosureLevel) Contract {
	switch level {
	case DisclosureMinimal:
		return PresetQuickref
	case DisclosureModerate:
		return PresetDebug
	case DisclosureFull:
		return PresetComplete
	default: // standard
		return PresetLearn
	}
}
