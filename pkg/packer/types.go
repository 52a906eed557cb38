// Package packer implements the budget-constrained context packer:
// given candidate skill slices and a Contract, it selects and orders
// a subset whose total token count fits a budget while honoring
// required-group coverage, per-group caps, group/tag weights, and
// mandatory slice inclusion.
package packer

import "errors"

// Group is the coarse classification of a slice.
type Group string

const (
	GroupOverview   Group = "overview"
	GroupRules      Group = "rules"
	GroupPitfalls   Group = "pitfalls"
	GroupExamples   Group = "examples"
	GroupCommands   Group = "commands"
	GroupChecklists Group = "checklists"
	GroupReference  Group = "reference"
)

// DefaultGroupOrder is the stable default ordering used for any group
// not named in a contract's RequiredGroups.
var DefaultGroupOrder = []Group{
	GroupOverview, GroupRules, GroupPitfalls, GroupExamples,
	GroupCommands, GroupChecklists, GroupReference,
}

// Slice is one candidate block offered to the packer.
type Slice struct {
	SkillID    string
	SectionID  string
	BlockID    string
	Group      Group
	Tags       []string
	BaseScore  float64
	TokenCount int
	// Order is the slice's position within its skill's blocks as
	// produced by the caller; emission order uses it as the final
	// tiebreak.
	Order int
}

// MandatorySlice identifies a slice that must be included, addressed
// by (skill_id, block_id).
type MandatorySlice struct {
	SkillID string
	BlockID string
}

// Contract is a named set of constraints governing pack composition.
type Contract struct {
	ID              string
	Description     string
	RequiredGroups  []Group
	MandatorySlices []MandatorySlice
	MaxPerGroup     int // 0 means unlimited
	GroupWeights    map[Group]float64
	TagWeights      map[string]float64
}

// TokenCounter counts tokens for an arbitrary payload. Any
// implementation must be monotone: tokens(a+b) >= tokens(a).
type TokenCounter interface {
	Count(content string) int
}

// Skipped records a candidate slice the packer did not include, with
// the reason it was left out.
type Skipped struct {
	Slice  Slice
	Reason string
}

// Result is the packer's output.
type Result struct {
	Picked       []Slice
	Skipped      []Skipped
	TotalTokens  int
	CoverageGaps []Group
}

// ErrBudgetExceeded indicates the mandatory slices alone exceed the
// budget.
var ErrBudgetExceeded = errors.New("mandatory slices exceed budget")

// ErrNoCandidates indicates the candidate slice list was empty.
var ErrNoCandidates = errors.New("no candidate slices supplied")
