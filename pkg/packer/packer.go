package packer

import (
	"fmt"
	"sort"
)

// Pack runs the selection algorithm: reserve budget for mandatory
// slices, greedily satisfy required-group coverage, fill the
// remainder by adjusted-score/token-count density, then emit in the
// contract's declared group order.
func Pack(candidates []Slice, contract Contract, budget int) (Result, error) {
	if len(candidates) == 0 {
		return Result{}, ErrNoCandidates
	}

	adj := make(map[slotKey]float64, len(candidates))
	bySlot := make(map[slotKey]Slice, len(candidates))
	for _, s := range candidates {
		k := keyOf(s)
		bySlot[k] = s
		adj[k] = adjustedScore(s, contract)
	}

	mandatory, mandatoryTokens := resolveMandatory(bySlot, contract.MandatorySlices)
	if mandatoryTokens > budget {
		return Result{}, fmt.Errorf("%w: mandatory slices need %d tokens, budget is %d", ErrBudgetExceeded, mandatoryTokens, budget)
	}

	picked := make(map[slotKey]Slice, len(mandatory))
	groupCount := map[Group]int{}
	for k, s := range mandatory {
		picked[k] = s
		groupCount[s.Group]++
	}
	remaining := budget - mandatoryTokens

	var coverageGaps []Group
	for _, g := range contract.RequiredGroups {
		if groupHasCoverage(picked, g) {
			continue
		}
		best, ok := bestFitting(candidates, picked, g, adj, remaining, contract.MaxPerGroup, groupCount)
		if !ok {
			coverageGaps = append(coverageGaps, g)
			continue
		}
		picked[keyOf(best)] = best
		groupCount[best.Group]++
		remaining -= best.TokenCount
	}

	// Global knapsack-style greedy fill by adj_score/token_count
	// density, skipping anything already picked or over its group cap.
	pool := make([]Slice, 0, len(candidates))
	for _, s := range candidates {
		if _, already := picked[keyOf(s)]; already {
			continue
		}
		pool = append(pool, s)
	}
	sort.SliceStable(pool, func(i, j int) bool {
		a, b := pool[i], pool[j]
		da, db := density(a, adj), density(b, adj)
		if da != db {
			return da > db
		}
		return better(adj[keyOf(a)], a.TokenCount, a, adj[keyOf(b)], b.TokenCount, b)
	})
	for _, s := range pool {
		if s.TokenCount > remaining {
			continue
		}
		if contract.MaxPerGroup > 0 && groupCount[s.Group] >= contract.MaxPerGroup {
			continue
		}
		picked[keyOf(s)] = s
		groupCount[s.Group]++
		remaining -= s.TokenCount
	}

	var skipped []Skipped
	for _, s := range candidates {
		if _, ok := picked[keyOf(s)]; ok {
			continue
		}
		reason := "budget exhausted"
		if contract.MaxPerGroup > 0 && groupCount[s.Group] >= contract.MaxPerGroup {
			reason = "group cap reached"
		}
		skipped = append(skipped, Skipped{Slice: s, Reason: reason})
	}

	out := make([]Slice, 0, len(picked))
	total := 0
	for _, s := range picked {
		out = append(out, s)
		total += s.TokenCount
	}
	out = emissionOrder(out, contract)

	return Result{Picked: out, Skipped: skipped, TotalTokens: total, CoverageGaps: coverageGaps}, nil
}

type slotKey struct{ skillID, sectionID, blockID string }

func keyOf(s Slice) slotKey { return slotKey{s.SkillID, s.SectionID, s.BlockID} }

func adjustedScore(s Slice, c Contract) float64 {
	wGroup := 1.0
	if c.GroupWeights != nil {
		if w, ok := c.GroupWeights[s.Group]; ok {
			wGroup = w
		}
	}
	wTag := 1.0
	if c.TagWeights != nil {
		for _, t := range s.Tags {
			if w, ok := c.TagWeights[t]; ok {
				wTag *= w
			}
		}
	}
	return s.BaseScore * wGroup * wTag
}

// resolveMandatory matches each contract.MandatorySlices entry
// against the candidate pool by (skill_id, block_id); mandatory
// slices are addressed without a section id.
func resolveMandatory(bySlot map[slotKey]Slice, mandatory []MandatorySlice) (map[slotKey]Slice, int) {
	out := map[slotKey]Slice{}
	total := 0
	for _, m := range mandatory {
		for k, s := range bySlot {
			if k.skillID == m.SkillID && k.blockID == m.BlockID {
				if _, already := out[k]; !already {
					out[k] = s
					total += s.TokenCount
				}
			}
		}
	}
	return out, total
}

func groupHasCoverage(picked map[slotKey]Slice, g Group) bool {
	for _, s := range picked {
		if s.Group == g {
			return true
		}
	}
	return false
}

// bestFitting returns the highest-adj_score candidate in group g that
// fits within remaining budget and group cap, not already picked.
func bestFitting(candidates []Slice, picked map[slotKey]Slice, g Group, adj map[slotKey]float64, remaining, maxPerGroup int, groupCount map[Group]int) (Slice, bool) {
	if maxPerGroup > 0 && groupCount[g] >= maxPerGroup {
		return Slice{}, false
	}
	var best Slice
	var bestScore float64
	found := false
	for _, s := range candidates {
		if s.Group != g {
			continue
		}
		if _, already := picked[keyOf(s)]; already {
			continue
		}
		if s.TokenCount > remaining {
			continue
		}
		score := adj[keyOf(s)]
		if !found || better(score, s.TokenCount, s, bestScore, best.TokenCount, best) {
			best, bestScore, found = s, score, true
		}
	}
	return best, found
}

// better implements the deterministic tiebreak: higher adj_score,
// then shorter token_count, then lexicographic (skill_id, section_id,
// block_id).
func better(scoreA float64, tokensA int, a Slice, scoreB float64, tokensB int, b Slice) bool {
	if scoreA != scoreB {
		return scoreA > scoreB
	}
	if tokensA != tokensB {
		return tokensA < tokensB
	}
	return lexLess(a, b)
}

func lexLess(a, b Slice) bool {
	if a.SkillID != b.SkillID {
		return a.SkillID < b.SkillID
	}
	if a.SectionID != b.SectionID {
		return a.SectionID < b.SectionID
	}
	return a.BlockID < b.BlockID
}

func density(s Slice, adj map[slotKey]float64) float64 {
	if s.TokenCount <= 0 {
		return adj[keyOf(s)]
	}
	return adj[keyOf(s)] / float64(s.TokenCount)
}

// emissionOrder orders picked slices by (group priority, skill id,
// section id, block order): the contract's declared required groups
// come first, in declared order, then every other group in
// DefaultGroupOrder.
func emissionOrder(picked []Slice, c Contract) []Slice {
	priority := groupPriority(c)
	sort.SliceStable(picked, func(i, j int) bool {
		pi, pj := priority[picked[i].Group], priority[picked[j].Group]
		if pi != pj {
			return pi < pj
		}
		if picked[i].SkillID != picked[j].SkillID {
			return picked[i].SkillID < picked[j].SkillID
		}
		if picked[i].SectionID != picked[j].SectionID {
			return picked[i].SectionID < picked[j].SectionID
		}
		return picked[i].Order < picked[j].Order
	})
	return picked
}

func groupPriority(c Contract) map[Group]int {
	priority := map[Group]int{}
	n := 0
	for _, g := range c.RequiredGroups {
		if _, ok := priority[g]; !ok {
			priority[g] = n
			n++
		}
	}
	for _, g := range DefaultGroupOrder {
		if _, ok := priority[g]; !ok {
			priority[g] = n
			n++
		}
	}
	return priority
}
