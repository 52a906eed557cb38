package spec

import (
	"fmt"
	"hash/fnv"
)

// BlockID derives a deterministic block id from a stable hash of
// (section_id, block ordinal, block_type). FNV-1a is cheap,
// dependency-free, and stable across processes and platforms.
func BlockID(sectionID string, ordinal int, t BlockType) string {
	h := fnv.New32a()
	fmt.Fprintf(h, "%s\x00%d\x00%s", sectionID, ordinal, t)
	return fmt.Sprintf("%s-%08x", blockTypePrefix(t), h.Sum32())
}

func blockTypePrefix(t BlockType) string {
	switch t {
	case BlockCode:
		return "code"
	case BlockRule:
		return "rule"
	case BlockPitfall:
		return "pit"
	case BlockCommand:
		return "cmd"
	case BlockChecklist:
		return "chk"
	default:
		return "txt"
	}
}
