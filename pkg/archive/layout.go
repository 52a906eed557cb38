// Package archive implements the on-disk skill archive: a git working
// tree holding one directory per (layer, skill id) under
// <root>/skills/by-id/<layer>/<id>/, each holding SKILL.md and
// skill.spec.json.
//
// The layer segment exists because every layer can hold its own full
// spec for the same id, not just an overlay, and those need distinct
// on-disk locations. A single-layer deployment sees only
// skills/by-id/base/<id>/.
package archive

import "path/filepath"

// SkillDir returns the directory for a skill id at layer, under root.
func SkillDir(root, layer, id string) string {
	return filepath.Join(root, "skills", "by-id", layer, id)
}

// SkillMDPath returns the SKILL.md path for a skill id at layer.
func SkillMDPath(root, layer, id string) string {
	return filepath.Join(SkillDir(root, layer, id), "SKILL.md")
}

// SpecJSONPath returns the skill.spec.json path for a skill id at layer.
func SpecJSONPath(root, layer, id string) string {
	return filepath.Join(SkillDir(root, layer, id), "skill.spec.json")
}

// TempSkillDir returns the staging directory Prepare writes to before
// the atomic swap into SkillDir.
func TempSkillDir(root, layer, id string) string {
	return SkillDir(root, layer, id) + ".tmp"
}

// PrevSkillDir is the short-lived backup directory name used during
// the Commit swap (old live dir renamed here, then deleted).
func PrevSkillDir(root, layer, id string) string {
	return SkillDir(root, layer, id) + ".prev"
}
