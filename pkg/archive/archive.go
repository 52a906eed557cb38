package archive

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/skillwb/skillwb/pkg/spec"
	"github.com/skillwb/skillwb/pkg/specid"
)

// Archive is a git working tree holding one directory per (layer, id)
// pair. It is opened once by the 2PC coordinator; readers share the
// same root path but never call the write-side methods.
type Archive struct {
	root string
	repo *git.Repository
}

// Open opens (or initializes) the git working tree at root.
func Open(root string) (*Archive, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("%w: creating archive root: %v", specid.ErrExternalUnavailable, err)
	}

	repo, err := git.PlainOpen(root)
	if errors.Is(err, git.ErrRepositoryNotExists) {
		repo, err = git.PlainInit(root, false)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: opening git archive: %v", specid.ErrExternalUnavailable, err)
	}

	return &Archive{root: root, repo: repo}, nil
}

// Root returns the archive's root directory.
func (a *Archive) Root() string { return a.root }

// ReadSpec reads and parses the canonical JSON spec for (layer, id)
// from the working tree. Readers bypass the coordinator and read the
// live directory directly.
func (a *Archive) ReadSpec(layer, id string) (*spec.SkillSpec, error) {
	path := SpecJSONPath(a.root, layer, id)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: skill %s/%s", specid.ErrNotFound, layer, id)
		}
		return nil, fmt.Errorf("reading spec for %s/%s: %w", layer, id, err)
	}
	return spec.ParseJSON(string(data))
}

// Exists reports whether a skill directory exists for (layer, id).
func (a *Archive) Exists(layer, id string) bool {
	_, err := os.Stat(SkillDir(a.root, layer, id))
	return err == nil
}

// StageWrite writes the new SKILL.md and skill.spec.json into a
// temporary directory next to the live one: write to *.tmp, fsync
// each file, and return the staged path. The live directory is not
// touched.
func (a *Archive) StageWrite(layer, id, md, canonicalJSON string) (string, error) {
	tmp := TempSkillDir(a.root, layer, id)
	if err := os.RemoveAll(tmp); err != nil {
		return "", fmt.Errorf("clearing stale staging dir: %w", err)
	}
	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return "", fmt.Errorf("creating staging dir: %w", err)
	}

	if err := writeFileSynced(filepath.Join(tmp, "SKILL.md"), md); err != nil {
		return "", err
	}
	if err := writeFileSynced(filepath.Join(tmp, "skill.spec.json"), canonicalJSON); err != nil {
		return "", err
	}

	return tmp, nil
}

// RollbackStaged removes a staged temp directory after an aborted
// prepare.
func (a *Archive) RollbackStaged(layer, id string) error {
	return os.RemoveAll(TempSkillDir(a.root, layer, id))
}

// CommitSwap atomically swaps the live skill directory with the
// staged one: rename old->*.prev, staged->live, then delete *.prev.
// It then stages and commits the change to git with the deterministic
// message format.
func (a *Archive) CommitSwap(layer, id, op, version string) error {
	live := SkillDir(a.root, layer, id)
	staged := TempSkillDir(a.root, layer, id)
	prev := PrevSkillDir(a.root, layer, id)

	_ = os.RemoveAll(prev)

	hadLive := false
	if _, err := os.Stat(live); err == nil {
		hadLive = true
		if err := os.Rename(live, prev); err != nil {
			return fmt.Errorf("%w: renaming live to prev: %v", specid.ErrTransactionFailed, err)
		}
	}

	if err := os.Rename(staged, live); err != nil {
		// Best-effort restore of the previous live directory so a
		// failed swap doesn't leave the skill missing entirely.
		if hadLive {
			_ = os.Rename(prev, live)
		}
		return fmt.Errorf("%w: renaming staged to live: %v", specid.ErrTransactionFailed, err)
	}

	if hadLive {
		if err := os.RemoveAll(prev); err != nil {
			return fmt.Errorf("%w: removing prev directory: %v", specid.ErrTransactionFailed, err)
		}
	}

	return a.gitCommit(layer, id, op, version)
}

// RemoveSkill deletes the live skill directory for (layer, id) and
// commits the removal to git. There is no staged replacement to swap
// in, so the live directory is renamed to *.prev and discarded, then
// gitCommit stages the removal of each tracked file that was under
// that path (go-git's Worktree.Add rejects a deleted directory, so the
// files are staged one by one from the worktree status).
func (a *Archive) RemoveSkill(layer, id, op, version string) error {
	live := SkillDir(a.root, layer, id)
	prev := PrevSkillDir(a.root, layer, id)

	if _, err := os.Stat(live); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: skill %s/%s", specid.ErrNotFound, layer, id)
		}
		return fmt.Errorf("%w: statting live dir: %v", specid.ErrTransactionFailed, err)
	}

	_ = os.RemoveAll(prev)
	if err := os.Rename(live, prev); err != nil {
		return fmt.Errorf("%w: renaming live to prev: %v", specid.ErrTransactionFailed, err)
	}
	if err := os.RemoveAll(prev); err != nil {
		return fmt.Errorf("%w: removing prev directory: %v", specid.ErrTransactionFailed, err)
	}

	return a.gitCommit(layer, id, op, version)
}

func (a *Archive) gitCommit(layer, id, op, version string) error {
	wt, err := a.repo.Worktree()
	if err != nil {
		return fmt.Errorf("%w: opening worktree: %v", specid.ErrExternalUnavailable, err)
	}

	relDir, err := filepath.Rel(a.root, SkillDir(a.root, layer, id))
	if err != nil {
		return fmt.Errorf("computing relative skill dir: %w", err)
	}
	if _, statErr := os.Stat(SkillDir(a.root, layer, id)); os.IsNotExist(statErr) {
		status, err := wt.Status()
		if err != nil {
			return fmt.Errorf("%w: reading worktree status: %v", specid.ErrExternalUnavailable, err)
		}
		prefix := filepath.ToSlash(relDir) + "/"
		for p := range status {
			if !strings.HasPrefix(p, prefix) {
				continue
			}
			if _, err := wt.Add(p); err != nil {
				return fmt.Errorf("%w: git add: %v", specid.ErrTransactionFailed, err)
			}
		}
	} else if _, err := wt.Add(relDir); err != nil {
		return fmt.Errorf("%w: git add: %v", specid.ErrTransactionFailed, err)
	}

	msg :=fmt.Sprintf("skill: %s %s/%s@%s", op, layer, id, version)
	_, err = wt.Commit(msg, &git.CommitOptions{
		Author: &object.Signature{
			Name:  "skillwb",
			Email: "skillwb@localhost",
			When:  time.Now(),
		},
	})
	if err != nil {
		return fmt.Errorf("%w: git commit: %v", specid.ErrTransactionFailed, err)
	}
	return nil
}

func writeFileSynced(path, content string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()
	if _, err := f.WriteString(content); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := f.Sync(); err != nil {
		return fmt.Errorf("fsync %s: %w", path, err)
	}
	return nil
}

// Recover scans for orphan *.tmp / *.prev directories left behind by
// a crash between Prepare and Commit. It removes orphan temp
// directories (uncommitted work) and orphan prev directories
// (committed swaps that didn't clean up their backup), across every
// layer subdirectory.
func (a *Archive) Recover() ([]string, error) {
	byIDRoot := filepath.Join(a.root, "skills", "by-id")
	layerDirs, err := os.ReadDir(byIDRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scanning archive for recovery: %w", err)
	}

	var recovered []string
	for _, layerDir := range layerDirs {
		if !layerDir.IsDir() {
			continue
		}
		layerPath := filepath.Join(byIDRoot, layerDir.Name())
		entries, err := os.ReadDir(layerPath)
		if err != nil {
			return recovered, fmt.Errorf("scanning layer %s for recovery: %w", layerDir.Name(), err)
		}
		for _, e := range entries {
			name := e.Name()
			switch {
			case len(name) > 4 && name[len(name)-4:] == ".tmp":
				if err := os.RemoveAll(filepath.Join(layerPath, name)); err != nil {
					return recovered, fmt.Errorf("removing orphan tmp %s: %w", name, err)
				}
				recovered = append(recovered, layerDir.Name()+"/"+name)
			case len(name) > 5 && name[len(name)-5:] == ".prev":
				if err := os.RemoveAll(filepath.Join(layerPath, name)); err != nil {
					return recovered, fmt.Errorf("removing orphan prev %s: %w", name, err)
				}
				recovered = append(recovered, layerDir.Name()+"/"+name)
			}
		}
	}
	return recovered, nil
}

// SkillRef identifies one live (layer, id) directory in the archive.
type SkillRef struct {
	Layer string
	ID    string
}

// List walks the archive and returns a ref for every live skill
// directory, skipping *.tmp and *.prev leftovers.
func (a *Archive) List() ([]SkillRef, error) {
	byIDRoot := filepath.Join(a.root, "skills", "by-id")
	layerDirs, err := os.ReadDir(byIDRoot)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing archive: %w", err)
	}

	var refs []SkillRef
	for _, layerDir := range layerDirs {
		if !layerDir.IsDir() {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(byIDRoot, layerDir.Name()))
		if err != nil {
			return nil, fmt.Errorf("listing layer %s: %w", layerDir.Name(), err)
		}
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			name := e.Name()
			if strings.HasSuffix(name, ".tmp") || strings.HasSuffix(name, ".prev") {
				continue
			}
			refs = append(refs, SkillRef{Layer: layerDir.Name(), ID: name})
		}
	}
	return refs, nil
}

// EnsureCommitted checks whether the working tree under (layer, id)
// has changes git doesn't know about yet — the state a crash between
// the directory swap and the git commit leaves behind — and commits
// them if so. Returns whether a commit was made.
func (a *Archive) EnsureCommitted(layer, id, op, version string) (bool, error) {
	wt, err := a.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("%w: opening worktree: %v", specid.ErrExternalUnavailable, err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("%w: reading worktree status: %v", specid.ErrExternalUnavailable, err)
	}

	relDir, err := filepath.Rel(a.root, SkillDir(a.root, layer, id))
	if err != nil {
		return false, fmt.Errorf("computing relative skill dir: %w", err)
	}
	prefix := filepath.ToSlash(relDir) + "/"

	dirty := false
	for p, fs := range status {
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if fs.Worktree != git.Unmodified || fs.Staging != git.Unmodified {
			dirty = true
			break
		}
	}
	if !dirty {
		return false, nil
	}
	return true, a.gitCommit(layer, id, op, version)
}

// RestoreFromHistory re-materializes the live directory for (layer,
// id) from the files recorded at git HEAD. Returns ErrNotFound when
// the skill never made it into history.
func (a *Archive) RestoreFromHistory(layer, id string) error {
	head, err := a.repo.Head()
	if err != nil {
		return fmt.Errorf("%w: skill %s/%s has no git history", specid.ErrNotFound, layer, id)
	}
	commit, err := a.repo.CommitObject(head.Hash())
	if err != nil {
		return fmt.Errorf("%w: reading HEAD commit: %v", specid.ErrExternalUnavailable, err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return fmt.Errorf("%w: reading HEAD tree: %v", specid.ErrExternalUnavailable, err)
	}

	prefix := path.Join("skills", "by-id", layer, id) + "/"
	found := false
	err = tree.Files().ForEach(func(f *object.File) error {
		if !strings.HasPrefix(f.Name, prefix) {
			return nil
		}
		contents, err := f.Contents()
		if err != nil {
			return fmt.Errorf("reading %s from history: %w", f.Name, err)
		}
		dst := filepath.Join(a.root, filepath.FromSlash(f.Name))
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", filepath.Dir(dst), err)
		}
		if err := writeFileSynced(dst, contents); err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: skill %s/%s not in git history", specid.ErrNotFound, layer, id)
	}
	return nil
}
