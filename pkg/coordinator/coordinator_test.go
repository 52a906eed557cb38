package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skillwb/skillwb/pkg/archive"
	"github.com/skillwb/skillwb/pkg/metadata"
	"github.com/skillwb/skillwb/pkg/spec"
)

type fakeSegment struct {
	promoted, discarded bool
}

func (f *fakeSegment) Promote(ctx context.Context) error { f.promoted = true; return nil }
func (f *fakeSegment) Discard(ctx context.Context) error { f.discarded = true; return nil }

type fakeIndex struct {
	mu         sync.Mutex
	prepared   map[string]*fakeSegment
	rebuilt    map[string]int
	removed    []string
	deprecated map[string]bool
	failStage  bool
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{prepared: map[string]*fakeSegment{}, rebuilt: map[string]int{}}
}

func (f *fakeIndex) PrepareSegment(ctx context.Context, layer, id string, s *spec.SkillSpec) (StagedSegment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStage {
		return nil, assertErr
	}
	seg := &fakeSegment{}
	f.prepared[id] = seg
	return seg, nil
}

func (f *fakeIndex) Rebuild(ctx context.Context, layer, id string, deprecated bool, s *spec.SkillSpec) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rebuilt[id]++
	return nil
}

func (f *fakeIndex) Remove(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, id)
	return nil
}

func (f *fakeIndex) SetDeprecated(ctx context.Context, id string, deprecated bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deprecated == nil {
		f.deprecated = map[string]bool{}
	}
	f.deprecated[id] = deprecated
	return nil
}

var assertErr = &staticErr{"staging failed"}

type staticErr struct{ msg string }

func (e *staticErr) Error() string { return e.msg }

func demoSpec() *spec.SkillSpec {
	return &spec.SkillSpec{
		FormatVersion: spec.FormatVersion,
		Metadata: spec.SkillMetadata{
			ID:      "demo-skill",
			Name:    "Demo Skill",
			Version: "1.0.0",
		},
		Sections: []spec.SkillSection{
			{ID: "overview", Title: "Overview", Blocks: []spec.SkillBlock{
				{ID: "b1", Type: spec.BlockText, Content: "demo text"},
			}},
		},
	}
}

func newTestCoordinator(t *testing.T) (*Coordinator, *fakeIndex) {
	t.Helper()
	dir := t.TempDir()
	a, err := archive.Open(dir)
	require.NoError(t, err)
	m, err := metadata.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	idx := newFakeIndex()
	return New(a, m, idx), idx
}

func TestWrite_CommitsAllThreeStores(t *testing.T) {
	c, idx := newTestCoordinator(t)
	ctx := context.Background()

	require.NoError(t, c.Write(ctx, demoSpec(), "base"))

	assert.True(t, c.Archive.Exists("base", "demo-skill"))
	row, err := c.Metadata.Get(ctx, "demo-skill", "base")
	require.NoError(t, err)
	assert.Equal(t, "Demo Skill", row.Name)

	seg := idx.prepared["demo-skill"]
	require.NotNil(t, seg)
	assert.True(t, seg.promoted)
	assert.False(t, seg.discarded)
}

func TestWrite_IndexFailureRollsBackArchiveAndMetadata(t *testing.T) {
	c, idx := newTestCoordinator(t)
	idx.failStage = true
	ctx := context.Background()

	err := c.Write(ctx, demoSpec(), "base")
	require.Error(t, err)

	assert.False(t, c.Archive.Exists("base", "demo-skill"))
	_, err = c.Metadata.Get(ctx, "demo-skill", "base")
	assert.Error(t, err, "metadata transaction must have rolled back")
}

func TestWrite_LockContentionFailsFast(t *testing.T) {
	c, _ := newTestCoordinator(t)
	mu := c.lockFor("base", "demo-skill")
	mu.Lock()
	defer mu.Unlock()

	err := c.Write(context.Background(), demoSpec(), "base")
	assert.Error(t, err)
}

func TestRemove_DropsMetadataAndIndex(t *testing.T) {
	c, idx := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, c.Write(ctx, demoSpec(), "base"))
	require.True(t, c.Archive.Exists("base", "demo-skill"))

	require.NoError(t, c.Remove(ctx, "demo-skill", "base", "1.0.0"))

	_, err := c.Metadata.Get(ctx, "demo-skill", "base")
	assert.Error(t, err)
	assert.Contains(t, idx.removed, "demo-skill")
	assert.False(t, c.Archive.Exists("base", "demo-skill"), "archive directory must be removed alongside metadata")
}

func TestRemove_UnknownSkillFailsWithoutTouchingIndex(t *testing.T) {
	c, idx := newTestCoordinator(t)
	ctx := context.Background()

	err := c.Remove(ctx, "missing-skill", "base", "1.0.0")
	assert.Error(t, err)
	assert.Empty(t, idx.removed)
}

func TestRecover_RebuildsIndexForLiveRows(t *testing.T) {
	c, idx := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, c.Write(ctx, demoSpec(), "base"))

	_, err := c.Recover(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, idx.rebuilt["demo-skill"])
}

func TestDeprecate_FlagsRowAndIndexAndAlias(t *testing.T) {
	c, idx := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, c.Write(ctx, demoSpec(), "base"))

	require.NoError(t, c.Deprecate(ctx, "demo-skill", "base", true, "superseded", "demo-skill-v2"))

	row, err := c.Metadata.Get(ctx, "demo-skill", "base")
	require.NoError(t, err)
	assert.True(t, row.Deprecated)
	assert.Equal(t, "superseded", row.DeprecationReason)
	assert.True(t, idx.deprecated["demo-skill"])

	canonical, ok, err := c.Metadata.ResolveAlias(ctx, "demo-skill")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "demo-skill-v2", canonical)
}

func TestDeprecate_UnknownSkill(t *testing.T) {
	c, _ := newTestCoordinator(t)
	err := c.Deprecate(context.Background(), "missing-skill", "base", true, "gone", "")
	assert.Error(t, err)
}

// TestRecover_ReplaysSwappedDirectory simulates a crash after the
// directory swap but before the git commit and DB commit: the live
// directory is present, git and the DB know nothing. Recover must
// finish the write on the directory's behalf.
func TestRecover_ReplaysSwappedDirectory(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	s := demoSpec()
	canonicalJSON, err := spec.SerializeJSON(s)
	require.NoError(t, err)
	md, err := spec.SerializeMarkdown(s)
	require.NoError(t, err)

	staged, err := c.Archive.StageWrite("base", "demo-skill", md, canonicalJSON)
	require.NoError(t, err)
	require.NoError(t, os.Rename(staged, archive.SkillDir(c.Archive.Root(), "base", "demo-skill")))

	recovered, err := c.Recover(ctx)
	require.NoError(t, err)
	assert.Contains(t, recovered, "base/demo-skill")

	row, err := c.Metadata.Get(ctx, "demo-skill", "base")
	require.NoError(t, err)
	sum := sha256.Sum256([]byte(canonicalJSON))
	assert.Equal(t, hex.EncodeToString(sum[:]), row.ContentHash)

	repo, err := git.PlainOpen(c.Archive.Root())
	require.NoError(t, err)
	head, err := repo.Head()
	require.NoError(t, err)
	commit, err := repo.CommitObject(head.Hash())
	require.NoError(t, err)
	assert.Equal(t, "skill: upsert base/demo-skill@1.0.0", commit.Message)

	// A second run finds nothing left to replay.
	recovered, err = c.Recover(ctx)
	require.NoError(t, err)
	assert.Empty(t, recovered)
}

// TestRecover_RestoresMissingDirectoryFromHistory covers the inverse
// hole: the DB row survived but the live directory is gone. Recover
// re-materializes it from git history.
func TestRecover_RestoresMissingDirectoryFromHistory(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()
	require.NoError(t, c.Write(ctx, demoSpec(), "base"))

	require.NoError(t, os.RemoveAll(archive.SkillDir(c.Archive.Root(), "base", "demo-skill")))

	recovered, err := c.Recover(ctx)
	require.NoError(t, err)
	assert.Contains(t, recovered, "base/demo-skill")
	assert.True(t, c.Archive.Exists("base", "demo-skill"))

	restored, err := c.Archive.ReadSpec("base", "demo-skill")
	require.NoError(t, err)
	assert.Equal(t, "Demo Skill", restored.Metadata.Name)
}

// TestRecover_DropsRowWithNoHistory: a DB row whose directory is gone
// and was never committed to git cannot be restored; the row is
// dropped rather than left pointing at nothing.
func TestRecover_DropsRowWithNoHistory(t *testing.T) {
	c, _ := newTestCoordinator(t)
	ctx := context.Background()

	row := metadata.Row{ID: "ghost-skill", Layer: "base", Name: "Ghost", Version: "1.0.0", ContentHash: "h", UpdatedAt: time.Now()}
	require.NoError(t, metadata.Upsert(ctx, c.Metadata.DB(), row))

	_, err := c.Recover(ctx)
	require.NoError(t, err)
	_, err = c.Metadata.Get(ctx, "ghost-skill", "base")
	assert.Error(t, err)
}
