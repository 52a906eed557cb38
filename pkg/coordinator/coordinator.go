// Package coordinator implements the two-phase commit protocol that
// keeps the three skill stores consistent: every write must land,
// atomically, in the git archive, the metadata DB, and the search
// index, or in none of them. The coordinator is the only writer
// allowed to produce archive commits.
package coordinator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/skillwb/skillwb/pkg/archive"
	"github.com/skillwb/skillwb/pkg/metadata"
	"github.com/skillwb/skillwb/pkg/spec"
	"github.com/skillwb/skillwb/pkg/specid"
)

// StagedSegment is a search-index segment prepared but not yet
// promoted into the live index.
type StagedSegment interface {
	// Promote makes the staged segment visible to search.
	Promote(ctx context.Context) error
	// Discard abandons the staged segment without promoting it.
	Discard(ctx context.Context) error
}

// IndexWriter is the seam the coordinator uses to stage and promote
// search index segments. pkg/searchindex implements this interface;
// the coordinator depends only on the interface so the two packages
// can be built and tested independently.
type IndexWriter interface {
	PrepareSegment(ctx context.Context, layer, id string, s *spec.SkillSpec) (StagedSegment, error)
	// Rebuild re-materializes the index doc for id from its current
	// archive+metadata state, used during crash recovery.
	Rebuild(ctx context.Context, layer, id string, deprecated bool, s *spec.SkillSpec) error
	// Remove drops id's document from the live index.
	Remove(ctx context.Context, id string) error
	// SetDeprecated mirrors the metadata deprecation flag onto id's
	// live index doc.
	SetDeprecated(ctx context.Context, id string, deprecated bool) error
}

// Op names used in the deterministic commit message.
const (
	OpUpsert = "upsert"
	OpRemove = "remove"
)

// Coordinator ties together the archive, metadata store, and search
// index behind a single serialized write path.
type Coordinator struct {
	Archive  *archive.Archive
	Metadata *metadata.Store
	Index    IndexWriter

	locks sync.Map // key: "<layer>/<id>" -> *sync.Mutex
}

// New builds a Coordinator over the three stores. idx may be nil in
// tests that only exercise archive+metadata wiring; Write then skips
// index staging.
func New(a *archive.Archive, m *metadata.Store, idx IndexWriter) *Coordinator {
	return &Coordinator{Archive: a, Metadata: m, Index: idx}
}

func (c *Coordinator) lockFor(layer, id string) *sync.Mutex {
	key := layer + "/" + id
	l, _ := c.locks.LoadOrStore(key, &sync.Mutex{})
	return l.(*sync.Mutex)
}

// Write runs the full Prepare/Decision/Commit protocol for an upsert
// of s at layer. On success the archive, metadata DB, and search index
// all reflect s; on any failure none of them do.
func (c *Coordinator) Write(ctx context.Context, s *spec.SkillSpec, layer string) error {
	return c.writeOp(ctx, s, layer, OpUpsert)
}

func (c *Coordinator) writeOp(ctx context.Context, s *spec.SkillSpec, layer, op string) error {
	id := s.Metadata.ID
	mu := c.lockFor(layer, id)
	if !mu.TryLock() {
		return fmt.Errorf("%w: skill %s/%s is locked by another writer", specid.ErrTransactionFailed, layer, id)
	}
	defer mu.Unlock()

	// Prepare: canonical JSON and content hash.
	canonicalJSON, err := spec.SerializeJSON(s)
	if err != nil {
		return fmt.Errorf("%w: serializing canonical json: %v", specid.ErrTransactionFailed, err)
	}
	contentHash := sha256Hex(canonicalJSON)

	md, err := spec.SerializeMarkdown(s)
	if err != nil {
		return fmt.Errorf("%w: serializing markdown: %v", specid.ErrTransactionFailed, err)
	}

	// Stage the archive write next to the live directory.
	if _, err := c.Archive.StageWrite(layer, id, md, canonicalJSON); err != nil {
		return fmt.Errorf("%w: staging archive write: %v", specid.ErrTransactionFailed, err)
	}
	rollbackFS := func() { _ = c.Archive.RollbackStaged(layer, id) }

	// Stage the metadata upsert inside a DB tx held open until Commit.
	tx, err := c.Metadata.DB().BeginTx(ctx, nil)
	if err != nil {
		rollbackFS()
		return fmt.Errorf("%w: opening metadata transaction: %v", specid.ErrTransactionFailed, err)
	}
	row := metadata.RowFromSpec(s, layer, archive.SkillDir("", layer, id), contentHash, time.Now())
	if err := metadata.Upsert(ctx, tx, row); err != nil {
		_ = tx.Rollback()
		rollbackFS()
		return fmt.Errorf("%w: staging metadata upsert: %v", specid.ErrTransactionFailed, err)
	}

	// Stage a search index segment.
	var staged StagedSegment
	if c.Index != nil {
		staged, err = c.Index.PrepareSegment(ctx, layer, id, s)
		if err != nil {
			_ = tx.Rollback()
			rollbackFS()
			return fmt.Errorf("%w: staging search segment: %v", specid.ErrTransactionFailed, err)
		}
	}

	// Decision: everything above succeeded, proceed to Commit.

	// Commit: atomic directory swap + git commit.
	if err := c.Archive.CommitSwap(layer, id, op, s.Metadata.Version); err != nil {
		_ = tx.Rollback()
		if staged != nil {
			_ = staged.Discard(ctx)
		}
		return fmt.Errorf("%w: committing archive swap: %v", specid.ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		if staged != nil {
			_ = staged.Discard(ctx)
		}
		return fmt.Errorf("%w: committing metadata transaction: %v", specid.ErrTransactionFailed, err)
	}

	// Promote the staged search segment last; a crash here is healed
	// by Recover's index rebuild.
	if staged != nil {
		if err := staged.Promote(ctx); err != nil {
			return fmt.Errorf("%w: promoting search segment: %v", specid.ErrTransactionFailed, err)
		}
	}

	return nil
}

// Remove runs the 2PC protocol for deleting a skill at layer: metadata
// row and search doc are dropped, and the archive directory is
// removed via a commit recording the removal.
func (c *Coordinator) Remove(ctx context.Context, id, layer, version string) error {
	mu := c.lockFor(layer, id)
	if !mu.TryLock() {
		return fmt.Errorf("%w: skill %s/%s is locked by another writer", specid.ErrTransactionFailed, layer, id)
	}
	defer mu.Unlock()

	// Stage the metadata delete inside a DB tx held open until Commit,
	// same as writeOp.
	tx, err := c.Metadata.DB().BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: opening metadata transaction: %v", specid.ErrTransactionFailed, err)
	}
	if err := metadata.Delete(ctx, tx, id, layer); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: staging metadata delete: %v", specid.ErrTransactionFailed, err)
	}

	// Decision: metadata delete staged, proceed to Commit.

	// Remove the archive directory and record the removal in a git
	// commit tagged with OpRemove.
	if err := c.Archive.RemoveSkill(layer, id, OpRemove, version); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("%w: removing archive directory: %v", specid.ErrTransactionFailed, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("%w: committing metadata delete: %v", specid.ErrTransactionFailed, err)
	}

	// Drop the search doc last.
	if c.Index != nil {
		if err := c.Index.Remove(ctx, id); err != nil {
			return fmt.Errorf("%w: removing search doc: %v", specid.ErrTransactionFailed, err)
		}
	}

	return nil
}

// Deprecate retires a skill at layer without touching its archive
// bytes: the metadata row is flagged with a reason, the index doc is
// flagged so default searches stop surfacing it, and an alias to a
// replacement is recorded when one is named. Clearing works the same
// way with deprecated=false.
func (c *Coordinator) Deprecate(ctx context.Context, id, layer string, deprecated bool, reason, replacement string) error {
	mu := c.lockFor(layer, id)
	if !mu.TryLock() {
		return fmt.Errorf("%w: skill %s/%s is locked by another writer", specid.ErrTransactionFailed, layer, id)
	}
	defer mu.Unlock()

	if err := c.Metadata.SetDeprecated(ctx, id, layer, deprecated, reason); err != nil {
		return err
	}
	if replacement != "" {
		alias := metadata.Alias{AliasID: id, CanonicalID: replacement, Kind: "deprecation", CreatedAt: time.Now()}
		if err := c.Metadata.UpsertAlias(ctx, alias); err != nil {
			return err
		}
	}
	if c.Index != nil {
		if err := c.Index.SetDeprecated(ctx, id, deprecated); err != nil {
			return fmt.Errorf("%w: mirroring deprecation into index: %v", specid.ErrTransactionFailed, err)
		}
	}
	return nil
}

// Recover restores cross-store consistency after a crash. It removes
// orphan staging and backup directories, replays live directories the
// DB never heard about (crash after the directory swap, before the DB
// commit), re-materializes directories from git history for DB rows
// whose on-disk state is gone, and rebuilds the index doc for every
// surviving skill. The end state is always equivalent to "the write
// never happened" or "the write completed".
func (c *Coordinator) Recover(ctx context.Context) ([]string, error) {
	recovered, err := c.Archive.Recover()
	if err != nil {
		return recovered, fmt.Errorf("recovering archive: %w", err)
	}

	// Replay forward: a live directory whose content hash the DB does
	// not carry means the swap landed but the git commit and/or DB
	// commit did not. The directory is authoritative at this point, so
	// finish the write on its behalf.
	refs, err := c.Archive.List()
	if err != nil {
		return recovered, fmt.Errorf("listing archive for recovery: %w", err)
	}
	for _, ref := range refs {
		s, err := c.Archive.ReadSpec(ref.Layer, ref.ID)
		if err != nil {
			continue
		}
		canonicalJSON, err := spec.SerializeJSON(s)
		if err != nil {
			continue
		}
		hash := sha256Hex(canonicalJSON)

		committed, err := c.Archive.EnsureCommitted(ref.Layer, ref.ID, OpUpsert, s.Metadata.Version)
		if err != nil {
			return recovered, fmt.Errorf("replaying git commit for %s/%s: %w", ref.Layer, ref.ID, err)
		}

		row, err := c.Metadata.Get(ctx, ref.ID, ref.Layer)
		if err == nil && row.ContentHash == hash {
			if committed {
				recovered = append(recovered, ref.Layer+"/"+ref.ID)
			}
			continue
		}
		newRow := metadata.RowFromSpec(s, ref.Layer, archive.SkillDir("", ref.Layer, ref.ID), hash, time.Now())
		if err := metadata.Upsert(ctx, c.Metadata.DB(), newRow); err != nil {
			return recovered, fmt.Errorf("replaying metadata row for %s/%s: %w", ref.Layer, ref.ID, err)
		}
		recovered = append(recovered, ref.Layer+"/"+ref.ID)
	}

	// Re-materialize: a committed DB row whose directory is missing is
	// restored from git history; a row with no history left to restore
	// from is dropped.
	rows, err := c.Metadata.All(ctx, true)
	if err != nil {
		return recovered, fmt.Errorf("listing metadata rows for recovery: %w", err)
	}
	for _, row := range rows {
		if c.Archive.Exists(row.Layer, row.ID) {
			continue
		}
		if err := c.Archive.RestoreFromHistory(row.Layer, row.ID); err != nil {
			if errors.Is(err, specid.ErrNotFound) {
				_ = metadata.Delete(ctx, c.Metadata.DB(), row.ID, row.Layer)
				continue
			}
			return recovered, fmt.Errorf("restoring %s/%s from history: %w", row.Layer, row.ID, err)
		}
		recovered = append(recovered, row.Layer+"/"+row.ID)
	}

	if c.Index == nil {
		return recovered, nil
	}

	// A crash between the DB commit and segment promotion leaves the
	// index missing a doc the other two stores agree on. Rebuild is
	// idempotent, so every surviving skill is re-derived.
	rows, err = c.Metadata.All(ctx, true)
	if err != nil {
		return recovered, fmt.Errorf("listing metadata rows for index rebuild: %w", err)
	}
	for _, row := range rows {
		s, err := c.Archive.ReadSpec(row.Layer, row.ID)
		if err != nil {
			continue
		}
		if err := c.Index.Rebuild(ctx, row.Layer, row.ID, row.Deprecated, s); err != nil {
			return recovered, fmt.Errorf("rebuilding index doc for %s: %w", row.ID, err)
		}
	}
	return recovered, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
