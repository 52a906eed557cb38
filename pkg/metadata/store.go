// Package metadata implements the relational metadata store: a
// `skills` table keyed by (id, layer) with denormalized searchable
// fields, plus an `aliases` table. It is backed by modernc.org/sqlite
// so the store stays embedded and cgo-free.
package metadata

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/skillwb/skillwb/pkg/spec"
	"github.com/skillwb/skillwb/pkg/specid"
)

// Row is one (skill_id, layer) metadata record.
type Row struct {
	ID                string
	Layer             string
	Name              string
	Description       string
	Tags              []string
	Version           string
	SourcePath        string
	Deprecated        bool
	DeprecationReason string
	ContentHash       string
	UpdatedAt         time.Time
}

// Alias maps an alternate id to its canonical replacement.
type Alias struct {
	AliasID     string
	CanonicalID string
	Kind        string
	CreatedAt   time.Time
}

// Store wraps a SQL database implementing the skills/aliases schema.
type Store struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS skills (
	id                 TEXT NOT NULL,
	layer              TEXT NOT NULL,
	name               TEXT NOT NULL,
	description        TEXT NOT NULL,
	tags_csv           TEXT NOT NULL DEFAULT '',
	version            TEXT NOT NULL,
	source_path        TEXT NOT NULL DEFAULT '',
	deprecated         INTEGER NOT NULL DEFAULT 0,
	deprecation_reason TEXT NOT NULL DEFAULT '',
	content_hash       TEXT NOT NULL,
	updated_at         TEXT NOT NULL,
	PRIMARY KEY (id, layer)
);

CREATE TABLE IF NOT EXISTS aliases (
	alias_id     TEXT PRIMARY KEY,
	canonical_id TEXT NOT NULL,
	kind         TEXT NOT NULL,
	created_at   TEXT NOT NULL
);
`

// Open opens (creating if necessary) a sqlite-backed Store at path.
// Use ":memory:" for an ephemeral store, matching database/sql idiom.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening metadata db: %v", specid.ErrExternalUnavailable, err)
	}
	db.SetMaxOpenConns(1) // one writer lock, many logical readers

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: creating schema: %v", specid.ErrExternalUnavailable, err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying *sql.DB for callers (e.g. the 2PC
// coordinator) that need to participate in a transaction.
func (s *Store) DB() *sql.DB { return s.db }

// Upsert writes or replaces the row for (row.ID, row.Layer) through q,
// which is either the store's *sql.DB or an open *sql.Tx; q must not be
// nil.
func Upsert(ctx context.Context, q Queryer, row Row) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO skills (id, layer, name, description, tags_csv, version, source_path, deprecated, deprecation_reason, content_hash, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, layer) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			tags_csv = excluded.tags_csv,
			version = excluded.version,
			source_path = excluded.source_path,
			deprecated = excluded.deprecated,
			deprecation_reason = excluded.deprecation_reason,
			content_hash = excluded.content_hash,
			updated_at = excluded.updated_at
	`,
		row.ID, row.Layer, row.Name, row.Description, strings.Join(row.Tags, ","),
		row.Version, row.SourcePath, boolToInt(row.Deprecated), row.DeprecationReason,
		row.ContentHash, row.UpdatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("%w: upserting skill row: %v", specid.ErrTransactionFailed, err)
	}
	return nil
}

// Get fetches the row for (id, layer).
func (s *Store) Get(ctx context.Context, id, layer string) (*Row, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, layer, name, description, tags_csv, version, source_path, deprecated, deprecation_reason, content_hash, updated_at
		FROM skills WHERE id = ? AND layer = ?`, id, layer)
	return scanRow(row)
}

// GetAllLayers returns every row for a skill id across all layers.
func (s *Store) GetAllLayers(ctx context.Context, id string) ([]Row, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, layer, name, description, tags_csv, version, source_path, deprecated, deprecation_reason, content_hash, updated_at
		FROM skills WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("querying skill layers: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// All returns every row in the store, optionally filtered to
// non-deprecated rows.
func (s *Store) All(ctx context.Context, includeDeprecated bool) ([]Row, error) {
	query := `SELECT id, layer, name, description, tags_csv, version, source_path, deprecated, deprecation_reason, content_hash, updated_at FROM skills`
	if !includeDeprecated {
		query += ` WHERE deprecated = 0`
	}
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying all skills: %w", err)
	}
	defer rows.Close()
	return scanRows(rows)
}

// SetDeprecated flags (id, layer) deprecated or not, recording the
// reason. Clearing the flag clears the reason too.
func (s *Store) SetDeprecated(ctx context.Context, id, layer string, deprecated bool, reason string) error {
	if !deprecated {
		reason = ""
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE skills SET deprecated = ?, deprecation_reason = ? WHERE id = ? AND layer = ?`,
		boolToInt(deprecated), reason, id, layer)
	if err != nil {
		return fmt.Errorf("%w: updating deprecation: %v", specid.ErrTransactionFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking deprecation update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: skill %s/%s", specid.ErrNotFound, id, layer)
	}
	return nil
}

// Delete removes the row for (id, layer) within q.
func Delete(ctx context.Context, q Queryer, id, layer string) error {
	_, err := q.ExecContext(ctx, `DELETE FROM skills WHERE id = ? AND layer = ?`, id, layer)
	if err != nil {
		return fmt.Errorf("%w: deleting skill row: %v", specid.ErrTransactionFailed, err)
	}
	return nil
}

// UpsertAlias writes or replaces an alias record.
func (s *Store) UpsertAlias(ctx context.Context, a Alias) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO aliases (alias_id, canonical_id, kind, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(alias_id) DO UPDATE SET canonical_id = excluded.canonical_id, kind = excluded.kind
	`, a.AliasID, a.CanonicalID, a.Kind, a.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: upserting alias: %v", specid.ErrTransactionFailed, err)
	}
	return nil
}

// ResolveAlias follows an alias to its canonical id, returning ok=false
// if id is not an alias.
func (s *Store) ResolveAlias(ctx context.Context, aliasID string) (canonicalID string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, `SELECT canonical_id FROM aliases WHERE alias_id = ?`, aliasID)
	err = row.Scan(&canonicalID)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("resolving alias: %w", err)
	}
	return canonicalID, true, nil
}

// Queryer is satisfied by both *sql.DB and *sql.Tx, letting Upsert and
// Delete run either standalone or as part of the coordinator's
// transaction.
type Queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRow(r rowScanner) (*Row, error) {
	var (
		row       Row
		tagsCSV   string
		deprecInt int
		updatedAt string
	)
	err := r.Scan(&row.ID, &row.Layer, &row.Name, &row.Description, &tagsCSV, &row.Version,
		&row.SourcePath, &deprecInt, &row.DeprecationReason, &row.ContentHash, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: skill row", specid.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("scanning skill row: %w", err)
	}
	row.Tags = splitTags(tagsCSV)
	row.Deprecated = deprecInt != 0
	row.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &row, nil
}

func scanRows(rows *sql.Rows) ([]Row, error) {
	var out []Row
	for rows.Next() {
		row, err := scanRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *row)
	}
	return out, rows.Err()
}

func splitTags(csv string) []string {
	if csv == "" {
		return nil
	}
	return strings.Split(csv, ",")
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// RowFromSpec builds a metadata Row from a resolved spec and its
// content hash, the shape the coordinator writes on every commit.
func RowFromSpec(s *spec.SkillSpec, layer, sourcePath, contentHash string, updatedAt time.Time) Row {
	return Row{
		ID:          s.Metadata.ID,
		Layer:       layer,
		Name:        s.Metadata.Name,
		Description: s.Metadata.Description,
		Tags:        append([]string(nil), s.Metadata.Tags...),
		Version:     s.Metadata.Version,
		SourcePath:  sourcePath,
		ContentHash: contentHash,
		UpdatedAt:   updatedAt,
	}
}
