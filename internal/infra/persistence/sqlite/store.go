// Package sqlite provides a SQLite-backed persistent store. Transactions run
// against the in-memory engine; each commit writes the touched snapshot
// buckets and the variant projection inside one SQLite transaction before
// the new state becomes visible.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"stockcore/internal/entitymodel/sqlbundle"
	"stockcore/internal/infra/persistence/memory"
	"stockcore/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
	sqlite3 "modernc.org/sqlite/lib"
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

// DefaultPath is used when no database path is configured.
const DefaultPath = "stockcore.db"

// Store persists the catalog to a SQLite file.
type Store struct {
	*memory.Store
	db   *sql.DB
	path string
}

// NewStore opens (or creates) the database at path, applies the schema and
// hydrates the in-memory engine from the stored snapshot.
func NewStore(path string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if path == "" {
		path = DefaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps writes ordered with the in-memory commit lock.
	db.SetMaxOpenConns(1)
	ctx := context.Background()
	if err := sqlbundle.Apply(ctx, db, sqlbundle.SQLite()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	snapshot, err := load(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db, path: path}
	s.Store = memory.NewStore(engine, append(opts, memory.WithCommitHook(s.persist))...)
	s.ImportState(snapshot)
	return s, nil
}

func load(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
	rows, err := db.QueryContext(ctx, `SELECT bucket, payload FROM state`)
	if err != nil {
		return memory.Snapshot{}, fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var snapshot memory.Snapshot
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return memory.Snapshot{}, fmt.Errorf("scan: %w", err)
		}
		target, ok := snapshot.Bucket(bucket)
		if !ok || len(payload) == 0 {
			continue
		}
		if err := json.Unmarshal(payload, target); err != nil {
			return memory.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot, changes []domain.Change) (retErr error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.TouchedBuckets(changes) {
		target, _ := snapshot.Bucket(bucket)
		data, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES(?,?) ON CONFLICT(bucket) DO UPDATE SET payload=excluded.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	variants := memory.ChangedVariants(snapshot, changes)
	// UNIQUE(template_id, fingerprint) is checked per statement, so rows whose
	// fingerprints are exchanged within one commit are cleared first.
	for _, v := range variants {
		if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE id = ?`, v.ID); err != nil {
			return fmt.Errorf("clear variant %s: %w", v.ID, err)
		}
	}
	for _, v := range variants {
		attrs, err := json.Marshal(v.Attributes)
		if err != nil {
			return fmt.Errorf("encode variant %s: %w", v.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO variants(id,template_id,fingerprint,attributes,is_active,is_deleted,updated_at)
			VALUES(?,?,?,?,?,?,?)`,
			v.ID, v.TemplateID, v.Fingerprint, string(attrs), v.Lifecycle.IsActive(), v.Lifecycle.IsDeleted(), v.UpdatedAt.Format(time.RFC3339Nano)); err != nil {
			return variantWriteError(v, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// codedError is implemented by driver errors that carry an extended SQLite
// result code.
type codedError interface {
	error
	Code() int
}

// variantWriteError maps a violation of the (template, fingerprint) constraint
// onto the domain conflict error.
func variantWriteError(v domain.Variant, err error) error {
	var coded codedError
	if errors.As(err, &coded) && coded.Code() == sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return &domain.DuplicateFingerprintError{TemplateID: v.TemplateID, Fingerprint: v.Fingerprint}
	}
	return fmt.Errorf("insert variant %s: %w", v.ID, err)
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Path returns the configured database path.
func (s *Store) Path() string { return s.path }
