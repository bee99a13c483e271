// Package postgres provides a Postgres-backed persistent store that mirrors the
// in-memory semantics while applying the schema bundle on startup.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"stockcore/internal/entitymodel/sqlbundle"
	"stockcore/internal/infra/persistence/memory"
	"stockcore/pkg/domain"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion ensuring the store satisfies the domain interface.
var _ domain.PersistentStore = (*Store)(nil)

const (
	defaultDriver = "pgx"
	// Default DSN keeps parity with OpenPersistentStore defaults while allowing overrides via env.
	defaultDSN = "postgres://localhost/stockcore?sslmode=disable"

	uniqueViolation              = "23505"
	variantFingerprintConstraint = "variants_template_fingerprint_key"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// Store persists state to Postgres while reusing the in-memory implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back to defaultDSN).
// It applies the schema bundle and hydrates the in-memory store from any
// existing snapshot. Every later commit is written through before it
// becomes visible.
func NewStore(dsn string, engine *domain.RulesEngine, opts ...memory.Option) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := sqlbundle.Apply(ctx, db, sqlbundle.Postgres()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	snapshot, err := loadSnapshot(ctx, db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s := &Store{db: db}
	s.Store = memory.NewStore(engine, append(opts, memory.WithCommitHook(s.persist))...)
	s.ImportState(snapshot)
	return s, nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

// Close releases the connection pool.
func (s *Store) Close() error { return s.db.Close() }

func loadSnapshot(ctx context.Context, db *sql.DB) (memory.Snapshot, error) {
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
			return memory.Snapshot{}, fmt.Errorf("scan state: %w", err)
		}
		if len(payload) == 0 {
			continue
		}
		if target, ok := snapshot.Bucket(bucket); ok {
			if err := json.Unmarshal(payload, target); err != nil {
				return memory.Snapshot{}, fmt.Errorf("decode %s: %w", bucket, err)
			}
		}
	}
	if err := rows.Err(); err != nil {
		return memory.Snapshot{}, fmt.Errorf("iterate state: %w", err)
	}
	return snapshot, nil
}

func (s *Store) persist(ctx context.Context, snapshot memory.Snapshot, changes []domain.Change) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	for _, bucket := range memory.TouchedBuckets(changes) {
		target, _ := snapshot.Bucket(bucket)
		data, err := json.Marshal(target)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO state(bucket,payload) VALUES($1,$2) ON CONFLICT(bucket) DO UPDATE SET payload=EXCLUDED.payload`, bucket, data); err != nil {
			return fmt.Errorf("upsert %s: %w", bucket, err)
		}
	}
	variants := memory.ChangedVariants(snapshot, changes)
	// The fingerprint constraint is not deferred; clearing the changed rows
	// first lets one commit exchange fingerprints between variants.
	for _, v := range variants {
		if _, err := tx.ExecContext(ctx, `DELETE FROM variants WHERE id = $1`, v.ID); err != nil {
			return fmt.Errorf("clear variant %s: %w", v.ID, err)
		}
	}
	for _, v := range variants {
		attrs, err := json.Marshal(v.Attributes)
		if err != nil {
			return fmt.Errorf("encode variant %s: %w", v.ID, err)
		}
		_, err = tx.ExecContext(ctx, `INSERT INTO variants(id,template_id,fingerprint,attributes,is_active,is_deleted,updated_at)
			VALUES($1,$2,$3,$4,$5,$6,$7)`,
			v.ID, v.TemplateID, v.Fingerprint, attrs, v.Lifecycle.IsActive(), v.Lifecycle.IsDeleted(), v.UpdatedAt)
		if err != nil {
			return variantWriteError(v, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

// variantWriteError maps a violation of the (template, fingerprint) constraint
// onto the domain conflict error.
func variantWriteError(v domain.Variant, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName == variantFingerprintConstraint {
		return &domain.DuplicateFingerprintError{TemplateID: v.TemplateID, Fingerprint: v.Fingerprint}
	}
	return fmt.Errorf("insert variant %s: %w", v.ID, err)
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
