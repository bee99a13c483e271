// Package memory provides an in-memory implementation of the catalog
// persistence store used for tests, ephemeral environments, and as the
// transactional engine underneath the durable backends.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"stockcore/pkg/domain"

	"github.com/google/uuid"
)

// Compile-time contract assertion ensuring memory.Store adheres to the domain persistence interface.
var _ domain.PersistentStore = (*Store)(nil)

type fpKey struct {
	template    string
	fingerprint string
}

type memoryState struct {
	categories map[string]domain.Category
	units      map[string]domain.UnitOfMeasure
	attributes map[string]domain.Attribute
	templates  map[string]domain.Template
	variants   map[string]domain.Variant
	lots       map[string]domain.Lot
	barcodes   map[string]domain.Barcode

	// fingerprints indexes variants by (template, fingerprint).
	fingerprints map[fpKey]string
}

func newMemoryState() memoryState {
	return memoryState{
		categories:   make(map[string]domain.Category),
		units:        make(map[string]domain.UnitOfMeasure),
		attributes:   make(map[string]domain.Attribute),
		templates:    make(map[string]domain.Template),
		variants:     make(map[string]domain.Variant),
		lots:         make(map[string]domain.Lot),
		barcodes:     make(map[string]domain.Barcode),
		fingerprints: make(map[fpKey]string),
	}
}

func cloneTable[T any](in map[string]T, clone func(T) T) map[string]T {
	out := make(map[string]T, len(in))
	for k, v := range in {
		out[k] = clone(v)
	}
	return out
}

func (s memoryState) clone() memoryState {
	cloned := memoryState{
		categories:   cloneTable(s.categories, cloneCategory),
		units:        cloneTable(s.units, cloneUnit),
		attributes:   cloneTable(s.attributes, cloneAttribute),
		templates:    cloneTable(s.templates, cloneTemplate),
		variants:     cloneTable(s.variants, cloneVariant),
		lots:         cloneTable(s.lots, cloneLot),
		barcodes:     cloneTable(s.barcodes, cloneBarcode),
		fingerprints: make(map[fpKey]string, len(s.fingerprints)),
	}
	for k, v := range s.fingerprints {
		cloned.fingerprints[k] = v
	}
	return cloned
}

func (s *memoryState) reindex() {
	s.fingerprints = make(map[fpKey]string, len(s.variants))
	for id, v := range s.variants {
		s.fingerprints[fpKey{v.TemplateID, v.Fingerprint}] = id
	}
}

func cloneCategory(c domain.Category) domain.Category     { return c }
func cloneUnit(u domain.UnitOfMeasure) domain.UnitOfMeasure { return u }
func cloneLot(l domain.Lot) domain.Lot                      { return l }

func cloneAttribute(a domain.Attribute) domain.Attribute {
	cp := a
	cp.Values = append([]domain.AttributeValue(nil), a.Values...)
	return cp
}

func cloneTemplate(t domain.Template) domain.Template {
	cp := t
	cp.AttributeIDs = append([]string(nil), t.AttributeIDs...)
	if t.CategoryID != nil {
		id := *t.CategoryID
		cp.CategoryID = &id
	}
	return cp
}

func cloneVariant(v domain.Variant) domain.Variant {
	cp := v
	cp.Attributes = make(map[string]string, len(v.Attributes))
	for k, val := range v.Attributes {
		cp.Attributes[k] = val
	}
	cp.Prices = make(map[string]int64, len(v.Prices))
	for k, p := range v.Prices {
		cp.Prices[k] = p
	}
	return cp
}

func cloneBarcode(b domain.Barcode) domain.Barcode {
	cp := b
	if b.Code != nil {
		cp.Code = make(map[string]string, len(b.Code))
		for k, v := range b.Code {
			cp.Code[k] = v
		}
	}
	return cp
}

// CommitHook persists a snapshot of the state a transaction is about to
// commit. It runs while the store lock is held and before the new state
// becomes visible; an error aborts the commit.
type CommitHook func(ctx context.Context, snapshot Snapshot, changes []domain.Change) error

// Option configures a Store.
type Option func(*Store)

// WithCommitHook installs a durable persistence step.
func WithCommitHook(hook CommitHook) Option {
	return func(s *Store) { s.commitHook = hook }
}

// WithClock overrides the time source used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.nowFn = now }
}

// WithIDGenerator overrides record id generation.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) { s.newID = gen }
}

// Store provides an in-memory transactional store for the catalog. A single
// writer lock serialises transactions, so each transaction observes and
// commits a consistent state.
type Store struct {
	mu         sync.RWMutex
	state      memoryState
	engine     *domain.RulesEngine
	nowFn      func() time.Time
	newID      func() string
	commitHook CommitHook
}

// NewStore constructs an in-memory store backed by the provided rules engine.
func NewStore(engine *domain.RulesEngine, opts ...Option) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	s := &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

// RulesEngine exposes the configured engine so callers can register rules.
func (s *Store) RulesEngine() *domain.RulesEngine {
	return s.engine
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// RunInTransaction executes fn against a copy of the current state. Rules are
// evaluated against the resulting state; blocking violations, an error from
// fn, a cancelled context, or a failing commit hook discard the copy.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return domain.Result{}, err
	}
	tx := &transaction{
		store: s,
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	tx.transactionView = transactionView{state: &tx.state}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil && len(tx.changes) > 0 {
		res, err := s.engine.Evaluate(ctx, tx.transactionView, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}
	if err := ctx.Err(); err != nil {
		return result, err
	}
	if s.commitHook != nil && len(tx.changes) > 0 {
		if err := s.commitHook(ctx, snapshotFromMemoryState(tx.state), tx.changes); err != nil {
			return result, fmt.Errorf("persist commit: %w", err)
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against the committed state under a read lock.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return fn(transactionView{state: &s.state})
}

type transaction struct {
	transactionView
	store   *Store
	state   memoryState
	changes []domain.Change
	now     time.Time
}

func (tx *transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() domain.TransactionView {
	return tx.transactionView
}

// SetState assigns one lifecycle flag to a record.
func (tx *transaction) SetState(ref domain.EntityRef, flag domain.StateFlag) error {
	if !flag.Valid() {
		return fmt.Errorf("%w: %d", domain.ErrUnknownStateFlag, uint8(flag))
	}
	switch ref.Entity {
	case domain.EntityCategory:
		return setState(tx, categoryKind, ref.ID, flag)
	case domain.EntityUnitOfMeasure:
		return setState(tx, unitKind, ref.ID, flag)
	case domain.EntityAttribute:
		return setState(tx, attributeKind, ref.ID, flag)
	case domain.EntityTemplate:
		return setState(tx, templateKind, ref.ID, flag)
	case domain.EntityVariant:
		return setState(tx, variantKind, ref.ID, flag)
	case domain.EntityLot:
		return setState(tx, lotKind, ref.ID, flag)
	case domain.EntityBarcode:
		return setState(tx, barcodeKind, ref.ID, flag)
	default:
		return domain.ErrNotFound{Entity: ref.Entity, ID: ref.ID}
	}
}

// CreateCategory stores a new category.
func (tx *transaction) CreateCategory(c domain.Category) (domain.Category, error) {
	return create(tx, categoryKind, c, domain.NewLifecycleState())
}

// UpdateCategory mutates an existing category.
func (tx *transaction) UpdateCategory(id string, mutator func(*domain.Category) error) (domain.Category, error) {
	return update(tx, categoryKind, id, mutator)
}

// CreateUnitOfMeasure stores a new unit.
func (tx *transaction) CreateUnitOfMeasure(u domain.UnitOfMeasure) (domain.UnitOfMeasure, error) {
	return create(tx, unitKind, u, domain.NewLifecycleState())
}

// UpdateUnitOfMeasure mutates an existing unit.
func (tx *transaction) UpdateUnitOfMeasure(id string, mutator func(*domain.UnitOfMeasure) error) (domain.UnitOfMeasure, error) {
	return update(tx, unitKind, id, mutator)
}

// CreateAttribute stores a new attribute domain.
func (tx *transaction) CreateAttribute(a domain.Attribute) (domain.Attribute, error) {
	return create(tx, attributeKind, a, domain.NewLifecycleState())
}

// UpdateAttribute mutates an attribute domain.
func (tx *transaction) UpdateAttribute(id string, mutator func(*domain.Attribute) error) (domain.Attribute, error) {
	return update(tx, attributeKind, id, mutator)
}

// CreateTemplate stores a new template after gating its references.
func (tx *transaction) CreateTemplate(t domain.Template) (domain.Template, error) {
	return create(tx, templateKind, t, domain.NewLifecycleState())
}

// UpdateTemplate mutates a template; newly assigned references are gated.
func (tx *transaction) UpdateTemplate(id string, mutator func(*domain.Template) error) (domain.Template, error) {
	return update(tx, templateKind, id, mutator)
}

// CreateVariant stores a variant with the supplied lifecycle state.
func (tx *transaction) CreateVariant(v domain.Variant, state domain.LifecycleState) (domain.Variant, error) {
	return create(tx, variantKind, v, state)
}

// UpdateVariant mutates a variant and refreshes its fingerprint.
func (tx *transaction) UpdateVariant(id string, mutator func(*domain.Variant) error) (domain.Variant, error) {
	return update(tx, variantKind, id, mutator)
}

// CreateLot stores a new lot.
func (tx *transaction) CreateLot(l domain.Lot) (domain.Lot, error) {
	return create(tx, lotKind, l, domain.NewLifecycleState())
}

// UpdateLot mutates a lot.
func (tx *transaction) UpdateLot(id string, mutator func(*domain.Lot) error) (domain.Lot, error) {
	return update(tx, lotKind, id, mutator)
}

// CreateBarcode stores a new barcode.
func (tx *transaction) CreateBarcode(b domain.Barcode) (domain.Barcode, error) {
	return create(tx, barcodeKind, b, domain.NewLifecycleState())
}

// UpdateBarcode mutates a barcode.
func (tx *transaction) UpdateBarcode(id string, mutator func(*domain.Barcode) error) (domain.Barcode, error) {
	return update(tx, barcodeKind, id, mutator)
}

type transactionView struct {
	state *memoryState
}

// Lifecycle returns the lifecycle state of any record.
func (v transactionView) Lifecycle(ref domain.EntityRef) (domain.LifecycleState, bool) {
	switch ref.Entity {
	case domain.EntityCategory:
		return lifecycleOf(v.state, categoryKind, ref.ID)
	case domain.EntityUnitOfMeasure:
		return lifecycleOf(v.state, unitKind, ref.ID)
	case domain.EntityAttribute:
		return lifecycleOf(v.state, attributeKind, ref.ID)
	case domain.EntityTemplate:
		return lifecycleOf(v.state, templateKind, ref.ID)
	case domain.EntityVariant:
		return lifecycleOf(v.state, variantKind, ref.ID)
	case domain.EntityLot:
		return lifecycleOf(v.state, lotKind, ref.ID)
	case domain.EntityBarcode:
		return lifecycleOf(v.state, barcodeKind, ref.ID)
	default:
		return domain.LifecycleState{}, false
	}
}

// ListRefs returns every record of the given type ordered by id.
func (v transactionView) ListRefs(entity domain.EntityType) []domain.EntityRef {
	var ids []string
	switch entity {
	case domain.EntityCategory:
		ids = sortedIDs(v.state.categories)
	case domain.EntityUnitOfMeasure:
		ids = sortedIDs(v.state.units)
	case domain.EntityAttribute:
		ids = sortedIDs(v.state.attributes)
	case domain.EntityTemplate:
		ids = sortedIDs(v.state.templates)
	case domain.EntityVariant:
		ids = sortedIDs(v.state.variants)
	case domain.EntityLot:
		ids = sortedIDs(v.state.lots)
	case domain.EntityBarcode:
		ids = sortedIDs(v.state.barcodes)
	}
	refs := make([]domain.EntityRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, domain.Ref(entity, id))
	}
	return refs
}

// OwnersOf returns the ids of records referencing targetID through decl.
func (v transactionView) OwnersOf(decl domain.ReferenceDecl, targetID string) []string {
	switch decl.Owner {
	case domain.EntityTemplate:
		return ownersOf(v.state, templateKind, decl.Field, targetID)
	case domain.EntityVariant:
		return ownersOf(v.state, variantKind, decl.Field, targetID)
	case domain.EntityLot:
		return ownersOf(v.state, lotKind, decl.Field, targetID)
	case domain.EntityBarcode:
		return ownersOf(v.state, barcodeKind, decl.Field, targetID)
	default:
		return nil
	}
}

func (v transactionView) FindCategory(id string) (domain.Category, bool) {
	return find(v.state, categoryKind, id)
}

func (v transactionView) ListCategories() []domain.Category { return list(v.state, categoryKind) }

func (v transactionView) FindUnitOfMeasure(id string) (domain.UnitOfMeasure, bool) {
	return find(v.state, unitKind, id)
}

func (v transactionView) ListUnitsOfMeasure() []domain.UnitOfMeasure { return list(v.state, unitKind) }

func (v transactionView) FindAttribute(id string) (domain.Attribute, bool) {
	return find(v.state, attributeKind, id)
}

func (v transactionView) ListAttributes() []domain.Attribute { return list(v.state, attributeKind) }

func (v transactionView) FindTemplate(id string) (domain.Template, bool) {
	return find(v.state, templateKind, id)
}

func (v transactionView) ListTemplates() []domain.Template { return list(v.state, templateKind) }

func (v transactionView) FindVariant(id string) (domain.Variant, bool) {
	return find(v.state, variantKind, id)
}

func (v transactionView) ListVariants() []domain.Variant { return list(v.state, variantKind) }

// ListVariantsByTemplate returns the template's variants ordered by creation time then id.
func (v transactionView) ListVariantsByTemplate(templateID string) []domain.Variant {
	var out []domain.Variant
	for _, variant := range v.state.variants {
		if variant.TemplateID == templateID {
			out = append(out, cloneVariant(variant))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// FindVariantByFingerprint resolves a variant through the (template, fingerprint) index.
func (v transactionView) FindVariantByFingerprint(templateID, fingerprint string) (domain.Variant, bool) {
	id, ok := v.state.fingerprints[fpKey{templateID, fingerprint}]
	if !ok {
		return domain.Variant{}, false
	}
	return find(v.state, variantKind, id)
}

func (v transactionView) FindLot(id string) (domain.Lot, bool) { return find(v.state, lotKind, id) }

func (v transactionView) ListLots() []domain.Lot { return list(v.state, lotKind) }

func (v transactionView) FindBarcode(id string) (domain.Barcode, bool) {
	return find(v.state, barcodeKind, id)
}

func (v transactionView) ListBarcodes() []domain.Barcode { return list(v.state, barcodeKind) }
