package memory

import (
	"fmt"
	"sort"

	"stockcore/pkg/domain"
)

// kind describes how one entity type is stored and checked.
type kind[T any] struct {
	entity   domain.EntityType
	table    func(*memoryState) map[string]T
	base     func(*T) *domain.Base
	clone    func(T) T
	validate func(T) error
	// refs lists reference targets; nil for entities without references.
	refs func(T) []domain.Reference
	// name returns a value that must be unique across the table; nil when names may repeat.
	name func(T) string
	// prepare runs after validation and gating, before the record is stored.
	prepare func(tx *transaction, before *T, rec *T) error
	// stored maintains secondary indexes.
	stored func(s *memoryState, before *T, after T)
}

var (
	categoryKind = kind[domain.Category]{
		entity:   domain.EntityCategory,
		table:    func(s *memoryState) map[string]domain.Category { return s.categories },
		base:     func(c *domain.Category) *domain.Base { return &c.Base },
		clone:    cloneCategory,
		validate: domain.Category.Validate,
	}
	unitKind = kind[domain.UnitOfMeasure]{
		entity:   domain.EntityUnitOfMeasure,
		table:    func(s *memoryState) map[string]domain.UnitOfMeasure { return s.units },
		base:     func(u *domain.UnitOfMeasure) *domain.Base { return &u.Base },
		clone:    cloneUnit,
		validate: domain.UnitOfMeasure.Validate,
	}
	attributeKind = kind[domain.Attribute]{
		entity:   domain.EntityAttribute,
		table:    func(s *memoryState) map[string]domain.Attribute { return s.attributes },
		base:     func(a *domain.Attribute) *domain.Base { return &a.Base },
		clone:    cloneAttribute,
		validate: domain.Attribute.Validate,
		name:     func(a domain.Attribute) string { return a.Name },
	}
	templateKind = kind[domain.Template]{
		entity:   domain.EntityTemplate,
		table:    func(s *memoryState) map[string]domain.Template { return s.templates },
		base:     func(t *domain.Template) *domain.Base { return &t.Base },
		clone:    cloneTemplate,
		validate: domain.Template.Validate,
		refs:     domain.Template.References,
		name:     func(t domain.Template) string { return t.Name },
	}
	variantKind = kind[domain.Variant]{
		entity:   domain.EntityVariant,
		table:    func(s *memoryState) map[string]domain.Variant { return s.variants },
		base:     func(v *domain.Variant) *domain.Base { return &v.Base },
		clone:    cloneVariant,
		validate: domain.Variant.Validate,
		refs:     domain.Variant.References,
		prepare:  prepareVariant,
		stored:   indexVariant,
	}
	lotKind = kind[domain.Lot]{
		entity:   domain.EntityLot,
		table:    func(s *memoryState) map[string]domain.Lot { return s.lots },
		base:     func(l *domain.Lot) *domain.Base { return &l.Base },
		clone:    cloneLot,
		validate: domain.Lot.Validate,
		refs:     domain.Lot.References,
		name:     func(l domain.Lot) string { return l.Name },
	}
	barcodeKind = kind[domain.Barcode]{
		entity:   domain.EntityBarcode,
		table:    func(s *memoryState) map[string]domain.Barcode { return s.barcodes },
		base:     func(b *domain.Barcode) *domain.Base { return &b.Base },
		clone:    cloneBarcode,
		validate: domain.Barcode.Validate,
		refs:     domain.Barcode.References,
		prepare: func(_ *transaction, _ *domain.Barcode, b *domain.Barcode) error {
			if b.Mode == "" {
				b.Mode = domain.BarcodeStandard39
			}
			return nil
		},
	}
)

// prepareVariant is the consistency hook: the fingerprint is recomputed from
// the attribute map on every write and checked against the per-template index.
func prepareVariant(tx *transaction, before *domain.Variant, v *domain.Variant) error {
	if before != nil && before.TemplateID != v.TemplateID {
		return &domain.ValidationError{Entity: domain.EntityVariant, Field: "template_id", Message: "cannot be reassigned"}
	}
	if v.Attributes == nil {
		v.Attributes = map[string]string{}
	}
	if v.Prices == nil {
		v.Prices = map[string]int64{}
	}
	if err := domain.RefreshFingerprint(v); err != nil {
		return fmt.Errorf("variant %s: %w", v.ID, err)
	}
	if existing, ok := tx.state.fingerprints[fpKey{v.TemplateID, v.Fingerprint}]; ok && existing != v.ID {
		return &domain.DuplicateFingerprintError{TemplateID: v.TemplateID, Fingerprint: v.Fingerprint, ExistingID: existing}
	}
	return nil
}

func indexVariant(s *memoryState, before *domain.Variant, after domain.Variant) {
	if before != nil {
		key := fpKey{before.TemplateID, before.Fingerprint}
		if s.fingerprints[key] == before.ID {
			delete(s.fingerprints, key)
		}
	}
	s.fingerprints[fpKey{after.TemplateID, after.Fingerprint}] = after.ID
}

func checkUniqueName[T any](tx *transaction, k kind[T], rec T, id string) error {
	if k.name == nil {
		return nil
	}
	name := k.name(rec)
	for otherID, other := range k.table(&tx.state) {
		if otherID != id && k.name(other) == name {
			return &domain.ValidationError{Entity: k.entity, Field: "name", Message: fmt.Sprintf("%q already used by %s", name, otherID)}
		}
	}
	return nil
}

func create[T any](tx *transaction, k kind[T], rec T, state domain.LifecycleState) (T, error) {
	var zero T
	b := k.base(&rec)
	if b.ID == "" {
		b.ID = tx.store.newID()
	}
	id := b.ID
	table := k.table(&tx.state)
	if _, exists := table[id]; exists {
		return zero, fmt.Errorf("%s %q already exists", k.entity, id)
	}
	b.Lifecycle = state
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	if err := k.validate(rec); err != nil {
		return zero, err
	}
	if err := checkUniqueName(tx, k, rec, id); err != nil {
		return zero, err
	}
	if k.refs != nil {
		if err := domain.CheckReferences(domain.Ref(k.entity, id), k.refs(rec), tx); err != nil {
			return zero, err
		}
	}
	if k.prepare != nil {
		if err := k.prepare(tx, nil, &rec); err != nil {
			return zero, err
		}
	}
	change, err := domain.NewChange[T](k.entity, domain.ActionCreate, id, nil, rec)
	if err != nil {
		return zero, err
	}
	table[id] = k.clone(rec)
	if k.stored != nil {
		k.stored(&tx.state, nil, rec)
	}
	tx.recordChange(change)
	return k.clone(rec), nil
}

func update[T any](tx *transaction, k kind[T], id string, mutator func(*T) error) (T, error) {
	var zero T
	table := k.table(&tx.state)
	stored, ok := table[id]
	if !ok {
		return zero, domain.ErrNotFound{Entity: k.entity, ID: id}
	}
	before := k.clone(stored)
	current := k.clone(stored)
	if err := mutator(&current); err != nil {
		return zero, err
	}
	prev := k.base(&before)
	b := k.base(&current)
	b.ID = id
	b.Lifecycle = prev.Lifecycle
	b.CreatedAt = prev.CreatedAt
	b.UpdatedAt = tx.now
	if err := k.validate(current); err != nil {
		return zero, err
	}
	if err := checkUniqueName(tx, k, current, id); err != nil {
		return zero, err
	}
	if k.refs != nil {
		assigned := domain.AssignedReferences(k.refs(before), k.refs(current))
		if err := domain.CheckReferences(domain.Ref(k.entity, id), assigned, tx); err != nil {
			return zero, err
		}
	}
	if k.prepare != nil {
		if err := k.prepare(tx, &before, &current); err != nil {
			return zero, err
		}
	}
	change, err := domain.NewChange(k.entity, domain.ActionUpdate, id, &before, current)
	if err != nil {
		return zero, err
	}
	table[id] = k.clone(current)
	if k.stored != nil {
		k.stored(&tx.state, &before, current)
	}
	tx.recordChange(change)
	return k.clone(current), nil
}

func setState[T any](tx *transaction, k kind[T], id string, flag domain.StateFlag) error {
	table := k.table(&tx.state)
	current, ok := table[id]
	if !ok {
		return domain.ErrNotFound{Entity: k.entity, ID: id}
	}
	before := k.clone(current)
	b := k.base(&current)
	b.Lifecycle = b.Lifecycle.Apply(flag)
	b.UpdatedAt = tx.now
	change, err := domain.NewChange(k.entity, domain.ActionState, id, &before, current)
	if err != nil {
		return err
	}
	table[id] = current
	tx.recordChange(change)
	return nil
}

func lifecycleOf[T any](s *memoryState, k kind[T], id string) (domain.LifecycleState, bool) {
	rec, ok := k.table(s)[id]
	if !ok {
		return domain.LifecycleState{}, false
	}
	return k.base(&rec).Lifecycle, true
}

func find[T any](s *memoryState, k kind[T], id string) (T, bool) {
	rec, ok := k.table(s)[id]
	if !ok {
		var zero T
		return zero, false
	}
	return k.clone(rec), true
}

func list[T any](s *memoryState, k kind[T]) []T {
	table := k.table(s)
	out := make([]T, 0, len(table))
	for _, id := range sortedIDs(table) {
		out = append(out, k.clone(table[id]))
	}
	return out
}

func ownersOf[T any](s *memoryState, k kind[T], field, targetID string) []string {
	var owners []string
	for id, rec := range k.table(s) {
		for _, ref := range k.refs(rec) {
			if ref.Decl.Field == field && ref.TargetID == targetID {
				owners = append(owners, id)
				break
			}
		}
	}
	sort.Strings(owners)
	return owners
}

func sortedIDs[T any](table map[string]T) []string {
	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
