package domain

import "context"

// TransactionView provides read-only access to a consistent snapshot.
type TransactionView interface {
	// Lifecycle returns the state of any record.
	Lifecycle(ref EntityRef) (LifecycleState, bool)
	// ListRefs returns every record of the given type, ordered by id.
	ListRefs(entity EntityType) []EntityRef
	// OwnersOf returns the ids of decl.Owner records referencing targetID through decl.Field.
	OwnersOf(decl ReferenceDecl, targetID string) []string

	FindCategory(id string) (Category, bool)
	ListCategories() []Category
	FindUnitOfMeasure(id string) (UnitOfMeasure, bool)
	ListUnitsOfMeasure() []UnitOfMeasure
	FindAttribute(id string) (Attribute, bool)
	ListAttributes() []Attribute
	FindTemplate(id string) (Template, bool)
	ListTemplates() []Template
	FindVariant(id string) (Variant, bool)
	ListVariants() []Variant
	ListVariantsByTemplate(templateID string) []Variant
	FindVariantByFingerprint(templateID, fingerprint string) (Variant, bool)
	FindLot(id string) (Lot, bool)
	ListLots() []Lot
	FindBarcode(id string) (Barcode, bool)
	ListBarcodes() []Barcode
}

// Transaction exposes the catalog operations a persistence implementation
// must support within an atomic scope. Records are never physically removed;
// deletion is SetState(ref, Deleted). Update mutators cannot alter a record's
// id or lifecycle state.
type Transaction interface {
	TransactionView
	Snapshot() TransactionView

	// SetState assigns one lifecycle flag. It is the only path that changes
	// lifecycle state.
	SetState(ref EntityRef, flag StateFlag) error

	CreateCategory(Category) (Category, error)
	UpdateCategory(id string, mutator func(*Category) error) (Category, error)
	CreateUnitOfMeasure(UnitOfMeasure) (UnitOfMeasure, error)
	UpdateUnitOfMeasure(id string, mutator func(*UnitOfMeasure) error) (UnitOfMeasure, error)
	CreateAttribute(Attribute) (Attribute, error)
	UpdateAttribute(id string, mutator func(*Attribute) error) (Attribute, error)
	CreateTemplate(Template) (Template, error)
	UpdateTemplate(id string, mutator func(*Template) error) (Template, error)
	// CreateVariant stores a new variant with the given lifecycle state. The
	// fingerprint is recomputed from the attributes and must be unique per template.
	CreateVariant(v Variant, state LifecycleState) (Variant, error)
	UpdateVariant(id string, mutator func(*Variant) error) (Variant, error)
	CreateLot(Lot) (Lot, error)
	UpdateLot(id string, mutator func(*Lot) error) (Lot, error)
	CreateBarcode(Barcode) (Barcode, error)
	UpdateBarcode(id string, mutator func(*Barcode) error) (Barcode, error)
}

// PersistentStore is the abstraction over memory and durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	RulesEngine() *RulesEngine
	Close() error
}
