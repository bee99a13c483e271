// Package domain defines the catalog entities, the lifecycle state they share,
// and the rule evaluation primitives used by stockcore.
package domain

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// EntityType identifies the type of record stored in the catalog.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	EntityCategory      EntityType = "category"
	EntityUnitOfMeasure EntityType = "unit_of_measure"
	EntityAttribute     EntityType = "attribute"
	EntityTemplate      EntityType = "template"
	EntityVariant       EntityType = "variant"
	EntityLot           EntityType = "lot"
	EntityBarcode       EntityType = "barcode"
)

// EntityTypes lists every stored entity type.
func EntityTypes() []EntityType {
	return []EntityType{
		EntityCategory,
		EntityUnitOfMeasure,
		EntityAttribute,
		EntityTemplate,
		EntityVariant,
		EntityLot,
		EntityBarcode,
	}
}

// ParseEntityType resolves an entity type name.
func ParseEntityType(s string) (EntityType, error) {
	for _, e := range EntityTypes() {
		if string(e) == s {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity type %q", s)
}

// EntityRef addresses a single record.
type EntityRef struct {
	Entity EntityType `json:"entity"`
	ID     string     `json:"id"`
}

// Ref builds an EntityRef.
func Ref(entity EntityType, id string) EntityRef {
	return EntityRef{Entity: entity, ID: id}
}

func (r EntityRef) String() string {
	return string(r.Entity) + "/" + r.ID
}

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// StockType classifies how a template is tracked in inventory.
type StockType string

// Supported stock types.
const (
	StockService           StockType = "service"
	StockDigital           StockType = "digital"
	StockWithExpiration    StockType = "stock-expiration"
	StockWithoutExpiration StockType = "stock-no-expiration"
	StockConsumable        StockType = "consumable"
)

// Valid reports whether t is a known stock type.
func (t StockType) Valid() bool {
	switch t {
	case StockService, StockDigital, StockWithExpiration, StockWithoutExpiration, StockConsumable:
		return true
	default:
		return false
	}
}

// BarcodeMode names the symbology used to render a barcode.
type BarcodeMode string

// BarcodeStandard39 is the only symbology currently produced.
const BarcodeStandard39 BarcodeMode = "Standard39"

// Base contains common fields for all catalog records.
type Base struct {
	ID        string         `json:"id"`
	Lifecycle LifecycleState `json:"lifecycle"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// State returns the record's lifecycle state.
func (b Base) State() LifecycleState { return b.Lifecycle }

// Category groups templates.
type Category struct {
	Base
	Name     string `json:"name"`
	Sequence int    `json:"sequence"`
}

// UnitOfMeasure describes how quantities of a template are counted.
type UnitOfMeasure struct {
	Base
	Name          string `json:"name"`
	Symbol        string `json:"symbol"`
	Category      string `json:"category"`
	DecimalPlaces int    `json:"decimal_places"`
}

// AttributeValue is one admissible value of an attribute with the price
// delta, in minor currency units, it contributes to a variant.
type AttributeValue struct {
	Value      string `json:"value"`
	PriceDelta int64  `json:"price_delta"`
}

// Attribute is a named, ordered domain of values.
type Attribute struct {
	Base
	Name   string           `json:"name"`
	Values []AttributeValue `json:"values"`
}

// Template is the abstract product from which variants are synthesized.
type Template struct {
	Base
	Name         string    `json:"name"`
	StockType    StockType `json:"stock_type"`
	UnitID       string    `json:"unit_id"`
	CategoryID   *string   `json:"category_id,omitempty"`
	AttributeIDs []string  `json:"attribute_ids"`
	Sequence     int       `json:"sequence"`
	Detail       string    `json:"detail,omitempty"`
}

// Variant is a concrete product: one value chosen for each attribute of its
// template.
type Variant struct {
	Base
	TemplateID  string            `json:"template_id"`
	Attributes  map[string]string `json:"attributes"`
	Prices      map[string]int64  `json:"prices"`
	Fingerprint string            `json:"fingerprint"`
	InCode      string            `json:"in_code,omitempty"`
	OutCode     string            `json:"out_code,omitempty"`
	Salable     bool              `json:"salable"`
	Purchasable bool              `json:"purchasable"`
	Rentable    bool              `json:"rentable"`
}

// ExtraPrice sums the price deltas of the chosen attribute values.
func (v Variant) ExtraPrice() int64 {
	var total int64
	for _, p := range v.Prices {
		total += p
	}
	return total
}

// Label renders the variant as `Template(color:red/size:S)`.
func (v Variant) Label(templateName string) string {
	keys := make([]string, 0, len(v.Attributes))
	for k := range v.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+":"+v.Attributes[k])
	}
	return templateName + "(" + strings.Join(parts, "/") + ")"
}

// Lot identifies a batch of a variant.
type Lot struct {
	Base
	Name      string `json:"name"`
	VariantID string `json:"variant_id"`
}

// Barcode is the printable code assigned to a variant.
type Barcode struct {
	Base
	VariantID string            `json:"variant_id"`
	Mode      BarcodeMode       `json:"mode"`
	Code      map[string]string `json:"code,omitempty"`
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	ID     string
	Before ChangePayload
	After  ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate the mutations captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity's fields were updated.
	ActionUpdate Action = "update"
	// ActionState indicates a lifecycle flag was assigned.
	ActionState Action = "state"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
	// Err is the typed cause, when the rule has one.
	Err error `json:"-"`
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	var msgs []string
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			msgs = append(msgs, v.Rule+": "+v.Message)
		}
	}
	if len(msgs) == 0 {
		return "transaction blocked by rules"
	}
	return "transaction blocked by rules: " + strings.Join(msgs, "; ")
}

// Unwrap exposes the typed causes of blocking violations to errors.Is and
// errors.As.
func (e RuleViolationError) Unwrap() []error {
	var errs []error
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock && v.Err != nil {
			errs = append(errs, v.Err)
		}
	}
	return errs
}
