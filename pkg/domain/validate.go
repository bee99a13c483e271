package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Validate checks the category's own fields.
func (c Category) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return &ValidationError{Entity: EntityCategory, Field: "name", Message: "required"}
	}
	return nil
}

// Validate checks the unit's own fields.
func (u UnitOfMeasure) Validate() error {
	if strings.TrimSpace(u.Name) == "" {
		return &ValidationError{Entity: EntityUnitOfMeasure, Field: "name", Message: "required"}
	}
	if u.DecimalPlaces < 0 {
		return &ValidationError{Entity: EntityUnitOfMeasure, Field: "decimal_places", Message: "must not be negative"}
	}
	return nil
}

// Validate requires a name and a non-empty list of distinct values. Values
// are compared in NFC form, the form variant fingerprints are computed over,
// and must be valid UTF-8.
func (a Attribute) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return &ValidationError{Entity: EntityAttribute, Field: "name", Message: "required"}
	}
	if !utf8.ValidString(a.Name) {
		return &ValidationError{Entity: EntityAttribute, Field: "name", Message: "invalid UTF-8"}
	}
	if len(a.Values) == 0 {
		return &ValidationError{Entity: EntityAttribute, Field: "values", Message: "at least one value required"}
	}
	seen := make(map[string]struct{}, len(a.Values))
	for _, v := range a.Values {
		if strings.TrimSpace(v.Value) == "" {
			return &ValidationError{Entity: EntityAttribute, Field: "values", Message: "empty value"}
		}
		if !utf8.ValidString(v.Value) {
			return &ValidationError{Entity: EntityAttribute, Field: "values", Message: fmt.Sprintf("invalid UTF-8 in %q", v.Value)}
		}
		key := norm.NFC.String(v.Value)
		if _, dup := seen[key]; dup {
			return &ValidationError{Entity: EntityAttribute, Field: "values", Message: fmt.Sprintf("duplicate value %q", v.Value)}
		}
		seen[key] = struct{}{}
	}
	return nil
}

// Validate checks the template's own fields. Reference targets are checked
// by the store against the transaction snapshot.
func (t Template) Validate() error {
	if strings.TrimSpace(t.Name) == "" {
		return &ValidationError{Entity: EntityTemplate, Field: "name", Message: "required"}
	}
	if !t.StockType.Valid() {
		return &ValidationError{Entity: EntityTemplate, Field: "stock_type", Message: fmt.Sprintf("unknown stock type %q", t.StockType)}
	}
	if t.UnitID == "" {
		return &ValidationError{Entity: EntityTemplate, Field: "unit_id", Message: "required"}
	}
	seen := make(map[string]struct{}, len(t.AttributeIDs))
	for _, id := range t.AttributeIDs {
		if _, dup := seen[id]; dup {
			return &ValidationError{Entity: EntityTemplate, Field: "attribute_ids", Message: fmt.Sprintf("duplicate attribute %s", id)}
		}
		seen[id] = struct{}{}
	}
	return nil
}

// Validate checks the variant's own fields.
func (v Variant) Validate() error {
	if v.TemplateID == "" {
		return &ValidationError{Entity: EntityVariant, Field: "template_id", Message: "required"}
	}
	return nil
}

// Validate checks the lot's own fields.
func (l Lot) Validate() error {
	if strings.TrimSpace(l.Name) == "" {
		return &ValidationError{Entity: EntityLot, Field: "name", Message: "required"}
	}
	if l.VariantID == "" {
		return &ValidationError{Entity: EntityLot, Field: "variant_id", Message: "required"}
	}
	return nil
}

// Validate checks the barcode's own fields.
func (b Barcode) Validate() error {
	if b.VariantID == "" {
		return &ValidationError{Entity: EntityBarcode, Field: "variant_id", Message: "required"}
	}
	if b.Mode != "" && b.Mode != BarcodeStandard39 {
		return &ValidationError{Entity: EntityBarcode, Field: "mode", Message: fmt.Sprintf("unsupported mode %q", b.Mode)}
	}
	return nil
}
