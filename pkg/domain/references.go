package domain

// ReferenceKind describes the cardinality of a reference field.
type ReferenceKind uint8

// Reference kinds.
const (
	SingleReference ReferenceKind = iota + 1
	MultiReference
	OneToOneReference
)

func (k ReferenceKind) String() string {
	switch k {
	case SingleReference:
		return "single"
	case MultiReference:
		return "multi"
	case OneToOneReference:
		return "one_to_one"
	default:
		return "unknown"
	}
}

// ReferenceDecl declares a reference field together with the lifecycle
// predicate every target must satisfy when it is assigned.
type ReferenceDecl struct {
	Owner    EntityType
	Field    string
	Target   EntityType
	Kind     ReferenceKind
	Required StateFlag
}

var referenceDecls = []ReferenceDecl{
	{Owner: EntityTemplate, Field: "unit_id", Target: EntityUnitOfMeasure, Kind: SingleReference, Required: Active},
	{Owner: EntityTemplate, Field: "category_id", Target: EntityCategory, Kind: SingleReference, Required: Active},
	{Owner: EntityTemplate, Field: "attribute_ids", Target: EntityAttribute, Kind: MultiReference, Required: Active},
	{Owner: EntityVariant, Field: "template_id", Target: EntityTemplate, Kind: SingleReference, Required: NotDeleted},
	{Owner: EntityLot, Field: "variant_id", Target: EntityVariant, Kind: SingleReference, Required: Active},
	{Owner: EntityBarcode, Field: "variant_id", Target: EntityVariant, Kind: OneToOneReference, Required: Active},
}

// ReferenceDecls returns every declared reference field.
func ReferenceDecls() []ReferenceDecl {
	return append([]ReferenceDecl(nil), referenceDecls...)
}

// LookupDecl returns the declaration for owner.field.
func LookupDecl(owner EntityType, field string) (ReferenceDecl, bool) {
	for _, d := range referenceDecls {
		if d.Owner == owner && d.Field == field {
			return d, true
		}
	}
	return ReferenceDecl{}, false
}

func mustDecl(owner EntityType, field string) ReferenceDecl {
	d, ok := LookupDecl(owner, field)
	if !ok {
		panic("undeclared reference " + string(owner) + "." + field)
	}
	return d
}

// Reference is one concrete target of a declared field.
type Reference struct {
	Decl     ReferenceDecl
	TargetID string
}

// Target returns the referenced record.
func (r Reference) Target() EntityRef {
	return EntityRef{Entity: r.Decl.Target, ID: r.TargetID}
}

// References lists the template's current reference targets.
func (t Template) References() []Reference {
	refs := make([]Reference, 0, len(t.AttributeIDs)+2)
	if t.UnitID != "" {
		refs = append(refs, Reference{Decl: mustDecl(EntityTemplate, "unit_id"), TargetID: t.UnitID})
	}
	if t.CategoryID != nil && *t.CategoryID != "" {
		refs = append(refs, Reference{Decl: mustDecl(EntityTemplate, "category_id"), TargetID: *t.CategoryID})
	}
	attrDecl := mustDecl(EntityTemplate, "attribute_ids")
	for _, id := range t.AttributeIDs {
		refs = append(refs, Reference{Decl: attrDecl, TargetID: id})
	}
	return refs
}

// References lists the variant's template reference.
func (v Variant) References() []Reference {
	if v.TemplateID == "" {
		return nil
	}
	return []Reference{{Decl: mustDecl(EntityVariant, "template_id"), TargetID: v.TemplateID}}
}

// References lists the lot's variant reference.
func (l Lot) References() []Reference {
	if l.VariantID == "" {
		return nil
	}
	return []Reference{{Decl: mustDecl(EntityLot, "variant_id"), TargetID: l.VariantID}}
}

// References lists the barcode's variant reference.
func (b Barcode) References() []Reference {
	if b.VariantID == "" {
		return nil
	}
	return []Reference{{Decl: mustDecl(EntityBarcode, "variant_id"), TargetID: b.VariantID}}
}

// AssignedReferences returns the references in after that were not already
// present in before. Only newly assigned targets pass through the gate, so a
// record keeps its existing links when a target later changes state.
func AssignedReferences(before, after []Reference) []Reference {
	if len(before) == 0 {
		return after
	}
	type key struct {
		field  string
		target string
	}
	existing := make(map[key]struct{}, len(before))
	for _, r := range before {
		existing[key{r.Decl.Field, r.TargetID}] = struct{}{}
	}
	var out []Reference
	for _, r := range after {
		if _, ok := existing[key{r.Decl.Field, r.TargetID}]; !ok {
			out = append(out, r)
		}
	}
	return out
}

// ReferenceResolver answers the lookups needed to evaluate the gate.
type ReferenceResolver interface {
	Lifecycle(ref EntityRef) (LifecycleState, bool)
	OwnersOf(decl ReferenceDecl, targetID string) []string
}

// CheckReferences enforces the declared predicate for each reference of
// owner. The first failing reference is reported.
func CheckReferences(owner EntityRef, refs []Reference, resolver ReferenceResolver) error {
	for _, ref := range refs {
		target := ref.Target()
		state, ok := resolver.Lifecycle(target)
		if !ok {
			return &InvalidReferenceStateError{Owner: owner, Field: ref.Decl.Field, Target: target, Required: ref.Decl.Required, Missing: true}
		}
		if !state.Check(ref.Decl.Required) {
			return &InvalidReferenceStateError{Owner: owner, Field: ref.Decl.Field, Target: target, Required: ref.Decl.Required}
		}
		if ref.Decl.Kind == OneToOneReference {
			for _, other := range resolver.OwnersOf(ref.Decl, ref.TargetID) {
				if other != owner.ID {
					return &InvalidReferenceStateError{Owner: owner, Field: ref.Decl.Field, Target: target, Required: ref.Decl.Required, ClaimedBy: other}
				}
			}
		}
	}
	return nil
}
