package core

import (
	"fmt"

	"stockcore/pkg/domain"
)

// NewRulesEngine constructs an empty engine.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(ReferentialValidityRule())
	engine.Register(FingerprintConsistencyRule())
	return engine
}

// writtenRecord collects what a transaction did to one record: the state it
// started from (nil when the record was created) and whether any change
// touched its fields rather than only its lifecycle.
type writtenRecord struct {
	ref     EntityRef
	before  domain.ChangePayload
	created bool
	fields  bool
}

// writtenRecords folds the change log into one entry per record, in first
// change order.
func writtenRecords(changes []Change) []*writtenRecord {
	index := make(map[EntityRef]*writtenRecord)
	var out []*writtenRecord
	for _, c := range changes {
		ref := domain.Ref(c.Entity, c.ID)
		rec, ok := index[ref]
		if !ok {
			rec = &writtenRecord{ref: ref, before: c.Before, created: c.Action == domain.ActionCreate}
			index[ref] = rec
			out = append(out, rec)
		}
		if c.Action != domain.ActionState {
			rec.fields = true
		}
	}
	return out
}

// referencesOf decodes a payload of entity into its reference targets.
func referencesOf(entity EntityType, payload domain.ChangePayload) ([]domain.Reference, error) {
	switch entity {
	case domain.EntityTemplate:
		var t domain.Template
		if err := payload.Decode(&t); err != nil {
			return nil, err
		}
		return t.References(), nil
	case domain.EntityVariant:
		var v domain.Variant
		if err := payload.Decode(&v); err != nil {
			return nil, err
		}
		return v.References(), nil
	case domain.EntityLot:
		var l domain.Lot
		if err := payload.Decode(&l); err != nil {
			return nil, err
		}
		return l.References(), nil
	case domain.EntityBarcode:
		var b domain.Barcode
		if err := payload.Decode(&b); err != nil {
			return nil, err
		}
		return b.References(), nil
	default:
		return nil, nil
	}
}

// currentReferences reads the committed-to-be references of ref from view.
func currentReferences(view TransactionView, ref EntityRef) ([]domain.Reference, bool) {
	switch ref.Entity {
	case domain.EntityTemplate:
		t, ok := view.FindTemplate(ref.ID)
		return t.References(), ok
	case domain.EntityVariant:
		v, ok := view.FindVariant(ref.ID)
		return v.References(), ok
	case domain.EntityLot:
		l, ok := view.FindLot(ref.ID)
		return l.References(), ok
	case domain.EntityBarcode:
		b, ok := view.FindBarcode(ref.ID)
		return b.References(), ok
	default:
		return nil, false
	}
}

func blockingViolation(rule string, ref EntityRef, format string, args ...any) Violation {
	return Violation{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  fmt.Sprintf(format, args...),
		Entity:   ref.Entity,
		EntityID: ref.ID,
	}
}
