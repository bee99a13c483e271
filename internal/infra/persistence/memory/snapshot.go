package memory

import "stockcore/pkg/domain"

// Snapshot captures a point-in-time clone of the store state. Durable
// backends persist it bucket by bucket.
type Snapshot struct {
	Categories map[string]domain.Category      `json:"categories"`
	Units      map[string]domain.UnitOfMeasure `json:"units"`
	Attributes map[string]domain.Attribute     `json:"attributes"`
	Templates  map[string]domain.Template      `json:"templates"`
	Variants   map[string]domain.Variant       `json:"variants"`
	Lots       map[string]domain.Lot           `json:"lots"`
	Barcodes   map[string]domain.Barcode       `json:"barcodes"`
}

// Buckets names the snapshot buckets in a stable order.
var Buckets = []string{"categories", "units", "attributes", "templates", "variants", "lots", "barcodes"}

// Bucket returns a pointer to the map stored under name, for encoding and
// decoding by durable backends.
func (s *Snapshot) Bucket(name string) (any, bool) {
	switch name {
	case "categories":
		return &s.Categories, true
	case "units":
		return &s.Units, true
	case "attributes":
		return &s.Attributes, true
	case "templates":
		return &s.Templates, true
	case "variants":
		return &s.Variants, true
	case "lots":
		return &s.Lots, true
	case "barcodes":
		return &s.Barcodes, true
	default:
		return nil, false
	}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	return Snapshot{
		Categories: cloneTable(state.categories, cloneCategory),
		Units:      cloneTable(state.units, cloneUnit),
		Attributes: cloneTable(state.attributes, cloneAttribute),
		Templates:  cloneTable(state.templates, cloneTemplate),
		Variants:   cloneTable(state.variants, cloneVariant),
		Lots:       cloneTable(state.lots, cloneLot),
		Barcodes:   cloneTable(state.barcodes, cloneBarcode),
	}
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := memoryState{
		categories: cloneTable(s.Categories, cloneCategory),
		units:      cloneTable(s.Units, cloneUnit),
		attributes: cloneTable(s.Attributes, cloneAttribute),
		templates:  cloneTable(s.Templates, cloneTemplate),
		variants:   cloneTable(s.Variants, cloneVariant),
		lots:       cloneTable(s.Lots, cloneLot),
		barcodes:   cloneTable(s.Barcodes, cloneBarcode),
	}
	state.reindex()
	return state
}

// BucketFor maps an entity type to its snapshot bucket.
func BucketFor(entity domain.EntityType) (string, bool) {
	switch entity {
	case domain.EntityCategory:
		return "categories", true
	case domain.EntityUnitOfMeasure:
		return "units", true
	case domain.EntityAttribute:
		return "attributes", true
	case domain.EntityTemplate:
		return "templates", true
	case domain.EntityVariant:
		return "variants", true
	case domain.EntityLot:
		return "lots", true
	case domain.EntityBarcode:
		return "barcodes", true
	default:
		return "", false
	}
}

// TouchedBuckets returns the buckets written by changes, in Buckets order.
func TouchedBuckets(changes []domain.Change) []string {
	touched := make(map[string]bool, len(Buckets))
	for _, c := range changes {
		if b, ok := BucketFor(c.Entity); ok {
			touched[b] = true
		}
	}
	var out []string
	for _, b := range Buckets {
		if touched[b] {
			out = append(out, b)
		}
	}
	return out
}

// ChangedVariants returns the variants written by changes, as committed in
// snapshot, ordered by first change.
func ChangedVariants(snapshot Snapshot, changes []domain.Change) []domain.Variant {
	seen := make(map[string]bool)
	var out []domain.Variant
	for _, c := range changes {
		if c.Entity != domain.EntityVariant || seen[c.ID] {
			continue
		}
		seen[c.ID] = true
		if v, ok := snapshot.Variants[c.ID]; ok {
			out = append(out, v)
		}
	}
	return out
}
