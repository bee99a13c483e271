package core_test

import (
	"context"
	"testing"

	"stockcore/internal/core"
	"stockcore/pkg/domain"
)

// catalog is a service seeded with a unit and two attributes:
// color {red:0, blue:5} and size {S:0, L:10}.
type catalog struct {
	svc   *core.Service
	unit  domain.UnitOfMeasure
	color domain.Attribute
	size  domain.Attribute
}

func newCatalog(t *testing.T, opts ...core.ServiceOption) *catalog {
	t.Helper()
	ctx := context.Background()
	svc := core.NewInMemoryService(nil, opts...)
	unit, _, err := svc.CreateUnitOfMeasure(ctx, domain.UnitOfMeasure{Name: "Unit", Symbol: "u"})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	color, _, err := svc.CreateAttribute(ctx, domain.Attribute{Name: "color", Values: []domain.AttributeValue{
		{Value: "red"},
		{Value: "blue", PriceDelta: 5},
	}})
	if err != nil {
		t.Fatalf("create color: %v", err)
	}
	size, _, err := svc.CreateAttribute(ctx, domain.Attribute{Name: "size", Values: []domain.AttributeValue{
		{Value: "S"},
		{Value: "L", PriceDelta: 10},
	}})
	if err != nil {
		t.Fatalf("create size: %v", err)
	}
	return &catalog{svc: svc, unit: unit, color: color, size: size}
}

func (c *catalog) template(name string, attrs ...domain.Attribute) domain.Template {
	ids := make([]string, 0, len(attrs))
	for _, a := range attrs {
		ids = append(ids, a.ID)
	}
	return domain.Template{Name: name, StockType: domain.StockConsumable, UnitID: c.unit.ID, AttributeIDs: ids}
}

func (c *catalog) createTemplate(t *testing.T, name string, attrs ...domain.Attribute) (domain.Template, core.SynthesisReport) {
	t.Helper()
	tmpl, report, _, err := c.svc.CreateTemplate(context.Background(), c.template(name, attrs...))
	if err != nil {
		t.Fatalf("create template %s: %v", name, err)
	}
	return tmpl, report
}

// storeTemplate writes a template straight to the store, skipping synthesis.
func (c *catalog) storeTemplate(t *testing.T, name string, attrs ...domain.Attribute) domain.Template {
	t.Helper()
	var created domain.Template
	_, err := c.svc.Store().RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		var err error
		created, err = tx.CreateTemplate(c.template(name, attrs...))
		return err
	})
	if err != nil {
		t.Fatalf("store template %s: %v", name, err)
	}
	return created
}

func (c *catalog) variants(t *testing.T, templateID string) []domain.Variant {
	t.Helper()
	_, vs, err := c.svc.Variants(context.Background(), templateID)
	if err != nil {
		t.Fatalf("list variants: %v", err)
	}
	return vs
}

func variantRef(id string) domain.EntityRef {
	return domain.Ref(domain.EntityVariant, id)
}
