package core_test

import (
	"context"
	"errors"
	"testing"

	"stockcore/internal/core"
	"stockcore/pkg/domain"
)

func TestDefaultRulesEngineRegistersBuiltins(t *testing.T) {
	names := core.NewDefaultRulesEngine().Rules()
	if len(names) != 2 || names[0] != "referential_validity" || names[1] != "fingerprint_consistency" {
		t.Fatalf("unexpected rules %v", names)
	}
	if len(core.NewRulesEngine().Rules()) != 0 {
		t.Fatalf("expected empty engine")
	}
}

func TestGateRejectsInactiveAttribute(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	if err := c.svc.SetState(ctx, domain.Ref(domain.EntityAttribute, c.size.ID), domain.NotActive); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	_, _, _, err := c.svc.CreateTemplate(ctx, c.template("shirt", c.color, c.size))
	var invalid *domain.InvalidReferenceStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidReferenceStateError, got %v", err)
	}
	if invalid.Field != "attribute_ids" || invalid.Target.ID != c.size.ID || invalid.Required != domain.Active {
		t.Fatalf("unexpected gate error %+v", invalid)
	}
	if _, err := c.svc.FindTemplateByName(ctx, "shirt"); err == nil {
		t.Fatalf("rejected template must not be stored")
	}
}

func TestGateRejectsMissingUnit(t *testing.T) {
	c := newCatalog(t)
	tmpl := c.template("shirt", c.color)
	tmpl.UnitID = "nope"
	_, _, _, err := c.svc.CreateTemplate(context.Background(), tmpl)
	var invalid *domain.InvalidReferenceStateError
	if !errors.As(err, &invalid) || !invalid.Missing {
		t.Fatalf("expected missing-target gate error, got %v", err)
	}
}

func TestCommitRuleCatchesTargetDeactivatedInSameTransaction(t *testing.T) {
	c := newCatalog(t)
	_, err := c.svc.Store().RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateTemplate(c.template("shirt", c.color)); err != nil {
			return err
		}
		return tx.SetState(domain.Ref(domain.EntityUnitOfMeasure, c.unit.ID), domain.NotActive)
	})
	var violation domain.RuleViolationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected RuleViolationError, got %v", err)
	}
	if len(violation.Result.Violations) != 1 || violation.Result.Violations[0].Rule != "referential_validity" {
		t.Fatalf("unexpected violations %+v", violation.Result.Violations)
	}
	var invalid *domain.InvalidReferenceStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected commit rejection to unwrap to InvalidReferenceStateError, got %v", err)
	}
	if invalid.Target.ID != c.unit.ID || invalid.Required != domain.Active || invalid.Missing {
		t.Fatalf("unexpected gate error %+v", invalid)
	}
	if ok, _ := c.svc.Check(context.Background(), domain.Ref(domain.EntityUnitOfMeasure, c.unit.ID), domain.Active); !ok {
		t.Fatalf("blocked transaction must not commit the state change")
	}
}

func TestExistingLinksSurviveTargetStateChanges(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, _ := c.createTemplate(t, "shirt", c.color)
	other := c.storeTemplate(t, "pants", c.size)
	if err := c.svc.SetState(ctx, domain.Ref(domain.EntityAttribute, c.color.ID), domain.NotActive); err != nil {
		t.Fatalf("deactivate color: %v", err)
	}
	if err := c.svc.SetState(ctx, domain.Ref(domain.EntityUnitOfMeasure, c.unit.ID), domain.NotActive); err != nil {
		t.Fatalf("deactivate unit: %v", err)
	}
	updated, _, _, err := c.svc.UpdateTemplate(ctx, tmpl.ID, func(t *domain.Template) error {
		t.Name = "t-shirt"
		return nil
	})
	if err != nil {
		t.Fatalf("rename must not re-gate existing links: %v", err)
	}
	if updated.Name != "t-shirt" {
		t.Fatalf("unexpected name %s", updated.Name)
	}
	// Newly assigning the inactive attribute is still rejected.
	_, _, _, err = c.svc.AddTemplateAttributes(ctx, other.ID, c.color.ID)
	var invalid *domain.InvalidReferenceStateError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected gate error on new assignment, got %v", err)
	}
}

func TestLotRequiresActiveVariant(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	_, report := c.createTemplate(t, "shirt", c.color)
	variantID := report.Created[0]
	_, _, err := c.svc.CreateLot(ctx, domain.Lot{Name: "L-1", VariantID: variantID})
	var invalid *domain.InvalidReferenceStateError
	if !errors.As(err, &invalid) || invalid.Required != domain.Active {
		t.Fatalf("expected gate error for inactive variant, got %v", err)
	}
	if err := c.svc.SetState(ctx, variantRef(variantID), domain.Active); err != nil {
		t.Fatalf("activate: %v", err)
	}
	lot, _, err := c.svc.CreateLot(ctx, domain.Lot{Name: "L-1", VariantID: variantID})
	if err != nil || lot.ID == "" {
		t.Fatalf("create lot: %v", err)
	}
	var validation *domain.ValidationError
	if _, _, err := c.svc.CreateLot(ctx, domain.Lot{Name: "L-1", VariantID: variantID}); !errors.As(err, &validation) {
		t.Fatalf("expected duplicate lot name rejection, got %v", err)
	}
}

func TestBarcodeIsOneToOne(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	_, report := c.createTemplate(t, "shirt", c.color)
	variantID := report.Created[0]
	if err := c.svc.SetState(ctx, variantRef(variantID), domain.Active); err != nil {
		t.Fatalf("activate: %v", err)
	}
	first, _, err := c.svc.CreateBarcode(ctx, domain.Barcode{VariantID: variantID})
	if err != nil {
		t.Fatalf("create barcode: %v", err)
	}
	if first.Mode != domain.BarcodeStandard39 {
		t.Fatalf("expected default mode, got %s", first.Mode)
	}
	_, _, err = c.svc.CreateBarcode(ctx, domain.Barcode{VariantID: variantID})
	var invalid *domain.InvalidReferenceStateError
	if !errors.As(err, &invalid) || invalid.ClaimedBy != first.ID {
		t.Fatalf("expected claimed-by error, got %v", err)
	}
}

func TestVariantUpdatesKeepFingerprintConsistent(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, report := c.createTemplate(t, "shirt", c.color)
	other, _ := c.createTemplate(t, "pants", c.size)

	updated, _, err := c.svc.UpdateVariant(ctx, report.Created[0], func(v *domain.Variant) error {
		v.Attributes["color"] = "green"
		v.Fingerprint = "forged"
		return nil
	})
	if err != nil {
		t.Fatalf("update variant: %v", err)
	}
	if ok, _ := domain.FingerprintMatches(updated); !ok || updated.Fingerprint == "forged" {
		t.Fatalf("store must recompute the fingerprint, got %s", updated.Fingerprint)
	}

	_, _, err = c.svc.UpdateVariant(ctx, report.Created[0], func(v *domain.Variant) error {
		v.Attributes["color"] = "blue"
		return nil
	})
	var dup *domain.DuplicateFingerprintError
	if !errors.As(err, &dup) || dup.ExistingID != report.Created[1] || dup.TemplateID != tmpl.ID {
		t.Fatalf("expected duplicate fingerprint error, got %v", err)
	}

	_, _, err = c.svc.UpdateVariant(ctx, report.Created[0], func(v *domain.Variant) error {
		v.TemplateID = other.ID
		return nil
	})
	var validation *domain.ValidationError
	if !errors.As(err, &validation) || validation.Field != "template_id" {
		t.Fatalf("expected template_id to be immutable, got %v", err)
	}
}

func TestUpdateMutatorCannotChangeLifecycle(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	updated, _, err := c.svc.UpdateAttribute(ctx, c.color.ID, func(a *domain.Attribute) error {
		a.Lifecycle = a.Lifecycle.Apply(domain.Deleted)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Lifecycle.IsDeleted() {
		t.Fatalf("mutators must not alter lifecycle state")
	}
}
