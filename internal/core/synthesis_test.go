package core_test

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"

	"stockcore/internal/core"
	"stockcore/pkg/domain"
)

func TestCreateTemplateSynthesizesInactiveVariants(t *testing.T) {
	c := newCatalog(t)
	tmpl, report := c.createTemplate(t, "shirt", c.color, c.size)
	if len(report.Created) != 4 || len(report.Existing) != 0 {
		t.Fatalf("expected 4 created variants, got %+v", report)
	}
	wantPrices := map[string]int64{
		"shirt(color:red/size:S)":  0,
		"shirt(color:red/size:L)":  10,
		"shirt(color:blue/size:S)": 5,
		"shirt(color:blue/size:L)": 15,
	}
	variants := c.variants(t, tmpl.ID)
	if len(variants) != 4 {
		t.Fatalf("expected 4 stored variants, got %d", len(variants))
	}
	for _, v := range variants {
		label := v.Label(tmpl.Name)
		want, ok := wantPrices[label]
		if !ok {
			t.Fatalf("unexpected variant %s", label)
		}
		delete(wantPrices, label)
		if v.ExtraPrice() != want {
			t.Fatalf("%s: extra price %d, want %d", label, v.ExtraPrice(), want)
		}
		if v.Lifecycle.IsActive() || v.Lifecycle.IsDeleted() {
			t.Fatalf("%s: synthesized variants must be inactive and not deleted, got %s", label, v.Lifecycle)
		}
		if ok, err := domain.FingerprintMatches(v); err != nil || !ok {
			t.Fatalf("%s: fingerprint mismatch (%v)", label, err)
		}
	}
}

func TestSynthesizeIsIdempotent(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, first := c.createTemplate(t, "shirt", c.color, c.size)
	second, err := c.svc.Synthesize(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(second.Created) != 0 {
		t.Fatalf("second run created %v", second.Created)
	}
	if len(second.Existing) != len(first.Created) {
		t.Fatalf("expected %d existing, got %d", len(first.Created), len(second.Existing))
	}
	for i := range first.Created {
		if first.Created[i] != second.Existing[i] {
			t.Fatalf("combination %d: %s != %s", i, first.Created[i], second.Existing[i])
		}
	}
	if got := len(c.variants(t, tmpl.ID)); got != 4 {
		t.Fatalf("expected 4 variants, got %d", got)
	}
}

func TestSynthesizeKeepsActivatedVariantsUntouched(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, report := c.createTemplate(t, "shirt", c.color)
	if err := c.svc.SetState(ctx, variantRef(report.Created[0]), domain.Active); err != nil {
		t.Fatalf("activate: %v", err)
	}
	if _, err := c.svc.Synthesize(ctx, tmpl.ID); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	active, err := c.svc.Check(ctx, variantRef(report.Created[0]), domain.Active)
	if err != nil || !active {
		t.Fatalf("re-synthesis must not reset state: active=%v err=%v", active, err)
	}
}

func TestDeletedAttributeLeavesSynthesisDomain(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, first := c.createTemplate(t, "shirt", c.color, c.size)
	if err := c.svc.SetState(ctx, domain.Ref(domain.EntityAttribute, c.color.ID), domain.Deleted); err != nil {
		t.Fatalf("delete color: %v", err)
	}
	report, err := c.svc.Synthesize(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if len(report.Created) != 2 || len(report.Existing) != 0 {
		t.Fatalf("expected 2 size-only variants, got %+v", report)
	}
	variants := c.variants(t, tmpl.ID)
	if len(variants) != 6 {
		t.Fatalf("expected old variants kept alongside new ones, got %d", len(variants))
	}
	created := make(map[string]bool)
	for _, id := range report.Created {
		created[id] = true
	}
	for _, v := range variants {
		if created[v.ID] {
			if _, hasColor := v.Attributes["color"]; hasColor || len(v.Attributes) != 1 {
				t.Fatalf("new variant should only carry size: %v", v.Attributes)
			}
		}
	}
	for _, id := range first.Created {
		if ok, _ := c.svc.Check(ctx, variantRef(id), domain.NotDeleted); !ok {
			t.Fatalf("variant %s should survive attribute deletion", id)
		}
	}
}

func TestInactiveAttributeLeavesSynthesisDomain(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl := c.storeTemplate(t, "shirt", c.color, c.size)
	if err := c.svc.SetState(ctx, domain.Ref(domain.EntityAttribute, c.size.ID), domain.NotActive); err != nil {
		t.Fatalf("deactivate size: %v", err)
	}
	seq, err := c.svc.Combinations(ctx, tmpl.ID)
	if err != nil {
		t.Fatalf("combinations: %v", err)
	}
	n := 0
	for a := range seq {
		if len(a.Values) != 1 || a.Values[0].Attribute != "color" {
			t.Fatalf("unexpected assignment %+v", a)
		}
		n++
	}
	if n != 2 {
		t.Fatalf("expected 2 combinations, got %d", n)
	}
}

func TestAddTemplateAttributesSynthesizesNewCombinations(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, first := c.createTemplate(t, "shirt", c.color)
	if len(first.Created) != 2 {
		t.Fatalf("expected 2 color variants, got %+v", first)
	}
	updated, report, _, err := c.svc.AddTemplateAttributes(ctx, tmpl.ID, c.size.ID, c.size.ID)
	if err != nil {
		t.Fatalf("add attributes: %v", err)
	}
	if len(updated.AttributeIDs) != 2 {
		t.Fatalf("expected duplicate ids ignored, got %v", updated.AttributeIDs)
	}
	if len(report.Created) != 4 {
		t.Fatalf("expected 4 new color/size variants, got %+v", report)
	}
	if got := len(c.variants(t, tmpl.ID)); got != 6 {
		t.Fatalf("expected 6 variants, got %d", got)
	}
}

func TestRemoveTemplateAttributesKeepsVariants(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, _ := c.createTemplate(t, "shirt", c.color, c.size)
	_, report, _, err := c.svc.RemoveTemplateAttributes(ctx, tmpl.ID, c.color.ID)
	if err != nil {
		t.Fatalf("remove attributes: %v", err)
	}
	if len(report.Created) != 2 {
		t.Fatalf("expected 2 size-only variants, got %+v", report)
	}
	if got := len(c.variants(t, tmpl.ID)); got != 6 {
		t.Fatalf("expected 6 variants, got %d", got)
	}
}

func TestUpdateTemplateWithoutMembershipChangeSkipsSynthesis(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, _ := c.createTemplate(t, "shirt", c.color, c.size)
	updated, report, _, err := c.svc.UpdateTemplate(ctx, tmpl.ID, func(t *domain.Template) error {
		t.Detail = "cotton"
		t.AttributeIDs = []string{t.AttributeIDs[1], t.AttributeIDs[0]}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Detail != "cotton" || len(report.Created)+len(report.Existing) != 0 {
		t.Fatalf("reordering attributes must not synthesize: %+v", report)
	}
}

func TestUpdateAttributeValuesResynthesizes(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, _ := c.createTemplate(t, "shirt", c.color, c.size)
	_, _, err := c.svc.UpdateAttribute(ctx, c.color.ID, func(a *domain.Attribute) error {
		a.Values = append(a.Values, domain.AttributeValue{Value: "green", PriceDelta: 3})
		return nil
	})
	if err != nil {
		t.Fatalf("update attribute: %v", err)
	}
	variants := c.variants(t, tmpl.ID)
	if len(variants) != 6 {
		t.Fatalf("expected 6 variants after adding green, got %d", len(variants))
	}
	greens := 0
	for _, v := range variants {
		if v.Attributes["color"] == "green" {
			greens++
			if v.Prices["color"] != 3 {
				t.Fatalf("green price delta lost: %v", v.Prices)
			}
		}
	}
	if greens != 2 {
		t.Fatalf("expected 2 green variants, got %d", greens)
	}

	// A price-only change keeps the value set and does not synthesize.
	_, _, err = c.svc.UpdateAttribute(ctx, c.color.ID, func(a *domain.Attribute) error {
		a.Values[0].PriceDelta = 99
		return nil
	})
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if got := len(c.variants(t, tmpl.ID)); got != 6 {
		t.Fatalf("price change must not add variants, got %d", got)
	}
}

func TestCanonicallyEqualValuesAreRejected(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	var verr *domain.ValidationError
	_, _, err := c.svc.CreateAttribute(ctx, domain.Attribute{Name: "style", Values: []domain.AttributeValue{
		{Value: "caf\u00e9"},
		{Value: "cafe\u0301"},
	}})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	_, _, err = c.svc.CreateAttribute(ctx, domain.Attribute{Name: "style", Values: []domain.AttributeValue{
		{Value: "x\xff"},
		{Value: "x\xfe"},
	}})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for invalid UTF-8, got %v", err)
	}

	style, _, err := c.svc.CreateAttribute(ctx, domain.Attribute{Name: "style", Values: []domain.AttributeValue{{Value: "caf\u00e9"}}})
	if err != nil {
		t.Fatalf("create style: %v", err)
	}
	tmpl, _ := c.createTemplate(t, "mug", style)
	_, _, err = c.svc.UpdateAttribute(ctx, style.ID, func(a *domain.Attribute) error {
		a.Values = append(a.Values, domain.AttributeValue{Value: "cafe\u0301"})
		return nil
	})
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError for decomposed duplicate, got %v", err)
	}
	if got := len(c.variants(t, tmpl.ID)); got != 1 {
		t.Fatalf("rejected update must not synthesize, got %d variants", got)
	}
}

func TestZeroAttributeTemplateGetsOneVariant(t *testing.T) {
	c := newCatalog(t)
	tmpl, report := c.createTemplate(t, "gift-card")
	if len(report.Created) != 1 {
		t.Fatalf("expected one variant, got %+v", report)
	}
	v := c.variants(t, tmpl.ID)[0]
	if len(v.Attributes) != 0 || v.Label(tmpl.Name) != "gift-card()" {
		t.Fatalf("unexpected variant %+v", v)
	}
}

func TestSynthesizeRejectsMissingAndDeletedTemplates(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	var notFound domain.ErrNotFound
	if _, err := c.svc.Synthesize(ctx, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	tmpl := c.storeTemplate(t, "shirt", c.color)
	if err := c.svc.SetState(ctx, domain.Ref(domain.EntityTemplate, tmpl.ID), domain.Deleted); err != nil {
		t.Fatalf("delete template: %v", err)
	}
	var invalid *domain.InvalidReferenceStateError
	if _, err := c.svc.Synthesize(ctx, tmpl.ID); !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidReferenceStateError, got %v", err)
	}
	if invalid.Required != domain.NotDeleted || invalid.Target.ID != tmpl.ID {
		t.Fatalf("unexpected gate error %+v", invalid)
	}
	if got := len(c.variants(t, tmpl.ID)); got != 0 {
		t.Fatalf("rejected synthesis must not write, got %d variants", got)
	}
}

func TestSynthesizeTxRollsBackWithEnclosingTransaction(t *testing.T) {
	c := newCatalog(t)
	tmpl := c.storeTemplate(t, "shirt", c.color, c.size)
	boom := errors.New("boom")
	_, err := c.svc.Store().RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		report, err := core.SynthesizeTx(tx, tmpl.ID)
		if err != nil {
			return err
		}
		if len(report.Created) != 4 {
			t.Errorf("expected 4 created inside tx, got %d", len(report.Created))
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if got := len(c.variants(t, tmpl.ID)); got != 0 {
		t.Fatalf("expected rollback, found %d variants", got)
	}
}

func TestConcurrentSynthesisCreatesEachCombinationOnce(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl := c.storeTemplate(t, "shirt", c.color, c.size)
	const workers = 8
	reports := make([]core.SynthesisReport, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			r, err := c.svc.Synthesize(ctx, tmpl.ID)
			if err != nil {
				t.Errorf("synthesize: %v", err)
				return
			}
			reports[i] = r
		}(i)
	}
	wg.Wait()
	created := 0
	for _, r := range reports {
		created += len(r.Created)
		if len(r.Created)+len(r.Existing) != 4 {
			t.Fatalf("every run must account for all 4 combinations: %+v", r)
		}
	}
	if created != 4 {
		t.Fatalf("expected 4 creations across workers, got %d", created)
	}
	variants := c.variants(t, tmpl.ID)
	fps := make([]string, 0, len(variants))
	for _, v := range variants {
		fps = append(fps, v.Fingerprint)
	}
	sort.Strings(fps)
	for i := 1; i < len(fps); i++ {
		if fps[i] == fps[i-1] {
			t.Fatalf("duplicate fingerprint %s", fps[i])
		}
	}
	if len(variants) != 4 {
		t.Fatalf("expected 4 variants, got %d", len(variants))
	}
}
