package core_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"stockcore/internal/blob"
	"stockcore/internal/core"
	"stockcore/pkg/domain"
)

func fixedClock() core.ClockFunc {
	return func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }
}

func TestExportCatalogIsContentAddressed(t *testing.T) {
	c := newCatalog(t, core.WithClock(fixedClock()))
	ctx := context.Background()
	tmpl, report := c.createTemplate(t, "shirt", c.color, c.size)
	store := blob.NewMemory()

	first, err := c.svc.ExportCatalog(ctx, store, tmpl.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !first.Created || first.Variants != 4 {
		t.Fatalf("unexpected first export %+v", first)
	}
	if !strings.HasPrefix(first.Key, "catalogs/"+tmpl.ID+"/") || !strings.HasSuffix(first.Key, first.Digest+".json") {
		t.Fatalf("unexpected key %s", first.Key)
	}
	if !first.ExportedAt.Equal(fixedClock()()) {
		t.Fatalf("export time must come from the service clock, got %s", first.ExportedAt)
	}

	again, err := c.svc.ExportCatalog(ctx, store, tmpl.ID)
	if err != nil {
		t.Fatalf("re-export: %v", err)
	}
	if again.Created || again.Key != first.Key {
		t.Fatalf("unchanged catalog must reuse the blob: %+v", again)
	}

	if err := c.svc.SetState(ctx, variantRef(report.Created[0]), domain.Active); err != nil {
		t.Fatalf("activate: %v", err)
	}
	changed, err := c.svc.ExportCatalog(ctx, store, tmpl.ID)
	if err != nil {
		t.Fatalf("export after change: %v", err)
	}
	if !changed.Created || changed.Key == first.Key {
		t.Fatalf("state change must produce a new export: %+v", changed)
	}
	list, err := store.List(ctx, "catalogs/"+tmpl.ID+"/")
	if err != nil || len(list) != 2 {
		t.Fatalf("expected 2 exports, got %d (%v)", len(list), err)
	}
}

func TestExportCatalogDocument(t *testing.T) {
	c := newCatalog(t, core.WithClock(fixedClock()))
	ctx := context.Background()
	tmpl, report := c.createTemplate(t, "shirt", c.color)
	if err := c.svc.SetState(ctx, variantRef(report.Created[1]), domain.Deleted); err != nil {
		t.Fatalf("delete: %v", err)
	}
	store := blob.NewMemory()
	res, err := c.svc.ExportCatalog(ctx, store, tmpl.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	info, rc, err := store.Get(ctx, res.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer rc.Close()
	if info.ContentType != "application/json" || info.Metadata["template"] != tmpl.ID || info.Metadata["exported-at"] != "2024-05-01T12:00:00Z" {
		t.Fatalf("unexpected blob info %+v", info)
	}
	body, _ := io.ReadAll(rc)
	var doc core.CatalogDocument
	if err := json.Unmarshal(body, &doc); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if doc.Template.Name != "shirt" || len(doc.Template.Attributes) != 1 || doc.Template.Attributes[0] != "color" {
		t.Fatalf("unexpected template section %+v", doc.Template)
	}
	if len(doc.Variants) != 1 || doc.Variants[0].ID != report.Created[0] {
		t.Fatalf("deleted variants must be left out: %+v", doc.Variants)
	}
	if doc.Variants[0].Label != "shirt(color:red)" || doc.Variants[0].Active {
		t.Fatalf("unexpected variant row %+v", doc.Variants[0])
	}
	if strings.Contains(string(body), "\n") || !strings.HasPrefix(string(body), `{"template":`) {
		t.Fatalf("expected canonical single-line json, got %s", body)
	}
}

func TestExportCatalogErrors(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	var notFound domain.ErrNotFound
	if _, err := c.svc.ExportCatalog(ctx, blob.NewMemory(), "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	tmpl, _ := c.createTemplate(t, "shirt", c.color)
	if _, err := c.svc.ExportCatalog(ctx, failingStore{Store: blob.NewMemory()}, tmpl.ID); err == nil || !strings.Contains(err.Error(), "head") {
		t.Fatalf("expected head failure, got %v", err)
	}
}

func TestExportCatalogToMockS3(t *testing.T) {
	c := newCatalog(t)
	ctx := context.Background()
	tmpl, _ := c.createTemplate(t, "shirt", c.color, c.size)
	store := blob.NewMockS3ForTests()
	res, err := c.svc.ExportCatalog(ctx, store, tmpl.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !res.Created || !strings.HasPrefix(res.URL, "s3://") {
		t.Fatalf("unexpected result %+v", res)
	}
	again, err := c.svc.ExportCatalog(ctx, store, tmpl.ID)
	if err != nil || again.Created {
		t.Fatalf("expected idempotent re-export, got %+v (%v)", again, err)
	}
}

type failingStore struct {
	blob.Store
}

func (failingStore) Head(context.Context, string) (blob.Info, error) {
	return blob.Info{}, errors.New("unreachable")
}
