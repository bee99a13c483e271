package core

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/gowebpki/jcs"

	"stockcore/internal/blob"
	"stockcore/pkg/domain"
)

// CatalogDocument is the exported form of one template and its live variants.
type CatalogDocument struct {
	Template ExportedTemplate  `json:"template"`
	Variants []ExportedVariant `json:"variants"`
}

// ExportedTemplate carries the template fields a catalog consumer needs.
type ExportedTemplate struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	StockType  string   `json:"stock_type"`
	Attributes []string `json:"attributes"`
}

// ExportedVariant is one variant row of a catalog document.
type ExportedVariant struct {
	ID          string            `json:"id"`
	Label       string            `json:"label"`
	Attributes  map[string]string `json:"attributes"`
	ExtraPrice  int64             `json:"extra_price"`
	Fingerprint string            `json:"fingerprint"`
	Active      bool              `json:"active"`
}

// ExportResult describes a catalog export.
type ExportResult struct {
	Key        string    `json:"key"`
	Digest     string    `json:"digest"`
	Created    bool      `json:"created"`
	Variants   int       `json:"variants"`
	ExportedAt time.Time `json:"exported_at"`
	URL        string    `json:"url,omitempty"`
}

// ExportCatalog writes the template's non-deleted variants to store as
// canonical JSON under catalogs/<template id>/<digest>.json. The key is
// derived from the content, so exporting an unchanged catalog again reports
// the existing blob instead of writing a new one.
func (s *Service) ExportCatalog(ctx context.Context, store blob.Store, templateID string) (ExportResult, error) {
	var doc CatalogDocument
	err := s.view(ctx, "export_catalog", func(view TransactionView) error {
		var err error
		doc, err = catalogDocument(view, templateID)
		return err
	})
	if err != nil {
		return ExportResult{}, err
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return ExportResult{}, fmt.Errorf("encode catalog: %w", err)
	}
	body, err := jcs.Transform(raw)
	if err != nil {
		return ExportResult{}, fmt.Errorf("canonicalise catalog: %w", err)
	}
	sum := sha256.Sum256(body)
	digest := hex.EncodeToString(sum[:])
	key := fmt.Sprintf("catalogs/%s/%s.json", templateID, digest)
	out := ExportResult{Key: key, Digest: digest, Variants: len(doc.Variants)}

	info, err := store.Head(ctx, key)
	if err == nil {
		out.ExportedAt = info.LastModified
		out.URL = info.URL
		s.logger.Info("catalog unchanged", "template", templateID, "key", key)
		return out, nil
	}
	if !errors.Is(err, blob.ErrNotFound) {
		return ExportResult{}, fmt.Errorf("head %s: %w", key, err)
	}
	now := s.clock.Now().UTC()
	info, err = store.Put(ctx, key, bytes.NewReader(body), blob.PutOptions{
		ContentType: "application/json",
		Metadata: map[string]string{
			"template":    templateID,
			"exported-at": now.Format(time.RFC3339),
		},
	})
	switch {
	case errors.Is(err, blob.ErrExists):
		// a concurrent export wrote the same content first
	case err != nil:
		return ExportResult{}, fmt.Errorf("put %s: %w", key, err)
	default:
		out.Created = true
	}
	out.ExportedAt = now
	out.URL = info.URL
	s.logger.Info("catalog exported", "template", templateID, "key", key, "created", out.Created, "variants", out.Variants)
	return out, nil
}

func catalogDocument(view TransactionView, templateID string) (CatalogDocument, error) {
	tmpl, ok := view.FindTemplate(templateID)
	if !ok {
		return CatalogDocument{}, domain.ErrNotFound{Entity: domain.EntityTemplate, ID: templateID}
	}
	doc := CatalogDocument{
		Template: ExportedTemplate{ID: tmpl.ID, Name: tmpl.Name, StockType: string(tmpl.StockType), Attributes: []string{}},
		Variants: []ExportedVariant{},
	}
	for _, id := range tmpl.AttributeIDs {
		if attr, ok := view.FindAttribute(id); ok {
			doc.Template.Attributes = append(doc.Template.Attributes, attr.Name)
		}
	}
	for _, v := range view.ListVariantsByTemplate(templateID) {
		if v.Lifecycle.IsDeleted() {
			continue
		}
		doc.Variants = append(doc.Variants, ExportedVariant{
			ID:          v.ID,
			Label:       v.Label(tmpl.Name),
			Attributes:  v.Attributes,
			ExtraPrice:  v.ExtraPrice(),
			Fingerprint: v.Fingerprint,
			Active:      v.Lifecycle.IsActive(),
		})
	}
	return doc, nil
}
