package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stockcore/internal/core"
	"stockcore/pkg/domain"
)

// CatalogFile is the YAML layout accepted by the load command. Templates
// refer to units, categories and attributes by name.
type CatalogFile struct {
	Categories []CategorySpec  `yaml:"categories"`
	Units      []UnitSpec      `yaml:"units"`
	Attributes []AttributeSpec `yaml:"attributes"`
	Templates  []TemplateSpec  `yaml:"templates"`
}

// CategorySpec declares a category.
type CategorySpec struct {
	Name     string `yaml:"name"`
	Sequence int    `yaml:"sequence"`
}

// UnitSpec declares a unit of measure.
type UnitSpec struct {
	Name          string `yaml:"name"`
	Symbol        string `yaml:"symbol"`
	Category      string `yaml:"category"`
	DecimalPlaces int    `yaml:"decimal_places"`
}

// AttributeSpec declares an attribute domain.
type AttributeSpec struct {
	Name   string      `yaml:"name"`
	Values []ValueSpec `yaml:"values"`
}

// ValueSpec is one attribute value and its price delta in minor units.
type ValueSpec struct {
	Value      string `yaml:"value"`
	PriceDelta int64  `yaml:"price_delta"`
}

// TemplateSpec declares a template.
type TemplateSpec struct {
	Name       string   `yaml:"name"`
	StockType  string   `yaml:"stock_type"`
	Unit       string   `yaml:"unit"`
	Category   string   `yaml:"category,omitempty"`
	Attributes []string `yaml:"attributes"`
	Sequence   int      `yaml:"sequence"`
	Detail     string   `yaml:"detail,omitempty"`
}

// ParseCatalogFile decodes a catalog document, rejecting unknown fields.
func ParseCatalogFile(data []byte) (CatalogFile, error) {
	var file CatalogFile
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
		return CatalogFile{}, err
	}
	return file, nil
}

// LoadedTemplate reports one template created by load.
type LoadedTemplate struct {
	Name     string `json:"name"`
	ID       string `json:"id"`
	Variants int    `json:"variants"`
}

// LoadSummary is the output of the load command.
type LoadSummary struct {
	Categories int              `json:"categories"`
	Units      int              `json:"units"`
	Attributes int              `json:"attributes"`
	Templates  []LoadedTemplate `json:"templates"`
}

// LoadCatalog creates every record of file through svc, in dependency
// order. Each template is synthesized as it is created.
func LoadCatalog(ctx context.Context, svc *core.Service, file CatalogFile) (LoadSummary, error) {
	var summary LoadSummary
	categories := make(map[string]string, len(file.Categories))
	for _, c := range file.Categories {
		created, _, err := svc.CreateCategory(ctx, domain.Category{Name: c.Name, Sequence: c.Sequence})
		if err != nil {
			return summary, fmt.Errorf("category %q: %w", c.Name, err)
		}
		categories[c.Name] = created.ID
		summary.Categories++
	}

	units := make(map[string]string, len(file.Units))
	for _, u := range file.Units {
		created, _, err := svc.CreateUnitOfMeasure(ctx, domain.UnitOfMeasure{
			Name:          u.Name,
			Symbol:        u.Symbol,
			Category:      u.Category,
			DecimalPlaces: u.DecimalPlaces,
		})
		if err != nil {
			return summary, fmt.Errorf("unit %q: %w", u.Name, err)
		}
		units[u.Name] = created.ID
		summary.Units++
	}

	attributes := make(map[string]string, len(file.Attributes))
	for _, a := range file.Attributes {
		attr := domain.Attribute{Name: a.Name}
		for _, v := range a.Values {
			attr.Values = append(attr.Values, domain.AttributeValue{Value: v.Value, PriceDelta: v.PriceDelta})
		}
		created, _, err := svc.CreateAttribute(ctx, attr)
		if err != nil {
			return summary, fmt.Errorf("attribute %q: %w", a.Name, err)
		}
		attributes[a.Name] = created.ID
		summary.Attributes++
	}

	for _, t := range file.Templates {
		tmpl := domain.Template{
			Name:      t.Name,
			StockType: domain.StockType(t.StockType),
			Sequence:  t.Sequence,
			Detail:    t.Detail,
		}
		unitID, ok := units[t.Unit]
		if !ok {
			return summary, fmt.Errorf("template %q: unknown unit %q", t.Name, t.Unit)
		}
		tmpl.UnitID = unitID
		if t.Category != "" {
			categoryID, ok := categories[t.Category]
			if !ok {
				return summary, fmt.Errorf("template %q: unknown category %q", t.Name, t.Category)
			}
			tmpl.CategoryID = &categoryID
		}
		for _, name := range t.Attributes {
			attrID, ok := attributes[name]
			if !ok {
				return summary, fmt.Errorf("template %q: unknown attribute %q", t.Name, name)
			}
			tmpl.AttributeIDs = append(tmpl.AttributeIDs, attrID)
		}
		created, report, _, err := svc.CreateTemplate(ctx, tmpl)
		if err != nil {
			return summary, fmt.Errorf("template %q: %w", t.Name, err)
		}
		summary.Templates = append(summary.Templates, LoadedTemplate{
			Name:     created.Name,
			ID:       created.ID,
			Variants: len(report.Created) + len(report.Existing),
		})
	}
	return summary, nil
}

// NewLoadCommand creates the catalog records declared in a YAML file.
func NewLoadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "load <catalog.yaml>",
		Short:         "Create categories, units, attributes and templates from a YAML file",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return commandError("read catalog", err)
			}
			file, err := ParseCatalogFile(data)
			if err != nil {
				return commandError(fmt.Sprintf("parse catalog %q", args[0]), err)
			}
			return withSession(cmd, rootOpts, func(s *session) error {
				summary, err := LoadCatalog(cmd.Context(), s.svc, file)
				if err != nil {
					return commandError("load catalog", err)
				}
				return s.out.Success(summary, func(w io.Writer) {
					fmt.Fprintf(w, "✓ loaded %d categories, %d units, %d attributes\n", summary.Categories, summary.Units, summary.Attributes)
					for _, t := range summary.Templates {
						fmt.Fprintf(w, "  %s  %s  (%d variants)\n", t.ID, t.Name, t.Variants)
					}
				})
			})
		},
	}
}
