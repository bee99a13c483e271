package core

import (
	"context"
	"errors"
	"iter"

	"stockcore/pkg/domain"
	"stockcore/pkg/fingerprint"
)

// AssignedValue is the value chosen for one attribute in a combination.
type AssignedValue struct {
	AttributeID string
	Attribute   string
	Value       string
	PriceDelta  int64
}

// Assignment is one combination of attribute values, in attribute
// declaration order.
type Assignment struct {
	Values []AssignedValue
}

// Attributes returns the attribute name to value map stored on a variant.
func (a Assignment) Attributes() map[string]string {
	out := make(map[string]string, len(a.Values))
	for _, v := range a.Values {
		out[v.Attribute] = v.Value
	}
	return out
}

// Prices returns the attribute name to price delta map stored on a variant.
func (a Assignment) Prices() map[string]int64 {
	out := make(map[string]int64, len(a.Values))
	for _, v := range a.Values {
		out[v.Attribute] = v.PriceDelta
	}
	return out
}

// ExtraPrice sums the price deltas of the assignment.
func (a Assignment) ExtraPrice() int64 {
	var total int64
	for _, v := range a.Values {
		total += v.PriceDelta
	}
	return total
}

// Fingerprint digests the attribute map.
func (a Assignment) Fingerprint() (string, error) {
	return fingerprint.Of(a.Attributes())
}

// Combinations yields the Cartesian product of attrs' values. The last
// attribute varies fastest. Zero attributes yield a single empty assignment;
// an attribute without values yields nothing. The sequence only reads attrs
// and can be ranged over repeatedly.
func Combinations(attrs []domain.Attribute) iter.Seq[Assignment] {
	return func(yield func(Assignment) bool) {
		for _, a := range attrs {
			if len(a.Values) == 0 {
				return
			}
		}
		idx := make([]int, len(attrs))
		for {
			values := make([]AssignedValue, len(attrs))
			for i, a := range attrs {
				v := a.Values[idx[i]]
				values[i] = AssignedValue{AttributeID: a.ID, Attribute: a.Name, Value: v.Value, PriceDelta: v.PriceDelta}
			}
			if !yield(Assignment{Values: values}) {
				return
			}
			i := len(attrs) - 1
			for ; i >= 0; i-- {
				idx[i]++
				if idx[i] < len(attrs[i].Values) {
					break
				}
				idx[i] = 0
			}
			if i < 0 {
				return
			}
		}
	}
}

// SynthesisReport lists the variants backing each combination of a
// synthesis run, in combination order.
type SynthesisReport struct {
	TemplateID string   `json:"template_id"`
	Created    []string `json:"created"`
	Existing   []string `json:"existing"`
}

// synthesisDomains returns the template's attribute domains that take part
// in synthesis: active and not deleted, in declaration order.
func synthesisDomains(view TransactionView, tmpl domain.Template) ([]domain.Attribute, error) {
	var out []domain.Attribute
	for _, id := range tmpl.AttributeIDs {
		attr, ok := view.FindAttribute(id)
		if !ok {
			return nil, domain.ErrNotFound{Entity: domain.EntityAttribute, ID: id}
		}
		if attr.Lifecycle.Holds(domain.Active) && attr.Lifecycle.Holds(domain.NotDeleted) {
			out = append(out, attr)
		}
	}
	return out, nil
}

func synthesisTemplate(view TransactionView, templateID string) (domain.Template, error) {
	tmpl, ok := view.FindTemplate(templateID)
	if !ok {
		return domain.Template{}, domain.ErrNotFound{Entity: domain.EntityTemplate, ID: templateID}
	}
	if !tmpl.Lifecycle.Check(domain.NotDeleted) {
		decl, _ := domain.LookupDecl(domain.EntityVariant, "template_id")
		return domain.Template{}, &domain.InvalidReferenceStateError{
			Owner:    domain.Ref(domain.EntityVariant, ""),
			Field:    decl.Field,
			Target:   domain.Ref(domain.EntityTemplate, templateID),
			Required: decl.Required,
		}
	}
	return tmpl, nil
}

// Combinations reads the template's synthesis domains from one snapshot and
// returns the lazy combination sequence over them.
func (s *Service) Combinations(ctx context.Context, templateID string) (iter.Seq[Assignment], error) {
	var domains []domain.Attribute
	err := s.view(ctx, "combinations", func(view TransactionView) error {
		tmpl, err := synthesisTemplate(view, templateID)
		if err != nil {
			return err
		}
		domains, err = synthesisDomains(view, tmpl)
		return err
	})
	if err != nil {
		return nil, err
	}
	return Combinations(domains), nil
}

// Synthesize creates an inactive variant for every combination of the
// template's domains that has no variant yet. Existing variants are left
// untouched; the whole run commits or rolls back as one transaction.
func (s *Service) Synthesize(ctx context.Context, templateID string) (SynthesisReport, error) {
	var report SynthesisReport
	_, err := s.run(ctx, "synthesize", func(tx Transaction) error {
		var err error
		report, err = SynthesizeTx(tx, templateID)
		return err
	})
	if err != nil {
		return SynthesisReport{}, err
	}
	s.logger.Info("variants synthesized", "template", templateID, "created", len(report.Created), "existing", len(report.Existing))
	return report, nil
}

// SynthesizeTx is Synthesize inside a caller-managed transaction. Domains
// are read once, before the first variant is written.
func SynthesizeTx(tx Transaction, templateID string) (SynthesisReport, error) {
	tmpl, err := synthesisTemplate(tx, templateID)
	if err != nil {
		return SynthesisReport{}, err
	}
	domains, err := synthesisDomains(tx, tmpl)
	if err != nil {
		return SynthesisReport{}, err
	}
	report := SynthesisReport{TemplateID: templateID}
	for a := range Combinations(domains) {
		fp, err := a.Fingerprint()
		if err != nil {
			return SynthesisReport{}, err
		}
		if existing, ok := tx.FindVariantByFingerprint(templateID, fp); ok {
			report.Existing = append(report.Existing, existing.ID)
			continue
		}
		created, err := tx.CreateVariant(domain.Variant{
			TemplateID: templateID,
			Attributes: a.Attributes(),
			Prices:     a.Prices(),
		}, domain.NewInactiveLifecycleState())
		var dup *domain.DuplicateFingerprintError
		switch {
		case errors.As(err, &dup):
			report.Existing = append(report.Existing, dup.ExistingID)
			continue
		case err != nil:
			return SynthesisReport{}, err
		}
		report.Created = append(report.Created, created.ID)
	}
	return report, nil
}
