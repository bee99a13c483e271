// Package core implements the catalog service: lifecycle transitions, the
// commit-time rules and variant synthesis on top of a domain.PersistentStore.
package core

import (
	"context"
	"slices"

	"stockcore/internal/infra/persistence/memory"
	"stockcore/pkg/domain"
)

// Service exposes transactional catalog operations.
type Service struct {
	store   PersistentStore
	clock   Clock
	logger  Logger
	metrics MetricsRecorder
	tracer  Tracer
}

// ServiceOption customises a Service.
type ServiceOption func(*Service)

// WithClock overrides the time source used for durations and export stamps.
func WithClock(clock Clock) ServiceOption {
	return func(s *Service) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// WithLogger installs a structured logger.
func WithLogger(logger Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithMetricsRecorder installs an operation metrics sink.
func WithMetricsRecorder(metrics MetricsRecorder) ServiceOption {
	return func(s *Service) {
		if metrics != nil {
			s.metrics = metrics
		}
	}
}

// WithTracer installs a span tracer.
func WithTracer(tracer Tracer) ServiceOption {
	return func(s *Service) {
		if tracer != nil {
			s.tracer = tracer
		}
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store PersistentStore, opts ...ServiceOption) *Service {
	s := &Service{
		store:   store,
		clock:   systemClock{},
		logger:  noopLogger{},
		metrics: noopMetrics{},
		tracer:  noopTracer{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewInMemoryService creates a service over a fresh in-memory store. A nil
// engine selects NewDefaultRulesEngine. Record timestamps follow the
// service clock.
func NewInMemoryService(engine *RulesEngine, opts ...ServiceOption) *Service {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	s := NewService(nil, opts...)
	s.store = memory.NewStore(engine, memory.WithClock(s.clock.Now))
	return s
}

// Store returns the underlying storage implementation.
func (s *Service) Store() PersistentStore {
	return s.store
}

// Close releases the underlying store.
func (s *Service) Close() error {
	return s.store.Close()
}

// run executes fn in one store transaction, wrapped in tracing, metrics and
// logging.
func (s *Service) run(ctx context.Context, op string, fn func(Transaction) error) (Result, error) {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	res, err := s.store.RunInTransaction(ctx, fn)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	span.End(err)
	for _, v := range res.Violations {
		s.logger.Warn("rule violation", "operation", op, "rule", v.Rule, "severity", v.Severity, "entity", v.Entity, "id", v.EntityID, "message", v.Message)
	}
	if err != nil {
		s.logger.Error("operation failed", "operation", op, "error", err)
		return res, err
	}
	s.logger.Debug("operation committed", "operation", op)
	return res, nil
}

// view executes fn against a consistent read snapshot.
func (s *Service) view(ctx context.Context, op string, fn func(TransactionView) error) error {
	ctx, span := s.tracer.Start(ctx, op)
	start := s.clock.Now()
	err := s.store.View(ctx, fn)
	s.metrics.Observe(ctx, op, err == nil, s.clock.Now().Sub(start))
	span.End(err)
	if err != nil {
		s.logger.Error("read failed", "operation", op, "error", err)
	}
	return err
}

// CreateCategory persists a new category.
func (s *Service) CreateCategory(ctx context.Context, category domain.Category) (domain.Category, Result, error) {
	var created domain.Category
	res, err := s.run(ctx, "create_category", func(tx Transaction) error {
		var err error
		created, err = tx.CreateCategory(category)
		return err
	})
	return created, res, err
}

// CreateUnitOfMeasure persists a new unit.
func (s *Service) CreateUnitOfMeasure(ctx context.Context, unit domain.UnitOfMeasure) (domain.UnitOfMeasure, Result, error) {
	var created domain.UnitOfMeasure
	res, err := s.run(ctx, "create_unit_of_measure", func(tx Transaction) error {
		var err error
		created, err = tx.CreateUnitOfMeasure(unit)
		return err
	})
	return created, res, err
}

// CreateAttribute persists a new attribute domain.
func (s *Service) CreateAttribute(ctx context.Context, attr domain.Attribute) (domain.Attribute, Result, error) {
	var created domain.Attribute
	res, err := s.run(ctx, "create_attribute", func(tx Transaction) error {
		var err error
		created, err = tx.CreateAttribute(attr)
		return err
	})
	return created, res, err
}

// UpdateAttribute mutates an attribute domain. When its value set changes,
// every live template using the attribute is re-synthesized in the same
// transaction.
func (s *Service) UpdateAttribute(ctx context.Context, id string, mutator func(*domain.Attribute) error) (domain.Attribute, Result, error) {
	var updated domain.Attribute
	res, err := s.run(ctx, "update_attribute", func(tx Transaction) error {
		before, ok := tx.FindAttribute(id)
		if !ok {
			return domain.ErrNotFound{Entity: domain.EntityAttribute, ID: id}
		}
		var err error
		updated, err = tx.UpdateAttribute(id, mutator)
		if err != nil {
			return err
		}
		if sameMembers(attributeValues(before), attributeValues(updated)) {
			return nil
		}
		for _, tmpl := range tx.ListTemplates() {
			if !slices.Contains(tmpl.AttributeIDs, id) || !tmpl.Lifecycle.Holds(domain.NotDeleted) {
				continue
			}
			if _, err := SynthesizeTx(tx, tmpl.ID); err != nil {
				return err
			}
		}
		return nil
	})
	return updated, res, err
}

// CreateTemplate persists a template and synthesizes its initial variants.
func (s *Service) CreateTemplate(ctx context.Context, tmpl domain.Template) (domain.Template, SynthesisReport, Result, error) {
	var (
		created domain.Template
		report  SynthesisReport
	)
	res, err := s.run(ctx, "create_template", func(tx Transaction) error {
		var err error
		if created, err = tx.CreateTemplate(tmpl); err != nil {
			return err
		}
		report, err = SynthesizeTx(tx, created.ID)
		return err
	})
	return created, report, res, err
}

// UpdateTemplate mutates a template. A change in attribute membership
// re-runs synthesis inside the same transaction.
func (s *Service) UpdateTemplate(ctx context.Context, id string, mutator func(*domain.Template) error) (domain.Template, SynthesisReport, Result, error) {
	var (
		updated domain.Template
		report  SynthesisReport
	)
	res, err := s.run(ctx, "update_template", func(tx Transaction) error {
		var err error
		updated, report, err = updateTemplateTx(tx, id, mutator)
		return err
	})
	return updated, report, res, err
}

// AddTemplateAttributes appends attribute domains to a template and
// synthesizes the new combinations.
func (s *Service) AddTemplateAttributes(ctx context.Context, id string, attributeIDs ...string) (domain.Template, SynthesisReport, Result, error) {
	var (
		updated domain.Template
		report  SynthesisReport
	)
	res, err := s.run(ctx, "add_template_attributes", func(tx Transaction) error {
		var err error
		updated, report, err = updateTemplateTx(tx, id, func(t *domain.Template) error {
			for _, attrID := range attributeIDs {
				if !slices.Contains(t.AttributeIDs, attrID) {
					t.AttributeIDs = append(t.AttributeIDs, attrID)
				}
			}
			return nil
		})
		return err
	})
	return updated, report, res, err
}

// RemoveTemplateAttributes drops attribute domains from a template. Existing
// variants are kept; synthesis adds the combinations of the remaining domains.
func (s *Service) RemoveTemplateAttributes(ctx context.Context, id string, attributeIDs ...string) (domain.Template, SynthesisReport, Result, error) {
	var (
		updated domain.Template
		report  SynthesisReport
	)
	res, err := s.run(ctx, "remove_template_attributes", func(tx Transaction) error {
		var err error
		updated, report, err = updateTemplateTx(tx, id, func(t *domain.Template) error {
			t.AttributeIDs = slices.DeleteFunc(t.AttributeIDs, func(attrID string) bool {
				return slices.Contains(attributeIDs, attrID)
			})
			return nil
		})
		return err
	})
	return updated, report, res, err
}

func updateTemplateTx(tx Transaction, id string, mutator func(*domain.Template) error) (domain.Template, SynthesisReport, error) {
	before, ok := tx.FindTemplate(id)
	if !ok {
		return domain.Template{}, SynthesisReport{}, domain.ErrNotFound{Entity: domain.EntityTemplate, ID: id}
	}
	updated, err := tx.UpdateTemplate(id, mutator)
	if err != nil {
		return domain.Template{}, SynthesisReport{}, err
	}
	if sameMembers(before.AttributeIDs, updated.AttributeIDs) {
		return updated, SynthesisReport{TemplateID: id}, nil
	}
	report, err := SynthesizeTx(tx, id)
	return updated, report, err
}

// UpdateVariant mutates a variant. The store recomputes the fingerprint.
func (s *Service) UpdateVariant(ctx context.Context, id string, mutator func(*domain.Variant) error) (domain.Variant, Result, error) {
	var updated domain.Variant
	res, err := s.run(ctx, "update_variant", func(tx Transaction) error {
		var err error
		updated, err = tx.UpdateVariant(id, mutator)
		return err
	})
	return updated, res, err
}

// CreateLot persists a lot for an active variant.
func (s *Service) CreateLot(ctx context.Context, lot domain.Lot) (domain.Lot, Result, error) {
	var created domain.Lot
	res, err := s.run(ctx, "create_lot", func(tx Transaction) error {
		var err error
		created, err = tx.CreateLot(lot)
		return err
	})
	return created, res, err
}

// CreateBarcode persists the barcode of an active variant.
func (s *Service) CreateBarcode(ctx context.Context, barcode domain.Barcode) (domain.Barcode, Result, error) {
	var created domain.Barcode
	res, err := s.run(ctx, "create_barcode", func(tx Transaction) error {
		var err error
		created, err = tx.CreateBarcode(barcode)
		return err
	})
	return created, res, err
}

// Variants lists a template's variants in creation order.
func (s *Service) Variants(ctx context.Context, templateID string) (domain.Template, []domain.Variant, error) {
	var (
		tmpl     domain.Template
		variants []domain.Variant
	)
	err := s.view(ctx, "list_variants", func(view TransactionView) error {
		var ok bool
		if tmpl, ok = view.FindTemplate(templateID); !ok {
			return domain.ErrNotFound{Entity: domain.EntityTemplate, ID: templateID}
		}
		variants = view.ListVariantsByTemplate(templateID)
		return nil
	})
	return tmpl, variants, err
}

// FindTemplateByName resolves a template id from its unique name.
func (s *Service) FindTemplateByName(ctx context.Context, name string) (domain.Template, error) {
	var found domain.Template
	err := s.view(ctx, "find_template", func(view TransactionView) error {
		for _, t := range view.ListTemplates() {
			if t.Name == name {
				found = t
				return nil
			}
		}
		return domain.ErrNotFound{Entity: domain.EntityTemplate, ID: name}
	})
	return found, err
}

func attributeValues(a domain.Attribute) []string {
	out := make([]string, 0, len(a.Values))
	for _, v := range a.Values {
		out = append(out, v.Value)
	}
	return out
}

// sameMembers reports whether a and b hold the same set of strings.
func sameMembers(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; !ok {
			return false
		}
	}
	return true
}
