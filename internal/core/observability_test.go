package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"stockcore/pkg/domain"
)

type captureLogger struct {
	mu      sync.Mutex
	entries []string
}

func (l *captureLogger) add(prefix, msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, prefix+msg)
}

func (l *captureLogger) Debug(msg string, _ ...any) { l.add("d:", msg) }
func (l *captureLogger) Info(msg string, _ ...any)  { l.add("i:", msg) }
func (l *captureLogger) Warn(msg string, _ ...any)  { l.add("w:", msg) }
func (l *captureLogger) Error(msg string, _ ...any) { l.add("e:", msg) }

func (l *captureLogger) has(entry string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e == entry {
			return true
		}
	}
	return false
}

type metricsCall struct {
	op       string
	success  bool
	duration time.Duration
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, duration time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success, duration: duration})
}

func (c *captureMetricsRecorder) has(op string, success bool) bool {
	for _, call := range c.calls {
		if call.op == op && call.success == success {
			return true
		}
	}
	return false
}

type spanRecord struct {
	op  string
	err error
}

type captureTracer struct {
	started []string
	ended   []spanRecord
}

func (c *captureTracer) Start(ctx context.Context, op string) (context.Context, TraceSpan) {
	c.started = append(c.started, op)
	return ctx, &captureSpan{tracer: c, op: op}
}

type captureSpan struct {
	tracer *captureTracer
	op     string
}

func (s *captureSpan) End(err error) {
	s.tracer.ended = append(s.tracer.ended, spanRecord{op: s.op, err: err})
}

// steppingClock advances by step on every reading.
func steppingClock(start time.Time, step time.Duration) ClockFunc {
	var mu sync.Mutex
	now := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(step)
		return now
	}
}

func TestServiceObservability(t *testing.T) {
	ctx := context.Background()
	logger := &captureLogger{}
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	svc := NewInMemoryService(nil,
		WithLogger(logger),
		WithMetricsRecorder(metrics),
		WithTracer(tracer),
		WithClock(steppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), time.Millisecond)),
	)

	unit, _, err := svc.CreateUnitOfMeasure(ctx, domain.UnitOfMeasure{Name: "Unit"})
	if err != nil {
		t.Fatalf("create unit: %v", err)
	}
	if _, _, err := svc.CreateAttribute(ctx, domain.Attribute{Name: "empty"}); err == nil {
		t.Fatalf("expected validation error")
	}
	tmpl, _, _, err := svc.CreateTemplate(ctx, domain.Template{Name: "box", StockType: domain.StockService, UnitID: unit.ID})
	if err != nil {
		t.Fatalf("create template: %v", err)
	}
	if _, err := svc.Synthesize(ctx, tmpl.ID); err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	if _, err := svc.Check(ctx, domain.Ref(domain.EntityTemplate, tmpl.ID), Active); err != nil {
		t.Fatalf("check: %v", err)
	}

	if !metrics.has("create_unit_of_measure", true) || !metrics.has("create_attribute", false) || !metrics.has("check", true) {
		t.Fatalf("missing metrics calls: %+v", metrics.calls)
	}
	for _, call := range metrics.calls {
		if call.duration <= 0 {
			t.Fatalf("%s: expected a positive duration from the stepping clock, got %s", call.op, call.duration)
		}
	}
	if len(tracer.started) != len(tracer.ended) {
		t.Fatalf("every span must end: started=%v ended=%v", tracer.started, tracer.ended)
	}
	var failed bool
	for _, span := range tracer.ended {
		if span.op == "create_attribute" && span.err != nil {
			failed = true
		}
	}
	if !failed {
		t.Fatalf("failed operation span must carry the error: %+v", tracer.ended)
	}
	for _, want := range []string{"d:operation committed", "e:operation failed", "i:variants synthesized"} {
		if !logger.has(want) {
			t.Fatalf("missing log entry %q in %v", want, logger.entries)
		}
	}
	if !tmpl.CreatedAt.After(unit.CreatedAt) {
		t.Fatalf("record timestamps must follow the service clock: %s vs %s", tmpl.CreatedAt, unit.CreatedAt)
	}
}

func TestServiceLogsRuleViolations(t *testing.T) {
	logger := &captureLogger{}
	engine := NewRulesEngine()
	engine.Register(warnRule{})
	svc := NewInMemoryService(engine, WithLogger(logger))
	if err := svc.SetState(context.Background(), domain.Ref(domain.EntityCategory, "missing"), Active); err == nil {
		t.Fatalf("expected not found")
	}
	cat, result, err := svc.CreateCategory(context.Background(), domain.Category{Name: "Tops"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if cat.ID == "" || len(result.Violations) != 1 {
		t.Fatalf("expected one warning violation, got %+v", result)
	}
	if !logger.has("w:rule violation") {
		t.Fatalf("expected warning log, got %v", logger.entries)
	}
}

type warnRule struct{}

func (warnRule) Name() string { return "warn_rule" }

func (warnRule) Evaluate(_ context.Context, _ TransactionView, changes []Change) (Result, error) {
	var res Result
	for _, c := range changes {
		res.Violations = append(res.Violations, Violation{Rule: "warn_rule", Severity: SeverityWarn, Entity: c.Entity, EntityID: c.ID})
	}
	return res, nil
}

func TestNoopObservabilityDefaults(t *testing.T) {
	var l Logger = noopLogger{}
	l.Debug("x")
	l.Info("x")
	l.Warn("x")
	l.Error("x")
	noopMetrics{}.Observe(context.Background(), "op", true, time.Second)
	ctx, span := noopTracer{}.Start(context.Background(), "op")
	span.End(errors.New("ignored"))
	if ctx == nil {
		t.Fatalf("noop tracer must return the context")
	}
	if now := (systemClock{}).Now(); now.Location() != time.UTC {
		t.Fatalf("system clock must report UTC, got %s", now.Location())
	}
	svc := NewService(nil, WithLogger(nil), WithClock(nil), WithMetricsRecorder(nil), WithTracer(nil))
	if svc.logger == nil || svc.clock == nil || svc.metrics == nil || svc.tracer == nil {
		t.Fatalf("nil options must keep defaults")
	}
}

func TestPrometheusMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics, err := NewPrometheusMetrics(reg)
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	svc := NewInMemoryService(nil, WithMetricsRecorder(metrics))
	ctx := context.Background()
	if _, _, err := svc.CreateCategory(ctx, domain.Category{Name: "Tops"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, _, err := svc.CreateCategory(ctx, domain.Category{}); err == nil {
		t.Fatalf("expected validation failure")
	}
	if got := testutil.ToFloat64(metrics.total.WithLabelValues("create_category", "success")); got != 1 {
		t.Fatalf("expected 1 success, got %v", got)
	}
	if got := testutil.ToFloat64(metrics.total.WithLabelValues("create_category", "error")); got != 1 {
		t.Fatalf("expected 1 error, got %v", got)
	}
	if n := testutil.CollectAndCount(metrics.duration, "stockcore_operation_duration_seconds"); n != 1 {
		t.Fatalf("expected one histogram series, got %d", n)
	}
	metrics.Observe(ctx, "", true, time.Second)
	if n := testutil.CollectAndCount(metrics.total); n != 2 {
		t.Fatalf("empty operation must be ignored, got %d series", n)
	}
	if _, err := NewPrometheusMetrics(reg); err == nil {
		t.Fatalf("expected duplicate registration error")
	}
	if _, err := NewPrometheusMetrics(nil); err != nil {
		t.Fatalf("unregistered metrics: %v", err)
	}
}

func TestJSONTracer(t *testing.T) {
	var buf bytes.Buffer
	tracer := NewJSONTracer(&buf)
	tracer.clock = steppingClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 2*time.Millisecond)
	svc := NewInMemoryService(nil, WithTracer(tracer))
	ctx := context.Background()
	if _, _, err := svc.CreateCategory(ctx, domain.Category{Name: "Tops"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.Check(ctx, domain.Ref(domain.EntityCategory, "missing"), Active); err == nil {
		t.Fatalf("expected not found")
	}
	entries := tracer.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 spans, got %d", len(entries))
	}
	if entries[0].Operation != "create_category" || entries[0].Status != "success" || entries[0].DurationMS != 2 {
		t.Fatalf("unexpected first span %+v", entries[0])
	}
	if entries[1].Status != "error" || !strings.Contains(entries[1].Error, "not found") {
		t.Fatalf("unexpected second span %+v", entries[1])
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 json lines, got %d", len(lines))
	}
	var decoded JSONTraceEntry
	if err := json.Unmarshal([]byte(lines[1]), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Operation != "check" {
		t.Fatalf("unexpected decoded span %+v", decoded)
	}
	if silent := NewJSONTracer(nil); silent.enc != nil {
		t.Fatalf("nil writer must not encode")
	} else {
		_, span := silent.Start(ctx, "op")
		span.End(fmt.Errorf("x"))
		if len(silent.Entries()) != 1 {
			t.Fatalf("nil writer still records entries")
		}
	}
}
