// Package observability provides lightweight span tracing and the engine's
// Prometheus metrics surface.
package observability

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ─── Trace Spans ────────────────────────────────────────────────────────────

// SpanKind classifies a span.
type SpanKind int

const (
	SpanInternal SpanKind = iota
	SpanServer
	SpanClient
)

// Span represents a unit of work within a trace — one Process call, one
// store round trip, one HTTP request.
type Span struct {
	TraceID   string            `json:"trace_id"`
	SpanID    string            `json:"span_id"`
	ParentID  string            `json:"parent_id,omitempty"`
	Operation string            `json:"operation"`
	Kind      SpanKind          `json:"kind"`
	StartTime time.Time         `json:"start_time"`
	EndTime   time.Time         `json:"end_time,omitempty"`
	Duration  time.Duration     `json:"duration,omitempty"`
	Status    SpanStatus        `json:"status"`
	Attrs     map[string]string `json:"attrs,omitempty"`
}

// SpanStatus indicates success/failure.
type SpanStatus int

const (
	SpanOK SpanStatus = iota
	SpanError
)

// Tracer is a fixed-capacity ring buffer of recent spans, inspectable for
// debugging without standing up a full tracing backend.
type Tracer struct {
	mu       sync.Mutex
	spans    []Span
	maxSpans int
	enabled  bool
}

// TracerConfig configures the tracer.
type TracerConfig struct {
	Enabled  bool
	MaxSpans int
}

// DefaultTracerConfig returns production defaults.
func DefaultTracerConfig() TracerConfig {
	return TracerConfig{Enabled: true, MaxSpans: 10_000}
}

// NewTracer creates a new tracer.
func NewTracer(cfg TracerConfig) *Tracer {
	return &Tracer{
		spans:    make([]Span, 0, cfg.MaxSpans),
		maxSpans: cfg.MaxSpans,
		enabled:  cfg.Enabled,
	}
}

// StartSpan begins a new span with the given operation name.
func (t *Tracer) StartSpan(ctx context.Context, operation string, attrs map[string]string) *Span {
	if !t.enabled {
		return &Span{Operation: operation}
	}
	return &Span{
		TraceID:   traceIDFromContext(ctx),
		SpanID:    generateID(),
		ParentID:  spanIDFromContext(ctx),
		Operation: operation,
		Kind:      SpanInternal,
		StartTime: time.Now(),
		Status:    SpanOK,
		Attrs:     attrs,
	}
}

// EndSpan completes a span and records it, evicting the oldest if at capacity.
func (t *Tracer) EndSpan(span *Span, err error) {
	if !t.enabled || span == nil {
		return
	}

	span.EndTime = time.Now()
	span.Duration = span.EndTime.Sub(span.StartTime)
	if err != nil {
		span.Status = SpanError
		if span.Attrs == nil {
			span.Attrs = make(map[string]string)
		}
		span.Attrs["error"] = err.Error()
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.spans) >= t.maxSpans {
		t.spans = t.spans[1:]
	}
	t.spans = append(t.spans, *span)

	TracesRecorded.Inc()
	if span.Status == SpanError {
		TraceErrors.Inc()
	}
}

// Spans returns a copy of the most recent spans, newest last.
func (t *Tracer) Spans(limit int) []Span {
	t.mu.Lock()
	defer t.mu.Unlock()
	if limit <= 0 || limit > len(t.spans) {
		limit = len(t.spans)
	}
	start := len(t.spans) - limit
	out := make([]Span, limit)
	copy(out, t.spans[start:])
	return out
}

// SpanCount returns the number of recorded spans.
func (t *Tracer) SpanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.spans)
}

// Reset clears all recorded spans.
func (t *Tracer) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.spans = t.spans[:0]
}

// ─── Context Helpers ────────────────────────────────────────────────────────

type contextKey string

const (
	traceIDKey contextKey = "amas-trace-id"
	spanIDKey  contextKey = "amas-span-id"
)

// WithTraceID returns a context carrying the given trace ID.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

// WithSpanID returns a context carrying the given span ID.
func WithSpanID(ctx context.Context, spanID string) context.Context {
	return context.WithValue(ctx, spanIDKey, spanID)
}

func traceIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(traceIDKey).(string); ok {
		return v
	}
	return generateID()
}

func spanIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(spanIDKey).(string); ok {
		return v
	}
	return ""
}

var spanCounter atomic.Int64

// generateID returns a short, non-cryptographic unique ID, fine for tracing.
func generateID() string {
	n := spanCounter.Add(1)
	return fmt.Sprintf("%s-%d", time.Now().Format("20060102150405"), n)
}

// ─── Prometheus Metrics ─────────────────────────────────────────────────────

// EventsProcessed counts RawEvents the engine has fully processed, by
// outcome (ok, error).
var EventsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "amas",
	Subsystem: "engine",
	Name:      "events_processed_total",
	Help:      "Total events processed by the engine, by outcome.",
}, []string{"outcome"})

// ProcessLatency tracks end-to-end Process() latency.
var ProcessLatency = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "amas",
	Subsystem: "engine",
	Name:      "process_latency_ms",
	Help:      "Engine Process() latency in milliseconds.",
	Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 500, 1000},
})

// ColdStartPhaseEvents counts processed events by the cold-start phase they
// landed in, labeled by phase (classify, explore, normal). A gauge of
// concurrently active users per phase isn't observable through the
// load/save-only StateStore interface, so this counts every processed event
// under its phase instead.
var ColdStartPhaseEvents = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "amas",
	Subsystem: "engine",
	Name:      "cold_start_phase_events_total",
	Help:      "Events processed, labeled by the cold-start phase they landed in.",
}, []string{"phase"})

// ModelHealth tracks the bandit/MDM/VARK combined health gauge per user
// population sampled by diagnostics (1=healthy, 0=unhealthy).
var ModelHealth = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: "amas",
	Subsystem: "diagnostics",
	Name:      "model_health",
	Help:      "Most recent combined model health check result (1=healthy, 0=unhealthy).",
})

// RewardObserved tracks the distribution of reward values fed back into the
// bandit.
var RewardObserved = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "amas",
	Subsystem: "bandit",
	Name:      "reward_observed",
	Help:      "Distribution of reward values folded into the bandit.",
	Buckets:   prometheus.LinearBuckets(0, 0.1, 11),
})

// MasteryPassed counts mastery decisions by outcome.
var MasteryPassed = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "amas",
	Subsystem: "mastery",
	Name:      "decisions_total",
	Help:      "Total mastery decisions by outcome (mastered, not_mastered).",
}, []string{"outcome"})

// TracesRecorded tracks total spans recorded.
var TracesRecorded = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "amas",
	Subsystem: "traces",
	Name:      "spans_recorded_total",
	Help:      "Total trace spans recorded.",
})

// TraceErrors tracks error spans.
var TraceErrors = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: "amas",
	Subsystem: "traces",
	Name:      "error_spans_total",
	Help:      "Total trace spans with error status.",
})
