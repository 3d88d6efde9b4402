package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// StageTiming aggregates every observation of one planner stage.
type StageTiming struct {
	Stage    string
	Runs     int
	Failures int
	Total    time.Duration
}

// TimingRecorder keeps per-stage totals in the order stages first ran.
type TimingRecorder struct {
	mu     sync.Mutex
	order  []string
	stages map[string]*StageTiming
}

// NewTimingRecorder returns an empty recorder.
func NewTimingRecorder() *TimingRecorder {
	return &TimingRecorder{stages: make(map[string]*StageTiming)}
}

// Observe adds one stage run. Observations without a stage name are dropped.
func (r *TimingRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	st, ok := r.stages[operation]
	if !ok {
		st = &StageTiming{Stage: operation}
		r.stages[operation] = st
		r.order = append(r.order, operation)
	}
	st.Runs++
	if !success {
		st.Failures++
	}
	st.Total += duration
}

// Timings returns a copy of the totals in first-run order.
func (r *TimingRecorder) Timings() []StageTiming {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]StageTiming, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.stages[name])
	}
	return out
}

// WriteSummary prints one line per stage: name, runs, failures and total time.
func (r *TimingRecorder) WriteSummary(w io.Writer) error {
	for _, st := range r.Timings() {
		if _, err := fmt.Fprintf(w, "%-16s %3d run(s) %3d failed %10s\n", st.Stage, st.Runs, st.Failures, st.Total.Round(time.Microsecond)); err != nil {
			return err
		}
	}
	return nil
}

// JSONTraceEntry represents a serialized trace span emitted by JSONTraceTracer.
type JSONTraceEntry struct {
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTraceTracer serializes spans to a writer and retains them for inspection.
type JSONTraceTracer struct {
	mu      sync.Mutex
	entries []JSONTraceEntry
	enc     *json.Encoder
}

// NewJSONTracer constructs a tracer that writes spans as JSON lines to the writer.
// The tracer retains all encoded spans for later inspection via Entries().
func NewJSONTracer(w io.Writer) *JSONTraceTracer {
	var enc *json.Encoder
	if w != nil {
		enc = json.NewEncoder(w)
	}
	return &JSONTraceTracer{
		enc: enc,
	}
}

// Entries returns a copy of all recorded spans.
func (t *JSONTraceTracer) Entries() []JSONTraceEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]JSONTraceEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Start implements the Tracer interface.
func (t *JSONTraceTracer) Start(ctx context.Context, operation string) (context.Context, TraceSpan) {
	span := &jsonTraceSpan{
		tracer:    t,
		operation: operation,
		started:   time.Now().UTC(),
	}
	return ctx, span
}

type jsonTraceSpan struct {
	tracer    *JSONTraceTracer
	operation string
	started   time.Time
}

func (s *jsonTraceSpan) End(err error) {
	status := "success"
	var errMsg string
	if err != nil {
		status = "error"
		errMsg = err.Error()
	}
	ended := time.Now().UTC()
	entry := JSONTraceEntry{
		Operation:  s.operation,
		Status:     status,
		DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
		Error:      errMsg,
		StartedAt:  s.started,
		EndedAt:    ended,
	}

	s.tracer.mu.Lock()
	s.tracer.entries = append(s.tracer.entries, entry)
	if s.tracer.enc != nil {
		_ = s.tracer.enc.Encode(entry)
	}
	s.tracer.mu.Unlock()
}

// PrometheusMetricsRecorder exposes stage durations and outcomes as Prometheus
// collectors on its own registry.
type PrometheusMetricsRecorder struct {
	registry *prometheus.Registry
	duration *prometheus.HistogramVec
	total    *prometheus.CounterVec
}

// NewPrometheusMetricsRecorder registers the planner collectors on a fresh registry.
func NewPrometheusMetricsRecorder() *PrometheusMetricsRecorder {
	r := &PrometheusMetricsRecorder{
		registry: prometheus.NewRegistry(),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "labplanner",
			Name:      "stage_duration_seconds",
			Help:      "Duration of planner stages.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}, []string{"operation"}),
		total: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "labplanner",
			Name:      "stage_total",
			Help:      "Planner stage outcomes.",
		}, []string{"operation", "status"}),
	}
	r.registry.MustRegister(r.duration, r.total)
	return r
}

// Registry returns the gatherer holding the planner collectors.
func (r *PrometheusMetricsRecorder) Registry() *prometheus.Registry { return r.registry }

// Observe records a planner stage outcome.
func (r *PrometheusMetricsRecorder) Observe(_ context.Context, operation string, success bool, duration time.Duration) {
	if operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.duration.WithLabelValues(operation).Observe(duration.Seconds())
	r.total.WithLabelValues(operation, status).Inc()
}

// WriteTextfile writes the registry in the node-exporter textfile format.
func (r *PrometheusMetricsRecorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// MultiMetricsRecorder fans observations out to several recorders.
type MultiMetricsRecorder []MetricsRecorder

// Observe forwards the observation to every recorder.
func (m MultiMetricsRecorder) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, rec := range m {
		if rec != nil {
			rec.Observe(ctx, operation, success, duration)
		}
	}
}

// ZapAuditRecorder writes audit entries to a structured logger.
type ZapAuditRecorder struct {
	logger *zap.Logger
}

// NewZapAuditRecorder returns a recorder logging under the "audit" name.
func NewZapAuditRecorder(logger *zap.Logger) *ZapAuditRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapAuditRecorder{logger: logger.Named("audit")}
}

// Record logs successful runs at info and failed runs at warn.
func (r *ZapAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	fields := []zap.Field{
		zap.String("operation", entry.Operation),
		zap.String("experiment", entry.Experiment),
		zap.String("status", string(entry.Status)),
		zap.Duration("duration", entry.Duration),
		zap.Time("occurred_at", entry.OccurredAt),
	}
	if entry.EntityID != "" {
		fields = append(fields, zap.String("entity_id", entry.EntityID))
	}
	if entry.Status == AuditStatusError {
		r.logger.Warn("planning run", append(fields, zap.String("error", entry.Error))...)
		return
	}
	r.logger.Info("planning run", fields...)
}
