package core

import (
	"context"
	"time"
)

// MetricsRecorder receives the outcome and duration of every planner stage.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around planner stages.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is finished exactly once with the stage error, nil on success.
type TraceSpan interface {
	End(err error)
}

// AuditStatus labels the outcome of an audited operation.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditEntry describes one archived planning run.
type AuditEntry struct {
	Operation  string
	Experiment string
	EntityID   string
	Status     AuditStatus
	Error      string
	Duration   time.Duration
	OccurredAt time.Time
}

// AuditRecorder receives an entry for every Plan and PlanAndArchive call.
type AuditRecorder interface {
	Record(ctx context.Context, entry AuditEntry)
}

type noopMetricsRecorder struct{}

func (noopMetricsRecorder) Observe(context.Context, string, bool, time.Duration) {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

type noopAuditRecorder struct{}

func (noopAuditRecorder) Record(context.Context, AuditEntry) {}
