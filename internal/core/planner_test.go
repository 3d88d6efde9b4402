package core

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"labplanner/internal/config"
	"labplanner/internal/infra/persistence/memory"
	"labplanner/pkg/domain"
)

func knockout(product string) domain.Construction {
	return domain.Construction{
		Product: product,
		Steps: []domain.Step{
			domain.PCR{Oligo1: "F1", Oligo2: "R1", Templates: []string{"pT"}, Output: "ipcr"},
			domain.Digestion{Substrate: "ipcr", Enzymes: []string{"SpeI"}, Output: "dig"},
			domain.Ligation{Fragments: []string{"dig"}, Output: "lig"},
			domain.Transformation{DNA: "lig", Strain: "Mach1", Antibiotic: "Spec", Output: product},
		},
		Sequences: map[string]domain.Polynucleotide{
			"F1": {Sequence: "ccaaaACTAGTgcttcgtagcc"},
			"R1": {Sequence: "ctcgtACTAGTgacctggcatgt"},
			"pT": {Sequence: "ATGCGTACGTTAGCCTAGGCT", DoubleStranded: true},
		},
	}
}

type metricsCall struct {
	op      string
	success bool
}

type captureMetricsRecorder struct {
	calls []metricsCall
}

func (c *captureMetricsRecorder) Observe(_ context.Context, op string, success bool, _ time.Duration) {
	c.calls = append(c.calls, metricsCall{op: op, success: success})
}

func (c *captureMetricsRecorder) ops() []string {
	var out []string
	for _, call := range c.calls {
		out = append(out, call.op)
	}
	return out
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

type captureAuditRecorder struct {
	entries []AuditEntry
}

func (c *captureAuditRecorder) Record(_ context.Context, entry AuditEntry) {
	c.entries = append(c.entries, entry)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestPlanKnockoutExperiment(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	audit := &captureAuditRecorder{}
	planner, err := NewPlanner(WithMetricsRecorder(metrics), WithTracer(tracer), WithAuditRecorder(audit))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}

	exp, err := planner.Plan(context.Background(), Request{Name: "exp", ID: 7, Constructions: []domain.Construction{knockout("pKO")}})
	if err != nil {
		t.Fatalf("plan: %v", err)
	}
	if exp.Name != "exp" || exp.ID != 7 || len(exp.Constructions) != 1 {
		t.Fatalf("unexpected experiment header %+v", exp)
	}
	if len(exp.Oligos) != 2 || exp.Oligos[0].Name != "F1" || exp.Oligos[1].Name != "R1" {
		t.Fatalf("unexpected oligos %+v", exp.Oligos)
	}
	if got := exp.Inventory.SampleCount(); got != 11 {
		t.Fatalf("expected 11 samples, got %d", got)
	}
	if got := len(exp.Packet.Sheets); got != 10 {
		t.Fatalf("expected 10 sheets, got %d: %v", got, exp.Packet.Titles())
	}
	if len(exp.Sequences) != 3 {
		t.Fatalf("expected merged sequence table, got %v", exp.Sequences)
	}

	stages := []string{StageValidate, StageOligos, StageAllocate, StageGenerate}
	if !equalStrings(metrics.ops(), stages) {
		t.Fatalf("unexpected metric stages %v", metrics.ops())
	}
	if !equalStrings(tracer.started, stages) || len(tracer.ended) != len(stages) {
		t.Fatalf("unexpected spans %v %v", tracer.started, tracer.ended)
	}
	for _, call := range metrics.calls {
		if !call.success {
			t.Fatalf("stage %s reported failure", call.op)
		}
	}
	if len(audit.entries) != 1 || audit.entries[0].Operation != "plan" || audit.entries[0].Status != AuditStatusSuccess {
		t.Fatalf("unexpected audit entries %+v", audit.entries)
	}
	if len(planner.Store().ListExperiments()) != 0 {
		t.Fatalf("Plan must not archive")
	}
}

func TestPlanAbortsAtFailingStage(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	tracer := &captureTracer{}
	audit := &captureAuditRecorder{}
	planner, err := NewPlanner(WithMetricsRecorder(metrics), WithTracer(tracer), WithAuditRecorder(audit))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	broken := knockout("pKO")
	broken.Sequences["R1"] = domain.Polynucleotide{Sequence: "ACGT-XX"}

	_, err = planner.Plan(context.Background(), Request{Name: "exp", ID: 7, Constructions: []domain.Construction{broken}})
	if !errors.Is(err, domain.ErrInvalidSequence) {
		t.Fatalf("expected invalid sequence error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), StageOligos+": ") {
		t.Fatalf("expected stage prefix, got %v", err)
	}
	if !equalStrings(tracer.started, []string{StageValidate, StageOligos}) {
		t.Fatalf("expected pipeline to stop after oligo extraction, got %v", tracer.started)
	}
	last := tracer.ended[len(tracer.ended)-1]
	if last.op != StageOligos || last.err == nil {
		t.Fatalf("expected failed span for %s, got %+v", StageOligos, last)
	}
	if call := metrics.calls[len(metrics.calls)-1]; call.success {
		t.Fatalf("expected failure metric, got %+v", call)
	}
	if audit.entries[0].Status != AuditStatusError || audit.entries[0].Error == "" {
		t.Fatalf("expected error audit entry, got %+v", audit.entries[0])
	}
}

func TestPlanRejectsInvalidRequests(t *testing.T) {
	planner, err := NewPlanner()
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	ctx := context.Background()
	if _, err := planner.Plan(ctx, Request{Constructions: []domain.Construction{knockout("pKO")}}); !errors.Is(err, ErrNameRequired) {
		t.Fatalf("expected name error, got %v", err)
	}
	if _, err := planner.Plan(ctx, Request{Name: "exp"}); !errors.Is(err, domain.ErrMalformedRecipe) {
		t.Fatalf("expected malformed recipe for empty request, got %v", err)
	}
	noSequences := knockout("pKO")
	noSequences.Sequences = nil
	_, err = planner.Plan(ctx, Request{Name: "exp", Constructions: []domain.Construction{noSequences}})
	if !errors.Is(err, domain.ErrMalformedRecipe) || !strings.HasPrefix(err.Error(), StageValidate+": ") || !strings.Contains(err.Error(), "no sequence for oligo F1") {
		t.Fatalf("expected missing primer sequence at validation, got %v", err)
	}
	noTransform := knockout("pKO")
	noTransform.Steps = noTransform.Steps[:3]
	if _, err := planner.Plan(ctx, Request{Name: "exp", Constructions: []domain.Construction{noTransform}}); !errors.Is(err, domain.ErrMalformedRecipe) {
		t.Fatalf("expected malformed recipe, got %v", err)
	}
}

func TestPlanCapacityExceeded(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.Box.Rows, policy.Box.Cols = 2, 2
	planner, err := NewPlanner(WithPolicy(policy))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	_, err = planner.Plan(context.Background(), Request{Name: "exp", ID: 1, Constructions: []domain.Construction{knockout("pKO")}})
	if !errors.Is(err, domain.ErrCapacityExceeded) {
		t.Fatalf("expected capacity error, got %v", err)
	}
	if !strings.HasPrefix(err.Error(), StageAllocate+": ") {
		t.Fatalf("expected allocate stage prefix, got %v", err)
	}
}

func TestPlanHonorsCancellation(t *testing.T) {
	planner, err := NewPlanner()
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := planner.Plan(ctx, Request{Name: "exp", Constructions: []domain.Construction{knockout("pKO")}}); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestNewPlannerRejectsInvalidPolicy(t *testing.T) {
	policy := config.DefaultPolicy()
	policy.Box.Rows = 0
	if _, err := NewPlanner(WithPolicy(policy)); err == nil {
		t.Fatalf("expected policy error")
	}
}

func TestPlanLogsSummary(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	planner, err := NewPlanner(WithLogger(zap.New(core)))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	if _, err := planner.Plan(context.Background(), Request{Name: "exp", ID: 7, Constructions: []domain.Construction{knockout("pKO")}}); err != nil {
		t.Fatalf("plan: %v", err)
	}
	entries := logs.FilterMessage("experiment planned").All()
	if len(entries) != 1 {
		t.Fatalf("expected one summary entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["experiment"] != "exp" || fields["sheets"] != int64(10) || fields["samples"] != int64(11) {
		t.Fatalf("unexpected summary fields %v", fields)
	}
}

func TestPlanAndArchiveChainsInventory(t *testing.T) {
	fixed := time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC)
	store := memory.NewStore(nil)
	audit := &captureAuditRecorder{}
	planner, err := NewPlanner(WithStore(store), WithClock(func() time.Time { return fixed }), WithAuditRecorder(audit))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	ctx := context.Background()

	first, rec, err := planner.PlanAndArchive(ctx, Request{Name: "exp1", ID: 1, Constructions: []domain.Construction{knockout("pKO1")}})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if rec.ID == "" || !rec.CreatedAt.Equal(fixed) || rec.ExperimentID != 1 {
		t.Fatalf("unexpected record %+v", rec)
	}
	if len(rec.Constructions) != 1 || !strings.HasPrefix(rec.Constructions[0], ">Construction of pKO1\n") {
		t.Fatalf("expected serialized construction, got %q", rec.Constructions)
	}
	if len(rec.Sheets) != len(first.Packet.Sheets) || !strings.HasPrefix(rec.Sheets[0], "# exp1: PCR\n") {
		t.Fatalf("expected rendered sheets, got %d", len(rec.Sheets))
	}

	second, _, err := planner.PlanAndArchive(ctx, Request{Name: "exp2", ID: 2, Constructions: []domain.Construction{knockout("pKO2")}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	boxes := second.Inventory.Boxes()
	if len(boxes) != 2 || boxes[0].Name != "exp1" || boxes[1].Name != "exp2" {
		t.Fatalf("expected chained boxes, got %d", len(boxes))
	}
	if got := store.Inventory().SampleCount(); got != 22 {
		t.Fatalf("expected 22 stored samples, got %d", got)
	}
	if got := len(store.ListExperiments()); got != 2 {
		t.Fatalf("expected 2 archived experiments, got %d", got)
	}
	if len(audit.entries) != 2 || audit.entries[1].Operation != "plan_and_archive" || audit.entries[1].EntityID == "" {
		t.Fatalf("unexpected audit entries %+v", audit.entries)
	}
}

func TestPlanAndArchiveChainedSheetsUseNewTubes(t *testing.T) {
	planner, err := NewPlanner(WithStore(memory.NewStore(nil)))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	ctx := context.Background()
	if _, _, err := planner.PlanAndArchive(ctx, Request{Name: "exp1", ID: 1, Constructions: []domain.Construction{knockout("pKO")}}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, _, err := planner.PlanAndArchive(ctx, Request{Name: "exp2", ID: 2, Constructions: []domain.Construction{knockout("pKO")}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if len(second.Placed) != 11 {
		t.Fatalf("expected 11 placed cells, got %d", len(second.Placed))
	}
	for _, sheet := range second.Packet.Sheets {
		for _, loc := range sheet.Destinations {
			if loc.Box != "exp2" {
				t.Fatalf("%s sends %s to %s", sheet.Title, loc.Label, loc)
			}
		}
	}
	cleanups := second.Packet.SheetsOfKind(domain.SheetCleanup)
	if len(cleanups) != 2 || cleanups[0].Destinations[0].Label != "z2" || cleanups[1].Destinations[0].Label != "d2" {
		t.Fatalf("expected cleanups into z2 and d2, got %+v", cleanups)
	}
	minipreps := second.Packet.SheetsOfKind(domain.SheetMiniprep)
	if len(minipreps) != 1 || len(minipreps[0].Items) != 4 {
		t.Fatalf("expected four clones of this run, got %+v", minipreps)
	}
}

type failingStore struct {
	*memory.Store
}

func (failingStore) RunInTransaction(context.Context, func(domain.Transaction) error) (domain.Result, error) {
	return domain.Result{}, errors.New("disk full")
}

func TestPlanAndArchiveStoreFailure(t *testing.T) {
	metrics := &captureMetricsRecorder{}
	audit := &captureAuditRecorder{}
	planner, err := NewPlanner(WithStore(failingStore{Store: memory.NewStore(nil)}), WithMetricsRecorder(metrics), WithAuditRecorder(audit))
	if err != nil {
		t.Fatalf("new planner: %v", err)
	}
	_, _, err = planner.PlanAndArchive(context.Background(), Request{Name: "exp", ID: 1, Constructions: []domain.Construction{knockout("pKO")}})
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("expected store error, got %v", err)
	}
	last := metrics.calls[len(metrics.calls)-1]
	if last.op != StageArchive || last.success {
		t.Fatalf("expected failed archive metric, got %+v", last)
	}
	if audit.entries[0].Status != AuditStatusError {
		t.Fatalf("expected error audit, got %+v", audit.entries[0])
	}
}

func TestMergeSequencesLaterWins(t *testing.T) {
	a := domain.Construction{Sequences: map[string]domain.Polynucleotide{"x": {Sequence: "AAA"}, "y": {Sequence: "CCC"}}}
	b := domain.Construction{Sequences: map[string]domain.Polynucleotide{"x": {Sequence: "GGG"}}}
	merged := MergeSequences([]domain.Construction{a, b})
	if len(merged) != 2 || merged["x"].Sequence != "GGG" || merged["y"].Sequence != "CCC" {
		t.Fatalf("unexpected merge %v", merged)
	}
}

func TestNoopImplementations(t *testing.T) {
	var audit noopAuditRecorder
	audit.Record(context.Background(), AuditEntry{})

	var metrics noopMetricsRecorder
	metrics.Observe(context.Background(), "noop", true, 0)

	tracer := noopTracer{}
	ctx, span := tracer.Start(context.Background(), "op")
	if ctx == nil {
		t.Fatalf("expected context from tracer")
	}
	span.End(nil)
}
