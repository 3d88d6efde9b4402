package core

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"labplanner/internal/config"
	"labplanner/internal/construction"
	"labplanner/internal/infra/persistence/memory"
	"labplanner/internal/inventory"
	"labplanner/internal/labpacket"
	"labplanner/internal/logging"
	"labplanner/internal/oligo"
	"labplanner/pkg/domain"
)

// Stage names reported to metrics, traces and logs.
const (
	StageValidate = "validate"
	StageOligos   = "extract_oligos"
	StageAllocate = "allocate"
	StageGenerate = "generate"
	StageArchive  = "archive"
)

// ErrNameRequired is returned for a request without an experiment name.
var ErrNameRequired = errors.New("experiment name is required")

type plannerOptions struct {
	clock   func() time.Time
	logger  *zap.Logger
	metrics MetricsRecorder
	tracer  Tracer
	audit   AuditRecorder
	policy  config.Policy
	engine  *domain.RulesEngine
	store   domain.PersistentStore
}

// Option configures a Planner.
type Option func(*plannerOptions)

// WithClock overrides the time source used for archive timestamps.
func WithClock(clock func() time.Time) Option {
	return func(o *plannerOptions) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *plannerOptions) { o.logger = logging.OrNop(logger) }
}

// WithMetricsRecorder sets the stage metrics sink.
func WithMetricsRecorder(rec MetricsRecorder) Option {
	return func(o *plannerOptions) {
		if rec != nil {
			o.metrics = rec
		}
	}
}

// WithTracer sets the stage tracer.
func WithTracer(tracer Tracer) Option {
	return func(o *plannerOptions) {
		if tracer != nil {
			o.tracer = tracer
		}
	}
}

// WithAuditRecorder sets the sink for per-run audit entries.
func WithAuditRecorder(rec AuditRecorder) Option {
	return func(o *plannerOptions) {
		if rec != nil {
			o.audit = rec
		}
	}
}

// WithPolicy replaces the default planning policy.
func WithPolicy(policy config.Policy) Option {
	return func(o *plannerOptions) { o.policy = policy }
}

// WithRulesEngine sets the engine evaluated over allocated inventories.
func WithRulesEngine(engine *domain.RulesEngine) Option {
	return func(o *plannerOptions) {
		if engine != nil {
			o.engine = engine
		}
	}
}

// WithStore sets the archive used by PlanAndArchive.
func WithStore(store domain.PersistentStore) Option {
	return func(o *plannerOptions) {
		if store != nil {
			o.store = store
		}
	}
}

// Planner runs the planning pipeline. It is safe for concurrent use when
// requests do not share a prior inventory.
type Planner struct {
	opts      plannerOptions
	allocator *inventory.Allocator
	generator *labpacket.Generator
}

// NewPlanner builds a planner with the default policy, the inventory rules,
// an in-memory archive and no-op observability unless overridden.
func NewPlanner(opts ...Option) (*Planner, error) {
	o := plannerOptions{
		clock:   func() time.Time { return time.Now().UTC() },
		logger:  logging.NewNop(),
		metrics: noopMetricsRecorder{},
		tracer:  noopTracer{},
		audit:   noopAuditRecorder{},
		policy:  config.DefaultPolicy(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.policy.Validate(); err != nil {
		return nil, fmt.Errorf("planner policy: %w", err)
	}
	if o.engine == nil {
		o.engine = inventory.NewDefaultRulesEngine()
	}
	if o.store == nil {
		o.store = memory.NewStore(o.engine)
	}
	return &Planner{
		opts:      o,
		allocator: inventory.NewAllocator(o.policy, o.engine, o.logger),
		generator: labpacket.NewGenerator(o.policy, o.logger),
	}, nil
}

// Store returns the archive backing PlanAndArchive.
func (p *Planner) Store() domain.PersistentStore { return p.opts.store }

// Policy returns the active planning policy.
func (p *Planner) Policy() config.Policy { return p.opts.policy }

// Plan validates the constructions, extracts their oligos, allocates their
// samples on top of req.Prior and generates the lab packet. The first failing
// stage aborts the run.
func (p *Planner) Plan(ctx context.Context, req Request) (Experiment, error) {
	started := p.opts.clock()
	exp, err := p.plan(ctx, req)
	p.recordAudit(ctx, "plan", req.Name, "", started, err)
	return exp, err
}

// PlanAndArchive plans req and commits the experiment record and the new lab
// inventory in one store transaction. A nil req.Prior starts from the stored
// inventory.
func (p *Planner) PlanAndArchive(ctx context.Context, req Request) (Experiment, domain.ExperimentRecord, error) {
	started := p.opts.clock()
	if req.Prior == nil {
		req.Prior = p.opts.store.Inventory()
	}
	exp, err := p.plan(ctx, req)
	if err != nil {
		p.recordAudit(ctx, "plan_and_archive", req.Name, "", started, err)
		return Experiment{}, domain.ExperimentRecord{}, err
	}
	var rec domain.ExperimentRecord
	err = p.run(ctx, p.logFor(req), StageArchive, func(ctx context.Context) error {
		var err error
		rec, err = p.archive(ctx, exp)
		return err
	})
	p.recordAudit(ctx, "plan_and_archive", req.Name, rec.ID, started, err)
	if err != nil {
		return Experiment{}, domain.ExperimentRecord{}, err
	}
	return exp, rec, nil
}

func (p *Planner) plan(ctx context.Context, req Request) (Experiment, error) {
	if strings.TrimSpace(req.Name) == "" {
		return Experiment{}, ErrNameRequired
	}
	logger := p.logFor(req)
	exp := Experiment{
		Name:          req.Name,
		ID:            req.ID,
		Constructions: req.Constructions,
	}

	if err := p.run(ctx, logger, StageValidate, func(context.Context) error {
		return validateConstructions(req.Constructions)
	}); err != nil {
		return Experiment{}, err
	}
	if err := p.run(ctx, logger, StageOligos, func(context.Context) error {
		var err error
		exp.Oligos, err = oligo.Extract(req.Constructions)
		return err
	}); err != nil {
		return Experiment{}, err
	}
	if err := p.run(ctx, logger, StageAllocate, func(ctx context.Context) error {
		alloc, err := p.allocator.Allocate(ctx, req.Name, req.ID, req.Constructions, req.Prior)
		exp.Inventory, exp.Placed = alloc.Inventory, alloc.Placed
		return err
	}); err != nil {
		return Experiment{}, err
	}
	if err := p.run(ctx, logger, StageGenerate, func(ctx context.Context) error {
		var err error
		exp.Packet, err = p.generator.Generate(ctx, req.Name, req.Constructions, domain.Allocation{Inventory: exp.Inventory, Placed: exp.Placed})
		return err
	}); err != nil {
		return Experiment{}, err
	}
	exp.Sequences = MergeSequences(req.Constructions)

	logger.Info("experiment planned",
		zap.Int("constructions", len(req.Constructions)),
		zap.Int("oligos", len(exp.Oligos)),
		zap.Int("samples", exp.Inventory.SampleCount()),
		zap.Int("sheets", len(exp.Packet.Sheets)))
	return exp, nil
}

func validateConstructions(constructions []domain.Construction) error {
	if len(constructions) == 0 {
		return domain.MalformedRecipeError{Reason: "no constructions"}
	}
	for _, c := range constructions {
		if err := c.Validate(); err != nil {
			return err
		}
		if err := oligo.CheckSequences(c); err != nil {
			return err
		}
	}
	return nil
}

func (p *Planner) archive(ctx context.Context, exp Experiment) (domain.ExperimentRecord, error) {
	texts := make([]string, 0, len(exp.Constructions))
	for _, c := range exp.Constructions {
		text, err := construction.Serialize(c)
		if err != nil {
			return domain.ExperimentRecord{}, fmt.Errorf("serialize %s: %w", c.Product, err)
		}
		texts = append(texts, text)
	}
	sheets := make([]string, 0, len(exp.Packet.Sheets))
	for _, sheet := range exp.Packet.Sheets {
		var buf bytes.Buffer
		if err := labpacket.Render(&buf, sheet); err != nil {
			return domain.ExperimentRecord{}, fmt.Errorf("render %s: %w", sheet.Title, err)
		}
		sheets = append(sheets, buf.String())
	}

	var rec domain.ExperimentRecord
	res, err := p.opts.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		created, err := tx.CreateExperiment(domain.ExperimentRecord{
			Name:          exp.Name,
			ExperimentID:  exp.ID,
			CreatedAt:     p.opts.clock(),
			Constructions: texts,
			Oligos:        exp.Oligos,
			Inventory:     exp.Inventory,
			Sheets:        sheets,
		})
		if err != nil {
			return err
		}
		rec = created
		return tx.ReplaceInventory(exp.Inventory)
	})
	for _, v := range res.Violations {
		if v.Severity != domain.SeverityBlock {
			p.opts.logger.Warn("archive rule", zap.String("rule", v.Rule), zap.String("message", v.Message))
		}
	}
	if err != nil {
		return domain.ExperimentRecord{}, err
	}
	return rec, nil
}

// run executes one stage under a trace span, records its duration and logs
// the outcome. Stage errors are wrapped with the stage name.
func (p *Planner) run(ctx context.Context, logger *zap.Logger, stage string, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w", stage, err)
	}
	ctx, span := p.opts.tracer.Start(ctx, stage)
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	span.End(err)
	p.opts.metrics.Observe(ctx, stage, err == nil, elapsed)
	if err != nil {
		logger.Warn("stage failed", zap.String("stage", stage), zap.Duration("duration", elapsed), zap.Error(err))
		return fmt.Errorf("%s: %w", stage, err)
	}
	logger.Debug("stage complete", zap.String("stage", stage), zap.Duration("duration", elapsed))
	return nil
}

func (p *Planner) logFor(req Request) *zap.Logger {
	return p.opts.logger.With(zap.String("experiment", req.Name), zap.Int("experiment_id", req.ID))
}

func (p *Planner) recordAudit(ctx context.Context, op, experiment, id string, started time.Time, err error) {
	entry := AuditEntry{
		Operation:  op,
		Experiment: experiment,
		EntityID:   id,
		Status:     AuditStatusSuccess,
		OccurredAt: started,
		Duration:   p.opts.clock().Sub(started),
	}
	if err != nil {
		entry.Status = AuditStatusError
		entry.Error = err.Error()
	}
	p.opts.audit.Record(ctx, entry)
}
