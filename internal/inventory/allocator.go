// Package inventory assigns a box cell to every sample a set of constructions
// will produce, and reads and writes the box text format.
package inventory

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"labplanner/internal/config"
	"labplanner/internal/logging"
	"labplanner/pkg/domain"
)

// Allocator places samples into a single experiment box in row-major order.
// It holds no allocation state between calls.
type Allocator struct {
	policy config.Policy
	engine *domain.RulesEngine
	logger *zap.Logger
}

// NewAllocator returns an allocator for policy. A nil engine selects the
// default inventory rules; a nil logger discards output.
func NewAllocator(policy config.Policy, engine *domain.RulesEngine, logger *zap.Logger) *Allocator {
	if engine == nil {
		engine = NewDefaultRulesEngine()
	}
	return &Allocator{policy: policy, engine: engine, logger: logging.OrNop(logger)}
}

// Allocate walks every step of every construction, in order, and places the
// samples each step produces into the box named after the experiment. Prior
// samples are kept unchanged; when prior already holds a box with the
// experiment's name, allocation resumes after its last occupied cell.
// Running past the grid aborts with CapacityExceeded and no inventory. The
// returned allocation lists only the cells filled by this call.
func (a *Allocator) Allocate(ctx context.Context, experimentName string, experimentID int, constructions []domain.Construction, prior *domain.Inventory) (domain.Allocation, error) {
	if experimentName == "" {
		return domain.Allocation{}, errors.New("allocate: experiment name is required")
	}

	box, cur, resumed := a.openBox(experimentName, prior)
	start := cur
	before := box.Count()
	id := strconv.Itoa(experimentID)

	for _, c := range constructions {
		if err := ctx.Err(); err != nil {
			return domain.Allocation{}, err
		}
		for _, step := range c.Steps {
			var err error
			switch s := step.(type) {
			case domain.PCR:
				cur, err = placePCR(box, cur, id, s)
			case domain.Digestion:
				cur, err = placeDigestion(box, cur, id, s)
			case domain.Transformation:
				cur, err = placeMinipreps(box, cur, id, a.policy.Minipreps, s)
			case domain.Ligation, domain.Assembly:
				a.logger.Debug("step allocates no samples",
					zap.String("construct", c.Product),
					zap.String("operation", string(step.Operation())),
					zap.String("product", step.Product()))
			default:
				err = fmt.Errorf("unsupported step %T", step)
			}
			if err != nil {
				return domain.Allocation{}, fmt.Errorf("allocate %s: %w", c.Product, err)
			}
		}
	}

	fresh, err := domain.NewInventory(box)
	if err != nil {
		return domain.Allocation{}, err
	}
	inv := fresh
	action := domain.ActionCreate
	if prior != nil {
		if inv, err = prior.Merge(fresh); err != nil {
			return domain.Allocation{}, fmt.Errorf("merge prior inventory: %w", err)
		}
		if resumed {
			action = domain.ActionReplace
		}
	}

	changes := []domain.Change{{Entity: domain.EntityBox, Action: action, After: box.Name}}
	res, err := a.engine.Evaluate(ctx, inv, changes)
	if err != nil {
		return domain.Allocation{}, err
	}
	for _, v := range res.Violations {
		if v.Severity != domain.SeverityBlock {
			a.logger.Warn("inventory rule", zap.String("rule", v.Rule), zap.String("box", v.EntityID), zap.String("message", v.Message))
		}
	}
	if res.HasBlocking() {
		return domain.Allocation{}, domain.RuleViolationError{Result: res}
	}

	a.logger.Info("allocated samples",
		zap.String("experiment", experimentName),
		zap.String("box", box.Name),
		zap.Bool("resumed", resumed),
		zap.Int("placed", box.Count()-before),
		zap.Int("free", box.Capacity()-box.Count()))
	return domain.Allocation{Inventory: inv, Placed: placedBetween(box, start, cur)}, nil
}

// placedBetween lists the occupied cells of box from start up to, but not
// including, end in row-major order.
func placedBetween(box *domain.Box, start, end cursor) []domain.Location {
	cols := box.Cols()
	from, to := start.index(cols), end.index(cols)
	var out []domain.Location
	for _, w := range box.Wells() {
		if i := w.Row*cols + w.Col; i >= from && i < to {
			out = append(out, domain.Location{Box: box.Name, Row: w.Row, Col: w.Col, Label: w.Sample.Label, SideLabel: w.Sample.SideLabel})
		}
	}
	return out
}

// openBox returns the box to fill and the first free cursor position.
func (a *Allocator) openBox(name string, prior *domain.Inventory) (*domain.Box, cursor, bool) {
	if b, ok := prior.Box(name); ok {
		row, col, occupied := b.LastOccupied()
		if !occupied {
			return b, cursor{}, true
		}
		return b, cursor{row: row, col: col}.next(b.Cols()), true
	}
	b := domain.NewBox(name, a.policy.BoxDescription(name), a.policy.Box.Location, a.policy.Box.Rows, a.policy.Box.Cols)
	return b, cursor{}, false
}

func placePCR(box *domain.Box, cur cursor, id string, s domain.PCR) (cursor, error) {
	var samples []domain.Sample
	for _, t := range s.Templates {
		samples = append(samples, domain.Sample{
			Label:         t + " dil",
			SideLabel:     t + " dil",
			Concentration: domain.ConcentrationDilution20x,
			Construct:     t,
		})
	}
	for _, o := range []string{s.Oligo1, s.Oligo2} {
		samples = append(samples, domain.Sample{Label: o, Concentration: domain.ConcentrationStock100uM, Construct: o})
	}
	for _, o := range []string{s.Oligo1, s.Oligo2} {
		samples = append(samples, domain.Sample{
			Label:         "10 uM " + o,
			SideLabel:     "10 uM " + o,
			Concentration: domain.ConcentrationWorking10uM,
			Construct:     o,
		})
	}
	samples = append(samples, domain.Sample{
		Label:         "z" + id,
		SideLabel:     "z" + id + " - " + s.Output,
		Concentration: domain.ConcentrationCleanedUp,
		Construct:     s.Output,
	})
	return cur.placeAll(box, samples)
}

func placeDigestion(box *domain.Box, cur cursor, id string, s domain.Digestion) (cursor, error) {
	return cur.place(box, domain.Sample{
		Label:         "d" + id,
		SideLabel:     "d" + id + " - " + s.Output,
		Concentration: domain.ConcentrationCleanedUp,
		Construct:     s.Output,
	})
}

func placeMinipreps(box *domain.Box, cur cursor, id string, n int, s domain.Transformation) (cursor, error) {
	samples := make([]domain.Sample, 0, n)
	for i := 0; i < n; i++ {
		clone := id + string(rune('A'+i))
		samples = append(samples, domain.Sample{
			Label:         s.Output + " " + clone,
			SideLabel:     s.Output + " " + clone,
			Concentration: domain.ConcentrationMiniprep,
			Construct:     s.Output,
			Clone:         clone,
			Culture:       domain.CulturePrimary,
		})
	}
	return cur.placeAll(box, samples)
}
