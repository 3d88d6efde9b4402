// Package memory provides an in-memory implementation of the experiment
// archive used for tests and ephemeral runs.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"labplanner/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type (
	// ExperimentRecord aliases domain.ExperimentRecord.
	ExperimentRecord = domain.ExperimentRecord
	// Inventory aliases domain.Inventory.
	Inventory = domain.Inventory
	// Change aliases domain.Change captured in transactions.
	Change = domain.Change
	// Result aliases domain.Result summarizing rule evaluation.
	Result = domain.Result
	// RulesEngine aliases domain.RulesEngine used to evaluate rules.
	RulesEngine = domain.RulesEngine
	// Transaction aliases domain.Transaction.
	Transaction = domain.Transaction
	// TransactionView aliases domain.TransactionView.
	TransactionView = domain.TransactionView
)

type memoryState struct {
	experiments map[string]ExperimentRecord
	inventory   *Inventory
}

// Snapshot captures a point-in-time clone of the store state.
type Snapshot struct {
	Experiments map[string]ExperimentRecord `json:"experiments"`
	Inventory   *Inventory                  `json:"inventory,omitempty"`
}

func newMemoryState() memoryState {
	return memoryState{experiments: make(map[string]ExperimentRecord)}
}

func snapshotFromMemoryState(state memoryState) Snapshot {
	s := Snapshot{
		Experiments: make(map[string]ExperimentRecord, len(state.experiments)),
		Inventory:   state.inventory.Clone(),
	}
	for id, rec := range state.experiments {
		s.Experiments[id] = cloneExperiment(rec)
	}
	return s
}

func memoryStateFromSnapshot(s Snapshot) memoryState {
	state := newMemoryState()
	for id, rec := range s.Experiments {
		if rec.ID == "" {
			rec.ID = id
		}
		state.experiments[id] = cloneExperiment(rec)
	}
	state.inventory = s.Inventory.Clone()
	return state
}

func (s memoryState) clone() memoryState {
	return memoryStateFromSnapshot(snapshotFromMemoryState(s))
}

func cloneExperiment(r ExperimentRecord) ExperimentRecord {
	cp := r
	cp.Constructions = append([]string(nil), r.Constructions...)
	cp.Oligos = append([]domain.Oligo(nil), r.Oligos...)
	cp.Sheets = append([]string(nil), r.Sheets...)
	cp.Inventory = r.Inventory.Clone()
	return cp
}

// Store provides an in-memory transactional archive.
type Store struct {
	mu     sync.RWMutex
	state  memoryState
	engine *RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs an in-memory store backed by the provided rules engine.
// Inventory replacements are evaluated against the engine before commit.
func NewStore(engine *RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newMemoryState(),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// ExportState clones the current store state for external persistence.
func (s *Store) ExportState() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return snapshotFromMemoryState(s.state)
}

// ImportState replaces the store state with the provided snapshot.
func (s *Store) ImportState(snapshot Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = memoryStateFromSnapshot(snapshot)
}

type transaction struct {
	state   memoryState
	changes []Change
	now     time.Time
}

type transactionView struct {
	state *memoryState
}

func newTransactionView(state *memoryState) TransactionView {
	return transactionView{state: state}
}

// ListExperiments returns archived experiments oldest first.
func (v transactionView) ListExperiments() []ExperimentRecord {
	out := make([]ExperimentRecord, 0, len(v.state.experiments))
	for _, rec := range v.state.experiments {
		out = append(out, cloneExperiment(rec))
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (v transactionView) FindExperiment(id string) (ExperimentRecord, bool) {
	rec, ok := v.state.experiments[id]
	if !ok {
		return ExperimentRecord{}, false
	}
	return cloneExperiment(rec), true
}

// Inventory returns the current lab inventory, or nil when none is recorded.
func (v transactionView) Inventory() *Inventory {
	return v.state.inventory.Clone()
}

// RunInTransaction executes fn within a transactional copy of the store state.
// Rules run over the resulting inventory; blocking violations discard the copy.
func (s *Store) RunInTransaction(ctx context.Context, fn func(tx Transaction) error) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &transaction{
		state: s.state.clone(),
		now:   s.nowFn(),
	}
	if err := fn(tx); err != nil {
		return Result{}, err
	}

	var result Result
	if s.engine != nil && len(tx.changes) > 0 {
		view := tx.state.inventory
		if view == nil {
			view, _ = domain.NewInventory()
		}
		res, err := s.engine.Evaluate(ctx, view, tx.changes)
		if err != nil {
			return Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = tx.state
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(newTransactionView(&snapshot))
}

func (tx *transaction) recordChange(change Change) {
	tx.changes = append(tx.changes, change)
}

// Snapshot returns a read-only view over the transactional state.
func (tx *transaction) Snapshot() TransactionView {
	return newTransactionView(&tx.state)
}

// CreateExperiment stores a record, assigning an ID and timestamp when unset.
func (tx *transaction) CreateExperiment(r ExperimentRecord) (ExperimentRecord, error) {
	if r.ID == "" {
		r.ID = uuid.NewString()
	}
	if _, exists := tx.state.experiments[r.ID]; exists {
		return ExperimentRecord{}, fmt.Errorf("experiment %q already exists", r.ID)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = tx.now
	}
	tx.state.experiments[r.ID] = cloneExperiment(r)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionCreate, After: r.ID})
	return cloneExperiment(r), nil
}

// DeleteExperiment removes a record. The lab inventory is left untouched.
func (tx *transaction) DeleteExperiment(id string) error {
	if _, ok := tx.state.experiments[id]; !ok {
		return fmt.Errorf("experiment %q not found", id)
	}
	delete(tx.state.experiments, id)
	tx.recordChange(Change{Entity: domain.EntityExperiment, Action: domain.ActionDelete, Before: id})
	return nil
}

// FindExperiment looks up a record within the transaction scope.
func (tx *transaction) FindExperiment(id string) (ExperimentRecord, bool) {
	return newTransactionView(&tx.state).FindExperiment(id)
}

// ReplaceInventory swaps the lab inventory for a copy of inv.
func (tx *transaction) ReplaceInventory(inv *Inventory) error {
	if inv == nil {
		return errors.New("replace inventory: inventory is required")
	}
	action := domain.ActionReplace
	if tx.state.inventory == nil {
		action = domain.ActionCreate
	}
	tx.state.inventory = inv.Clone()
	tx.recordChange(Change{Entity: domain.EntityInventory, Action: action, After: inv.SampleCount()})
	return nil
}

// GetExperiment returns an archived record by ID.
func (s *Store) GetExperiment(id string) (ExperimentRecord, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).FindExperiment(id)
}

// ListExperiments returns every archived record oldest first.
func (s *Store) ListExperiments() []ExperimentRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return newTransactionView(&s.state).ListExperiments()
}

// Inventory returns a copy of the current lab inventory.
func (s *Store) Inventory() *Inventory {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.inventory.Clone()
}
