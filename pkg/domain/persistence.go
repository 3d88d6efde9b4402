package domain

import (
	"context"
	"time"
)

// ExperimentRecord is the archived summary of one planning run.
type ExperimentRecord struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	ExperimentID  int        `json:"experiment_id"`
	CreatedAt     time.Time  `json:"created_at"`
	Constructions []string   `json:"constructions"`
	Oligos        []Oligo    `json:"oligos"`
	Inventory     *Inventory `json:"inventory,omitempty"`
	Sheets        []string   `json:"sheets"`
}

// Transaction exposes the operations a persistence implementation must
// support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	CreateExperiment(ExperimentRecord) (ExperimentRecord, error)
	DeleteExperiment(id string) error
	FindExperiment(id string) (ExperimentRecord, bool)
	// ReplaceInventory swaps the current lab inventory. Rules are evaluated
	// against the replacement before commit.
	ReplaceInventory(*Inventory) error
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListExperiments() []ExperimentRecord
	FindExperiment(id string) (ExperimentRecord, bool)
	Inventory() *Inventory
}

// PersistentStore is a minimal abstraction over durable backends. It mirrors
// the subset of store capabilities used directly by higher layers.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetExperiment(id string) (ExperimentRecord, bool)
	ListExperiments() []ExperimentRecord
	Inventory() *Inventory
}
