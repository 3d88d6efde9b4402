// Package core composes oligo extraction, inventory allocation and lab-sheet
// generation into a planning run, and archives runs in a persistent store.
package core

import (
	"labplanner/pkg/domain"
)

type (
	PersistentStore  = domain.PersistentStore
	RulesEngine      = domain.RulesEngine
	ExperimentRecord = domain.ExperimentRecord
)

// Request names the experiment to plan and the inventory it starts from.
type Request struct {
	Name          string
	ID            int
	Constructions []domain.Construction
	// Prior is the lab inventory before this run. Nil starts empty; the
	// archiving planner substitutes the stored inventory.
	Prior *domain.Inventory
}

// Experiment bundles everything a planning run produces.
type Experiment struct {
	Name          string
	ID            int
	Constructions []domain.Construction
	Oligos        []domain.Oligo
	Sequences     map[string]domain.Polynucleotide
	Inventory     *domain.Inventory
	// Placed lists the cells this run filled, in placement order.
	Placed        []domain.Location
	Packet        domain.LabPacket
}

// MergeSequences unions the sequence tables of constructions. When two
// constructions name the same material, the later one wins.
func MergeSequences(constructions []domain.Construction) map[string]domain.Polynucleotide {
	out := make(map[string]domain.Polynucleotide)
	for _, c := range constructions {
		for name, poly := range c.Sequences {
			out[name] = poly
		}
	}
	return out
}
