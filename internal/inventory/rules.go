package inventory

import (
	"context"
	"fmt"

	"labplanner/pkg/domain"
)

// NewDefaultRulesEngine builds a rules engine with the built-in inventory checks.
func NewDefaultRulesEngine() *domain.RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewBoxCapacityRule())
	engine.Register(NewUniqueLocationRule())
	engine.Register(NewIndexConsistencyRule())
	return engine
}

// NewBoxCapacityRule blocks boxes holding more samples than cells and warns
// about boxes with no free cell left.
func NewBoxCapacityRule() domain.Rule {
	return boxCapacityRule{}
}

type boxCapacityRule struct{}

func (boxCapacityRule) Name() string { return "box_capacity" }

func (boxCapacityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, box := range view.Boxes() {
		count, capacity := box.Count(), box.Capacity()
		switch {
		case count > capacity:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "box_capacity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("box %s over capacity: %d/%d samples", box.Name, count, capacity),
				Entity:   domain.EntityBox,
				EntityID: box.Name,
			})
		case count == capacity:
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "box_capacity",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("box %s is full (%d samples)", box.Name, count),
				Entity:   domain.EntityBox,
				EntityID: box.Name,
			})
		}
	}
	return res, nil
}

// NewUniqueLocationRule blocks index entries that share a box cell.
func NewUniqueLocationRule() domain.Rule {
	return uniqueLocationRule{}
}

type uniqueLocationRule struct{}

func (uniqueLocationRule) Name() string { return "unique_location" }

func (uniqueLocationRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	owner := make(map[domain.LocationKey]string)
	for _, construct := range view.Constructs() {
		for _, loc := range view.Locations(construct) {
			if prev, dup := owner[loc.Key()]; dup {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "unique_location",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("%s holds both %s and %s", loc, prev, construct),
					Entity:   domain.EntityBox,
					EntityID: loc.Box,
				})
				continue
			}
			owner[loc.Key()] = construct
		}
	}
	return res, nil
}

// NewIndexConsistencyRule blocks inventories whose lookup indexes disagree
// with box contents in either direction.
func NewIndexConsistencyRule() domain.Rule {
	return indexConsistencyRule{}
}

type indexConsistencyRule struct{}

func (indexConsistencyRule) Name() string { return "index_consistency" }

func (indexConsistencyRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	block := func(box, msg string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "index_consistency",
			Severity: domain.SeverityBlock,
			Message:  msg,
			Entity:   domain.EntityBox,
			EntityID: box,
		})
	}

	boxes := make(map[string]*domain.Box)
	indexed := 0
	for _, box := range view.Boxes() {
		boxes[box.Name] = box
		for _, w := range box.Wells() {
			indexed++
			loc := domain.Location{Box: box.Name, Row: w.Row, Col: w.Col}
			if !containsKey(view.Locations(w.Sample.Construct), loc.Key()) {
				block(box.Name, fmt.Sprintf("%s (%s) missing from construct index", loc, w.Sample.Label))
				continue
			}
			st, ok := view.State(loc)
			if !ok || st.Concentration != w.Sample.Concentration || st.Clone != w.Sample.Clone || st.Culture != w.Sample.Culture {
				block(box.Name, fmt.Sprintf("%s (%s) has a stale state entry", loc, w.Sample.Label))
			}
		}
	}

	listed := 0
	for _, construct := range view.Constructs() {
		for _, loc := range view.Locations(construct) {
			listed++
			box, ok := boxes[loc.Box]
			if !ok {
				block(loc.Box, fmt.Sprintf("%s indexed for %s but box is unknown", loc, construct))
				continue
			}
			s, ok := box.Sample(loc.Row, loc.Col)
			if !ok || s.Construct != construct {
				block(loc.Box, fmt.Sprintf("%s indexed for %s but holds no such sample", loc, construct))
			}
		}
	}
	if listed != indexed {
		block("", fmt.Sprintf("construct index lists %d locations for %d samples", listed, indexed))
	}
	return res, nil
}

func containsKey(locs []domain.Location, key domain.LocationKey) bool {
	for _, l := range locs {
		if l.Key() == key {
			return true
		}
	}
	return false
}
