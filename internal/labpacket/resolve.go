package labpacket

import (
	"slices"

	"labplanner/pkg/domain"
)

// Accepted sample states per input role.
var (
	acceptPrimer    = []domain.Concentration{domain.ConcentrationWorking10uM}
	acceptTemplate  = []domain.Concentration{domain.ConcentrationDilution20x}
	acceptSubstrate = []domain.Concentration{domain.ConcentrationCleanedUp, domain.ConcentrationMiniprep, domain.ConcentrationDilution20x}
	acceptFragment  = []domain.Concentration{domain.ConcentrationCleanedUp}
	acceptCleaned   = []domain.Concentration{domain.ConcentrationCleanedUp}
)

// resolve returns the first indexed location of name whose state is in
// accept. Candidates are tried in index order, so the earliest placed sample
// wins.
func resolve(inv *domain.Inventory, name string, accept []domain.Concentration) (domain.Location, error) {
	if loc, ok := find(inv, name, accept); ok {
		return loc, nil
	}
	return domain.Location{}, domain.UnresolvedLocationError{Name: name, Accept: accept}
}

func find(inv *domain.Inventory, name string, accept []domain.Concentration) (domain.Location, bool) {
	for _, loc := range inv.Locations(name) {
		if slices.Contains(accept, inv.Concentration(loc)) {
			return loc, true
		}
	}
	return domain.Location{}, false
}

// destinations hands out the cells one allocation run filled. A cell is
// given to at most one step, so repeated products get their own tubes.
type destinations struct {
	inv    *domain.Inventory
	placed []domain.Location
	taken  map[domain.LocationKey]bool
}

func newDestinations(inv *domain.Inventory, placed []domain.Location) *destinations {
	return &destinations{inv: inv, placed: placed, taken: make(map[domain.LocationKey]bool)}
}

// take claims the first free placed cell holding name in an accepted state.
func (d *destinations) take(name string, accept []domain.Concentration) (domain.Location, bool) {
	for _, loc := range d.candidates(name) {
		if slices.Contains(accept, d.inv.Concentration(loc)) {
			d.taken[loc.Key()] = true
			return loc, true
		}
	}
	return domain.Location{}, false
}

// takeAll claims up to n free placed cells holding name in state.
func (d *destinations) takeAll(name string, state domain.Concentration, n int) []domain.Location {
	var out []domain.Location
	for _, loc := range d.candidates(name) {
		if len(out) == n {
			break
		}
		if d.inv.Concentration(loc) == state {
			d.taken[loc.Key()] = true
			out = append(out, loc)
		}
	}
	return out
}

func (d *destinations) candidates(name string) []domain.Location {
	owned := make(map[domain.LocationKey]bool)
	for _, loc := range d.inv.Locations(name) {
		owned[loc.Key()] = true
	}
	var out []domain.Location
	for _, loc := range d.placed {
		if owned[loc.Key()] && !d.taken[loc.Key()] {
			out = append(out, loc)
		}
	}
	return out
}
