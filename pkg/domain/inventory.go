package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Concentration enumerates the processing state of a physical sample. The
// string values are the tokens used in box files.
type Concentration string

// Canonical sample states.
const (
	ConcentrationStock100uM  Concentration = "uM100"
	ConcentrationWorking10uM Concentration = "uM10"
	ConcentrationDilution20x Concentration = "dil20x"
	ConcentrationCleanedUp   Concentration = "zymo"
	ConcentrationMiniprep    Concentration = "miniprep"
)

// ParseConcentration maps a box-file token to a Concentration.
func ParseConcentration(s string) (Concentration, error) {
	switch c := Concentration(strings.TrimSpace(s)); c {
	case ConcentrationStock100uM, ConcentrationWorking10uM, ConcentrationDilution20x,
		ConcentrationCleanedUp, ConcentrationMiniprep:
		return c, nil
	default:
		return "", fmt.Errorf("unknown concentration %q", s)
	}
}

// Culture records the culture stage a clone was picked from.
type Culture string

// Culture stages; the empty value means no culture applies.
const (
	CultureNone    Culture = ""
	CulturePrimary Culture = "primary"
)

// ParseCulture maps a box-file token to a Culture. "null" and "" both mean none.
func ParseCulture(s string) (Culture, error) {
	switch strings.TrimSpace(s) {
	case "", "null":
		return CultureNone, nil
	case string(CulturePrimary):
		return CulturePrimary, nil
	default:
		return "", fmt.Errorf("unknown culture %q", s)
	}
}

// Sample is one physical tube. Samples are values and never mutated once placed.
type Sample struct {
	Label         string        `json:"label"`
	SideLabel     string        `json:"side_label"`
	Concentration Concentration `json:"concentration"`
	Construct     string        `json:"construct"`
	Clone         string        `json:"clone,omitempty"`
	Culture       Culture       `json:"culture,omitempty"`
}

// LocationKey identifies a cell independent of its display labels.
type LocationKey struct {
	Box string
	Row int
	Col int
}

// Location is a cell address with the label of the sample it holds.
type Location struct {
	Box       string `json:"box"`
	Row       int    `json:"row"`
	Col       int    `json:"col"`
	Label     string `json:"label"`
	SideLabel string `json:"side_label"`
}

// Key returns the stable identity of the location.
func (l Location) Key() LocationKey { return LocationKey{Box: l.Box, Row: l.Row, Col: l.Col} }

// Well returns the spreadsheet-style address of the location, e.g. "B7".
func (l Location) Well() string { return WellLabel(l.Row, l.Col) }

func (l Location) String() string { return l.Box + "/" + l.Well() }

// WellLabel converts zero-based coordinates into a "<Letter><Number>" label.
func WellLabel(row, col int) string {
	return string(rune('A'+row)) + strconv.Itoa(col+1)
}

// ParseWell converts a "<Letter><Number>" label into zero-based coordinates.
func ParseWell(label string) (int, int, error) {
	label = strings.TrimSpace(label)
	if len(label) < 2 {
		return 0, 0, fmt.Errorf("invalid well %q", label)
	}
	letter := label[0]
	if letter < 'A' || letter > 'Z' {
		return 0, 0, fmt.Errorf("invalid well row in %q", label)
	}
	col, err := strconv.Atoi(label[1:])
	if err != nil || col < 1 {
		return 0, 0, fmt.Errorf("invalid well column in %q", label)
	}
	return int(letter - 'A'), col - 1, nil
}

// ErrCellOccupied is returned when placing a sample into a non-empty cell.
var ErrCellOccupied = errors.New("cell already occupied")

// Box is a named fixed-size grid of optional samples.
type Box struct {
	Name        string
	Description string
	Location    string
	cells       [][]*Sample
}

// NewBox returns an empty rows x cols box.
func NewBox(name, description, location string, rows, cols int) *Box {
	cells := make([][]*Sample, rows)
	for r := range cells {
		cells[r] = make([]*Sample, cols)
	}
	return &Box{Name: name, Description: description, Location: location, cells: cells}
}

// Rows returns the number of grid rows.
func (b *Box) Rows() int { return len(b.cells) }

// Cols returns the number of grid columns.
func (b *Box) Cols() int {
	if len(b.cells) == 0 {
		return 0
	}
	return len(b.cells[0])
}

// Capacity returns the number of cells in the grid.
func (b *Box) Capacity() int { return b.Rows() * b.Cols() }

// InBounds reports whether row, col address a cell of the grid.
func (b *Box) InBounds(row, col int) bool {
	return row >= 0 && col >= 0 && row < b.Rows() && col < b.Cols()
}

// Sample returns the sample at row, col.
func (b *Box) Sample(row, col int) (Sample, bool) {
	if !b.InBounds(row, col) || b.cells[row][col] == nil {
		return Sample{}, false
	}
	return *b.cells[row][col], true
}

// Place stores s at row, col. Out-of-grid placement is a capacity error.
func (b *Box) Place(row, col int, s Sample) error {
	if !b.InBounds(row, col) {
		return CapacityExceededError{Box: b.Name, Rows: b.Rows(), Cols: b.Cols(), Sample: s.Label}
	}
	if existing := b.cells[row][col]; existing != nil {
		return fmt.Errorf("box %s well %s holds %s: %w", b.Name, WellLabel(row, col), existing.Label, ErrCellOccupied)
	}
	cp := s
	b.cells[row][col] = &cp
	return nil
}

// Well is an occupied cell.
type Well struct {
	Row    int
	Col    int
	Sample Sample
}

// Wells returns the occupied cells in row-major order.
func (b *Box) Wells() []Well {
	var out []Well
	for r, row := range b.cells {
		for c, s := range row {
			if s != nil {
				out = append(out, Well{Row: r, Col: c, Sample: *s})
			}
		}
	}
	return out
}

// Count returns the number of occupied cells.
func (b *Box) Count() int { return len(b.Wells()) }

// LastOccupied returns the row-major last occupied cell.
func (b *Box) LastOccupied() (int, int, bool) {
	for r := b.Rows() - 1; r >= 0; r-- {
		for c := b.Cols() - 1; c >= 0; c-- {
			if b.cells[r][c] != nil {
				return r, c, true
			}
		}
	}
	return 0, 0, false
}

// Clone deep-copies the box.
func (b *Box) Clone() *Box {
	cp := NewBox(b.Name, b.Description, b.Location, b.Rows(), b.Cols())
	for r, row := range b.cells {
		for c, s := range row {
			if s != nil {
				v := *s
				cp.cells[r][c] = &v
			}
		}
	}
	return cp
}

// SampleState is the per-location record kept by the inventory index.
type SampleState struct {
	Concentration Concentration
	Clone         string
	Culture       Culture
}

// Inventory owns boxes plus two indexes derived from their contents: construct
// name to ordered locations, and location to sample state. Every mutation goes
// through the inventory so both indexes are rebuilt from the grid.
type Inventory struct {
	boxes       []*Box
	constructs  []string
	byConstruct map[string][]Location
	byLocation  map[LocationKey]SampleState
}

// NewInventory indexes copies of the supplied boxes. Box names must be unique.
func NewInventory(boxes ...*Box) (*Inventory, error) {
	inv := &Inventory{}
	seen := make(map[string]struct{}, len(boxes))
	for _, b := range boxes {
		if b == nil {
			continue
		}
		if _, dup := seen[b.Name]; dup {
			return nil, fmt.Errorf("duplicate box %q in inventory", b.Name)
		}
		seen[b.Name] = struct{}{}
		inv.boxes = append(inv.boxes, b.Clone())
	}
	inv.reindex()
	return inv, nil
}

// reindex rebuilds both lookup indexes by a full scan of every box.
func (inv *Inventory) reindex() {
	inv.constructs = nil
	inv.byConstruct = make(map[string][]Location)
	inv.byLocation = make(map[LocationKey]SampleState)
	for _, b := range inv.boxes {
		for _, w := range b.Wells() {
			loc := Location{Box: b.Name, Row: w.Row, Col: w.Col, Label: w.Sample.Label, SideLabel: w.Sample.SideLabel}
			if _, ok := inv.byConstruct[w.Sample.Construct]; !ok {
				inv.constructs = append(inv.constructs, w.Sample.Construct)
			}
			inv.byConstruct[w.Sample.Construct] = append(inv.byConstruct[w.Sample.Construct], loc)
			inv.byLocation[loc.Key()] = SampleState{
				Concentration: w.Sample.Concentration,
				Clone:         w.Sample.Clone,
				Culture:       w.Sample.Culture,
			}
		}
	}
}

// Boxes returns copies of the boxes in inventory order.
func (inv *Inventory) Boxes() []*Box {
	if inv == nil {
		return nil
	}
	out := make([]*Box, len(inv.boxes))
	for i, b := range inv.boxes {
		out[i] = b.Clone()
	}
	return out
}

// Box returns a copy of the named box.
func (inv *Inventory) Box(name string) (*Box, bool) {
	if inv == nil {
		return nil, false
	}
	for _, b := range inv.boxes {
		if b.Name == name {
			return b.Clone(), true
		}
	}
	return nil, false
}

// Constructs lists indexed construct names in first-seen order.
func (inv *Inventory) Constructs() []string {
	if inv == nil {
		return nil
	}
	return append([]string(nil), inv.constructs...)
}

// Locations returns the locations holding samples of construct, in grid scan order.
func (inv *Inventory) Locations(construct string) []Location {
	if inv == nil {
		return nil
	}
	return append([]Location(nil), inv.byConstruct[construct]...)
}

// State returns the indexed state of the sample at loc.
func (inv *Inventory) State(loc Location) (SampleState, bool) {
	if inv == nil {
		return SampleState{}, false
	}
	st, ok := inv.byLocation[loc.Key()]
	return st, ok
}

// Concentration returns the state of the sample at loc, or "" if the cell is empty.
func (inv *Inventory) Concentration(loc Location) Concentration {
	st, _ := inv.State(loc)
	return st.Concentration
}

// SampleCount returns the number of indexed samples.
func (inv *Inventory) SampleCount() int {
	if inv == nil {
		return 0
	}
	return len(inv.byLocation)
}

// Clone deep-copies the inventory. A nil inventory clones to nil.
func (inv *Inventory) Clone() *Inventory {
	if inv == nil {
		return nil
	}
	cp, _ := NewInventory(inv.boxes...)
	return cp
}

// Place stores a sample in the named box and reindexes.
func (inv *Inventory) Place(box string, row, col int, s Sample) error {
	for _, b := range inv.boxes {
		if b.Name == box {
			if err := b.Place(row, col, s); err != nil {
				return err
			}
			inv.reindex()
			return nil
		}
	}
	return fmt.Errorf("inventory has no box %q", box)
}

// Allocation is the inventory produced by one allocation run together with
// the cells that run filled, in placement order.
type Allocation struct {
	Inventory *Inventory
	Placed    []Location
}

// Merge returns the union of inv and other. A box present in both must be an
// extension of inv's copy: every prior sample unchanged and in place. Boxes
// keep inv's order with boxes new in other appended.
func (inv *Inventory) Merge(other *Inventory) (*Inventory, error) {
	incoming := make(map[string]*Box)
	var order []string
	for _, b := range other.Boxes() {
		incoming[b.Name] = b
		order = append(order, b.Name)
	}
	var merged []*Box
	for _, b := range inv.Boxes() {
		next, ok := incoming[b.Name]
		if !ok {
			merged = append(merged, b)
			continue
		}
		if err := extends(b, next); err != nil {
			return nil, err
		}
		merged = append(merged, next)
		delete(incoming, b.Name)
	}
	for _, name := range order {
		if b, ok := incoming[name]; ok {
			merged = append(merged, b)
		}
	}
	return NewInventory(merged...)
}

func extends(prior, next *Box) error {
	if prior.Rows() != next.Rows() || prior.Cols() != next.Cols() {
		return fmt.Errorf("box %s: grid changed from %dx%d to %dx%d", prior.Name, prior.Rows(), prior.Cols(), next.Rows(), next.Cols())
	}
	for _, w := range prior.Wells() {
		s, ok := next.Sample(w.Row, w.Col)
		if !ok || s != w.Sample {
			return fmt.Errorf("box %s: prior sample %s at %s was not retained", prior.Name, w.Sample.Label, WellLabel(w.Row, w.Col))
		}
	}
	return nil
}

type wellSnapshot struct {
	Well   string `json:"well"`
	Sample Sample `json:"sample"`
}

type boxSnapshot struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Location    string         `json:"location"`
	Rows        int            `json:"rows"`
	Cols        int            `json:"cols"`
	Wells       []wellSnapshot `json:"wells"`
}

// MarshalJSON encodes the boxes; indexes are derived and not stored.
func (inv Inventory) MarshalJSON() ([]byte, error) {
	boxes := make([]boxSnapshot, 0, len(inv.boxes))
	for _, b := range inv.boxes {
		snap := boxSnapshot{Name: b.Name, Description: b.Description, Location: b.Location, Rows: b.Rows(), Cols: b.Cols()}
		for _, w := range b.Wells() {
			snap.Wells = append(snap.Wells, wellSnapshot{Well: WellLabel(w.Row, w.Col), Sample: w.Sample})
		}
		boxes = append(boxes, snap)
	}
	return json.Marshal(struct {
		Boxes []boxSnapshot `json:"boxes"`
	}{Boxes: boxes})
}

// UnmarshalJSON decodes boxes and rebuilds the indexes.
func (inv *Inventory) UnmarshalJSON(data []byte) error {
	var aux struct {
		Boxes []boxSnapshot `json:"boxes"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	boxes := make([]*Box, 0, len(aux.Boxes))
	for _, snap := range aux.Boxes {
		b := NewBox(snap.Name, snap.Description, snap.Location, snap.Rows, snap.Cols)
		for _, w := range snap.Wells {
			row, col, err := ParseWell(w.Well)
			if err != nil {
				return fmt.Errorf("box %s: %w", snap.Name, err)
			}
			if err := b.Place(row, col, w.Sample); err != nil {
				return err
			}
		}
		boxes = append(boxes, b)
	}
	decoded, err := NewInventory(boxes...)
	if err != nil {
		return err
	}
	*inv = *decoded
	return nil
}
