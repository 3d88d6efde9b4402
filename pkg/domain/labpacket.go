package domain

// Reagent identifies a lab reagent by its stockroom name.
type Reagent string

// Reagents used by the built-in reaction templates.
const (
	ReagentWater            Reagent = "ddH2O"
	ReagentGXLBuffer        Reagent = "PrimeSTAR_GXL_Buffer_5x"
	ReagentGXLdNTP          Reagent = "PrimeSTAR_dNTP_Mixture_2p5mM"
	ReagentGXLPolymerase    Reagent = "PrimeSTAR_GXL_DNA_Polymerase"
	ReagentPrimer1          Reagent = "primer1"
	ReagentPrimer2          Reagent = "primer2"
	ReagentTemplate         Reagent = "template"
	ReagentNEBBuffer2       Reagent = "NEB_Buffer_2_10x"
	ReagentT4Ligase         Reagent = "T4_DNA_ligase"
	ReagentT4LigaseBuffer   Reagent = "T4_DNA_Ligase_Buffer_10x"
	ReagentDNA              Reagent = "DNA"
	ReagentSOC              Reagent = "SOC"
	ReagentFragmentTemplate Reagent = "frag"
)

// ReagentVolume is one line of a recipe, in microliters.
type ReagentVolume struct {
	Reagent Reagent `json:"reagent"`
	Volume  float64 `json:"volume"`
}

// Recipe is an optional premixed mastermix plus the per-reaction reagent list.
type Recipe struct {
	Mastermix []ReagentVolume `json:"mastermix,omitempty"`
	Reaction  []ReagentVolume `json:"reaction"`
}

// Total sums the per-reaction volumes.
func (r Recipe) Total() float64 {
	var sum float64
	for _, rv := range r.Reaction {
		sum += rv.Volume
	}
	return sum
}

// SheetKind classifies a lab sheet.
type SheetKind string

// Lab sheet kinds.
const (
	SheetPCR       SheetKind = "pcr"
	SheetDigest    SheetKind = "digest"
	SheetLigate    SheetKind = "ligate"
	SheetAssemble  SheetKind = "assemble"
	SheetTransform SheetKind = "transform"
	SheetGel       SheetKind = "gel"
	SheetCleanup   SheetKind = "cleanup"
	SheetPick      SheetKind = "pick"
	SheetMiniprep  SheetKind = "miniprep"
)

// SheetItem is one row of a lab sheet. The concrete types are StepItem,
// GelLane, CleanupItem, PickItem and MiniprepItem.
type SheetItem interface {
	Label() string
	isSheetItem()
}

// StepItem is a reaction performed on a reaction sheet.
type StepItem struct {
	Step Step
}

func (i StepItem) Label() string { return i.Step.Product() }
func (StepItem) isSheetItem()    {}

// GelLane loads a cleaned-up product with its expected size in base pairs.
type GelLane struct {
	Sample string
	Size   int
}

func (i GelLane) Label() string { return i.Sample }
func (GelLane) isSheetItem()    {}

// CleanupItem is a column cleanup eluted in Elution microliters.
type CleanupItem struct {
	Sample  string
	Elution float64
}

func (i CleanupItem) Label() string { return i.Sample }
func (CleanupItem) isSheetItem()    {}

// PickItem picks one colony of a transformation onto selective medium.
type PickItem struct {
	Sample     string
	Clone      string
	Antibiotic Reagent
}

func (i PickItem) Label() string { return i.Sample }
func (PickItem) isSheetItem()    {}

// MiniprepItem purifies plasmid from one picked clone.
type MiniprepItem struct {
	Sample  string
	Clone   string
	Elution float64
}

func (i MiniprepItem) Label() string { return i.Sample }
func (MiniprepItem) isSheetItem()    {}

// LabSheet is one printable protocol page.
type LabSheet struct {
	Title        string
	Kind         SheetKind
	Items        []SheetItem
	Sources      []Location
	Destinations []Location
	Program      string
	Protocol     string
	Instrument   string
	Notes        []string
	Recipe       *Recipe
}

// LabPacket is the ordered set of sheets for one experiment.
type LabPacket struct {
	Sheets []LabSheet
}

// Titles lists the sheet titles in packet order.
func (p LabPacket) Titles() []string {
	out := make([]string, len(p.Sheets))
	for i, s := range p.Sheets {
		out[i] = s.Title
	}
	return out
}

// SheetsOfKind filters the packet by kind, preserving order.
func (p LabPacket) SheetsOfKind(kind SheetKind) []LabSheet {
	var out []LabSheet
	for _, s := range p.Sheets {
		if s.Kind == kind {
			out = append(out, s)
		}
	}
	return out
}
