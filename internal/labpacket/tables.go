package labpacket

import (
	"maps"

	"labplanner/internal/config"
	"labplanner/pkg/domain"
)

var builtinEnzymes = map[string]domain.Reagent{
	"Phusion":                      "Phusion",
	"Q5_polymerase":                "Q5_polymerase",
	"PrimeSTAR_GXL_DNA_Polymerase": domain.ReagentGXLPolymerase,
	"DpnI":                         "DpnI",
	"BamHI":                        "BamHI",
	"BglII":                        "BglII",
	"BsaI":                         "BsaI",
	"BsmBI":                        "BsmBI",
	"T4_DNA_ligase":                domain.ReagentT4Ligase,
	"SpeI":                         "SpeI",
	"XhoI":                         "XhoI",
	"XbaI":                         "XbaI",
	"PstI":                         "PstI",
	"Hindiii":                      "Hindiii",
}

var builtinStrains = map[string]domain.Reagent{
	"Mach1":    "Mach1_competent_cells",
	"DH5alpha": "DH5alpha_competent_cells",
	"DH10B":    "DH10B_competent_cells",
	"TOP10":    "TOP10_competent_cells",
	"BL21_DE3": "BL21_DE3_competent_cells",
}

var builtinAntibiotics = map[string]domain.Reagent{
	"Amp":  "LB_Amp_plate",
	"Carb": "LB_Carb_plate",
	"Kan":  "LB_Kan_plate",
	"Spec": "LB_Spec_plate",
	"Cam":  "LB_Cam_plate",
	"Tet":  "LB_Tet_plate",
}

// reagentTable maps a construction-file name to a stockroom reagent.
type reagentTable struct {
	kind    string
	entries map[string]domain.Reagent
}

func newReagentTable(kind string, builtin map[string]domain.Reagent, extra map[string]string) reagentTable {
	entries := maps.Clone(builtin)
	for name, reagent := range extra {
		entries[name] = domain.Reagent(reagent)
	}
	return reagentTable{kind: kind, entries: entries}
}

func (t reagentTable) lookup(name string) (domain.Reagent, error) {
	r, ok := t.entries[name]
	if !ok {
		return "", domain.UnknownReagentError{Kind: t.kind, Name: name}
	}
	return r, nil
}

// tables holds the lookups a Generator resolves names through.
type tables struct {
	enzymes     reagentTable
	strains     reagentTable
	antibiotics reagentTable
}

func newTables(p config.Policy) tables {
	return tables{
		enzymes:     newReagentTable("enzyme", builtinEnzymes, p.Enzymes),
		strains:     newReagentTable("strain", builtinStrains, p.Strains),
		antibiotics: newReagentTable("antibiotic", builtinAntibiotics, p.Antibiotics),
	}
}
