package crispr

import (
	_ "embed"
	"strings"

	"labplanner/pkg/domain"
)

// Fixed materials of the knock-out construction.
const (
	Template   = "pTargetF"
	Strain     = "Mach1"
	Antibiotic = "Spec"
)

//go:embed ptargetf.seq
var templateSequence string

// TemplateSequence returns the pTargetF plasmid sequence.
func TemplateSequence() string { return strings.TrimSpace(templateSequence) }

// NewConstruction designs guide oligos for cds and returns the inverse PCR,
// SpeI/DpnI digest, self-ligation and Mach1 transformation that yields
// pTarg-<target>.
func NewConstruction(target, cds string) (domain.Construction, error) {
	if strings.TrimSpace(target) == "" {
		return domain.Construction{}, domain.MalformedRecipeError{Reason: "empty target name"}
	}
	fwd, rev, err := DesignOligos(cds)
	if err != nil {
		return domain.Construction{}, err
	}
	product := "pTarg-" + target
	fwdName, revName := target+"F", target+"R"
	c := domain.Construction{
		Product: product,
		Steps: []domain.Step{
			domain.PCR{Oligo1: fwdName, Oligo2: revName, Templates: []string{Template}, Output: "ipcr-" + target},
			domain.Digestion{Substrate: "ipcr-" + target, Enzymes: []string{"SpeI", "DpnI"}, FragmentSelect: 1, Output: "spedig-" + target},
			domain.Ligation{Fragments: []string{"spedig-" + target}, Output: "lig-" + target},
			domain.Transformation{DNA: "lig-" + target, Strain: Strain, Antibiotic: Antibiotic, Output: product},
		},
		Sequences: map[string]domain.Polynucleotide{
			fwdName:  {Sequence: fwd},
			revName:  {Sequence: rev},
			Template: {Sequence: TemplateSequence(), DoubleStranded: true},
		},
	}
	if err := c.Validate(); err != nil {
		return domain.Construction{}, err
	}
	return c, nil
}
