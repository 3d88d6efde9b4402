package oligo

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"labplanner/pkg/domain"
)

func pcrConstruction(product string, seqs map[string]domain.Polynucleotide, templates ...string) domain.Construction {
	return domain.Construction{
		Product: product,
		Steps: []domain.Step{
			domain.PCR{Oligo1: "F1", Oligo2: "R1", Templates: templates, Output: product + "-pcr"},
			domain.Transformation{DNA: product + "-pcr", Strain: "Mach1", Antibiotic: "Amp", Output: product},
		},
		Sequences: seqs,
	}
}

func TestExtract(t *testing.T) {
	seqs := map[string]domain.Polynucleotide{
		"F1":    {Sequence: "ccataACTAGTGG"},
		"R1":    {Sequence: "ctcagACTAGT"},
		"ssT":   {Sequence: "ACGTACGT"},
		"pBase": {Sequence: "ACGT", DoubleStranded: true},
	}
	a := pcrConstruction("pA", seqs, "ssT", "pBase", "pStock")
	b := pcrConstruction("pB", seqs, "pBase")

	got, err := Extract([]domain.Construction{a, b})
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	want := []domain.Oligo{
		{Name: "F1", Sequence: "ccataACTAGTGG", Description: "Forward oligo in construction of pA"},
		{Name: "R1", Sequence: "ctcagACTAGT", Description: "Reverse oligo in construction of pA"},
		{Name: "ssT", Sequence: "ACGTACGT", Description: "Template oligo in construction of pA"},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d oligos: %+v", len(got), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("oligo %d = %+v, want %+v", i, got[i], want[i])
		}
	}
}

func TestExtractErrors(t *testing.T) {
	missing := pcrConstruction("pA", map[string]domain.Polynucleotide{"F1": {Sequence: "ACGT"}}, "pT")
	if _, err := Extract([]domain.Construction{missing}); !errors.Is(err, domain.ErrMalformedRecipe) || !strings.Contains(err.Error(), "R1") {
		t.Fatalf("expected missing R1 error, got %v", err)
	}

	one := pcrConstruction("pA", map[string]domain.Polynucleotide{"F1": {Sequence: "ACGT"}, "R1": {Sequence: "TTTT"}}, "pT")
	two := pcrConstruction("pB", map[string]domain.Polynucleotide{"F1": {Sequence: "GGGG"}, "R1": {Sequence: "TTTT"}}, "pT")
	if _, err := Extract([]domain.Construction{one, two}); !errors.Is(err, domain.ErrMalformedRecipe) {
		t.Fatalf("expected conflicting sequence error, got %v", err)
	}

	bad := pcrConstruction("pA", map[string]domain.Polynucleotide{"F1": {Sequence: "AC-GT"}, "R1": {Sequence: "TTTT"}}, "pT")
	if _, err := Extract([]domain.Construction{bad}); !errors.Is(err, domain.ErrInvalidSequence) {
		t.Fatalf("expected invalid sequence error, got %v", err)
	}
}

func TestCheckSequences(t *testing.T) {
	complete := pcrConstruction("pA", map[string]domain.Polynucleotide{"F1": {Sequence: "ACGT"}, "R1": {Sequence: "TTTT"}}, "pStock")
	if err := CheckSequences(complete); err != nil {
		t.Fatalf("stock templates need no sequence: %v", err)
	}
	bare := pcrConstruction("pA", nil, "pStock")
	if err := CheckSequences(bare); !errors.Is(err, domain.ErrMalformedRecipe) || !strings.Contains(err.Error(), "no sequence for oligo F1") {
		t.Fatalf("expected missing F1 error, got %v", err)
	}
}

func TestValidateReportsRunePosition(t *testing.T) {
	err := Validate("ACéGT")
	if !errors.Is(err, domain.ErrInvalidSequence) || !strings.Contains(err.Error(), "at 3") {
		t.Fatalf("expected third character to be reported, got %v", err)
	}
}

func TestWriteOrder(t *testing.T) {
	long := strings.Repeat("A", 60)
	oligos := []domain.Oligo{
		{Name: "ca998", Sequence: strings.Repeat("G", 59), Description: "Forward sequencing"},
		{Name: "KB005", Sequence: long, Description: "Forward XbaI oligo"},
	}
	var buf bytes.Buffer
	if err := WriteOrder(&buf, oligos); err != nil {
		t.Fatalf("write: %v", err)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("unexpected order %q", buf.String())
	}
	if want := "ca998\t" + strings.Repeat("G", 59) + "\t25nm\tSTD\tForward sequencing"; lines[0] != want {
		t.Fatalf("row 0 = %q", lines[0])
	}
	if fields := strings.Split(lines[1], "\t"); len(fields) != 5 || fields[2] != "100nm" {
		t.Fatalf("row 1 = %q", lines[1])
	}
}
