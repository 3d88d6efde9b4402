package domain

import (
	"fmt"
	"strings"
)

// Operation names the kind of DNA manipulation performed by a construction step.
type Operation string

// Supported construction operations, in the order lab sheets are generated.
const (
	OperationPCR       Operation = "pcr"
	OperationDigest    Operation = "digest"
	OperationLigate    Operation = "ligate"
	OperationAssemble  Operation = "assemble"
	OperationTransform Operation = "transform"
)

// Operations lists every operation in lab-sheet generation order.
var Operations = []Operation{OperationPCR, OperationDigest, OperationLigate, OperationAssemble, OperationTransform}

// Step is one construction operation with named inputs and exactly one named product.
// The concrete types are PCR, Digestion, Ligation, Assembly and Transformation.
type Step interface {
	Operation() Operation
	Product() string
	// Inputs lists the DNA inputs consumed by the step. Reagents such as
	// enzymes, strains and antibiotics are not inputs.
	Inputs() []string
	isStep()
}

// PCR amplifies one or more templates with a pair of oligos.
type PCR struct {
	Oligo1    string
	Oligo2    string
	Templates []string
	Output    string
}

func (PCR) Operation() Operation { return OperationPCR }
func (s PCR) Product() string    { return s.Output }
func (s PCR) Inputs() []string {
	out := make([]string, 0, 2+len(s.Templates))
	out = append(out, s.Oligo1, s.Oligo2)
	return append(out, s.Templates...)
}
func (PCR) isStep() {}

// Digestion cuts a substrate with restriction enzymes and keeps one fragment.
type Digestion struct {
	Substrate      string
	Enzymes        []string
	FragmentSelect int
	Output         string
}

func (Digestion) Operation() Operation { return OperationDigest }
func (s Digestion) Product() string    { return s.Output }
func (s Digestion) Inputs() []string   { return []string{s.Substrate} }
func (Digestion) isStep()              {}

// Ligation joins digested fragments.
type Ligation struct {
	Fragments []string
	Output    string
}

func (Ligation) Operation() Operation { return OperationLigate }
func (s Ligation) Product() string    { return s.Output }
func (s Ligation) Inputs() []string   { return append([]string(nil), s.Fragments...) }
func (Ligation) isStep()              {}

// Assembly joins fragments by Gibson or Golden Gate assembly.
type Assembly struct {
	Fragments []string
	Output    string
}

func (Assembly) Operation() Operation { return OperationAssemble }
func (s Assembly) Product() string    { return s.Output }
func (s Assembly) Inputs() []string   { return append([]string(nil), s.Fragments...) }
func (Assembly) isStep()              {}

// Transformation introduces DNA into a competent strain selected on an antibiotic.
// Output names the resulting clone.
type Transformation struct {
	DNA        string
	Strain     string
	Antibiotic string
	Output     string
}

func (Transformation) Operation() Operation { return OperationTransform }
func (s Transformation) Product() string    { return s.Output }
func (s Transformation) Inputs() []string   { return []string{s.DNA} }
func (Transformation) isStep()              {}

// Polynucleotide is the sequence record of a starting material.
type Polynucleotide struct {
	Sequence       string `json:"sequence"`
	DoubleStranded bool   `json:"double_stranded"`
}

// Construction is an ordered recipe of steps producing Product.
type Construction struct {
	Steps     []Step
	Product   string
	Sequences map[string]Polynucleotide
}

// LastStep returns the final step or nil for an empty construction.
func (c Construction) LastStep() Step {
	if len(c.Steps) == 0 {
		return nil
	}
	return c.Steps[len(c.Steps)-1]
}

// Validate enforces the structural invariants of a construction: a non-empty
// step list ending in a Transformation whose product is the construction's
// product, unique product names, and inputs that only reference products of
// earlier steps or starting materials.
func (c Construction) Validate() error {
	if len(c.Steps) == 0 {
		return MalformedRecipeError{Construct: c.Product, Reason: "no steps"}
	}
	last := c.LastStep()
	if _, ok := last.(Transformation); !ok {
		return MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("final step is %s, want transform", last.Operation())}
	}
	if c.Product == "" {
		return MalformedRecipeError{Construct: c.Product, Reason: "missing final product name"}
	}
	if last.Product() != c.Product {
		return MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("final step produces %q", last.Product())}
	}

	definedAt := make(map[string]int, len(c.Steps))
	for i, step := range c.Steps {
		name := step.Product()
		if strings.TrimSpace(name) == "" {
			return MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("step %d (%s) has no product", i+1, step.Operation())}
		}
		if prev, dup := definedAt[name]; dup {
			return MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("product %q defined by steps %d and %d", name, prev+1, i+1)}
		}
		definedAt[name] = i
	}

	for i, step := range c.Steps {
		if missing := missingOperand(step); missing != "" {
			return MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("step %d (%s) has no %s", i+1, step.Operation(), missing)}
		}
		for _, in := range step.Inputs() {
			if strings.TrimSpace(in) == "" {
				return MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("step %d (%s) has an empty input", i+1, step.Operation())}
			}
			if at, ok := definedAt[in]; ok {
				if at >= i {
					return MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("step %d (%s) uses %q before it is produced", i+1, step.Operation(), in)}
				}
				continue
			}
			if len(c.Sequences) > 0 {
				if _, ok := c.Sequences[in]; !ok {
					return MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("step %d (%s) references undefined %q", i+1, step.Operation(), in)}
				}
			}
		}
	}
	return nil
}

func missingOperand(step Step) string {
	switch s := step.(type) {
	case PCR:
		if len(s.Templates) == 0 {
			return "templates"
		}
	case Digestion:
		if len(s.Enzymes) == 0 {
			return "enzymes"
		}
	case Ligation:
		if len(s.Fragments) == 0 {
			return "fragments"
		}
	case Assembly:
		if len(s.Fragments) == 0 {
			return "fragments"
		}
	case Transformation:
		if s.Strain == "" || s.Antibiotic == "" {
			return "strain or antibiotic"
		}
	}
	return ""
}

// StepsByOperation buckets the steps of every construction by operation,
// preserving construction order then step order.
func StepsByOperation(constructions []Construction) map[Operation][]Step {
	out := make(map[Operation][]Step, len(Operations))
	for _, c := range constructions {
		for _, step := range c.Steps {
			op := step.Operation()
			out[op] = append(out[op], step)
		}
	}
	return out
}
