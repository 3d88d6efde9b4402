// Package oligo collects the oligos a set of constructions needs and renders
// them as a synthesis order.
package oligo

import (
	"fmt"
	"strings"
	"unicode"

	"labplanner/pkg/domain"
)

// Extract returns every oligo referenced by PCR steps: the forward and
// reverse primers and any single-stranded template, in construction then
// step order. An oligo used by several steps with the same sequence is listed
// once under its first description. Double-stranded templates and templates
// absent from the sequence table are stock material and are not ordered.
func Extract(constructions []domain.Construction) ([]domain.Oligo, error) {
	var out []domain.Oligo
	seen := make(map[string]string)
	add := func(c domain.Construction, name, role string, required bool) error {
		poly, ok := c.Sequences[name]
		if !ok {
			if !required {
				return nil
			}
			return domain.MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("no sequence for oligo %s", name)}
		}
		if !required && poly.DoubleStranded {
			return nil
		}
		if err := Validate(poly.Sequence); err != nil {
			return fmt.Errorf("oligo %s: %w", name, err)
		}
		if prev, dup := seen[name]; dup {
			if !strings.EqualFold(prev, poly.Sequence) {
				return domain.MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("oligo %s has conflicting sequences", name)}
			}
			return nil
		}
		seen[name] = poly.Sequence
		out = append(out, domain.Oligo{
			Name:        name,
			Sequence:    poly.Sequence,
			Description: role + " oligo in construction of " + c.Product,
		})
		return nil
	}

	for _, c := range constructions {
		for _, step := range c.Steps {
			pcr, ok := step.(domain.PCR)
			if !ok {
				continue
			}
			if err := add(c, pcr.Oligo1, "Forward", true); err != nil {
				return nil, err
			}
			if err := add(c, pcr.Oligo2, "Reverse", true); err != nil {
				return nil, err
			}
			for _, tmpl := range pcr.Templates {
				if err := add(c, tmpl, "Template", false); err != nil {
					return nil, err
				}
			}
		}
	}
	return out, nil
}

// CheckSequences reports the first PCR primer of c that has no entry in its
// sequence table. Templates may be stock material and are not checked.
func CheckSequences(c domain.Construction) error {
	for _, step := range c.Steps {
		pcr, ok := step.(domain.PCR)
		if !ok {
			continue
		}
		for _, name := range []string{pcr.Oligo1, pcr.Oligo2} {
			if _, ok := c.Sequences[name]; !ok {
				return domain.MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("no sequence for oligo %s", name)}
			}
		}
	}
	return nil
}

// Validate checks that seq is a non-empty IUPAC DNA sequence. Case is
// preserved by callers; lowercase marks non-annealing tails.
func Validate(seq string) error {
	if seq == "" {
		return domain.InvalidSequenceError{Reason: "empty sequence"}
	}
	pos := 0
	for _, r := range seq {
		pos++
		if !strings.ContainsRune("ACGTRYSWKMBDHVN", unicode.ToUpper(r)) {
			return domain.InvalidSequenceError{Reason: fmt.Sprintf("invalid base %q at %d", r, pos)}
		}
	}
	return nil
}
