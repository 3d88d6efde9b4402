// Package construction reads and writes the line-oriented construction file
// format: a ">Construction of <product>" header followed by one line per step.
package construction

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"labplanner/pkg/domain"
)

const headerPrefix = ">Construction of "

// Serialize renders c as construction text. The last step must be a
// Transformation; its product names the construction in the header.
func Serialize(c domain.Construction) (string, error) {
	last := c.LastStep()
	final, ok := last.(domain.Transformation)
	if !ok {
		op := "nothing"
		if last != nil {
			op = string(last.Operation())
		}
		return "", domain.MalformedRecipeError{Construct: c.Product, Reason: "construction files end with a transformation, found " + op}
	}

	var sb strings.Builder
	sb.WriteString(headerPrefix)
	sb.WriteString(final.Output)
	sb.WriteByte('\n')
	for i, step := range c.Steps {
		line, err := formatStep(step, i == len(c.Steps)-1)
		if err != nil {
			return "", domain.MalformedRecipeError{Construct: final.Output, Reason: err.Error()}
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}

// Write serializes c to w.
func Write(w io.Writer, c domain.Construction) error {
	text, err := Serialize(c)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, text)
	return err
}

func formatStep(step domain.Step, final bool) (string, error) {
	switch s := step.(type) {
	case domain.PCR:
		return fmt.Sprintf("%s %s,%s on %s\t(%s)", s.Operation(), s.Oligo1, s.Oligo2, strings.Join(s.Templates, ","), s.Output), nil
	case domain.Digestion:
		attrs := s.Output
		if s.FragmentSelect != 0 {
			attrs = strconv.Itoa(s.FragmentSelect) + ", " + s.Output
		}
		return fmt.Sprintf("%s %s with %s\t(%s)", s.Operation(), s.Substrate, strings.Join(s.Enzymes, ","), attrs), nil
	case domain.Ligation:
		return fmt.Sprintf("%s %s\t(%s)", s.Operation(), strings.Join(s.Fragments, ","), s.Output), nil
	case domain.Assembly:
		return fmt.Sprintf("%s %s\t(%s)", s.Operation(), strings.Join(s.Fragments, ","), s.Output), nil
	case domain.Transformation:
		if final {
			return fmt.Sprintf("%s %s\t(%s, %s)", s.Operation(), s.DNA, s.Strain, s.Antibiotic), nil
		}
		return fmt.Sprintf("%s %s\t(%s, %s, %s)", s.Operation(), s.DNA, s.Strain, s.Antibiotic, s.Output), nil
	default:
		return "", fmt.Errorf("unsupported step %T", step)
	}
}

// ParseString parses construction text.
func ParseString(text string) (domain.Construction, error) {
	return Parse(strings.NewReader(text))
}

// Parse reads one construction. Blank lines and lines starting with '#' are
// skipped. The final transformation takes its product from the header; an
// earlier transformation without an explicit product is named after its strain.
// The parsed construction is validated before it is returned.
func Parse(r io.Reader) (domain.Construction, error) {
	var (
		c      domain.Construction
		header bool
		ln     int
	)
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if !header {
			if !strings.HasPrefix(line, headerPrefix) {
				return domain.Construction{}, domain.MalformedRecipeError{Reason: fmt.Sprintf("line %d: missing %q header", ln, strings.TrimSpace(headerPrefix))}
			}
			c.Product = strings.TrimSpace(strings.TrimPrefix(line, headerPrefix))
			header = true
			continue
		}
		step, err := parseStep(line)
		if err != nil {
			return domain.Construction{}, domain.MalformedRecipeError{Construct: c.Product, Reason: fmt.Sprintf("line %d: %v", ln, err)}
		}
		c.Steps = append(c.Steps, step)
	}
	if err := sc.Err(); err != nil {
		return domain.Construction{}, err
	}
	if !header {
		return domain.Construction{}, domain.MalformedRecipeError{Reason: "empty construction file"}
	}
	if n := len(c.Steps); n > 0 {
		if t, ok := c.Steps[n-1].(domain.Transformation); ok && t.Output == "" {
			t.Output = c.Product
			c.Steps[n-1] = t
		}
	}
	for i, step := range c.Steps {
		if t, ok := step.(domain.Transformation); ok && t.Output == "" {
			t.Output = t.Strain
			c.Steps[i] = t
		}
	}
	if err := c.Validate(); err != nil {
		return domain.Construction{}, err
	}
	return c, nil
}

func parseStep(line string) (domain.Step, error) {
	op, rest, ok := strings.Cut(line, " ")
	if !ok {
		return nil, fmt.Errorf("step %q has no inputs", line)
	}
	open := strings.LastIndex(rest, "(")
	if open < 0 || !strings.HasSuffix(rest, ")") {
		return nil, fmt.Errorf("step %q has no (product)", line)
	}
	body := strings.TrimSpace(rest[:open])
	attrs := splitList(rest[open+1 : len(rest)-1])
	if len(attrs) == 0 {
		return nil, fmt.Errorf("step %q has an empty product", line)
	}
	product := attrs[len(attrs)-1]

	switch domain.Operation(strings.ToLower(op)) {
	case domain.OperationPCR:
		oligos, templates, ok := strings.Cut(body, " on ")
		if !ok {
			return nil, fmt.Errorf("pcr %q: expected \"<oligo1>,<oligo2> on <templates>\"", body)
		}
		pair := splitList(oligos)
		if len(pair) != 2 {
			return nil, fmt.Errorf("pcr %q: expected two oligos, got %d", body, len(pair))
		}
		return domain.PCR{Oligo1: pair[0], Oligo2: pair[1], Templates: splitList(templates), Output: product}, nil
	case domain.OperationDigest:
		substrate, enzymes, ok := strings.Cut(body, " with ")
		if !ok {
			return nil, fmt.Errorf("digest %q: expected \"<substrate> with <enzymes>\"", body)
		}
		d := domain.Digestion{Substrate: strings.TrimSpace(substrate), Enzymes: splitList(enzymes), Output: product}
		if len(attrs) >= 2 {
			n, err := strconv.Atoi(attrs[0])
			if err != nil {
				return nil, fmt.Errorf("digest fragment select %q: %w", attrs[0], err)
			}
			d.FragmentSelect = n
		}
		return d, nil
	case domain.OperationLigate:
		return domain.Ligation{Fragments: splitList(body), Output: product}, nil
	case domain.OperationAssemble:
		return domain.Assembly{Fragments: splitList(body), Output: product}, nil
	case domain.OperationTransform:
		if len(attrs) < 2 {
			return nil, fmt.Errorf("transform %q: expected (<strain>, <antibiotic>)", body)
		}
		t := domain.Transformation{DNA: body, Strain: attrs[0], Antibiotic: attrs[1]}
		if len(attrs) >= 3 {
			t.Output = product
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unknown operation %q", op)
	}
}

// splitList splits a comma-separated list, dropping blanks so that a
// trailing comma is tolerated.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
