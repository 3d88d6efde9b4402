package construction

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"labplanner/pkg/domain"
)

// DoubleStrandedTag marks a FASTA record as double-stranded DNA.
const DoubleStrandedTag = "ds"

// ReadSequences parses a FASTA stream into a sequence table. The first header
// token is the material name; a later "ds" token marks it double-stranded.
// Sequence lines are concatenated and uppercased.
func ReadSequences(r io.Reader) (map[string]domain.Polynucleotide, error) {
	out := make(map[string]domain.Polynucleotide)
	var (
		name string
		ds   bool
		buf  strings.Builder
		ln   int
	)
	flush := func() error {
		if name == "" {
			return nil
		}
		if buf.Len() == 0 {
			return fmt.Errorf("sequence %s is empty", name)
		}
		if _, dup := out[name]; dup {
			return fmt.Errorf("sequence %s defined twice", name)
		}
		out[name] = domain.Polynucleotide{Sequence: buf.String(), DoubleStranded: ds}
		buf.Reset()
		return nil
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return nil, err
			}
			fields := strings.Fields(line[1:])
			if len(fields) == 0 {
				return nil, fmt.Errorf("line %d: header without a name", ln)
			}
			name, ds = fields[0], false
			for _, f := range fields[1:] {
				if strings.EqualFold(f, DoubleStrandedTag) {
					ds = true
				}
			}
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("line %d: sequence before first header", ln)
		}
		buf.WriteString(strings.ToUpper(line))
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

// WriteSequences writes a sequence table as FASTA, sorted by name.
func WriteSequences(w io.Writer, seqs map[string]domain.Polynucleotide) error {
	names := make([]string, 0, len(seqs))
	for name := range seqs {
		names = append(names, name)
	}
	sort.Strings(names)
	bw := bufio.NewWriter(w)
	for _, name := range names {
		p := seqs[name]
		header := ">" + name
		if p.DoubleStranded {
			header += " " + DoubleStrandedTag
		}
		if _, err := fmt.Fprintf(bw, "%s\n%s\n", header, p.Sequence); err != nil {
			return err
		}
	}
	return bw.Flush()
}

// Attach returns c with every sequence from seqs that c references as a
// starting material. Existing entries in c.Sequences win.
func Attach(c domain.Construction, seqs map[string]domain.Polynucleotide) domain.Construction {
	produced := make(map[string]struct{}, len(c.Steps))
	for _, step := range c.Steps {
		produced[step.Product()] = struct{}{}
	}
	merged := make(map[string]domain.Polynucleotide, len(c.Sequences))
	for k, v := range c.Sequences {
		merged[k] = v
	}
	for _, step := range c.Steps {
		for _, in := range step.Inputs() {
			if _, ok := produced[in]; ok {
				continue
			}
			if _, ok := merged[in]; ok {
				continue
			}
			if p, ok := seqs[in]; ok {
				merged[in] = p
			}
		}
	}
	c.Sequences = merged
	return c
}
