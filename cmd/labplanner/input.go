package main

import (
	"fmt"
	"os"

	"labplanner/internal/construction"
	"labplanner/pkg/domain"
)

// readConstructions parses one construction file per path and attaches the
// starting-material sequences from the FASTA file at seqPath, if any.
func readConstructions(paths []string, seqPath string) ([]domain.Construction, error) {
	var seqs map[string]domain.Polynucleotide
	if seqPath != "" {
		f, err := os.Open(seqPath)
		if err != nil {
			return nil, fmt.Errorf("open sequences: %w", err)
		}
		seqs, err = construction.ReadSequences(f)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", seqPath, err)
		}
	}
	out := make([]domain.Construction, 0, len(paths))
	for _, path := range paths {
		c, err := readConstruction(path)
		if err != nil {
			return nil, err
		}
		if seqs != nil {
			c = construction.Attach(c, seqs)
		}
		out = append(out, c)
	}
	return out, nil
}

func readConstruction(path string) (domain.Construction, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.Construction{}, fmt.Errorf("open construction: %w", err)
	}
	defer f.Close()
	c, err := construction.Parse(f)
	if err != nil {
		return domain.Construction{}, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}
