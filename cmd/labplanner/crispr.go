package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"labplanner/internal/construction"
	"labplanner/internal/crispr"
	"labplanner/pkg/domain"
)

type crisprOptions struct {
	cdsFile   string
	sequences string
}

func newCrisprCmd() *cobra.Command {
	opts := &crisprOptions{}
	cmd := &cobra.Command{
		Use:   "crispr TARGET [CDS]",
		Short: "Design a pTargetF knock-out construction for a coding sequence",
		Long: `Crispr picks the first NGG target site in the coding sequence, designs the
guide oligos and prints the pTarg-TARGET construction file. The CDS is given
inline or as a single-record FASTA file with --cds-file.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cds, err := opts.cds(args)
			if err != nil {
				return err
			}
			c, err := crispr.NewConstruction(args[0], cds)
			if err != nil {
				return err
			}
			if opts.sequences != "" {
				if err := writeSequencesFile(opts.sequences, c.Sequences); err != nil {
					return err
				}
			}
			return construction.Write(cmd.OutOrStdout(), c)
		},
	}
	cmd.Flags().StringVar(&opts.cdsFile, "cds-file", "", "FASTA file holding the coding sequence")
	cmd.Flags().StringVar(&opts.sequences, "sequences", "", "write the oligo and template sequences as FASTA to this path")
	return cmd
}

func (o *crisprOptions) cds(args []string) (string, error) {
	switch {
	case len(args) == 2 && o.cdsFile != "":
		return "", errors.New("give the CDS inline or with --cds-file, not both")
	case len(args) == 2:
		return args[1], nil
	case o.cdsFile == "":
		return "", errors.New("a CDS is required")
	}
	f, err := os.Open(o.cdsFile)
	if err != nil {
		return "", fmt.Errorf("open cds: %w", err)
	}
	defer f.Close()
	seqs, err := construction.ReadSequences(f)
	if err != nil {
		return "", fmt.Errorf("%s: %w", o.cdsFile, err)
	}
	if len(seqs) != 1 {
		return "", fmt.Errorf("%s: expected one FASTA record, found %d", o.cdsFile, len(seqs))
	}
	for _, p := range seqs {
		return p.Sequence, nil
	}
	return "", nil
}

func writeSequencesFile(path string, seqs map[string]domain.Polynucleotide) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create sequences: %w", err)
	}
	if err := construction.WriteSequences(f, seqs); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
