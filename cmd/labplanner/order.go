package main

import (
	"github.com/spf13/cobra"

	"labplanner/internal/oligo"
)

func newOrderCmd() *cobra.Command {
	var sequences string
	cmd := &cobra.Command{
		Use:   "order CONSTRUCTION...",
		Short: "Print the oligo synthesis order for construction files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			constructions, err := readConstructions(args, sequences)
			if err != nil {
				return err
			}
			oligos, err := oligo.Extract(constructions)
			if err != nil {
				return err
			}
			return oligo.WriteOrder(cmd.OutOrStdout(), oligos)
		},
	}
	cmd.Flags().StringVar(&sequences, "sequences", "", "FASTA file with starting-material sequences")
	return cmd
}
