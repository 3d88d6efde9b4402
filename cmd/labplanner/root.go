package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"labplanner/internal/config"
	"labplanner/internal/logging"
)

type rootOptions struct {
	logLevel   string
	policyFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "labplanner",
		Short: "Plan molecular cloning experiments",
		Long: `labplanner turns construction files into an experiment: the oligos to
order, the freezer box layout of every sample and a lab sheet per step.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (default $"+logging.EnvLevel+" or info)")
	cmd.PersistentFlags().StringVar(&opts.policyFile, "policy", "", "YAML planning policy (default $"+config.EnvPolicyFile+")")
	cmd.AddCommand(
		newPlanCmd(opts),
		newCrisprCmd(),
		newOrderCmd(),
		newShowCmd(),
	)
	return cmd
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	if o.logLevel != "" {
		return logging.New(o.logLevel)
	}
	return logging.FromEnv()
}

func (o *rootOptions) policy() (config.Policy, error) {
	if o.policyFile != "" {
		return config.LoadPolicy(o.policyFile)
	}
	return config.LoadPolicyFromEnv()
}
