package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"labplanner/internal/artifact"
	"labplanner/internal/core"
	"labplanner/internal/inventory"
)

type planOptions struct {
	id              int
	sequences       string
	prior           []string
	archive         bool
	export          bool
	overwrite       bool
	trace           bool
	timings         bool
	metricsTextfile string
}

func newPlanCmd(root *rootOptions) *cobra.Command {
	opts := &planOptions{}
	cmd := &cobra.Command{
		Use:   "plan NAME CONSTRUCTION...",
		Short: "Plan an experiment from construction files",
		Long: `Plan extracts the oligos, allocates every sample in the experiment box and
generates the lab sheets. By default the run is archived in the persistent
store ($` + core.EnvStorageDriver + `) and its files are exported to the artifact
store ($` + artifact.EnvDriver + `). The next run starts from the archived inventory
unless --prior box files are given.

Every PCR primer needs a sequence in the --sequences FASTA file; a primer
without one fails validation before anything is allocated.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlan(cmd, root, opts, args[0], args[1:])
		},
	}
	f := cmd.Flags()
	f.IntVar(&opts.id, "id", 1, "experiment number used in sample labels")
	f.StringVar(&opts.sequences, "sequences", "", "FASTA file with primer and starting-material sequences")
	f.StringArrayVar(&opts.prior, "prior", nil, "box file of the prior inventory (repeatable)")
	f.BoolVar(&opts.archive, "archive", true, "record the experiment and inventory in the persistent store")
	f.BoolVar(&opts.export, "export", true, "write the experiment files to the artifact store")
	f.BoolVar(&opts.overwrite, "overwrite", false, "replace artifacts of an earlier export with the same name")
	f.BoolVar(&opts.trace, "trace", false, "write stage spans as JSON lines to stderr")
	f.BoolVar(&opts.timings, "timings", false, "print per-stage run counts and durations after the run")
	f.StringVar(&opts.metricsTextfile, "metrics-textfile", "", "write stage metrics in Prometheus textfile format to this path")
	return cmd
}

func runPlan(cmd *cobra.Command, root *rootOptions, opts *planOptions, name string, paths []string) (err error) {
	logger, err := root.logger()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	prom := core.NewPrometheusMetricsRecorder()
	metrics := core.MultiMetricsRecorder{prom}
	if opts.metricsTextfile != "" {
		defer func() {
			if werr := prom.WriteTextfile(opts.metricsTextfile); werr != nil {
				err = errors.Join(err, werr)
			}
		}()
	}
	if opts.timings {
		timings := core.NewTimingRecorder()
		metrics = append(metrics, timings)
		defer func() {
			if werr := timings.WriteSummary(cmd.OutOrStdout()); werr != nil {
				err = errors.Join(err, werr)
			}
		}()
	}

	policy, err := root.policy()
	if err != nil {
		return err
	}
	constructions, err := readConstructions(paths, opts.sequences)
	if err != nil {
		return err
	}
	req := core.Request{Name: name, ID: opts.id, Constructions: constructions}
	if len(opts.prior) > 0 {
		req.Prior, err = inventory.ReadInventoryFiles(policy.Box.Rows, policy.Box.Cols, opts.prior...)
		if err != nil {
			return err
		}
	}

	plannerOpts := []core.Option{
		core.WithLogger(logger),
		core.WithPolicy(policy),
		core.WithMetricsRecorder(metrics),
		core.WithAuditRecorder(core.NewZapAuditRecorder(logger)),
	}
	if opts.trace {
		plannerOpts = append(plannerOpts, core.WithTracer(core.NewJSONTracer(cmd.ErrOrStderr())))
	}

	ctx := cmd.Context()
	var (
		exp    core.Experiment
		record string
	)
	if opts.archive {
		engine := inventory.NewDefaultRulesEngine()
		store, err := core.OpenPersistentStore(engine)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		if c, ok := store.(io.Closer); ok {
			defer c.Close()
		}
		planner, err := core.NewPlanner(append(plannerOpts, core.WithRulesEngine(engine), core.WithStore(store))...)
		if err != nil {
			return err
		}
		var rec core.ExperimentRecord
		exp, rec, err = planner.PlanAndArchive(ctx, req)
		if err != nil {
			return err
		}
		record = rec.ID
	} else {
		planner, err := core.NewPlanner(plannerOpts...)
		if err != nil {
			return err
		}
		exp, err = planner.Plan(ctx, req)
		if err != nil {
			return err
		}
	}

	var infos []artifact.Info
	if opts.export {
		infos, err = exportExperiment(ctx, logger, exp, opts.overwrite)
		if err != nil {
			return err
		}
	}
	return writeSummary(cmd.OutOrStdout(), exp, record, infos)
}

func exportExperiment(ctx context.Context, logger *zap.Logger, exp core.Experiment, overwrite bool) ([]artifact.Info, error) {
	store, err := artifact.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open artifact store: %w", err)
	}
	var opts []artifact.ExporterOption
	if overwrite {
		opts = append(opts, artifact.WithOverwrite())
	}
	return artifact.NewExporter(store, logger, opts...).Export(ctx, exp)
}

func writeSummary(w io.Writer, exp core.Experiment, record string, infos []artifact.Info) error {
	samples := 0
	if exp.Inventory != nil {
		samples = exp.Inventory.SampleCount()
	}
	fmt.Fprintf(w, "experiment %s (%d): %d constructions, %d oligos, %d samples, %d sheets\n",
		exp.Name, exp.ID, len(exp.Constructions), len(exp.Oligos), samples, len(exp.Packet.Sheets))
	if record != "" {
		fmt.Fprintf(w, "archived as %s\n", record)
	}
	for _, info := range infos {
		if _, err := fmt.Fprintf(w, "  %s\t%d bytes\n", info.Key, info.Size); err != nil {
			return err
		}
	}
	return nil
}
