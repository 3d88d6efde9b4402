package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"labplanner/internal/core"
	"labplanner/internal/inventory"
	"labplanner/pkg/domain"
)

type showOptions struct {
	experiment string
	style      string
	width      int
	raw        bool
}

func newShowCmd() *cobra.Command {
	opts := &showOptions{}
	cmd := &cobra.Command{
		Use:   "show [FILE|-]",
		Short: "Render Markdown lab sheets in the terminal",
		Long: `Show renders an exported lab sheet or packet file, or with --experiment the
sheets of the most recent archived run of that name.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			markdown, err := opts.source(cmd, args)
			if err != nil {
				return err
			}
			if opts.raw {
				_, err = io.WriteString(cmd.OutOrStdout(), markdown)
				return err
			}
			out, err := renderMarkdown(markdown, opts.style, opts.width)
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), out)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.experiment, "experiment", "", "show the archived sheets of this experiment")
	f.StringVar(&opts.style, "style", "auto", "glamour style: auto, dark, light, notty")
	f.IntVar(&opts.width, "width", 100, "word wrap width")
	f.BoolVar(&opts.raw, "raw", false, "print the Markdown without rendering")
	return cmd
}

func (o *showOptions) source(cmd *cobra.Command, args []string) (string, error) {
	switch {
	case o.experiment != "" && len(args) > 0:
		return "", errors.New("give a file or --experiment, not both")
	case o.experiment != "":
		return archivedSheets(cmd.Context(), o.experiment)
	case len(args) == 0 || args[0] == "-":
		b, err := io.ReadAll(cmd.InOrStdin())
		return string(b), err
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func archivedSheets(ctx context.Context, name string) (string, error) {
	store, err := core.OpenPersistentStore(inventory.NewDefaultRulesEngine())
	if err != nil {
		return "", fmt.Errorf("open store: %w", err)
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	var sheets []string
	err = store.View(ctx, func(view domain.TransactionView) error {
		records := view.ListExperiments()
		for i := len(records) - 1; i >= 0; i-- {
			if records[i].Name == name {
				sheets = records[i].Sheets
				return nil
			}
		}
		return fmt.Errorf("no archived experiment named %q", name)
	})
	if err != nil {
		return "", err
	}
	return strings.Join(sheets, "\n---\n\n"), nil
}

func renderMarkdown(markdown, style string, width int) (string, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(width)}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return "", fmt.Errorf("markdown renderer: %w", err)
	}
	return r.Render(markdown)
}
