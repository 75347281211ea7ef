package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/lukemcguire/termcrawl/config"
	"github.com/lukemcguire/termcrawl/result"
	"github.com/lukemcguire/termcrawl/store"
	"github.com/lukemcguire/termcrawl/tui"
)

func (a *app) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recorded crawls, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			st, err := a.openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			runs, err := st.ListRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if a.isTerminal(out) {
				printf(out, "%s", tui.RenderRuns(runs, 8))
				return nil
			}
			writeRunsPlain(out, runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "number of runs to list (0 lists all)")
	return cmd
}

func (a *app) showCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show the ranking of a recorded crawl",
		Long: `Show the ranking of a recorded crawl. The run id may be shortened to any
unique prefix. With --output-dir, --json or --markdown the stored ranking is
exported again.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			st, err := a.openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			report, err := st.LoadReport(cmd.Context(), args[0])
			if err != nil {
				return explainLookup(err, args[0])
			}

			out := cmd.OutOrStdout()
			printf(out, "Crawl of %s started %s\n", report.SeedURL, report.StartedAt.Local().Format(time.DateTime))
			if a.isTerminal(out) {
				printf(out, "%s", tui.RenderSummary(report, cfg.Top, nil))
			} else {
				result.PrintTop(out, report, cfg.Top)
			}

			if cmd.Flags().Changed(config.KeyOutputDir) {
				if err := writeCSVExports(cfg, report); err != nil {
					return err
				}
			}
			return writeOptionalExports(cfg, report)
		},
	}
	flags := cmd.Flags()
	flags.IntP(config.KeyTop, "n", 10, "number of top pages to show")
	flags.StringP(config.KeyOutputDir, "o", ".", "write all_stats.csv and top_stats.csv to this directory")
	flags.Bool(config.KeyTopCSV, true, "write top_stats.csv")
	flags.String(config.KeyJSON, "", "write the ranking as JSON to this file")
	flags.String(config.KeyMarkdown, "", "write a Markdown report to this file")
	return cmd
}

func (a *app) deleteCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <run-id>",
		Short: "Remove a recorded crawl from the history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			st, err := a.openStore(cfg)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			if err := st.DeleteRun(cmd.Context(), args[0]); err != nil {
				return explainLookup(err, args[0])
			}
			printf(cmd.OutOrStdout(), "Deleted run %s\n", args[0])
			return nil
		},
	}
}

func explainLookup(err error, id string) error {
	switch {
	case errors.Is(err, store.ErrRunNotFound):
		return fmt.Errorf("no recorded crawl matches %q: %w", id, err)
	case errors.Is(err, store.ErrAmbiguousID):
		return fmt.Errorf("%q matches several crawls, use a longer id: %w", id, err)
	}
	return err
}

// writeRunsPlain writes runs as a borderless, tab-padded table for pipes
// and scripts. Full ids are kept.
func writeRunsPlain(w io.Writer, runs []store.RunSummary) {
	if len(runs) == 0 {
		printf(w, "No crawls recorded yet.\n")
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.Style{
		Box: table.BoxStyle{PaddingRight: "\t"},
		Options: table.Options{
			DrawBorder:      false,
			SeparateColumns: false,
			SeparateHeader:  false,
			SeparateRows:    false,
		},
		Format: table.FormatOptionsDefault,
	})
	t.AppendHeader(table.Row{"ID", "STARTED", "SEED", "TERMS", "VISITED", "FAILED", "DURATION"})
	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID,
			run.StartedAt.UTC().Format(time.RFC3339),
			run.SeedURL,
			strings.Join(run.Terms, ","),
			run.Visited,
			run.Failed,
			run.Duration.Round(time.Millisecond).String(),
		})
	}
	t.Render()
}
