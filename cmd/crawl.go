package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/lukemcguire/termcrawl/config"
	"github.com/lukemcguire/termcrawl/crawler"
	"github.com/lukemcguire/termcrawl/result"
	"github.com/lukemcguire/termcrawl/tui"
)

func (a *app) crawlCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [seed-url] [term...]",
		Short: "Crawl from a seed URL and rank pages by term hits",
		Long: `Crawl breadth-first from the seed URL, following links up to --depth
levels and visiting at most --max-pages pages. Every page's text is searched for
the terms (case-insensitive, overlapping matches count) and pages are ranked by
their total hits.

all_stats.csv and top_stats.csv are written to --output-dir. When neither a seed
URL nor terms are given and stdin is a terminal, the settings are asked for.`,
		Example: `  termcrawl crawl https://go.dev go gopher
  termcrawl crawl https://go.dev -t go,gopher --depth 2 --max-pages 200 --no-tui`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := a.load()
			if err != nil {
				return err
			}
			if len(args) > 0 {
				cfg.SeedURL = args[0]
				cfg.Terms = append(cfg.Terms, config.ParseTerms(args[1:])...)
			}
			if cfg.SeedURL == "" && len(cfg.Terms) == 0 && a.isTerminal(cmd.InOrStdin()) {
				if err := promptSettings(cmd.InOrStdin(), cmd.OutOrStdout(), cfg); err != nil {
					return err
				}
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return a.runCrawl(cmd, cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringSliceP(config.KeyTerms, "t", nil, "search terms, comma separated or repeated")
	flags.Int(config.KeyDepth, 8, "link depth to follow from the seed page")
	flags.Int(config.KeyMaxPages, 10000, "maximum number of pages to visit")
	flags.IntP(config.KeyConcurrency, "c", 1, "pages fetched in parallel")
	flags.Duration(config.KeyTimeout, 10*time.Second, "per-request timeout")
	flags.String(config.KeyUserAgent, crawler.DefaultUserAgent, "User-Agent header")
	flags.Int(config.KeyRateLimit, 0, "requests per second (0 adapts to response times)")
	flags.Bool(config.KeyRespectRobots, false, "skip pages disallowed by robots.txt")
	flags.Bool(config.KeySameDomain, false, "only follow links on the seed's domain")
	flags.Bool(config.KeyNormalize, false, "normalize link URLs before queueing them")
	flags.Int64(config.KeyMemoryLimit, 0, "soft memory limit in MB (0 disables)")
	flags.IntP(config.KeyTop, "n", 10, "number of top pages to show and export")
	flags.StringP(config.KeyOutputDir, "o", ".", "directory for the CSV files")
	flags.Bool(config.KeyTopCSV, true, "write top_stats.csv")
	flags.String(config.KeyJSON, "", "also write the ranking as JSON to this file")
	flags.String(config.KeyMarkdown, "", "also write a Markdown report to this file")
	flags.Bool(config.KeyNoSave, false, "do not record the run in the history database")
	flags.Bool(config.KeyNoTUI, false, "print plain progress logs instead of the interactive view")
	return cmd
}

// runCrawl runs one crawl and exports its report. A cancelled crawl still
// exports and saves the pages visited so far.
func (a *app) runCrawl(cmd *cobra.Command, cfg *config.Config) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()
	useTUI := !cfg.NoTUI && a.isTerminal(out)

	logger, err := a.newLogger(cfg, useTUI)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	fetcher := crawler.NewHTTPFetcher(cfg.FetcherConfig())
	opts := []crawler.Option{crawler.WithLogger(logger)}

	var progressCh chan crawler.CrawlEvent
	if useTUI {
		progressCh = make(chan crawler.CrawlEvent, 100)
		opts = append(opts, crawler.WithProgress(progressCh))
	}

	c, err := crawler.New(cfg.CrawlerConfig(), fetcher, opts...)
	if err != nil {
		return fmt.Errorf("create crawler: %w", err)
	}

	var report *result.Report
	var runErr error
	if useTUI {
		report, runErr = runWithTUI(ctx, c, progressCh, cfg.Top)
	} else {
		report, runErr = c.Run(ctx)
	}
	if report == nil {
		return runErr
	}

	if err := writeExports(cfg, report); err != nil {
		return errors.Join(runErr, err)
	}
	if !useTUI {
		result.PrintTop(out, report, cfg.Top)
	}

	if !cfg.NoSave {
		// The save must survive an interrupted crawl.
		id, err := a.saveReport(context.WithoutCancel(ctx), cfg, report)
		if err != nil {
			logger.Warn("failed to save crawl to history", zap.Error(err))
			return errors.Join(runErr, err)
		}
		printf(out, "Saved as run %s\n", shortID(id))
	}
	return runErr
}

// runWithTUI drives the crawl from a Bubble Tea program and returns its
// report once the program exits.
func runWithTUI(ctx context.Context, c *crawler.Crawler, progressCh chan crawler.CrawlEvent, top int) (*result.Report, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	runner := tui.RunnerFunc(func(ctx context.Context) (*result.Report, error) {
		defer close(progressCh)
		return c.Run(ctx)
	})

	program := tea.NewProgram(tui.NewModel(ctx, cancel, runner, progressCh, top))
	finalModel, err := program.Run()
	if err != nil {
		return nil, fmt.Errorf("run tui: %w", err)
	}

	model, ok := finalModel.(tui.Model)
	if !ok {
		return nil, fmt.Errorf("run tui: unexpected model %T", finalModel)
	}
	if model.Report() == nil && model.Err() == nil {
		return nil, errors.New("crawl interrupted before it finished")
	}
	return model.Report(), model.Err()
}

func (a *app) saveReport(ctx context.Context, cfg *config.Config, report *result.Report) (string, error) {
	st, err := a.openStore(cfg)
	if err != nil {
		return "", err
	}
	defer func() { _ = st.Close() }()
	return st.SaveReport(ctx, report)
}

// shortID returns the leading part of a run id that is enough to address it.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
