package cmd

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lukemcguire/termcrawl/config"
	"github.com/lukemcguire/termcrawl/result"
)

const (
	allStatsFile = "all_stats.csv"
	topStatsFile = "top_stats.csv"
)

// writeExports writes all_stats.csv, the optional top_stats.csv and the
// optional JSON and Markdown reports.
func writeExports(cfg *config.Config, report *result.Report) error {
	if err := writeCSVExports(cfg, report); err != nil {
		return err
	}
	return writeOptionalExports(cfg, report)
}

// writeCSVExports writes all_stats.csv and, unless disabled, top_stats.csv
// into the output directory.
func writeCSVExports(cfg *config.Config, report *result.Report) error {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	all := result.SortedByTotal(report.Pages)
	if err := writeFile(filepath.Join(cfg.OutputDir, allStatsFile), func(w io.Writer) error {
		return result.WriteCSV(w, report.Terms, all)
	}); err != nil {
		return err
	}

	if cfg.TopCSV {
		top := result.Top(report.Pages, cfg.Top)
		if err := writeFile(filepath.Join(cfg.OutputDir, topStatsFile), func(w io.Writer) error {
			return result.WriteCSV(w, report.Terms, top)
		}); err != nil {
			return err
		}
	}
	return nil
}

// writeOptionalExports writes the JSON and Markdown reports that were asked
// for.
func writeOptionalExports(cfg *config.Config, report *result.Report) error {
	if cfg.JSONFile != "" {
		all := result.SortedByTotal(report.Pages)
		if err := writeFile(cfg.JSONFile, func(w io.Writer) error {
			return result.WriteJSON(w, report.Terms, all)
		}); err != nil {
			return err
		}
	}

	if cfg.Markdown != "" {
		if err := writeFile(cfg.Markdown, func(w io.Writer) error {
			return result.WriteMarkdown(w, report, cfg.Top)
		}); err != nil {
			return err
		}
	}
	return nil
}

// writeFile creates path and fills it with write.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	if err := write(f); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
