// Package cmd implements the termcrawl command-line interface.
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/lukemcguire/termcrawl/config"
	"github.com/lukemcguire/termcrawl/logging"
	"github.com/lukemcguire/termcrawl/store"
)

// app carries the state shared by all subcommands.
type app struct {
	v       *viper.Viper
	cfgFile string
	// isTerminal reports whether a stream is an interactive terminal.
	isTerminal func(any) bool
}

// Execute runs the root command until it finishes or the process receives
// an interrupt. Variables from ./.env are loaded first without overriding
// the environment.
func Execute() error {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCommand().ExecuteContext(ctx)
}

// NewRootCommand builds the termcrawl command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&app{
		v:          config.New(),
		isTerminal: fileIsTerminal,
	})
}

func newRootCommand(a *app) *cobra.Command {
	root := &cobra.Command{
		Use:   "termcrawl",
		Short: "Rank web pages by how often they mention your search terms",
		Long: `termcrawl crawls the web breadth-first from a seed URL, counts every
occurrence of a set of search terms on each page and ranks pages by total hits.
Results are exported as CSV and kept in a local history database.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := a.v.BindPFlags(cmd.Flags()); err != nil {
				return fmt.Errorf("bind flags: %w", err)
			}
			return config.ReadFile(a.v, a.cfgFile)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.cfgFile, "config", "", "config file (default $XDG_CONFIG_HOME/termcrawl/config.yaml or ./config.yaml)")
	flags.String(config.KeyDB, "", "history database (default $XDG_DATA_HOME/termcrawl/termcrawl.db)")
	flags.String(config.KeyLogLevel, "info", "log level: debug, info, warn or error")
	flags.String(config.KeyLogFile, "", "write logs to this file")
	flags.String(config.KeyLogFormat, "console", "log format: console or json")

	root.AddCommand(
		a.crawlCommand(),
		a.historyCommand(),
		a.showCommand(),
		a.deleteCommand(),
		a.configCommand(),
	)
	return root
}

// load decodes the resolved settings.
func (a *app) load() (*config.Config, error) {
	cfg, err := config.Load(a.v)
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the logger for cfg. quiet discards logs unless a log
// file is configured.
func (a *app) newLogger(cfg *config.Config, quiet bool) (*zap.Logger, error) {
	logger, err := logging.New(logging.Config{
		Level:    cfg.LogLevel,
		Format:   cfg.LogFormat,
		File:     cfg.LogFile,
		Disabled: quiet && cfg.LogFile == "",
	})
	if err != nil {
		return nil, fmt.Errorf("create logger: %w", err)
	}
	return logger, nil
}

// openStore opens the history database named by cfg.
func (a *app) openStore(cfg *config.Config) (*store.Store, error) {
	path, err := cfg.DatabasePath()
	if err != nil {
		return nil, err
	}
	st, err := store.Open(path)
	if err != nil {
		return nil, err
	}
	return st, nil
}

func fileIsTerminal(stream any) bool {
	f, ok := stream.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func printf(w io.Writer, format string, a ...any) {
	_, _ = fmt.Fprintf(w, format, a...)
}
