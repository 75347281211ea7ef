// Package config resolves termcrawl settings from flags, TERMCRAWL_*
// environment variables and an optional YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/lukemcguire/termcrawl/crawler"
	"github.com/lukemcguire/termcrawl/urlutil"
)

// Setting keys. Flags use the same names; environment variables are the
// upper-cased key with dashes replaced by underscores and a TERMCRAWL_ prefix.
const (
	KeySeed          = "seed"
	KeyTerms         = "terms"
	KeyDepth         = "depth"
	KeyMaxPages      = "max-pages"
	KeyConcurrency   = "concurrency"
	KeyTimeout       = "timeout"
	KeyUserAgent     = "user-agent"
	KeyRateLimit     = "rate-limit"
	KeyRespectRobots = "respect-robots"
	KeySameDomain    = "same-domain"
	KeyNormalize     = "normalize"
	KeyMemoryLimit   = "memory-limit"
	KeyTop           = "top"
	KeyOutputDir     = "output-dir"
	KeyTopCSV        = "top-csv"
	KeyJSON          = "json"
	KeyMarkdown      = "markdown"
	KeyDB            = "db"
	KeyNoSave        = "no-save"
	KeyNoTUI         = "no-tui"
	KeyLogLevel      = "log-level"
	KeyLogFile       = "log-file"
	KeyLogFormat     = "log-format"
)

const (
	envPrefix   = "TERMCRAWL"
	appName     = "termcrawl"
	configName  = "config"
	databaseRel = "termcrawl/termcrawl.db"
)

var (
	// ErrNoSeed is returned when no seed URL was configured.
	ErrNoSeed = errors.New("seed URL is required")
	// ErrNoTerms is returned when no search terms were configured.
	ErrNoTerms = errors.New("at least one search term is required")
	// ErrInvalidSeed is returned for seed URLs that are not http or https.
	ErrInvalidSeed = errors.New("seed URL must start with http:// or https://")
)

// Config holds every resolved setting.
type Config struct {
	SeedURL       string        `mapstructure:"seed" yaml:"seed"`
	Terms         []string      `mapstructure:"terms" yaml:"terms"`
	Depth         int           `mapstructure:"depth" yaml:"depth"`
	MaxPages      int           `mapstructure:"max-pages" yaml:"max-pages"`
	Concurrency   int           `mapstructure:"concurrency" yaml:"concurrency"`
	Timeout       time.Duration `mapstructure:"timeout" yaml:"timeout"`
	UserAgent     string        `mapstructure:"user-agent" yaml:"user-agent"`
	RateLimit     int           `mapstructure:"rate-limit" yaml:"rate-limit"`
	RespectRobots bool          `mapstructure:"respect-robots" yaml:"respect-robots"`
	SameDomain    bool          `mapstructure:"same-domain" yaml:"same-domain"`
	Normalize     bool          `mapstructure:"normalize" yaml:"normalize"`
	MemoryLimitMB int64         `mapstructure:"memory-limit" yaml:"memory-limit"`

	Top       int    `mapstructure:"top" yaml:"top"`
	OutputDir string `mapstructure:"output-dir" yaml:"output-dir"`
	TopCSV    bool   `mapstructure:"top-csv" yaml:"top-csv"`
	JSONFile  string `mapstructure:"json" yaml:"json"`
	Markdown  string `mapstructure:"markdown" yaml:"markdown"`

	DBPath string `mapstructure:"db" yaml:"db"`
	NoSave bool   `mapstructure:"no-save" yaml:"no-save"`
	NoTUI  bool   `mapstructure:"no-tui" yaml:"no-tui"`

	LogLevel  string `mapstructure:"log-level" yaml:"log-level"`
	LogFile   string `mapstructure:"log-file" yaml:"log-file"`
	LogFormat string `mapstructure:"log-format" yaml:"log-format"`
}

// New returns a viper instance with defaults and environment binding set up.
func New() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
	return v
}

// SetDefaults registers the default value of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeySeed, "")
	v.SetDefault(KeyTerms, []string{})
	v.SetDefault(KeyDepth, 8)
	v.SetDefault(KeyMaxPages, 10000)
	v.SetDefault(KeyConcurrency, 1)
	v.SetDefault(KeyTimeout, 10*time.Second)
	v.SetDefault(KeyUserAgent, crawler.DefaultUserAgent)
	v.SetDefault(KeyRateLimit, 0)
	v.SetDefault(KeyRespectRobots, false)
	v.SetDefault(KeySameDomain, false)
	v.SetDefault(KeyNormalize, false)
	v.SetDefault(KeyMemoryLimit, 0)
	v.SetDefault(KeyTop, 10)
	v.SetDefault(KeyOutputDir, ".")
	v.SetDefault(KeyTopCSV, true)
	v.SetDefault(KeyJSON, "")
	v.SetDefault(KeyMarkdown, "")
	v.SetDefault(KeyDB, "")
	v.SetDefault(KeyNoSave, false)
	v.SetDefault(KeyNoTUI, false)
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFile, "")
	v.SetDefault(KeyLogFormat, "console")
}

// ReadFile loads the YAML config file at path. With an empty path it looks
// for config.yaml in $XDG_CONFIG_HOME/termcrawl and the working directory;
// a missing file is not an error in that case.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", path, err)
		}
		return nil
	}

	v.SetConfigName(configName)
	v.SetConfigType("yaml")
	v.AddConfigPath(filepath.Join(xdg.ConfigHome, appName))
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// Load decodes the settings held by v.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	cfg.SeedURL = strings.TrimSpace(cfg.SeedURL)
	cfg.Terms = ParseTerms(cfg.Terms)
	return &cfg, nil
}

// WriteYAML writes the settings as a YAML config file that ReadFile accepts.
func (c *Config) WriteYAML(w io.Writer) error {
	var doc yaml.Node
	if err := doc.Encode(c); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	// Durations encode as integer nanoseconds.
	for i := 0; i+1 < len(doc.Content); i += 2 {
		if doc.Content[i].Value == KeyTimeout {
			doc.Content[i+1].SetString(c.Timeout.String())
		}
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return enc.Close()
}

// ParseTerms splits comma-separated entries, trims spaces and drops empty
// terms. Order is preserved.
func ParseTerms(raw []string) []string {
	terms := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, term := range strings.Split(entry, ",") {
			if term = strings.TrimSpace(term); term != "" {
				terms = append(terms, term)
			}
		}
	}
	return terms
}

// Validate checks the settings a crawl needs.
func (c *Config) Validate() error {
	if c.SeedURL == "" {
		return ErrNoSeed
	}
	if !urlutil.IsHTTPScheme(c.SeedURL) {
		return fmt.Errorf("%w: %q", ErrInvalidSeed, c.SeedURL)
	}
	if len(c.Terms) == 0 {
		return ErrNoTerms
	}

	var errs []error
	if c.Depth < 0 {
		errs = append(errs, fmt.Errorf("depth must not be negative, got %d", c.Depth))
	}
	if c.MaxPages < 0 {
		errs = append(errs, fmt.Errorf("max-pages must not be negative, got %d", c.MaxPages))
	}
	if c.Concurrency < 1 {
		errs = append(errs, fmt.Errorf("concurrency must be at least 1, got %d", c.Concurrency))
	}
	if c.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("timeout must be positive, got %s", c.Timeout))
	}
	if c.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("rate-limit must not be negative, got %d", c.RateLimit))
	}
	if c.Top < 0 {
		errs = append(errs, fmt.Errorf("top must not be negative, got %d", c.Top))
	}
	if c.MemoryLimitMB < 0 {
		errs = append(errs, fmt.Errorf("memory-limit must not be negative, got %d", c.MemoryLimitMB))
	}
	return errors.Join(errs...)
}

// CrawlerConfig returns the crawl orchestrator settings.
func (c *Config) CrawlerConfig() crawler.Config {
	return crawler.Config{
		SeedURL:       c.SeedURL,
		Terms:         c.Terms,
		LinkDepth:     c.Depth,
		MaxPages:      c.MaxPages,
		Concurrency:   c.Concurrency,
		MemoryLimitMB: c.MemoryLimitMB,
	}
}

// FetcherConfig returns the HTTP fetcher settings.
func (c *Config) FetcherConfig() crawler.HTTPFetcherConfig {
	cfg := crawler.DefaultHTTPFetcherConfig()
	cfg.RequestTimeout = c.Timeout
	if c.UserAgent != "" {
		cfg.UserAgent = c.UserAgent
	}
	cfg.RateLimit = c.RateLimit
	cfg.RespectRobots = c.RespectRobots
	cfg.NormalizeLinks = c.Normalize
	if c.SameDomain {
		cfg.AllowedHost = urlutil.Hostname(c.SeedURL)
	}
	return cfg
}

// DatabasePath returns the configured database path, or the default under
// $XDG_DATA_HOME. The parent directory of the default is created.
func (c *Config) DatabasePath() (string, error) {
	if c.DBPath != "" {
		return c.DBPath, nil
	}
	return DefaultDatabasePath()
}

// DefaultDatabasePath returns $XDG_DATA_HOME/termcrawl/termcrawl.db,
// creating its directory.
func DefaultDatabasePath() (string, error) {
	path, err := xdg.DataFile(databaseRel)
	if err != nil {
		return "", fmt.Errorf("resolve data path: %w", err)
	}
	return path, nil
}
