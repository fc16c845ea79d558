package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"
	_ "time/tzdata"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that unmarshals from YAML strings (e.g. "60s", "5m").
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration back as a string.
func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// Duration returns the standard time.Duration.
func (d Duration) Duration() time.Duration { return time.Duration(d) }

// Config holds the application configuration. Secrets are not part of it;
// they come from the environment (see pkg/env).
type Config struct {
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Timezone string `yaml:"timezone"`

	Buckets struct {
		Datalake string `yaml:"datalake"`
		Datamart string `yaml:"datamart"`
	} `yaml:"buckets"`

	BPS struct {
		BaseURL string   `yaml:"base_url"`
		Domain  string   `yaml:"domain"`
		Model   string   `yaml:"model"`
		Lang    string   `yaml:"lang"`
		TableID string   `yaml:"table_id"`
		Timeout Duration `yaml:"timeout"`
	} `yaml:"bps"`

	IDX struct {
		ScraperURL string   `yaml:"scraper_url"`
		TargetURL  string   `yaml:"target_url"`
		Timeout    Duration `yaml:"timeout"`
		PauseMin   Duration `yaml:"pause_min"`
		PauseMax   Duration `yaml:"pause_max"`
	} `yaml:"idx"`

	Journal struct {
		Driver string `yaml:"driver"`
		Table  string `yaml:"table"`
	} `yaml:"journal"`

	Server struct {
		Addr              string   `yaml:"addr"`
		ReadHeaderTimeout Duration `yaml:"read_header_timeout"`
		ShutdownTimeout   Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`
}

// Default returns the configuration used when no file is given. Every field
// of a parsed file falls back to these values.
func Default() *Config {
	var cfg Config
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	cfg.Timezone = "Asia/Jakarta"
	cfg.Buckets.Datalake = "datalake"
	cfg.Buckets.Datamart = "web"
	cfg.BPS.BaseURL = "https://webapi.bps.go.id/v1/api/view"
	cfg.BPS.Domain = "0000"
	cfg.BPS.Model = "statictable"
	cfg.BPS.Lang = "ind"
	cfg.BPS.TableID = "915"
	cfg.BPS.Timeout = Duration(60 * time.Second)
	cfg.IDX.ScraperURL = "https://scraper-api.decodo.com/v2/scrape"
	cfg.IDX.TargetURL = "https://idx.co.id/primary/TradingSummary/GetStockSummary"
	cfg.IDX.Timeout = Duration(60 * time.Second)
	cfg.IDX.PauseMin = Duration(3 * time.Second)
	cfg.IDX.PauseMax = Duration(5 * time.Second)
	cfg.Journal.Driver = "postgres"
	cfg.Journal.Table = "etl_journal"
	cfg.Server.Addr = ":8080"
	cfg.Server.ReadHeaderTimeout = Duration(10 * time.Second)
	cfg.Server.ShutdownTimeout = Duration(30 * time.Second)
	return &cfg
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Parser handles configuration parsing
type Parser struct{}

// NewParser creates a new configuration parser
func NewParser() *Parser {
	return &Parser{}
}

var (
	envVarPattern     = regexp.MustCompile(`\${([^}]+)}`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
)

// Parse reads the configuration file, expands ${VAR} references from the
// environment, overlays it on Default and validates the result.
func (p *Parser) Parse(filePath string) (*Config, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("configuration file not found: %s", filePath)
	}

	data, err := os.ReadFile(filepath.Clean(filePath))
	if err != nil {
		return nil, fmt.Errorf("error reading configuration file: %w", err)
	}
	return p.ParseBytes(data)
}

// ParseBytes is Parse for in-memory YAML.
func (p *Parser) ParseBytes(data []byte) (*Config, error) {
	content := envVarPattern.ReplaceAllStringFunc(string(data), func(match string) string {
		envVar := match[2 : len(match)-1] // Remove ${ and }
		value := os.Getenv(envVar)
		if value == "" {
			// Return original if env var not found
			return match
		}
		return value
	})

	cfg := Default()
	if err := yaml.Unmarshal([]byte(content), cfg); err != nil {
		return nil, fmt.Errorf("error parsing configuration: %w", err)
	}

	if err := p.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every problem found in cfg.
func (p *Parser) Validate(cfg *Config) error {
	var errs []error
	switch strings.ToLower(cfg.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log level %q must be one of debug, info, warn, error", cfg.Log.Level))
	}
	switch cfg.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log format %q must be text or json", cfg.Log.Format))
	}
	if _, err := cfg.Location(); err != nil {
		errs = append(errs, err)
	}
	if cfg.Buckets.Datalake == "" {
		errs = append(errs, errors.New("buckets.datalake is required"))
	}
	if cfg.Buckets.Datamart == "" {
		errs = append(errs, errors.New("buckets.datamart is required"))
	}
	if cfg.BPS.BaseURL == "" || cfg.BPS.TableID == "" {
		errs = append(errs, errors.New("bps.base_url and bps.table_id are required"))
	}
	if cfg.IDX.ScraperURL == "" || cfg.IDX.TargetURL == "" {
		errs = append(errs, errors.New("idx.scraper_url and idx.target_url are required"))
	}
	if cfg.IDX.PauseMin < 0 || cfg.IDX.PauseMax < cfg.IDX.PauseMin {
		errs = append(errs, fmt.Errorf("idx pause range [%s, %s] is invalid",
			cfg.IDX.PauseMin.Duration(), cfg.IDX.PauseMax.Duration()))
	}
	switch cfg.Journal.Driver {
	case "postgres", "sqlserver":
	default:
		errs = append(errs, fmt.Errorf("journal driver %q must be postgres or sqlserver", cfg.Journal.Driver))
	}
	if !identifierPattern.MatchString(cfg.Journal.Table) {
		errs = append(errs, fmt.Errorf("journal.table %q must be a plain SQL identifier", cfg.Journal.Table))
	}
	return errors.Join(errs...)
}
