package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Search modes.
const (
	SearchModeReal       = "real"
	SearchModeSimulation = "simulation"
)

// Store drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// ErrInvalidConfig is returned when enrichment settings cannot start a batch.
var ErrInvalidConfig = eris.New("config: invalid enrichment configuration")

// Config holds the full application configuration.
type Config struct {
	Enrich  EnrichConfig  `yaml:"enrich" mapstructure:"enrich"`
	Search  SearchConfig  `yaml:"search" mapstructure:"search"`
	Dataset DatasetConfig `yaml:"dataset" mapstructure:"dataset"`
	Output  OutputConfig  `yaml:"output" mapstructure:"output"`
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
	Sectors SectorsConfig `yaml:"sectors" mapstructure:"sectors"`
}

// EnrichConfig is the option set accepted by a sample enrichment run.
type EnrichConfig struct {
	QualityThreshold         int           `yaml:"quality_threshold" mapstructure:"quality_threshold" json:"quality_threshold"`
	QualityThresholdFallback int           `yaml:"quality_threshold_fallback" mapstructure:"quality_threshold_fallback" json:"quality_threshold_fallback"`
	RateLimitDelay           time.Duration `yaml:"rate_limit_delay" mapstructure:"rate_limit_delay" json:"rate_limit_delay"`
	SearchMode               string        `yaml:"search_mode" mapstructure:"search_mode" json:"search_mode"`
	FallbackEnabled          bool          `yaml:"fallback_enabled" mapstructure:"fallback_enabled" json:"fallback_enabled"`
	Seed                     int64         `yaml:"seed" mapstructure:"seed" json:"seed"`
	Concurrency              int           `yaml:"concurrency" mapstructure:"concurrency" json:"concurrency"`
}

// SearchConfig configures the web search backends and page fetcher.
type SearchConfig struct {
	FetchTimeoutSecs   int      `yaml:"fetch_timeout_secs" mapstructure:"fetch_timeout_secs"`
	SearchTimeoutSecs  int      `yaml:"search_timeout_secs" mapstructure:"search_timeout_secs"`
	MaxPageBytes       int64    `yaml:"max_page_bytes" mapstructure:"max_page_bytes"`
	MaxResults         int      `yaml:"max_results" mapstructure:"max_results"`
	DuckDuckGoURL      string   `yaml:"duckduckgo_url" mapstructure:"duckduckgo_url"`
	GoogleURL          string   `yaml:"google_url" mapstructure:"google_url"`
	GoogleEnabled      bool     `yaml:"google_enabled" mapstructure:"google_enabled"`
	UserAgents         []string `yaml:"user_agents" mapstructure:"user_agents"`
	RegionalIndicators []string `yaml:"regional_indicators" mapstructure:"regional_indicators"`
	BreakerFailures    int      `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs   int      `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// DatasetConfig locates the input spreadsheet.
type DatasetConfig struct {
	Path    string              `yaml:"path" mapstructure:"path"`
	Sheet   string              `yaml:"sheet" mapstructure:"sheet"`
	Aliases map[string][]string `yaml:"aliases" mapstructure:"aliases"`
}

// OutputConfig configures the annotated spreadsheet and report.
type OutputConfig struct {
	Dir        string `yaml:"dir" mapstructure:"dir"`
	Colorize   bool   `yaml:"colorize" mapstructure:"colorize"`
	JSONReport bool   `yaml:"json_report" mapstructure:"json_report"`
}

// StoreConfig configures the run history backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// ServerConfig configures the HTTP front door.
type ServerConfig struct {
	Port               int      `yaml:"port" mapstructure:"port"`
	CORSOrigins        []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	RequestTimeoutSecs int      `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	MaxSampleSize      int      `yaml:"max_sample_size" mapstructure:"max_sample_size"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// SectorsConfig points at an optional sector table override.
type SectorsConfig struct {
	TablePath string `yaml:"table_path" mapstructure:"table_path"`
}

// DefaultEnrichConfig returns the enrichment defaults: 85 for named records,
// 60 for records searched by locality and activity.
func DefaultEnrichConfig() EnrichConfig {
	return EnrichConfig{
		QualityThreshold:         85,
		QualityThresholdFallback: 60,
		RateLimitDelay:           2 * time.Second,
		SearchMode:               SearchModeReal,
		FallbackEnabled:          true,
		Concurrency:              1,
	}
}

// Validate checks the enrichment options. Every problem found is reported in
// a single error wrapping ErrInvalidConfig.
func (c EnrichConfig) Validate() error {
	var problems []string
	if c.QualityThreshold < 0 || c.QualityThreshold > 100 {
		problems = append(problems, fmt.Sprintf("quality_threshold must be between 0 and 100, got %d", c.QualityThreshold))
	}
	if c.QualityThresholdFallback < 0 || c.QualityThresholdFallback > 100 {
		problems = append(problems, fmt.Sprintf("quality_threshold_fallback must be between 0 and 100, got %d", c.QualityThresholdFallback))
	}
	if c.QualityThresholdFallback > c.QualityThreshold {
		problems = append(problems, fmt.Sprintf("quality_threshold_fallback (%d) must not exceed quality_threshold (%d)",
			c.QualityThresholdFallback, c.QualityThreshold))
	}
	if c.RateLimitDelay < 0 {
		problems = append(problems, "rate_limit_delay must be >= 0")
	}
	if c.SearchMode != SearchModeReal && c.SearchMode != SearchModeSimulation {
		problems = append(problems, fmt.Sprintf("search_mode must be %q or %q, got %q", SearchModeReal, SearchModeSimulation, c.SearchMode))
	}
	if c.Concurrency < 1 || c.Concurrency > 16 {
		problems = append(problems, "concurrency must be between 1 and 16")
	}
	if len(problems) > 0 {
		return eris.Wrap(ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// Validate checks the settings a command needs. Mode is one of "enrich",
// "serve", "inspect" or "runs".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "enrich":
		if c.Dataset.Path == "" {
			problems = append(problems, "dataset.path is required")
		}
		problems = append(problems, c.storeProblems()...)
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
		if c.Dataset.Path == "" {
			problems = append(problems, "dataset.path is required")
		}
		problems = append(problems, c.storeProblems()...)
	case "inspect":
		if c.Dataset.Path == "" {
			problems = append(problems, "dataset.path is required")
		}
	case "runs":
		problems = append(problems, c.storeProblems()...)
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if mode != "inspect" && mode != "runs" {
		if err := c.Enrich.Validate(); err != nil {
			return err
		}
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) storeProblems() []string {
	switch c.Store.Driver {
	case DriverNone:
		return nil
	case DriverSQLite, DriverPostgres:
		if c.Store.DatabaseURL == "" {
			return []string{"store.database_url is required"}
		}
		return nil
	default:
		return []string{fmt.Sprintf("store.driver must be sqlite, postgres or none, got %q", c.Store.Driver)}
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	d := DefaultEnrichConfig()
	v.SetDefault("enrich.quality_threshold", d.QualityThreshold)
	v.SetDefault("enrich.quality_threshold_fallback", d.QualityThresholdFallback)
	v.SetDefault("enrich.rate_limit_delay", d.RateLimitDelay)
	v.SetDefault("enrich.search_mode", d.SearchMode)
	v.SetDefault("enrich.fallback_enabled", d.FallbackEnabled)
	v.SetDefault("enrich.seed", 0)
	v.SetDefault("enrich.concurrency", d.Concurrency)
	v.SetDefault("search.fetch_timeout_secs", 8)
	v.SetDefault("search.search_timeout_secs", 10)
	v.SetDefault("search.max_page_bytes", 50*1024)
	v.SetDefault("search.max_results", 5)
	v.SetDefault("search.duckduckgo_url", "https://html.duckduckgo.com/html/")
	v.SetDefault("search.google_url", "https://www.google.com/search")
	v.SetDefault("search.google_enabled", true)
	v.SetDefault("search.regional_indicators", []string{"77", "seine-et-marne", "île-de-france"})
	v.SetDefault("search.breaker_failures", 3)
	v.SetDefault("search.breaker_reset_secs", 300)
	v.SetDefault("dataset.sheet", "")
	v.SetDefault("output.dir", "output")
	v.SetDefault("output.colorize", true)
	v.SetDefault("output.json_report", true)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.database_url", "enrich.db")
	v.SetDefault("store.max_conns", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.request_timeout_secs", 600)
	v.SetDefault("server.max_sample_size", 200)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
