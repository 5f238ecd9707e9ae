package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/quote-cli/internal/resilience"
	"github.com/sells-group/quote-cli/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	TableAPI  TableAPIConfig  `yaml:"tableapi" mapstructure:"tableapi"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Chunk     ChunkConfig     `yaml:"chunk" mapstructure:"chunk"`
	Parse     ParseConfig     `yaml:"parse" mapstructure:"parse"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Compare   CompareConfig   `yaml:"compare" mapstructure:"compare"`
	Risk      RiskConfig      `yaml:"risk" mapstructure:"risk"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// TableAPIConfig holds table extraction API settings.
type TableAPIConfig struct {
	Key          string  `yaml:"key" mapstructure:"key"`
	BaseURL      string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimitRPS float64 `yaml:"rate_limit_rps" mapstructure:"rate_limit_rps"`
}

// AnthropicConfig holds Anthropic API settings. ExtractModels lists the
// models the consensus extraction backend fans out to; GraderModel is
// used for catalog match grading.
type AnthropicConfig struct {
	Key           string   `yaml:"key" mapstructure:"key"`
	ExtractModels []string `yaml:"extract_models" mapstructure:"extract_models"`
	GraderModel   string   `yaml:"grader_model" mapstructure:"grader_model"`
}

// ChunkConfig bounds document chunk sizes.
type ChunkConfig struct {
	PagesPerChunk int `yaml:"pages_per_chunk" mapstructure:"pages_per_chunk"`
	RowsPerChunk  int `yaml:"rows_per_chunk" mapstructure:"rows_per_chunk"`
}

// ParseConfig configures chunk parsing concurrency, retries, and the
// per-backend circuit breakers.
type ParseConfig struct {
	Concurrency        int  `yaml:"concurrency" mapstructure:"concurrency"`
	MaxAttempts        int  `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMS   int  `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMS       int  `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	AttemptTimeoutSecs int  `yaml:"attempt_timeout_secs" mapstructure:"attempt_timeout_secs"`
	RepairQuantities   bool `yaml:"repair_quantities" mapstructure:"repair_quantities"`
	BreakerFailures    int  `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerResetSecs   int  `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// RetryConfig converts the parse settings into a retry policy,
// falling back to library defaults for unset fields.
func (p ParseConfig) RetryConfig() resilience.RetryConfig {
	return resilience.FromRetryConfig(
		p.MaxAttempts, p.InitialBackoffMS, p.MaxBackoffMS, -1,
		p.AttemptTimeoutSecs*1000, 0, 0,
	)
}

// CircuitConfig converts the parse settings into a circuit breaker
// policy for the extraction backends.
func (p ParseConfig) CircuitConfig() resilience.CircuitBreakerConfig {
	return resilience.FromCircuitConfig(p.BreakerFailures, p.BreakerResetSecs)
}

// MatchConfig configures ontology matching.
type MatchConfig struct {
	GraderEnabled bool `yaml:"grader_enabled" mapstructure:"grader_enabled"`
}

// CompareConfig configures quote comparison defaults.
type CompareConfig struct {
	MinVariancePct float64 `yaml:"min_variance_pct" mapstructure:"min_variance_pct"`
}

// RiskConfig configures risk scanning.
type RiskConfig struct {
	PatternsPath string `yaml:"patterns_path" mapstructure:"patterns_path"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QUOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "quotes.db")
	v.SetDefault("tableapi.base_url", "https://api.tablereader.io")
	v.SetDefault("tableapi.rate_limit_rps", 5.0)
	v.SetDefault("anthropic.extract_models", []string{"claude-sonnet-4-5-20250929", "claude-haiku-4-5-20251001"})
	v.SetDefault("anthropic.grader_model", "claude-haiku-4-5-20251001")
	v.SetDefault("chunk.pages_per_chunk", 15)
	v.SetDefault("chunk.rows_per_chunk", 4000)
	v.SetDefault("parse.concurrency", 5)
	v.SetDefault("parse.max_attempts", 4)
	v.SetDefault("parse.initial_backoff_ms", 1500)
	v.SetDefault("parse.max_backoff_ms", 15000)
	v.SetDefault("parse.attempt_timeout_secs", 90)
	v.SetDefault("parse.repair_quantities", true)
	v.SetDefault("parse.breaker_failures", 5)
	v.SetDefault("parse.breaker_reset_secs", 30)
	v.SetDefault("match.grader_enabled", true)
	v.SetDefault("compare.min_variance_pct", 0.0)
	v.SetDefault("server.port", 8080)
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

// Validate checks the fields a given command mode depends on. Modes
// are "ingest", "compare", and "serve".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "ingest":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Anthropic.Key == "" && c.TableAPI.Key == "" {
			problems = append(problems, "at least one of anthropic.key or tableapi.key is required")
		}
		if len(c.Anthropic.ExtractModels) == 0 && c.Anthropic.Key != "" {
			problems = append(problems, "anthropic.extract_models must list at least one model")
		}
		if c.Parse.Concurrency < 1 || c.Parse.Concurrency > 50 {
			problems = append(problems, "parse.concurrency must be between 1 and 50")
		}
		if c.Parse.MaxAttempts < 1 {
			problems = append(problems, "parse.max_attempts must be >= 1")
		}
	case "compare":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Compare.MinVariancePct < 0 {
			problems = append(problems, "compare.min_variance_pct must be >= 0")
		}
	case "serve":
		if c.Store.DatabaseURL == "" {
			problems = append(problems, "store.database_url is required")
		}
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(problems, "; "))
	}
	return nil
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
