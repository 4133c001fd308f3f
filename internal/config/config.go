package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/lakeside-credit/spread-cli/internal/jobs"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig          `yaml:"store" mapstructure:"store"`
	Scheduler jobs.SchedulerConfig `yaml:"scheduler" mapstructure:"scheduler"`
	Worker    jobs.WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Extract   ExtractConfig        `yaml:"extract" mapstructure:"extract"`
	Anthropic AnthropicConfig      `yaml:"anthropic" mapstructure:"anthropic"`
	OCR       OCRConfig            `yaml:"ocr" mapstructure:"ocr"`
	Intake    IntakeConfig         `yaml:"intake" mapstructure:"intake"`
	Drop      DropConfig           `yaml:"drop" mapstructure:"drop"`
	Access    AccessConfig         `yaml:"access" mapstructure:"access"`
	Server    ServerConfig         `yaml:"server" mapstructure:"server"`
	Log       LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. Driver is "postgres" for
// shared deployments or "sqlite" for local single-operator use.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// ExtractConfig selects the extraction path and tunes the legacy LLM path.
type ExtractConfig struct {
	Path              string `yaml:"path" mapstructure:"path"`
	RequestsPerMinute int    `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
}

// AnthropicConfig holds Anthropic API settings for the legacy extraction path.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// OCRConfig configures PDF text extraction for document intake.
type OCRConfig struct {
	Provider         string        `yaml:"provider" mapstructure:"provider"`
	PdfToTextPath    string        `yaml:"pdftotext_path" mapstructure:"pdftotext_path"`
	PdfToTextTimeout time.Duration `yaml:"pdftotext_timeout" mapstructure:"pdftotext_timeout"`
	MistralKey       string        `yaml:"mistral_api_key" mapstructure:"mistral_api_key"`
	MistralModel     string        `yaml:"mistral_ocr_model" mapstructure:"mistral_ocr_model"`
}

// IntakeConfig configures document intake sources.
type IntakeConfig struct {
	TempDir     string `yaml:"temp_dir" mapstructure:"temp_dir"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// DropConfig configures examiner drop generation.
type DropConfig struct {
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
	BankID    string `yaml:"bank_id" mapstructure:"bank_id"`
}

// AccessConfig sets the environment-level access mode default, applied when
// no per-request override, grant, or role resolves a mode.
type AccessConfig struct {
	DefaultMode string `yaml:"default_mode" mapstructure:"default_mode"`
}

// ServerConfig configures the HTTP API server.
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
	v.SetEnvPrefix("SPREAD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.sqlite_path", "spread.db")
	v.SetDefault("scheduler.lease_ttl", "3m")
	v.SetDefault("scheduler.backoff_base", "30s")
	v.SetDefault("scheduler.backoff_cap", "15m")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.poll_interval", "2s")
	v.SetDefault("extract.path", "deterministic")
	v.SetDefault("extract.requests_per_minute", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("ocr.provider", "local")
	v.SetDefault("ocr.pdftotext_path", "pdftotext")
	v.SetDefault("ocr.pdftotext_timeout", 2*time.Minute)
	v.SetDefault("ocr.mistral_ocr_model", "pixtral-large-latest")
	v.SetDefault("intake.temp_dir", "/tmp/spread-intake")
	v.SetDefault("intake.timeout_secs", 60)
	v.SetDefault("drop.output_dir", "drops")
	v.SetDefault("access.default_mode", "")
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

// Validate checks the fields a given command mode depends on. Modes map to
// command groups: "worker" and "serve" run against the store, "legacy"
// additionally needs Anthropic credentials.
func (c *Config) Validate(mode string) error {
	var problems []string

	requireStore := func() {
		switch c.Store.Driver {
		case "postgres":
			if c.Store.DatabaseURL == "" {
				problems = append(problems, "store.database_url is required for the postgres driver")
			}
		case "sqlite":
			if c.Store.SQLitePath == "" {
				problems = append(problems, "store.sqlite_path is required for the sqlite driver")
			}
		default:
			problems = append(problems, "store.driver must be postgres or sqlite")
		}
	}

	switch mode {
	case "worker":
		requireStore()
		if c.Worker.Concurrency < 1 || c.Worker.Concurrency > 64 {
			problems = append(problems, "worker.concurrency must be between 1 and 64")
		}
		if c.Extract.Path != "deterministic" && c.Extract.Path != "legacy" {
			problems = append(problems, "extract.path must be deterministic or legacy")
		}
		if c.Extract.Path == "legacy" && c.Anthropic.Key == "" {
			problems = append(problems, "anthropic.key is required for the legacy extraction path")
		}
	case "serve":
		requireStore()
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "store":
		requireStore()
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.New("config: " + strings.Join(problems, "; "))
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
