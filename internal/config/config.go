package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Dataset    DatasetConfig    `yaml:"dataset" mapstructure:"dataset"`
	Catalog    CatalogConfig    `yaml:"catalog" mapstructure:"catalog"`
	LLM        LLMConfig        `yaml:"llm" mapstructure:"llm"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	OpenAI     OpenAIConfig     `yaml:"openai" mapstructure:"openai"`
	Search     SearchConfig     `yaml:"search" mapstructure:"search"`
	Jina       JinaConfig       `yaml:"jina" mapstructure:"jina"`
	Perplexity PerplexityConfig `yaml:"perplexity" mapstructure:"perplexity"`
	Writer     WriterConfig     `yaml:"writer" mapstructure:"writer"`
	Salesforce SalesforceConfig `yaml:"salesforce" mapstructure:"salesforce"`
	Notion     NotionConfig     `yaml:"notion" mapstructure:"notion"`
	Paths      PathsConfig      `yaml:"paths" mapstructure:"paths"`
	Migrations MigrationsConfig `yaml:"migrations" mapstructure:"migrations"`
	MinIO      MinIOConfig      `yaml:"minio" mapstructure:"minio"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// DatasetConfig points at the table questions are asked against.
type DatasetConfig struct {
	// Driver is csv, xlsx, postgres or sqlite.
	Driver             string   `yaml:"driver" mapstructure:"driver"`
	Path               string   `yaml:"path" mapstructure:"path"`
	Table              string   `yaml:"table" mapstructure:"table"`
	PrimaryKey         string   `yaml:"primary_key" mapstructure:"primary_key"`
	DatabaseURL        string   `yaml:"database_url" mapstructure:"database_url"`
	MaxConns           int32    `yaml:"max_conns" mapstructure:"max_conns"`
	CandidateURLFields []string `yaml:"candidate_url_fields" mapstructure:"candidate_url_fields"`
	ContextColumns     []string `yaml:"context_columns" mapstructure:"context_columns"`
}

// CatalogConfig describes where writable column metadata comes from. With
// neither set the dataset's own columns are used.
type CatalogConfig struct {
	Path     string `yaml:"path" mapstructure:"path"`
	NotionDB string `yaml:"notion_db" mapstructure:"notion_db"`
}

// LLMConfig selects the completion provider and shared agent settings.
type LLMConfig struct {
	// Provider is anthropic, openai, perplexity or none.
	Provider    string   `yaml:"provider" mapstructure:"provider"`
	Model       string   `yaml:"model" mapstructure:"model"`
	MaxTokens   int64    `yaml:"max_tokens" mapstructure:"max_tokens"`
	MaxColumns  int      `yaml:"max_columns" mapstructure:"max_columns"`
	TokenBudget int64    `yaml:"token_budget" mapstructure:"token_budget"`
	SafetyNotes []string `yaml:"safety_notes" mapstructure:"safety_notes"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key        string `yaml:"key" mapstructure:"key"`
	BaseURL    string `yaml:"base_url" mapstructure:"base_url"`
	Model      string `yaml:"model" mapstructure:"model"`
	MaxRetries int    `yaml:"max_retries" mapstructure:"max_retries"`
}

// OpenAIConfig holds settings for OpenAI-compatible chat APIs.
type OpenAIConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// SearchConfig configures the evidence gatherer's web search.
type SearchConfig struct {
	// Provider is jina, perplexity or none.
	Provider        string   `yaml:"provider" mapstructure:"provider"`
	ResultLimit     int      `yaml:"result_limit" mapstructure:"result_limit"`
	RateLimitPerMin int      `yaml:"rate_limit_per_min" mapstructure:"rate_limit_per_min"`
	TimeoutSecs     int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	Retries         int      `yaml:"retries" mapstructure:"retries"`
	CacheTTLMins    int      `yaml:"cache_ttl_mins" mapstructure:"cache_ttl_mins"`
	Concurrency     int      `yaml:"concurrency" mapstructure:"concurrency"`
	HostDenylist    []string `yaml:"host_denylist" mapstructure:"host_denylist"`
	MaxLLMTasks     int      `yaml:"max_llm_tasks" mapstructure:"max_llm_tasks"`
}

// JinaConfig holds Jina search settings.
type JinaConfig struct {
	Key           string `yaml:"key" mapstructure:"key"`
	SearchBaseURL string `yaml:"search_base_url" mapstructure:"search_base_url"`
}

// PerplexityConfig holds Perplexity API settings.
type PerplexityConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
	Model   string `yaml:"model" mapstructure:"model"`
}

// WriterConfig selects where reconciled facts are written.
type WriterConfig struct {
	// Driver is dataset, postgres, sqlite, salesforce or none. dataset
	// writes back through the configured dataset.
	Driver  string `yaml:"driver" mapstructure:"driver"`
	SObject string `yaml:"sobject" mapstructure:"sobject"`
}

// SalesforceConfig holds Salesforce JWT auth settings.
type SalesforceConfig struct {
	ClientID string `yaml:"client_id" mapstructure:"client_id"`
	Username string `yaml:"username" mapstructure:"username"`
	KeyPath  string `yaml:"key_path" mapstructure:"key_path"`
	LoginURL string `yaml:"login_url" mapstructure:"login_url"`
}

// NotionConfig holds Notion API credentials.
type NotionConfig struct {
	Token string `yaml:"token" mapstructure:"token"`
}

// PathsConfig holds the output directories of the JSONL sinks and
// migration files.
type PathsConfig struct {
	ScrapesDir     string `yaml:"scrapes_dir" mapstructure:"scrapes_dir"`
	LogsDir        string `yaml:"logs_dir" mapstructure:"logs_dir"`
	MissingDir     string `yaml:"missing_dir" mapstructure:"missing_dir"`
	EscalationsDir string `yaml:"escalations_dir" mapstructure:"escalations_dir"`
	MigrationsDir  string `yaml:"migrations_dir" mapstructure:"migrations_dir"`
	ScenariosDir   string `yaml:"scenarios_dir" mapstructure:"scenarios_dir"`
}

// MigrationsConfig selects the migration writer backend.
type MigrationsConfig struct {
	// Backend is file or minio.
	Backend string `yaml:"backend" mapstructure:"backend"`
}

// MinIOConfig holds object storage settings for migration files.
type MinIOConfig struct {
	Endpoint  string `yaml:"endpoint" mapstructure:"endpoint"`
	AccessKey string `yaml:"access_key" mapstructure:"access_key"`
	SecretKey string `yaml:"secret_key" mapstructure:"secret_key"`
	UseSSL    bool   `yaml:"use_ssl" mapstructure:"use_ssl"`
	Bucket    string `yaml:"bucket" mapstructure:"bucket"`
	Prefix    string `yaml:"prefix" mapstructure:"prefix"`
}

// StoreConfig configures the ticket store. An empty driver disables it.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, file and environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables take precedence.
	_ = godotenv.Load()

	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ENRICH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

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

func setDefaults(v *viper.Viper) {
	v.SetDefault("dataset.driver", "csv")
	v.SetDefault("dataset.path", "")
	v.SetDefault("dataset.table", "dataset")
	v.SetDefault("dataset.primary_key", "BRIZO_ID")
	v.SetDefault("dataset.database_url", "")
	v.SetDefault("dataset.max_conns", 5)
	v.SetDefault("dataset.candidate_url_fields", []string{"WEBSITE", "WEBSITE_URL", "URL", "DOMAIN", "FACEBOOK_URL", "INSTAGRAM_URL"})
	v.SetDefault("dataset.context_columns", []string{})
	v.SetDefault("catalog.path", "")
	v.SetDefault("catalog.notion_db", "")
	v.SetDefault("llm.provider", "none")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.max_tokens", 1024)
	v.SetDefault("llm.max_columns", 5)
	v.SetDefault("llm.token_budget", 0)
	v.SetDefault("llm.safety_notes", []string{})
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.base_url", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_retries", 2)
	v.SetDefault("openai.key", "")
	v.SetDefault("openai.base_url", "")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("search.provider", "none")
	v.SetDefault("search.result_limit", 5)
	v.SetDefault("search.rate_limit_per_min", 60)
	v.SetDefault("search.timeout_secs", 15)
	v.SetDefault("search.retries", 3)
	v.SetDefault("search.cache_ttl_mins", 30)
	v.SetDefault("search.concurrency", 1)
	v.SetDefault("search.host_denylist", []string{})
	v.SetDefault("search.max_llm_tasks", 3)
	v.SetDefault("jina.key", "")
	v.SetDefault("jina.search_base_url", "https://s.jina.ai")
	v.SetDefault("perplexity.key", "")
	v.SetDefault("perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("perplexity.model", "sonar-pro")
	v.SetDefault("writer.driver", "dataset")
	v.SetDefault("writer.sobject", "Account")
	v.SetDefault("salesforce.client_id", "")
	v.SetDefault("salesforce.username", "")
	v.SetDefault("salesforce.key_path", "")
	v.SetDefault("salesforce.login_url", "https://login.salesforce.com")
	v.SetDefault("notion.token", "")
	v.SetDefault("paths.scrapes_dir", "data/scrapes")
	v.SetDefault("paths.logs_dir", "data/logs")
	v.SetDefault("paths.missing_dir", "data/missing")
	v.SetDefault("paths.escalations_dir", "data/escalations")
	v.SetDefault("paths.migrations_dir", "schema/migrations")
	v.SetDefault("paths.scenarios_dir", "scenarios")
	v.SetDefault("migrations.backend", "file")
	v.SetDefault("minio.endpoint", "")
	v.SetDefault("minio.access_key", "")
	v.SetDefault("minio.secret_key", "")
	v.SetDefault("minio.use_ssl", true)
	v.SetDefault("minio.bucket", "enrich-migrations")
	v.SetDefault("minio.prefix", "migrations")
	v.SetDefault("store.driver", "")
	v.SetDefault("store.database_url", "")
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Mode names the command a configuration is validated for.
type Mode string

const (
	ModeAsk     Mode = "ask"
	ModeRun     Mode = "run"
	ModeServe   Mode = "serve"
	ModeInspect Mode = "inspect"
	ModeMigrate Mode = "migrate"
)

// Validate checks that the settings mode depends on are present. Every
// problem is reported, not just the first.
func (c *Config) Validate(mode Mode) error {
	var errs []string
	add := func(msg string, args ...any) { errs = append(errs, fmt.Sprintf(msg, args...)) }

	switch mode {
	case ModeMigrate:
		c.checkMigrations(add)
	case ModeInspect:
		c.checkDataset(add)
	case ModeAsk, ModeRun, ModeServe:
		c.checkDataset(add)
		c.checkProviders(add)
		c.checkMigrations(add)
		if mode == ModeRun && c.Paths.ScenariosDir == "" {
			add("paths.scenarios_dir is required")
		}
		if mode == ModeServe && c.Server.Port <= 0 {
			add("server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) checkDataset(add func(string, ...any)) {
	switch c.Dataset.Driver {
	case "csv", "xlsx":
		if c.Dataset.Path == "" {
			add("dataset.path is required")
		}
	case "postgres":
		if c.Dataset.DatabaseURL == "" {
			add("dataset.database_url is required when dataset.driver is postgres")
		}
	case "sqlite":
		if c.Dataset.Path == "" {
			add("dataset.path is required when dataset.driver is sqlite")
		}
	default:
		add("dataset.driver %q is not supported", c.Dataset.Driver)
	}
	if c.Dataset.Table == "" {
		add("dataset.table is required")
	}
	if c.Dataset.PrimaryKey == "" {
		add("dataset.primary_key is required")
	}
}

func (c *Config) checkProviders(add func(string, ...any)) {
	switch c.LLM.Provider {
	case "", "none":
	case "anthropic":
		if c.Anthropic.Key == "" {
			add("anthropic.key is required when llm.provider is anthropic")
		}
	case "openai":
		if c.OpenAI.Key == "" {
			add("openai.key is required when llm.provider is openai")
		}
	case "perplexity":
		if c.Perplexity.Key == "" {
			add("perplexity.key is required when llm.provider is perplexity")
		}
	default:
		add("llm.provider %q is not supported", c.LLM.Provider)
	}

	switch c.Search.Provider {
	case "", "none":
	case "jina":
		if c.Jina.Key == "" {
			add("jina.key is required when search.provider is jina")
		}
	case "perplexity":
		if c.Perplexity.Key == "" {
			add("perplexity.key is required when search.provider is perplexity")
		}
	default:
		add("search.provider %q is not supported", c.Search.Provider)
	}
	if c.Search.Concurrency < 0 || c.Search.Concurrency > 16 {
		add("search.concurrency must be between 0 and 16")
	}

	switch c.Writer.Driver {
	case "", "none", "dataset":
	case "postgres", "sqlite":
		if c.Dataset.Driver != c.Writer.Driver {
			add("writer.driver %s requires dataset.driver %s", c.Writer.Driver, c.Writer.Driver)
		}
	case "salesforce":
		if c.Salesforce.ClientID == "" || c.Salesforce.Username == "" || c.Salesforce.KeyPath == "" {
			add("salesforce.client_id, salesforce.username and salesforce.key_path are required when writer.driver is salesforce")
		}
	default:
		add("writer.driver %q is not supported", c.Writer.Driver)
	}

	if c.Catalog.NotionDB != "" && c.Notion.Token == "" {
		add("notion.token is required when catalog.notion_db is set")
	}

	switch c.Store.Driver {
	case "":
	case "sqlite", "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required when store.driver is set")
		}
	default:
		add("store.driver %q is not supported", c.Store.Driver)
	}
}

func (c *Config) checkMigrations(add func(string, ...any)) {
	switch c.Migrations.Backend {
	case "", "file":
		if c.Paths.MigrationsDir == "" {
			add("paths.migrations_dir is required")
		}
	case "minio":
		if c.MinIO.Endpoint == "" || c.MinIO.Bucket == "" {
			add("minio.endpoint and minio.bucket are required when migrations.backend is minio")
		}
	default:
		add("migrations.backend %q is not supported", c.Migrations.Backend)
	}
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
