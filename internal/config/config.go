package config

import (
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
)

// Config represents runtime configuration for the service.
type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Uploads   UploadsConfig             `mapstructure:"uploads"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Redis     RedisConfig               `mapstructure:"redis"`
	Model     ModelConfig               `mapstructure:"model"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Search    SearchConfig              `mapstructure:"search"`
	Auth      AuthConfig                `mapstructure:"auth"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
	Log       LogConfig                 `mapstructure:"log"`
}

type ServerConfig struct {
	Address      string `mapstructure:"address"`
	Port         string `mapstructure:"port"`
	BodyLimitMB  int64  `mapstructure:"body_limit_mb"`
	ShutdownSecs int    `mapstructure:"shutdown_secs"`
	// TrustedProxies are IPs or CIDRs allowed to set X-Forwarded-* headers.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

// Addr returns the listen address. A bare PORT wins over server.address.
func (s ServerConfig) Addr() string {
	if s.Port != "" {
		return ":" + strings.TrimPrefix(s.Port, ":")
	}
	return s.Address
}

type UploadsConfig struct {
	Dir           string `mapstructure:"dir"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"`
	// DSN is a file path for sqlite3 and a go-sql-driver DSN for mysql.
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// Enabled reports whether a redis host is configured.
func (r RedisConfig) Enabled() bool { return r.Host != "" }

type ModelConfig struct {
	Provider      string `mapstructure:"provider"`
	MaxTokens     int    `mapstructure:"max_tokens"`
	TimeoutSecs   int    `mapstructure:"timeout_secs"`
	MaxConcurrent int64  `mapstructure:"max_concurrent"`
}

// Timeout is the per-call model deadline.
func (m ModelConfig) Timeout() time.Duration {
	return time.Duration(m.TimeoutSecs) * time.Second
}

type ProviderConfig struct {
	BaseURL string `mapstructure:"base_url"`
	Model   string `mapstructure:"model"`
	APIKey  string `mapstructure:"api_key"`
}

type SearchConfig struct {
	SerpAPIKey     string  `mapstructure:"serpapi_key"`
	SerpAPIBaseURL string  `mapstructure:"serpapi_base_url"`
	RatePerSec     float64 `mapstructure:"rate_per_sec"`
	MaxConcurrent  int64   `mapstructure:"max_concurrent"`
	TimeoutSecs    int     `mapstructure:"timeout_secs"`
	CacheTTLMins   int     `mapstructure:"cache_ttl_mins"`
	GoogleAPIKey   string  `mapstructure:"google_api_key"`
	GoogleEngineID string  `mapstructure:"google_engine_id"`
	DuckDuckGo     bool    `mapstructure:"duckduckgo"`
}

type AuthConfig struct {
	JWTSecret   string `mapstructure:"jwt_secret"`
	TokenTTLMin int    `mapstructure:"token_ttl_mins"`
	BcryptCost  int    `mapstructure:"bcrypt_cost"`
}

// TokenTTL is the lifetime of issued session tokens.
func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMin) * time.Minute
}

type PipelineConfig struct {
	FallbackLabel     string `mapstructure:"fallback_label"`
	EntityConcurrency int    `mapstructure:"entity_concurrency"`
	ParseRetries      int    `mapstructure:"parse_retries"`
	PromptsFile       string `mapstructure:"prompts_file"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Load reads configuration from the provided yaml path (optional; defaults
// to ./config.yaml) and SITESCAN_ prefixed environment variables.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("SITESCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// Unprefixed names used by existing deployments.
	bind := map[string]string{
		"server.port":               "PORT",
		"auth.jwt_secret":           "JWT_SECRET",
		"search.serpapi_key":        "SERP_API_KEY",
		"search.google_api_key":     "GOOGLE_API_KEY",
		"search.google_engine_id":   "GOOGLE_SEARCH_ENGINE_ID",
		"providers.openai.api_key":  "OPENAI_API_KEY",
		"providers.gemini.api_key":  "GEMINI_API_KEY",
		"providers.claude.api_key":  "ANTHROPIC_API_KEY",
		"providers.openai.base_url": "OPENAI_BASE_URL",
		"providers.claude.base_url": "ANTHROPIC_BASE_URL",
		"database.dsn":              "DATABASE_URL",
	}
	for key, env := range bind {
		if err := v.BindEnv(key, "SITESCAN_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, eris.Wrapf(err, "config: bind %s", key)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.address", ":5000")
	v.SetDefault("server.body_limit_mb", 50)
	v.SetDefault("server.shutdown_secs", 10)
	v.SetDefault("uploads.dir", "uploads")
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "sitescan.db")
	v.SetDefault("redis.port", "6379")
	v.SetDefault("model.provider", "openai")
	v.SetDefault("model.max_tokens", 2000)
	v.SetDefault("model.timeout_secs", 99)
	v.SetDefault("model.max_concurrent", 8)
	v.SetDefault("providers.openai.model", "gpt-4-turbo")
	v.SetDefault("providers.gemini.model", "gemini-2.5-flash")
	v.SetDefault("providers.claude.model", "claude-sonnet-4-5")
	v.SetDefault("search.serpapi_base_url", "https://serpapi.com")
	v.SetDefault("search.rate_per_sec", 5.0)
	v.SetDefault("search.max_concurrent", 16)
	v.SetDefault("search.timeout_secs", 20)
	v.SetDefault("search.cache_ttl_mins", 60)
	v.SetDefault("search.duckduckgo", false)
	v.SetDefault("auth.token_ttl_mins", 60)
	v.SetDefault("auth.bcrypt_cost", 10)
	v.SetDefault("pipeline.fallback_label", "tool")
	v.SetDefault("pipeline.entity_concurrency", 4)
	v.SetDefault("pipeline.parse_retries", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Validate rejects configurations the service cannot start with.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "sqlite3", "mysql":
	default:
		return eris.Errorf("config: unsupported database driver %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return eris.New("config: database.dsn must be configured")
	}
	if _, ok := c.Providers[c.Model.Provider]; !ok {
		return eris.Errorf("config: model provider %q has no providers entry", c.Model.Provider)
	}
	switch c.Pipeline.FallbackLabel {
	case "tool", "building", "material", "both", "none":
	default:
		return eris.Errorf("config: invalid pipeline.fallback_label %q", c.Pipeline.FallbackLabel)
	}
	if c.Pipeline.EntityConcurrency < 1 {
		c.Pipeline.EntityConcurrency = 1
	}
	if c.Pipeline.ParseRetries < 0 {
		c.Pipeline.ParseRetries = 0
	}
	return nil
}

// ActiveProvider returns the provider entry selected by model.provider.
func (c *Config) ActiveProvider() ProviderConfig {
	return c.Providers[c.Model.Provider]
}
