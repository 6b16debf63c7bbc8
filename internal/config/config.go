// Package config loads claimiq settings from defaults, an optional YAML
// file and CLAIMIQ_ environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	apperrors "github.com/ZanzyTHEbar/claimiq/internal/errors"
	"github.com/ZanzyTHEbar/claimiq/internal/fraud"
	"github.com/ZanzyTHEbar/claimiq/internal/resilience"
)

// EnvPrefix is prepended to every environment override, e.g. CLAIMIQ_SERVER_PORT
const EnvPrefix = "CLAIMIQ"

// Provider names
const (
	ProviderDetector  = "detector"
	ProviderEmbedder  = "embedder"
	ProviderExplainer = "explainer"
	ProviderStorage   = "storage"
	ProviderImages    = "images"
)

var providerNames = []string{ProviderDetector, ProviderEmbedder, ProviderExplainer, ProviderStorage, ProviderImages}

type Config struct {
	Server    ServerConfig              `mapstructure:"server"`
	Database  DatabaseConfig            `mapstructure:"database"`
	Log       LogConfig                 `mapstructure:"log"`
	Providers map[string]ProviderConfig `mapstructure:"providers"`
	Fraud     fraud.Config              `mapstructure:"fraud"`
	Pricing   PricingConfig             `mapstructure:"pricing"`
	Pipeline  PipelineConfig            `mapstructure:"pipeline"`
}

type ServerConfig struct {
	Port        int      `mapstructure:"port"`
	Mode        string   `mapstructure:"mode"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

// ProviderConfig is the user-facing subset of resilience.ProviderConfig
type ProviderConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	APIKey        string        `mapstructure:"api_key"`
	Model         string        `mapstructure:"model"`
	Timeout       time.Duration `mapstructure:"timeout"`
	RatePerSecond float64       `mapstructure:"rate_per_second"`
	Burst         int           `mapstructure:"burst"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
}

type PricingConfig struct {
	TTL      time.Duration `mapstructure:"ttl"`
	SeedFile string        `mapstructure:"seed_file"`
}

type PipelineConfig struct {
	MaxImages      int           `mapstructure:"max_images"`
	MaxConcurrency int           `mapstructure:"max_concurrency"`
	StageTimeout   time.Duration `mapstructure:"stage_timeout"`
}

// SetDefaults registers every key so env overrides resolve during Unmarshal
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.path", "claimiq.db")
	v.SetDefault("log.level", "info")

	for _, name := range providerNames {
		prefix := "providers." + name + "."
		v.SetDefault(prefix+"base_url", "")
		v.SetDefault(prefix+"api_key", "")
		v.SetDefault(prefix+"model", "")
		v.SetDefault(prefix+"timeout", 30*time.Second)
		v.SetDefault(prefix+"rate_per_second", 5.0)
		v.SetDefault(prefix+"burst", 5)
		v.SetDefault(prefix+"max_attempts", 3)
	}
	v.SetDefault("providers.explainer.model", "gpt-4o-mini")

	fd := fraud.DefaultConfig()
	v.SetDefault("fraud.similarity_threshold", fd.SimilarityThreshold)
	v.SetDefault("fraud.hash_threshold", fd.HashThreshold)
	v.SetDefault("fraud.frequency_limit", fd.FrequencyLimit)
	v.SetDefault("fraud.frequency_window", fd.FrequencyWindow)
	v.SetDefault("fraud.max_concurrency", fd.MaxConcurrency)
	v.SetDefault("fraud.image_timeout", fd.ImageTimeout)

	v.SetDefault("pricing.ttl", 10*time.Minute)
	v.SetDefault("pricing.seed_file", "")

	v.SetDefault("pipeline.max_images", 5)
	v.SetDefault("pipeline.max_concurrency", 4)
	v.SetDefault("pipeline.stage_timeout", 30*time.Second)
}

// New returns a viper instance with defaults and env binding applied
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads configFile when given, otherwise looks for claimiq.yaml in the
// working directory. A missing default file is not an error.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("claimiq")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, apperrors.NewConfigurationError("failed to read config", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, apperrors.NewConfigurationError("failed to decode config", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects out-of-range values
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.Database.Path == "" {
		problems = append(problems, "database.path is required")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}

	if !inUnit(c.Fraud.SimilarityThreshold) {
		problems = append(problems, "fraud.similarity_threshold must be within (0,1]")
	}
	if !inUnit(c.Fraud.HashThreshold) {
		problems = append(problems, "fraud.hash_threshold must be within (0,1]")
	}
	if c.Fraud.FrequencyLimit < 0 {
		problems = append(problems, "fraud.frequency_limit must not be negative")
	}
	if c.Fraud.FrequencyWindow <= 0 {
		problems = append(problems, "fraud.frequency_window must be positive")
	}

	if c.Pricing.TTL <= 0 {
		problems = append(problems, "pricing.ttl must be positive")
	}
	if c.Pipeline.MaxImages < 1 {
		problems = append(problems, "pipeline.max_images must be at least 1")
	}
	if c.Pipeline.MaxConcurrency < 1 {
		problems = append(problems, "pipeline.max_concurrency must be at least 1")
	}

	for name, p := range c.Providers {
		if p.RatePerSecond < 0 {
			problems = append(problems, fmt.Sprintf("providers.%s.rate_per_second must not be negative", name))
		}
		if p.Timeout < 0 {
			problems = append(problems, fmt.Sprintf("providers.%s.timeout must not be negative", name))
		}
	}

	if len(problems) > 0 {
		return apperrors.NewConfigurationError("invalid configuration: "+strings.Join(problems, "; "), nil)
	}
	return nil
}

// Provider returns the resilience settings for a named provider. ok is
// false when the provider has no base URL and should be left unwired.
func (c *Config) Provider(name string) (resilience.ProviderConfig, bool) {
	p, found := c.Providers[name]
	if !found || p.BaseURL == "" {
		return resilience.ProviderConfig{}, false
	}

	retry := resilience.DefaultRetryConfig()
	if p.MaxAttempts > 0 {
		retry.MaxAttempts = p.MaxAttempts
	}

	return resilience.ProviderConfig{
		Name:          name,
		BaseURL:       p.BaseURL,
		APIKey:        p.APIKey,
		Timeout:       p.Timeout,
		RatePerSecond: p.RatePerSecond,
		Burst:         p.Burst,
		Retry:         retry,
		Breaker: resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 2,
		},
	}, true
}

func inUnit(v float64) bool {
	return v > 0 && v <= 1
}
