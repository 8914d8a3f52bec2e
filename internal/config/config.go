package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/autoguardian/")
	v.AddConfigPath("$HOME/.autoguardian")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("AUTOGUARDIAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Classifier provider defaults
	v.SetDefault("classifier.content_provider", "openai")
	v.SetDefault("classifier.transformer_provider", "gemini")

	// Server defaults
	v.SetDefault("server.listen_address", "0.0.0.0:10025")
	v.SetDefault("server.block_high_risk", false)
	v.SetDefault("server.headers.status", "X-Phish-Status")
	v.SetDefault("server.headers.score", "X-Phish-Score")
	v.SetDefault("server.headers.reason", "X-Phish-Reason")
	v.SetDefault("server.upstream_address", "127.0.0.1")
	v.SetDefault("server.upstream_port", 10026)
	v.SetDefault("server.upstream_enabled", true)
	v.SetDefault("server.subject_prefix", "[**PHISH**] ")
	v.SetDefault("server.modify_subject", false)

	// Scan defaults
	v.SetDefault("scan.signal_timeout", "15s")
	v.SetDefault("scan.batch_workers", 4)
	v.SetDefault("scan.prior_score", 0.0)
	v.SetDefault("scan.default_plan", "free")
	v.SetDefault("scan.default_locale", "en")

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Memory store defaults
	v.SetDefault("memory.store", "memory")
	v.SetDefault("memory.sqlite_path", "/data/guardian_memory.db")
	v.SetDefault("memory.redis_address", "localhost:6379")
	v.SetDefault("memory.redis_password", "")
	v.SetDefault("memory.redis_db", 0)
	v.SetDefault("memory.prune_frequency", "6h")

	// History defaults
	v.SetDefault("history.store", "sqlite")
	v.SetDefault("history.sqlite_path", "/data/guardian_history.db")
	v.SetDefault("history.mysql_dsn", "user:password@tcp(localhost:3306)/autoguardian")

	// Adaptive weight defaults
	v.SetDefault("weights.file_path", "/data/guardian_weights.json")
	v.SetDefault("weights.recompute_frequency", "1h")

	// Trust defaults
	v.SetDefault("trust.cache", "memory")
	v.SetDefault("trust.sqlite_path", "/data/guardian_trust.db")

	// Behavior defaults
	v.SetDefault("behavior.sqlite_path", "/data/guardian_behavior.db")

	// OSINT defaults
	v.SetDefault("osint.virustotal_api_key", "")
	v.SetDefault("osint.abuseipdb_api_key", "")

	// Scheduler defaults
	v.SetDefault("scheduler.scan_frequency", "5m")
	v.SetDefault("scheduler.max_concurrent_users", 3)
	v.SetDefault("scheduler.fetch_batch_size", 25)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
