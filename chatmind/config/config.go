package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	internal "github.com/ZanzyTHEbar/chatmind/chatmind"

	"github.com/spf13/viper"
)

// Config stores all configuration of the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Harness HarnessConfig `mapstructure:"harness"`
	LLM     LLMConfig     `mapstructure:"llm"`
}

// StoreConfig stores conversation retention configurations.
type StoreConfig struct {
	// Backend selects the durable tier: "memory", "file", or "libsql".
	// Selected once at startup; not switchable at runtime.
	Backend string `mapstructure:"backend"`
	DataDir string `mapstructure:"data_dir"` // file backend: ledger directory
	DSN     string `mapstructure:"dsn"`      // libsql backend: database path

	MaxHistoryLength int           `mapstructure:"max_history_length"` // non-system messages kept per conversation
	Timeout          time.Duration `mapstructure:"timeout"`            // idle TTL before eviction from both tiers
	Capacity         int           `mapstructure:"capacity"`           // max distinct identities held in memory
	SweepInterval    time.Duration `mapstructure:"sweep_interval"`     // period of the TTL sweeper
	LongTermMemory   bool          `mapstructure:"long_term_memory"`   // load missing conversations from the durable tier
}

// HarnessConfig stores orchestration configurations.
type HarnessConfig struct {
	RequeryTimeout time.Duration `mapstructure:"requery_timeout"` // wall-clock bound on the follow-up model call
	EnableTracing  bool          `mapstructure:"enable_tracing"`  // structured logging/tracing
}

// LLMConfig stores model invocation configurations.
type LLMConfig struct {
	Temperature  float32 `mapstructure:"temperature"`
	MaxNewTokens int     `mapstructure:"max_new_tokens"`
}

var AppConfig Config

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(configPath string) (*Config, error) {
	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		viper.AddConfigPath(".")
		viper.AddConfigPath("..")
		viper.AddConfigPath(filepath.Join("etc", internal.DefaultAppName))
		viper.AddConfigPath(internal.DefaultConfigPath)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	// Set default values
	viper.SetDefault("store.backend", "memory")
	viper.SetDefault("store.data_dir", internal.DefaultDataDir)
	viper.SetDefault("store.dsn", internal.DefaultDatabaseFile)
	viper.SetDefault("store.max_history_length", 20)
	viper.SetDefault("store.timeout", "30m")
	viper.SetDefault("store.capacity", 1000)
	viper.SetDefault("store.sweep_interval", "5m")
	viper.SetDefault("store.long_term_memory", true)

	// Harness defaults
	viper.SetDefault("harness.requery_timeout", "5s")
	viper.SetDefault("harness.enable_tracing", true)

	// LLM defaults
	viper.SetDefault("llm.temperature", 0.7)
	viper.SetDefault("llm.max_new_tokens", 1024)

	viper.AutomaticEnv()
	// Replace dots with underscores in env var names e.g. store.max_history_length
	// becomes STORE_MAX_HISTORY_LENGTH
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// Config file not found; defaults will be used. This is not an
			// error for the application to halt on.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	err := viper.Unmarshal(&AppConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	return &AppConfig, nil
}
