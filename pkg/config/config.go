package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/viper"

	"github.com/imago-ai/imago/pkg/alert"
	"github.com/imago-ai/imago/pkg/store"
)

// Config holds all configuration for the application
type Config struct {
	// Log configuration
	Log LogConfig `mapstructure:"log"`

	// Server configuration
	Server ServerConfig `mapstructure:"server"`

	// Store configuration (record log backend)
	Store store.LogConfig `mapstructure:"store"`

	// Compaction configuration
	Compaction CompactionConfig `mapstructure:"compaction"`

	// Bridge configuration
	Bridge BridgeConfig `mapstructure:"bridge"`

	// Registry configuration
	Registry RegistryConfig `mapstructure:"registry"`

	// Telemetry configuration
	Telemetry TelemetryConfig `mapstructure:"telemetry"`

	// Alert configuration
	Alert alert.Config `mapstructure:"alert"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // gin mode: debug, release, test
}

// CompactionConfig holds record compaction configuration
type CompactionConfig struct {
	// RetentionDays is how long closed records stay queryable.
	RetentionDays int `mapstructure:"retention_days"`
	// KeepVersions keeps at least this many versions per agent.
	KeepVersions int `mapstructure:"keep_versions"`
	// ArchiveDir receives parquet exports of compacted records.
	ArchiveDir string `mapstructure:"archive_dir"`
}

// BridgeConfig holds orchestrator configuration
type BridgeConfig struct {
	CacheSize int `mapstructure:"cache_size"`
}

// RegistryConfig holds specification registry configuration
type RegistryConfig struct {
	// Sources maps protocol names to ordered specification URLs.
	Sources map[string][]string `mapstructure:"sources"`
	// TimeoutSeconds bounds each remote fetch.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`
}

// TelemetryConfig holds telemetry configuration
type TelemetryConfig struct {
	ParquetPath string `mapstructure:"parquet_path"`
}

// Load loads configuration from file and environment variables
func Load() (*Config, error) {
	setDefaults()

	config := &Config{}
	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	overrideWithEnv(config)

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "text")

	viper.SetDefault("server.host", "localhost")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")

	viper.SetDefault("store.backend", "badger")
	home, err := os.UserHomeDir()
	if err == nil {
		viper.SetDefault("store.path", home+"/.imago/records")
		viper.SetDefault("compaction.archive_dir", home+"/.imago/archive")
		viper.SetDefault("telemetry.parquet_path", home+"/.imago/telemetry")
	}

	viper.SetDefault("compaction.retention_days", 90)
	viper.SetDefault("compaction.keep_versions", 5)

	viper.SetDefault("bridge.cache_size", 256)

	viper.SetDefault("alert.enabled", false)
	viper.SetDefault("alert.fidelity_threshold", 0.75)

	viper.SetDefault("registry.timeout_seconds", 5)
	viper.SetDefault("registry.sources.mcp", []string{
		"https://registry.modelcontextprotocol.io/schema.json",
	})
}

// overrideWithEnv overrides config with environment variables
func overrideWithEnv(config *Config) {
	if backend := os.Getenv("IMAGO_STORE_BACKEND"); backend != "" {
		config.Store.Backend = store.LogBackend(backend)
	}
	if path := os.Getenv("IMAGO_STORE_PATH"); path != "" {
		config.Store.Path = path
	}

	// neo4j backend credentials
	if uri := os.Getenv("NEO4J_URI"); uri != "" {
		config.Store.URI = uri
	}
	if user := os.Getenv("NEO4J_USER"); user != "" {
		config.Store.Username = user
	}
	if pass := os.Getenv("NEO4J_PASSWORD"); pass != "" {
		config.Store.Password = pass
	}

	// Server settings
	if host := os.Getenv("SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}

	// Telemetry settings
	if path := os.Getenv("TELEMETRY_PARQUET_PATH"); path != "" {
		config.Telemetry.ParquetPath = path
	}
}
