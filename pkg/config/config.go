// Package config provides configuration management for the refsim service.
package config

import (
	"bytes"
	"fmt"
	"os"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Report    ReportConfig    `mapstructure:"report"`
	Log       LogConfig       `mapstructure:"log"`
}

// EngineConfig holds reference-processing engine configuration.
type EngineConfig struct {
	ProcessingDegree    int    `mapstructure:"processing_degree"`
	DiscoveryDegree     int    `mapstructure:"discovery_degree"`
	ConcurrentDiscovery bool   `mapstructure:"concurrent_discovery"`
	RefsPerThread       int    `mapstructure:"refs_per_thread"`
	Balancing           bool   `mapstructure:"balancing"`
	Preclean            bool   `mapstructure:"preclean"`
	SoftPolicy          string `mapstructure:"soft_policy"` // always_clear, lru_max, lru_current
	SoftMsPerMB         int64  `mapstructure:"soft_ms_per_mb"`
}

// SimulatorConfig holds synthetic-workload configuration.
type SimulatorConfig struct {
	Cycles        int     `mapstructure:"cycles"`
	RefsPerCycle  int     `mapstructure:"refs_per_cycle"`
	LiveFraction  float64 `mapstructure:"live_fraction"`
	FanOut        int     `mapstructure:"fan_out"`
	Seed          int64   `mapstructure:"seed"`
	MaxHeapMB     int     `mapstructure:"max_heap_mb"`
	CurrentHeapMB int     `mapstructure:"current_heap_mb"`
	UsedHeapMB    int     `mapstructure:"used_heap_mb"`
}

// DatabaseConfig holds cycle-history database configuration.
type DatabaseConfig struct {
	Type     string `mapstructure:"type"` // sqlite, postgres or mysql
	Path     string `mapstructure:"path"` // for sqlite
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Database string `mapstructure:"database"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	MaxConns int    `mapstructure:"max_conns"`
}

// ReportConfig holds cycle-report storage configuration.
type ReportConfig struct {
	Type      string `mapstructure:"type"` // cos or local
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	SecretID  string `mapstructure:"secret_id"`
	SecretKey string `mapstructure:"secret_key"`
	Domain    string `mapstructure:"domain"` // e.g., "myqcloud.com"
	Scheme    string `mapstructure:"scheme"` // e.g., "https" or "http"
	LocalPath string `mapstructure:"local_path"`
	Compress  bool   `mapstructure:"compress"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level string `mapstructure:"level"`
}

// Load reads configuration from the specified file path.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/refsim")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			// No config file, run on defaults.
		} else if os.IsNotExist(err) {
			// File specified but doesn't exist, use defaults.
		} else {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Allow environment variables to override config
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// LoadFromReader loads configuration from raw content (useful for testing).
func LoadFromReader(configType string, content []byte) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigType(configType)
	if err := v.ReadConfig(bytes.NewReader(content)); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Engine defaults
	v.SetDefault("engine.processing_degree", 4)
	v.SetDefault("engine.discovery_degree", 1)
	v.SetDefault("engine.refs_per_thread", 1000)
	v.SetDefault("engine.soft_policy", "always_clear")
	v.SetDefault("engine.soft_ms_per_mb", 1000)

	// Simulator defaults
	v.SetDefault("simulator.cycles", 10)
	v.SetDefault("simulator.refs_per_cycle", 10000)
	v.SetDefault("simulator.live_fraction", 0.3)
	v.SetDefault("simulator.fan_out", 2)
	v.SetDefault("simulator.seed", 1)
	v.SetDefault("simulator.max_heap_mb", 4096)
	v.SetDefault("simulator.current_heap_mb", 1024)
	v.SetDefault("simulator.used_heap_mb", 512)

	// Database defaults. History recording is opt-in: the type stays empty
	// until a backend is configured.
	v.SetDefault("database.type", "")
	v.SetDefault("database.path", "./refsim.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.max_conns", 10)

	// Report defaults
	v.SetDefault("report.type", "local")
	v.SetDefault("report.local_path", "./reports")
	v.SetDefault("report.compress", true)

	// Log defaults
	v.SetDefault("log.level", "info")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Engine.ProcessingDegree < 1 {
		return fmt.Errorf("processing degree must be at least 1")
	}
	if c.Engine.DiscoveryDegree < 0 {
		return fmt.Errorf("discovery degree must not be negative")
	}
	switch c.Engine.SoftPolicy {
	case "always_clear", "lru_max", "lru_current":
	default:
		return fmt.Errorf("unsupported soft policy: %s", c.Engine.SoftPolicy)
	}

	if c.Simulator.Cycles < 1 {
		return fmt.Errorf("cycle count must be at least 1")
	}
	if c.Simulator.LiveFraction < 0 || c.Simulator.LiveFraction > 1 {
		return fmt.Errorf("live fraction must be within [0, 1]")
	}

	switch c.Database.Type {
	case "sqlite", "postgres", "mysql":
	case "":
		// History recording disabled.
	default:
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.Type == "postgres" || c.Database.Type == "mysql" {
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
	}

	// Report config validation is delegated to the report package.

	return nil
}
