package config

import (
	"fmt"
	"os"
	"time"

	"github.com/devrev/securegpx/internal/admission"
	"github.com/devrev/securegpx/internal/chain"
	"github.com/devrev/securegpx/internal/codec"
	"github.com/devrev/securegpx/internal/logger"
	"gopkg.in/yaml.v3"
)

// Config represents the complete configuration of the engine and CLI
type Config struct {
	Logging   LoggingConfig   `yaml:"logging"`
	Queue     QueueConfig     `yaml:"queue"`
	Chain     ChainConfig     `yaml:"chain"`
	Codec     CodecConfig     `yaml:"codec"`
	Admission AdmissionConfig `yaml:"admission"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Watch     WatchConfig     `yaml:"watch"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

// QueueConfig holds mutation queue configuration
type QueueConfig struct {
	Name        string        `yaml:"name"`
	Size        int           `yaml:"size"`
	StopTimeout time.Duration `yaml:"stop_timeout"`
}

// ChainConfig holds hash chain configuration
type ChainConfig struct {
	SecretKey string `yaml:"secret_key"`
	Algorithm string `yaml:"algorithm"`
}

// CodecConfig holds GPX codec configuration
type CodecConfig struct {
	Creator string `yaml:"creator"`
	Indent  string `yaml:"indent"`
}

// AdmissionConfig selects the track point admission policy
type AdmissionConfig struct {
	Policy string  `yaml:"policy"`
	Factor float64 `yaml:"factor"`
}

// MetricsConfig holds metrics server configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// WatchConfig holds file watcher configuration
type WatchConfig struct {
	Debounce time.Duration `yaml:"debounce"`
}

// LoadConfig loads configuration from a file
func LoadConfig(filePath string) (*Config, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// setDefaults sets default values for unspecified configuration
func setDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "console"
	}
	if cfg.Logging.File != "" {
		if cfg.Logging.MaxSizeMB == 0 {
			cfg.Logging.MaxSizeMB = 100
		}
		if cfg.Logging.MaxBackups == 0 {
			cfg.Logging.MaxBackups = 3
		}
		if cfg.Logging.MaxAgeDays == 0 {
			cfg.Logging.MaxAgeDays = 28
		}
	}

	if cfg.Queue.Name == "" {
		cfg.Queue.Name = "gpx"
	}
	if cfg.Queue.Size == 0 {
		cfg.Queue.Size = 256
	}
	if cfg.Queue.StopTimeout == 0 {
		cfg.Queue.StopTimeout = 10 * time.Second
	}

	if cfg.Chain.Algorithm == "" {
		cfg.Chain.Algorithm = chain.AlgorithmSHA256
	}

	if cfg.Codec.Creator == "" {
		cfg.Codec.Creator = codec.DefaultCreator
	}

	if cfg.Admission.Policy == "" {
		cfg.Admission.Policy = admission.PolicyAlways
	}
	if cfg.Admission.Policy == admission.PolicyMinDistance && cfg.Admission.Factor == 0 {
		cfg.Admission.Factor = 1
	}

	if cfg.Metrics.Port == 0 {
		cfg.Metrics.Port = 9090
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}

	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = 500 * time.Millisecond
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error")
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("logging.format must be json or console")
	}
	if c.Queue.Size < 1 {
		return fmt.Errorf("queue.size must be positive")
	}
	if c.Queue.StopTimeout < 0 {
		return fmt.Errorf("queue.stop_timeout must not be negative")
	}
	if _, err := admission.New(c.AdmissionPolicy()); err != nil {
		return fmt.Errorf("admission: %w", err)
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		return fmt.Errorf("metrics.port must be between 1 and 65535")
	}
	if c.Watch.Debounce < 0 {
		return fmt.Errorf("watch.debounce must not be negative")
	}
	return nil
}

// LoggerConfig converts the logging section
func (c *Config) LoggerConfig() logger.Config {
	return logger.Config{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxSizeMB:  c.Logging.MaxSizeMB,
		MaxBackups: c.Logging.MaxBackups,
		MaxAgeDays: c.Logging.MaxAgeDays,
		Compress:   c.Logging.Compress,
	}
}

func (c *Config) ChainConfig() chain.Config {
	return chain.Config{SecretKey: c.Chain.SecretKey, Algorithm: c.Chain.Algorithm}
}

func (c *Config) CodecConfig() codec.Config {
	return codec.Config{Creator: c.Codec.Creator, Indent: c.Codec.Indent}
}

func (c *Config) AdmissionPolicy() admission.Config {
	return admission.Config{Policy: c.Admission.Policy, Factor: c.Admission.Factor}
}
