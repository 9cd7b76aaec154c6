package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds OpenVault configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Backend   BackendConfig   `yaml:"backend"`
	Analyzer  AnalyzerConfig  `yaml:"analyzer"`
	Policies  PoliciesConfig  `yaml:"policies"`
	Projects  []ProjectConfig `yaml:"projects"`
	Security  SecurityConfig  `yaml:"security"`
	Limits    LimitsConfig    `yaml:"limits"`
	Logging   LoggingConfig   `yaml:"logging"`
	Audit     AuditConfig     `yaml:"audit"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr        string `yaml:"addr"`        // HTTP listen address, e.g. ":8080"
	Environment string `yaml:"environment"` // development | staging | production
}

// BackendConfig controls native classifier loading. AllowFallback is the
// explicit opt-out that lets a production deployment run on the regex
// fallback when the native backend cannot be constructed.
type BackendConfig struct {
	BundleDir     string `yaml:"bundle_dir"`
	SeqLen        int    `yaml:"seq_len"`
	RequireNative bool   `yaml:"require_native"`
	AllowFallback bool   `yaml:"allow_fallback"`
}

type AnalyzerConfig struct {
	CacheSize int `yaml:"cache_size"`
}

type PoliciesConfig struct {
	File string `yaml:"file"`
}

type ProjectConfig struct {
	ID      string   `yaml:"id"`
	APIKeys []string `yaml:"api_keys"`
}

type SecurityConfig struct {
	Enabled bool `yaml:"enabled"`
}

type LimitsConfig struct {
	MaxTextBytes int `yaml:"max_text_bytes"`
}

type LoggingConfig struct {
	AuditLevel string `yaml:"audit_level"` // metadata | redacted | full
}

type AuditConfig struct {
	QueueSize int          `yaml:"queue_size"`
	Workers   int          `yaml:"workers"`
	Sinks     []SinkConfig `yaml:"sinks"`
}

type SinkConfig struct {
	Type           string            `yaml:"type"` // file_jsonl | webhook
	Path           string            `yaml:"path"`
	URL            string            `yaml:"url"`
	Headers        map[string]string `yaml:"headers"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
	Protocol string `yaml:"protocol"` // grpc | http
	Service  string `yaml:"service"`
	Version  string `yaml:"version"`
}

// Load reads configuration from a YAML file.
// If the file doesn't exist, it returns a default config and no error.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return defaultConfig(), nil
		}
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

func defaultConfig() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Server.Environment == "" {
		cfg.Server.Environment = "development"
	}
	if cfg.Backend.SeqLen <= 0 {
		cfg.Backend.SeqLen = 256
	}
	if cfg.Analyzer.CacheSize <= 0 {
		cfg.Analyzer.CacheSize = 4096
	}
	if cfg.Limits.MaxTextBytes <= 0 {
		cfg.Limits.MaxTextBytes = 1 << 20
	}
	if cfg.Logging.AuditLevel == "" {
		cfg.Logging.AuditLevel = "metadata"
	}
	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1000
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 1
	}
	if cfg.Telemetry.Service == "" {
		cfg.Telemetry.Service = "openvault"
	}
}
