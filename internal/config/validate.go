package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate checks the loaded config for required fields and safe values.
func Validate(cfg *Config) error {
	if cfg == nil {
		return errors.New("config is nil")
	}

	if strings.TrimSpace(cfg.Server.Addr) == "" {
		return errors.New("server.addr must be set")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Server.Environment)) {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("server.environment must be development, staging, or production, got %q", cfg.Server.Environment)
	}

	if cfg.Backend.RequireNative && strings.TrimSpace(cfg.Backend.BundleDir) == "" {
		return errors.New("backend.require_native is set but backend.bundle_dir is empty")
	}
	if cfg.Backend.RequireNative && cfg.Backend.AllowFallback {
		return errors.New("backend.require_native and backend.allow_fallback are mutually exclusive")
	}
	if cfg.Backend.SeqLen <= 0 {
		return errors.New("backend.seq_len must be positive")
	}

	if cfg.Analyzer.CacheSize <= 0 {
		return errors.New("analyzer.cache_size must be positive")
	}
	if cfg.Limits.MaxTextBytes <= 0 {
		return errors.New("limits.max_text_bytes must be positive")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Logging.AuditLevel)) {
	case "metadata", "redacted", "full":
	default:
		return fmt.Errorf("logging.audit_level must be metadata, redacted, or full, got %q", cfg.Logging.AuditLevel)
	}

	if cfg.Security.Enabled {
		if len(cfg.Projects) == 0 {
			return errors.New("security.enabled requires at least one project")
		}
		for _, p := range cfg.Projects {
			if strings.TrimSpace(p.ID) == "" {
				return errors.New("project id must be set")
			}
			if len(p.APIKeys) == 0 {
				return fmt.Errorf("project %q must define at least one api_keys entry", p.ID)
			}
		}
	}

	if err := validateAuditConfig(cfg.Audit); err != nil {
		return err
	}

	return validateTelemetryConfig(cfg.Telemetry)
}

func validateAuditConfig(a AuditConfig) error {
	for i, s := range a.Sinks {
		switch strings.ToLower(strings.TrimSpace(s.Type)) {
		case "file_jsonl":
			if strings.TrimSpace(s.Path) == "" {
				return fmt.Errorf("audit sink %d (file_jsonl) missing path", i)
			}
		case "webhook":
			if strings.TrimSpace(s.URL) == "" {
				return fmt.Errorf("audit sink %d (webhook) missing url", i)
			}
			u, err := url.Parse(s.URL)
			if err != nil || u.Scheme == "" || u.Host == "" {
				return fmt.Errorf("audit sink %d (webhook) has invalid url", i)
			}
			if u.Scheme != "http" && u.Scheme != "https" {
				return fmt.Errorf("audit sink %d (webhook) url must be http or https", i)
			}
		default:
			return fmt.Errorf("audit sink %d has unknown type %q", i, s.Type)
		}
	}
	return nil
}

func validateTelemetryConfig(t TelemetryConfig) error {
	if !t.Enabled {
		return nil
	}
	if strings.TrimSpace(t.Endpoint) == "" {
		return errors.New("telemetry enabled but endpoint is empty")
	}
	if t.Protocol != "" {
		switch strings.ToLower(strings.TrimSpace(t.Protocol)) {
		case "grpc", "http":
		default:
			return fmt.Errorf("telemetry.protocol must be grpc or http, got %q", t.Protocol)
		}
	}
	return nil
}
