// Package config loads and validates the collagesync YAML configuration.
package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration loaded from YAML.
type Config struct {
	// Plex describes the media server hosting the music library.
	Plex PlexConfig `yaml:"plex"`

	// Sites maps a site key (e.g. "red", "ops") to its tracker settings.
	Sites map[string]SiteConfig `yaml:"sites"`

	// Telemetry configures optional OpenTelemetry export via OTLP gRPC.
	// Omit the block entirely to disable telemetry.
	Telemetry *TelemetryConfig `yaml:"telemetry,omitempty"`
}

// PlexConfig holds the Plex server connection settings.
type PlexConfig struct {
	// URL is the base URL of the Plex server (e.g. "http://localhost:32400").
	URL string `yaml:"url"`

	// Token is the X-Plex-Token used to authenticate.
	Token string `yaml:"token"`

	// Section is the name of the music library section. Defaults to "Music".
	Section string `yaml:"section"`
}

// SiteConfig holds the settings for one Gazelle-based tracker site.
type SiteConfig struct {
	// BaseURL is the site's root URL (e.g. "https://redacted.sh").
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as the Authorization header on every API call.
	APIKey string `yaml:"api_key"`

	// RateLimit bounds outbound API calls for this site.
	// Defaults to 10 calls per 10s if omitted.
	RateLimit *RateLimitConfig `yaml:"rate_limit,omitempty"`
}

// RateLimitConfig is a calls-per-period bound on outbound API traffic.
type RateLimitConfig struct {
	Calls  int           `yaml:"calls"`
	Period time.Duration `yaml:"period"`
}

// TelemetryConfig holds optional OpenTelemetry settings.
type TelemetryConfig struct {
	// OTLPEndpoint is the gRPC host:port of the OTLP collector (e.g. "localhost:4317").
	OTLPEndpoint string `yaml:"otlp_endpoint"`

	// Insecure disables TLS for the collector connection. Use for local collectors.
	Insecure bool `yaml:"insecure"`

	// ServiceName overrides the OTel service.name attribute. Defaults to "collagesync".
	ServiceName string `yaml:"service_name"`

	// Headers contains key-value pairs sent as gRPC metadata on every OTLP
	// request, e.g. Authorization: "Bearer <token>".
	Headers map[string]string `yaml:"headers,omitempty"`
}

// DefaultRateLimit is applied to sites that configure no rate_limit block.
var DefaultRateLimit = RateLimitConfig{Calls: 10, Period: 10 * time.Second}

// DefaultPath returns the default config file path: ~/.config/collagesync/config.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolving home directory: %w", err)
	}
	return filepath.Join(home, ".config", "collagesync", "config.yaml"), nil
}

// Load reads and validates the configuration file at the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening config file %q: %w", path, err)
	}
	defer f.Close()

	var cfg Config
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true) // reject unknown keys to catch typos early
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// Site returns the configuration for a site key, case-insensitively.
func (c *Config) Site(key string) (SiteConfig, bool) {
	sc, ok := c.Sites[strings.ToLower(key)]
	return sc, ok
}

// validate checks that all required fields are present and well-formed.
func (c *Config) validate() error {
	if c.Plex.URL == "" {
		return fmt.Errorf("plex.url is required")
	}
	u, err := url.ParseRequestURI(c.Plex.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("plex.url %q must be a valid http or https URL", c.Plex.URL)
	}
	if c.Plex.Token == "" {
		return fmt.Errorf("plex.token is required")
	}
	if c.Plex.Section == "" {
		c.Plex.Section = "Music"
	}

	if len(c.Sites) == 0 {
		return fmt.Errorf("sites must contain at least one entry")
	}
	for key, sc := range c.Sites {
		if key != strings.ToLower(key) {
			return fmt.Errorf("site key %q must be lowercase", key)
		}
		if sc.BaseURL == "" {
			return fmt.Errorf("sites[%q].base_url is required", key)
		}
		su, err := url.ParseRequestURI(sc.BaseURL)
		if err != nil || (su.Scheme != "http" && su.Scheme != "https") {
			return fmt.Errorf("sites[%q].base_url %q must be a valid http or https URL", key, sc.BaseURL)
		}
		if sc.APIKey == "" {
			return fmt.Errorf("sites[%q].api_key is required", key)
		}
		if sc.RateLimit != nil {
			if sc.RateLimit.Calls < 1 {
				return fmt.Errorf("sites[%q].rate_limit.calls must be at least 1", key)
			}
			if sc.RateLimit.Period < time.Second {
				return fmt.Errorf("sites[%q].rate_limit.period %v is too short (minimum 1s)", key, sc.RateLimit.Period)
			}
		}
	}

	if c.Telemetry != nil {
		if c.Telemetry.OTLPEndpoint == "" {
			return fmt.Errorf("telemetry.otlp_endpoint is required when telemetry is configured")
		}
	}

	return nil
}

// EffectiveRateLimit returns the site's rate limit or the default.
func (sc SiteConfig) EffectiveRateLimit() RateLimitConfig {
	if sc.RateLimit == nil {
		return DefaultRateLimit
	}
	return *sc.RateLimit
}
