// Package config loads and validates the YAML configuration: the source
// list, the circuit breaker thresholds, and fetch settings.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ppiankov/feedsentinel/internal/breaker"
	"github.com/ppiankov/feedsentinel/internal/feed"
)

const (
	DefaultConfigFile       = "config.yaml"
	DefaultFailureThreshold = 3
	DefaultRecoveryTimeout  = 60 * time.Second
	DefaultSuccessThreshold = 2
	DefaultFetchTimeout     = 30 * time.Second
	DefaultMaxConcurrent    = 10
)

// sourceTypes are the accepted values for a source's declared type.
var sourceTypes = []string{"auto", "rss", "atom", "json", "html"}

// Duration wraps time.Duration for YAML unmarshaling from strings like "60s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Sources []SourceConfig `yaml:"sources"`
	Breaker BreakerConfig  `yaml:"breaker"`
	Fetch   FetchConfig    `yaml:"fetch"`
}

// SourceConfig is one source entry in config.yaml.
type SourceConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	URL      string `yaml:"url"`
	Type     string `yaml:"type"`
	Selector string `yaml:"selector"`
	Priority int    `yaml:"priority"`
	Enabled  *bool  `yaml:"enabled"` // omitted means enabled
}

type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
	SuccessThreshold int      `yaml:"success_threshold"`
}

type FetchConfig struct {
	Timeout       Duration `yaml:"timeout"`
	UserAgent     string   `yaml:"user_agent"`
	MaxConcurrent int      `yaml:"max_concurrent"`
}

// Load reads config.yaml from dir, applies defaults, and validates.
func Load(dir string) (*Config, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("config dir is required")
	}

	path := filepath.Join(dir, DefaultConfigFile)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Breaker.RecoveryTimeout.Duration == 0 {
		cfg.Breaker.RecoveryTimeout.Duration = DefaultRecoveryTimeout
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = DefaultSuccessThreshold
	}
	if cfg.Fetch.Timeout.Duration == 0 {
		cfg.Fetch.Timeout.Duration = DefaultFetchTimeout
	}
	if cfg.Fetch.MaxConcurrent == 0 {
		cfg.Fetch.MaxConcurrent = DefaultMaxConcurrent
	}
	for i := range cfg.Sources {
		if cfg.Sources[i].Type == "" {
			cfg.Sources[i].Type = "auto"
		}
		if cfg.Sources[i].Name == "" {
			cfg.Sources[i].Name = cfg.Sources[i].ID
		}
	}
}

func validate(cfg *Config) error {
	if len(cfg.Sources) == 0 {
		return errors.New("sources: at least one source must be configured")
	}

	seen := make(map[string]bool, len(cfg.Sources))
	for _, s := range cfg.Sources {
		if strings.TrimSpace(s.ID) == "" {
			return errors.New("sources: id is required")
		}
		if seen[s.ID] {
			return fmt.Errorf("sources: duplicate id %q", s.ID)
		}
		seen[s.ID] = true

		u, err := url.Parse(s.URL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("sources: %s: url %q must be http(s)", s.ID, s.URL)
		}

		if !validSourceType(s.Type) {
			return fmt.Errorf("sources: %s: unknown type %q (want one of %s)",
				s.ID, s.Type, strings.Join(sourceTypes, ", "))
		}
	}

	if cfg.Breaker.FailureThreshold < 0 || cfg.Breaker.SuccessThreshold < 0 {
		return errors.New("breaker: thresholds must not be negative")
	}
	if cfg.Breaker.RecoveryTimeout.Duration < 0 {
		return errors.New("breaker: recovery_timeout must not be negative")
	}

	return nil
}

func validSourceType(t string) bool {
	for _, known := range sourceTypes {
		if t == known {
			return true
		}
	}
	return false
}

// FeedSources converts the configured source list into domain records.
func (c *Config) FeedSources() []feed.Source {
	out := make([]feed.Source, 0, len(c.Sources))
	for _, s := range c.Sources {
		out = append(out, feed.Source{
			ID:       s.ID,
			Name:     s.Name,
			URL:      s.URL,
			Type:     s.Type,
			Selector: s.Selector,
			Priority: s.Priority,
			Enabled:  s.Enabled == nil || *s.Enabled,
		})
	}
	return out
}

// BreakerSettings converts the breaker section into the breaker package's
// configuration triple.
func (c *Config) BreakerSettings() breaker.Config {
	return breaker.Config{
		FailureThreshold: c.Breaker.FailureThreshold,
		RecoveryTimeout:  c.Breaker.RecoveryTimeout.Duration,
		SuccessThreshold: c.Breaker.SuccessThreshold,
	}
}
