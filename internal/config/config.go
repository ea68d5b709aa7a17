// Package config loads and validates the top-level porta.yml configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the CLI looks for configuration when no --config
// flag is given.
const DefaultPath = "porta.yml"

// PortaConfig represents the top-level porta.yml configuration.
type PortaConfig struct {
	Version    string            `yaml:"version"`
	Universe   []string          `yaml:"universe"`
	Redis      *RedisConfig      `yaml:"redis,omitempty"`
	Engine     *EngineConfig     `yaml:"engine,omitempty"`
	Risk       *RiskConfig       `yaml:"risk,omitempty"`
	Cache      *CacheConfig      `yaml:"cache,omitempty"`
	Capability *CapabilityConfig `yaml:"capability,omitempty"`
	Market     *MarketConfig     `yaml:"market,omitempty"`
	Report     *ReportConfig     `yaml:"report,omitempty"`
}

// RedisConfig locates the Redis instance backing the discovery cache.
type RedisConfig struct {
	URL string `yaml:"url,omitempty"` // Default: redis://localhost:6379/0
}

// EngineConfig tunes pipeline scheduling.
type EngineConfig struct {
	WaveLimit *int `yaml:"wave_limit,omitempty"` // Scheduling waves before a run is declared deadlocked (default 32)
}

// RiskConfig tunes position sizing.
type RiskConfig struct {
	BaseWeightPct *float64 `yaml:"base_weight_pct,omitempty"` // Uncapped position weight in percent (default 10)
}

// CacheConfig tunes discovery memoization.
type CacheConfig struct {
	TTLHours *int `yaml:"ttl_hours,omitempty"` // Default: 24
}

// CapabilityConfig selects the generative backend.
type CapabilityConfig struct {
	Provider  string `yaml:"provider"`              // "gemini" or "mock"
	Model     string `yaml:"model,omitempty"`       // Backend-specific model name
	APIKeyEnv string `yaml:"api_key_env,omitempty"` // Env var holding the API key (default GEMINI_API_KEY)
}

// MarketConfig tunes market-data retrieval.
type MarketConfig struct {
	Benchmark string `yaml:"benchmark,omitempty"` // Default: SPY
	Period    string `yaml:"period,omitempty"`    // Default: 6mo
}

// ReportConfig tunes report rendering.
type ReportConfig struct {
	Language string `yaml:"language,omitempty"` // "en" or "ko" (default en)
}

// Load reads and validates a porta.yml file.
func Load(path string) (*PortaConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg PortaConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

// Validate performs strict validation and fills in defaults.
func (c *PortaConfig) Validate() error {
	// Required: version
	if c.Version != "1.0" {
		return fmt.Errorf("unsupported version: %s (expected: 1.0)", c.Version)
	}

	// Required: at least one universe ticker
	if len(c.Universe) == 0 {
		return fmt.Errorf("universe must list at least one ticker")
	}
	for _, t := range c.Universe {
		if t == "" {
			return fmt.Errorf("universe contains an empty ticker")
		}
	}

	if c.Redis == nil {
		c.Redis = &RedisConfig{}
	}
	if c.Redis.URL == "" {
		c.Redis.URL = "redis://localhost:6379/0"
	}

	if c.Engine == nil {
		c.Engine = &EngineConfig{}
	}
	if c.Engine.WaveLimit == nil {
		defaultWaves := 32
		c.Engine.WaveLimit = &defaultWaves
	}
	if *c.Engine.WaveLimit < 1 {
		return fmt.Errorf("engine.wave_limit must be >= 1, got %d", *c.Engine.WaveLimit)
	}

	if c.Risk == nil {
		c.Risk = &RiskConfig{}
	}
	if c.Risk.BaseWeightPct == nil {
		defaultWeight := 10.0
		c.Risk.BaseWeightPct = &defaultWeight
	}
	if *c.Risk.BaseWeightPct <= 0 || *c.Risk.BaseWeightPct > 100 {
		return fmt.Errorf("risk.base_weight_pct must be in (0, 100], got %v", *c.Risk.BaseWeightPct)
	}

	if c.Cache == nil {
		c.Cache = &CacheConfig{}
	}
	if c.Cache.TTLHours == nil {
		defaultTTL := 24
		c.Cache.TTLHours = &defaultTTL
	}
	if *c.Cache.TTLHours < 1 {
		return fmt.Errorf("cache.ttl_hours must be >= 1, got %d", *c.Cache.TTLHours)
	}

	if c.Capability == nil {
		c.Capability = &CapabilityConfig{Provider: "mock"}
	}
	if c.Capability.Provider != "gemini" && c.Capability.Provider != "mock" {
		return fmt.Errorf("invalid capability.provider: %s (must be 'gemini' or 'mock')", c.Capability.Provider)
	}
	if c.Capability.APIKeyEnv == "" {
		c.Capability.APIKeyEnv = "GEMINI_API_KEY"
	}

	if c.Market == nil {
		c.Market = &MarketConfig{}
	}
	if c.Market.Benchmark == "" {
		c.Market.Benchmark = "SPY"
	}
	if c.Market.Period == "" {
		c.Market.Period = "6mo"
	}

	if c.Report == nil {
		c.Report = &ReportConfig{}
	}
	if c.Report.Language == "" {
		c.Report.Language = "en"
	}
	if c.Report.Language != "en" && c.Report.Language != "ko" {
		return fmt.Errorf("invalid report.language: %s (must be 'en' or 'ko')", c.Report.Language)
	}

	return nil
}
