package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "porta.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadMinimalConfigAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
version: "1.0"
universe: [AAPL, MSFT]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"AAPL", "MSFT"}, cfg.Universe)
	assert.Equal(t, "redis://localhost:6379/0", cfg.Redis.URL)
	assert.Equal(t, 32, *cfg.Engine.WaveLimit)
	assert.Equal(t, 10.0, *cfg.Risk.BaseWeightPct)
	assert.Equal(t, 24, *cfg.Cache.TTLHours)
	assert.Equal(t, "mock", cfg.Capability.Provider)
	assert.Equal(t, "GEMINI_API_KEY", cfg.Capability.APIKeyEnv)
	assert.Equal(t, "SPY", cfg.Market.Benchmark)
	assert.Equal(t, "6mo", cfg.Market.Period)
	assert.Equal(t, "en", cfg.Report.Language)
}

func TestLoadFullConfig(t *testing.T) {
	path := writeConfig(t, `
version: "1.0"
universe: [AAPL]
redis:
  url: redis://cache.internal:6380/2
engine:
  wave_limit: 16
risk:
  base_weight_pct: 7.5
cache:
  ttl_hours: 6
capability:
  provider: gemini
  model: gemini-2.5-pro
  api_key_env: PORTA_GEMINI_KEY
market:
  benchmark: QQQ
  period: 1y
report:
  language: ko
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "redis://cache.internal:6380/2", cfg.Redis.URL)
	assert.Equal(t, 16, *cfg.Engine.WaveLimit)
	assert.Equal(t, 7.5, *cfg.Risk.BaseWeightPct)
	assert.Equal(t, 6, *cfg.Cache.TTLHours)
	assert.Equal(t, "gemini", cfg.Capability.Provider)
	assert.Equal(t, "gemini-2.5-pro", cfg.Capability.Model)
	assert.Equal(t, "PORTA_GEMINI_KEY", cfg.Capability.APIKeyEnv)
	assert.Equal(t, "QQQ", cfg.Market.Benchmark)
	assert.Equal(t, "1y", cfg.Market.Period)
	assert.Equal(t, "ko", cfg.Report.Language)
}

func TestValidateRejectsBadConfigs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "missing version",
			content: "universe: [AAPL]",
			wantErr: "unsupported version",
		},
		{
			name:    "wrong version",
			content: "version: \"2.0\"\nuniverse: [AAPL]",
			wantErr: "unsupported version",
		},
		{
			name:    "empty universe",
			content: "version: \"1.0\"\nuniverse: []",
			wantErr: "universe must list at least one ticker",
		},
		{
			name:    "blank ticker",
			content: "version: \"1.0\"\nuniverse: [AAPL, \"\"]",
			wantErr: "empty ticker",
		},
		{
			name:    "bad provider",
			content: "version: \"1.0\"\nuniverse: [AAPL]\ncapability:\n  provider: openai",
			wantErr: "invalid capability.provider",
		},
		{
			name:    "zero wave limit",
			content: "version: \"1.0\"\nuniverse: [AAPL]\nengine:\n  wave_limit: 0",
			wantErr: "wave_limit must be >= 1",
		},
		{
			name:    "oversized base weight",
			content: "version: \"1.0\"\nuniverse: [AAPL]\nrisk:\n  base_weight_pct: 120",
			wantErr: "base_weight_pct",
		},
		{
			name:    "unknown language",
			content: "version: \"1.0\"\nuniverse: [AAPL]\nreport:\n  language: fr",
			wantErr: "invalid report.language",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yml"))
	assert.Error(t, err)
}
