package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// DEFAULT CONFIG TESTS
// =============================================================================

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, "gpt-4o-mini", config.BaseLLM)
	assert.Equal(t, "INFO", config.LogLevel)

	// Evaluator
	assert.Equal(t, 0.0, config.Evaluator.Temperature)
	assert.Equal(t, 512, config.Evaluator.MaxTokens)
	assert.Equal(t, 4, config.Evaluator.MaxConcurrency)
	assert.Equal(t, 10, config.Evaluator.DimensionCount)

	// Matching / allocation
	assert.Equal(t, "lexical", config.Matching.Strategy)
	assert.Equal(t, 2, config.Allocation.MemberNum)
	assert.Equal(t, 3, config.Allocation.ReviewerNum)

	// Store / checkpoint
	assert.Equal(t, BackendMemory, config.Store.Backend)
	assert.Equal(t, "default", config.Store.Namespace)
	assert.Equal(t, "checkpoints", config.Checkpoint.Dir)
	assert.False(t, config.Checkpoint.WithEmbed)

	// Bus / LLM
	assert.Equal(t, 5*time.Second, config.Bus.QueryTimeout)
	assert.Equal(t, 5, config.Bus.CircuitThreshold)
	assert.Equal(t, 30*time.Second, config.Bus.CircuitResetTimeout)
	assert.Equal(t, "OPENAI_API_KEY", config.LLM.APIKeyEnv)

	assert.Nil(t, config.Pipeline)
	require.NoError(t, config.Validate())
}

func TestEvaluatorModel(t *testing.T) {
	config := DefaultConfig()
	assert.Equal(t, "gpt-4o-mini", config.EvaluatorModel())

	config.Evaluator.Model = "gpt-4o"
	assert.Equal(t, "gpt-4o", config.EvaluatorModel())
}

// =============================================================================
// VALIDATION TESTS
// =============================================================================

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"missing base_llm", func(c *Config) { c.BaseLLM = " " }, "base_llm is required"},
		{"bad log level", func(c *Config) { c.LogLevel = "LOUD" }, "invalid log_level"},
		{"temperature too high", func(c *Config) { c.Evaluator.Temperature = 3 }, "temperature"},
		{"zero max tokens", func(c *Config) { c.Evaluator.MaxTokens = 0 }, "max_tokens"},
		{"zero concurrency", func(c *Config) { c.Evaluator.MaxConcurrency = 0 }, "max_concurrency"},
		{"negative dimensions", func(c *Config) { c.Evaluator.DimensionCount = -1 }, "dimension_count"},
		{"unknown strategy", func(c *Config) { c.Matching.Strategy = "bm25" }, "matching.strategy"},
		{"negative members", func(c *Config) { c.Allocation.MemberNum = -1 }, "allocation counts"},
		{"unknown backend", func(c *Config) { c.Store.Backend = "etcd" }, "store.backend"},
		{"redis without url", func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Store.RedisURL = ""
		}, "redis_url"},
		{"redis without namespace", func(c *Config) {
			c.Store.Backend = BackendRedis
			c.Store.Namespace = ""
		}, "namespace"},
		{"zero query timeout", func(c *Config) { c.Bus.QueryTimeout = 0 }, "bus.query_timeout"},
		{"negative circuit threshold", func(c *Config) { c.Bus.CircuitThreshold = -1 }, "bus.circuit_threshold"},
		{"circuit without reset", func(c *Config) { c.Bus.CircuitResetTimeout = 0 }, "bus.circuit_reset_timeout"},
		{"negative llm timeout", func(c *Config) { c.LLM.Timeout = -time.Second }, "llm.timeout"},
		{"invalid pipeline", func(c *Config) { c.Pipeline = &PipelineSpec{} }, "pipeline:"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)

			err := config.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

// =============================================================================
// LOAD TESTS
// =============================================================================

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "researchtown.yml")
	content := `
base_llm: gpt-4o
log_level: DEBUG
allocation:
  member_num: 3
bus:
  circuit_threshold: 0
  circuit_reset_timeout: 1m
store:
  backend: redis
  redis_url: redis://localhost:6379/1
  namespace: lab
pipeline:
  name: review
  stages: [start, review]
  transitions:
    - from: start
      pass: review
      fail: end
    - from: review
      pass: end
      fail: end
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o", config.BaseLLM)
	assert.Equal(t, "DEBUG", config.LogLevel)
	assert.Equal(t, 3, config.Allocation.MemberNum)
	assert.Equal(t, 3, config.Allocation.ReviewerNum, "unset keys keep defaults")
	assert.Equal(t, 0, config.Bus.CircuitThreshold)
	assert.Equal(t, time.Minute, config.Bus.CircuitResetTimeout)
	assert.Equal(t, 5*time.Second, config.Bus.QueryTimeout)
	assert.Equal(t, BackendRedis, config.Store.Backend)
	assert.Equal(t, "lab", config.Store.Namespace)
	require.NotNil(t, config.Pipeline)
	assert.Equal(t, "start", config.Pipeline.EntryStage())
	assert.Len(t, config.Pipeline.Edges(), 4)
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config")

	_, err = Parse([]byte("base_llm: [unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")

	_, err = Parse([]byte("base_llm: ''"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
}

// =============================================================================
// MAP CONVERSION TESTS
// =============================================================================

func TestConfigFromMap(t *testing.T) {
	config := ConfigFromMap(map[string]any{
		"base_llm": "claude-3-5-sonnet",
		"evaluator": map[string]any{
			"max_concurrency": float64(8),
			"temperature":     1,
		},
		"allocation": map[string]any{
			"reviewer_num": 5,
		},
		"checkpoint": map[string]any{
			"with_embed": true,
		},
		"bus": map[string]any{
			"circuit_threshold":     float64(2),
			"circuit_reset_timeout": "10s",
		},
		"llm": map[string]any{
			"endpoint": "http://localhost:1234/v1",
			"timeout":  "bogus",
		},
		"unknown": "ignored",
	})

	assert.Equal(t, "claude-3-5-sonnet", config.BaseLLM)
	assert.Equal(t, 8, config.Evaluator.MaxConcurrency)
	assert.Equal(t, 1.0, config.Evaluator.Temperature)
	assert.Equal(t, 5, config.Allocation.ReviewerNum)
	assert.Equal(t, 2, config.Allocation.MemberNum)
	assert.True(t, config.Checkpoint.WithEmbed)
	assert.Equal(t, 2, config.Bus.CircuitThreshold)
	assert.Equal(t, 10*time.Second, config.Bus.CircuitResetTimeout)
	assert.Equal(t, "http://localhost:1234/v1", config.LLM.Endpoint)
	assert.Equal(t, 60*time.Second, config.LLM.Timeout, "unparseable durations keep defaults")
}

func TestConfig_ToMapRoundTrip(t *testing.T) {
	original := DefaultConfig()
	original.BaseLLM = "gpt-4o"
	original.Store.Namespace = "lab"
	original.Bus.CircuitResetTimeout = 90 * time.Second
	original.LLM.APIKeyEnv = "LAB_KEY"

	restored := ConfigFromMap(original.ToMap())
	assert.Equal(t, original, restored)
}
