// Package config provides the engine configuration surface.
//
// A Config is injected at engine construction. It carries the base model
// identifier handed to every stage, the evaluator and matching tuning
// parameters, the storage backend selection and checkpoint defaults, and an
// optional declarative pipeline topology.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Backend kinds for StoreConfig.Backend.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Config holds the engine configuration.
type Config struct {
	BaseLLM  string `yaml:"base_llm" json:"base_llm" mapstructure:"base_llm"`
	LogLevel string `yaml:"log_level" json:"log_level" mapstructure:"log_level"`

	Evaluator  EvaluatorConfig  `yaml:"evaluator" json:"evaluator" mapstructure:"evaluator"`
	Matching   MatchingConfig   `yaml:"matching" json:"matching" mapstructure:"matching"`
	Allocation AllocationConfig `yaml:"allocation" json:"allocation" mapstructure:"allocation"`
	Store      StoreConfig      `yaml:"store" json:"store" mapstructure:"store"`
	Checkpoint CheckpointConfig `yaml:"checkpoint" json:"checkpoint" mapstructure:"checkpoint"`
	Bus        BusConfig        `yaml:"bus" json:"bus" mapstructure:"bus"`
	LLM        LLMConfig        `yaml:"llm" json:"llm" mapstructure:"llm"`

	// Pipeline is an optional declarative topology.
	Pipeline *PipelineSpec `yaml:"pipeline,omitempty" json:"pipeline,omitempty" mapstructure:"pipeline"`
}

// EvaluatorConfig tunes the quality-evaluation scorers.
type EvaluatorConfig struct {
	Model          string  `yaml:"model" json:"model" mapstructure:"model"` // empty = BaseLLM
	Temperature    float64 `yaml:"temperature" json:"temperature" mapstructure:"temperature"`
	MaxTokens      int     `yaml:"max_tokens" json:"max_tokens" mapstructure:"max_tokens"`
	MaxConcurrency int     `yaml:"max_concurrency" json:"max_concurrency" mapstructure:"max_concurrency"`
	DimensionCount int     `yaml:"dimension_count" json:"dimension_count" mapstructure:"dimension_count"` // 0 = any
}

// MatchingConfig selects the participant ranking strategy.
type MatchingConfig struct {
	Strategy     string `yaml:"strategy" json:"strategy" mapstructure:"strategy"` // lexical | embedding
	EmbeddingDim int    `yaml:"embedding_dim" json:"embedding_dim" mapstructure:"embedding_dim"`
}

// AllocationConfig sizes the member and reviewer groups.
type AllocationConfig struct {
	MemberNum   int `yaml:"member_num" json:"member_num" mapstructure:"member_num"`
	ReviewerNum int `yaml:"reviewer_num" json:"reviewer_num" mapstructure:"reviewer_num"`
}

// StoreConfig selects the persistence backend for the directory and stores.
type StoreConfig struct {
	Backend   string `yaml:"backend" json:"backend" mapstructure:"backend"`
	RedisURL  string `yaml:"redis_url" json:"redis_url" mapstructure:"redis_url"`
	Namespace string `yaml:"namespace" json:"namespace" mapstructure:"namespace"`
}

// CheckpointConfig holds defaults for Engine.Save.
type CheckpointConfig struct {
	Dir       string `yaml:"dir" json:"dir" mapstructure:"dir"`
	WithEmbed bool   `yaml:"with_embed" json:"with_embed" mapstructure:"with_embed"`
}

// BusConfig tunes the run's message bus. A zero CircuitThreshold disables the
// circuit breaker on queries and commands; lifecycle events always flow.
type BusConfig struct {
	QueryTimeout        time.Duration `yaml:"query_timeout" json:"query_timeout" mapstructure:"query_timeout"`
	CircuitThreshold    int           `yaml:"circuit_threshold" json:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetTimeout time.Duration `yaml:"circuit_reset_timeout" json:"circuit_reset_timeout" mapstructure:"circuit_reset_timeout"`
}

// LLMConfig points the evaluator at an OpenAI-compatible chat completions
// endpoint. The API key is read from the APIKeyEnv environment variable.
type LLMConfig struct {
	Endpoint  string        `yaml:"endpoint" json:"endpoint" mapstructure:"endpoint"`
	APIKeyEnv string        `yaml:"api_key_env" json:"api_key_env" mapstructure:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout" mapstructure:"timeout"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		BaseLLM:  "gpt-4o-mini",
		LogLevel: "INFO",
		Evaluator: EvaluatorConfig{
			Temperature:    0.0,
			MaxTokens:      512,
			MaxConcurrency: 4,
			DimensionCount: 10,
		},
		Matching: MatchingConfig{
			Strategy:     "lexical",
			EmbeddingDim: 256,
		},
		Allocation: AllocationConfig{
			MemberNum:   2,
			ReviewerNum: 3,
		},
		Store: StoreConfig{
			Backend:   BackendMemory,
			RedisURL:  "redis://localhost:6379/0",
			Namespace: "default",
		},
		Checkpoint: CheckpointConfig{
			Dir:       "checkpoints",
			WithEmbed: false,
		},
		Bus: BusConfig{
			QueryTimeout:        5 * time.Second,
			CircuitThreshold:    5,
			CircuitResetTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			Endpoint:  "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   60 * time.Second,
		},
	}
}

// EvaluatorModel returns the model used by evaluators.
func (c *Config) EvaluatorModel() string {
	if c.Evaluator.Model != "" {
		return c.Evaluator.Model
	}
	return c.BaseLLM
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BaseLLM) == "" {
		return fmt.Errorf("base_llm is required")
	}

	switch strings.ToUpper(c.LogLevel) {
	case "", "DEBUG", "INFO", "WARN", "WARNING", "ERROR":
	default:
		return fmt.Errorf("invalid log_level '%s'", c.LogLevel)
	}

	if c.Evaluator.Temperature < 0 || c.Evaluator.Temperature > 2 {
		return fmt.Errorf("evaluator.temperature must be between 0 and 2, got %v", c.Evaluator.Temperature)
	}
	if c.Evaluator.MaxTokens <= 0 {
		return fmt.Errorf("evaluator.max_tokens must be positive, got %d", c.Evaluator.MaxTokens)
	}
	if c.Evaluator.MaxConcurrency < 1 {
		return fmt.Errorf("evaluator.max_concurrency must be at least 1, got %d", c.Evaluator.MaxConcurrency)
	}
	if c.Evaluator.DimensionCount < 0 {
		return fmt.Errorf("evaluator.dimension_count cannot be negative")
	}

	switch strings.ToLower(c.Matching.Strategy) {
	case "", "lexical", "embedding":
	default:
		return fmt.Errorf("invalid matching.strategy '%s' (valid: lexical, embedding)", c.Matching.Strategy)
	}
	if c.Matching.EmbeddingDim < 0 {
		return fmt.Errorf("matching.embedding_dim cannot be negative")
	}

	if c.Allocation.MemberNum < 0 || c.Allocation.ReviewerNum < 0 {
		return fmt.Errorf("allocation counts cannot be negative")
	}

	switch strings.ToLower(c.Store.Backend) {
	case "", BackendMemory:
	case BackendRedis:
		if c.Store.RedisURL == "" {
			return fmt.Errorf("store.redis_url is required for the redis backend")
		}
		if c.Store.Namespace == "" {
			return fmt.Errorf("store.namespace is required for the redis backend")
		}
	default:
		return fmt.Errorf("invalid store.backend '%s' (valid: memory, redis)", c.Store.Backend)
	}

	if c.Bus.QueryTimeout <= 0 {
		return fmt.Errorf("bus.query_timeout must be positive, got %s", c.Bus.QueryTimeout)
	}
	if c.Bus.CircuitThreshold < 0 {
		return fmt.Errorf("bus.circuit_threshold cannot be negative")
	}
	if c.Bus.CircuitThreshold > 0 && c.Bus.CircuitResetTimeout <= 0 {
		return fmt.Errorf("bus.circuit_reset_timeout must be positive when the circuit breaker is enabled")
	}
	if c.LLM.Timeout < 0 {
		return fmt.Errorf("llm.timeout cannot be negative")
	}

	if c.Pipeline != nil {
		if err := c.Pipeline.Validate(); err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
	}
	return nil
}

// Load reads and validates a YAML config file. Missing keys keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML config data.
func Parse(data []byte) (*Config, error) {
	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return config, nil
}

// ConfigFromMap creates Config from a map.
// Unknown keys are ignored.
func ConfigFromMap(m map[string]any) *Config {
	c := DefaultConfig()

	setString(m, "base_llm", &c.BaseLLM)
	setString(m, "log_level", &c.LogLevel)

	if ev, ok := m["evaluator"].(map[string]any); ok {
		setString(ev, "model", &c.Evaluator.Model)
		setFloat(ev, "temperature", &c.Evaluator.Temperature)
		setInt(ev, "max_tokens", &c.Evaluator.MaxTokens)
		setInt(ev, "max_concurrency", &c.Evaluator.MaxConcurrency)
		setInt(ev, "dimension_count", &c.Evaluator.DimensionCount)
	}
	if mt, ok := m["matching"].(map[string]any); ok {
		setString(mt, "strategy", &c.Matching.Strategy)
		setInt(mt, "embedding_dim", &c.Matching.EmbeddingDim)
	}
	if al, ok := m["allocation"].(map[string]any); ok {
		setInt(al, "member_num", &c.Allocation.MemberNum)
		setInt(al, "reviewer_num", &c.Allocation.ReviewerNum)
	}
	if st, ok := m["store"].(map[string]any); ok {
		setString(st, "backend", &c.Store.Backend)
		setString(st, "redis_url", &c.Store.RedisURL)
		setString(st, "namespace", &c.Store.Namespace)
	}
	if cp, ok := m["checkpoint"].(map[string]any); ok {
		setString(cp, "dir", &c.Checkpoint.Dir)
		if v, ok := cp["with_embed"].(bool); ok {
			c.Checkpoint.WithEmbed = v
		}
	}
	if b, ok := m["bus"].(map[string]any); ok {
		setDuration(b, "query_timeout", &c.Bus.QueryTimeout)
		setInt(b, "circuit_threshold", &c.Bus.CircuitThreshold)
		setDuration(b, "circuit_reset_timeout", &c.Bus.CircuitResetTimeout)
	}
	if l, ok := m["llm"].(map[string]any); ok {
		setString(l, "endpoint", &c.LLM.Endpoint)
		setString(l, "api_key_env", &c.LLM.APIKeyEnv)
		setDuration(l, "timeout", &c.LLM.Timeout)
	}

	return c
}

// ToMap converts config to a map.
func (c *Config) ToMap() map[string]any {
	result := map[string]any{
		"base_llm":  c.BaseLLM,
		"log_level": c.LogLevel,
		"evaluator": map[string]any{
			"model":           c.Evaluator.Model,
			"temperature":     c.Evaluator.Temperature,
			"max_tokens":      c.Evaluator.MaxTokens,
			"max_concurrency": c.Evaluator.MaxConcurrency,
			"dimension_count": c.Evaluator.DimensionCount,
		},
		"matching": map[string]any{
			"strategy":      c.Matching.Strategy,
			"embedding_dim": c.Matching.EmbeddingDim,
		},
		"allocation": map[string]any{
			"member_num":   c.Allocation.MemberNum,
			"reviewer_num": c.Allocation.ReviewerNum,
		},
		"store": map[string]any{
			"backend":   c.Store.Backend,
			"redis_url": c.Store.RedisURL,
			"namespace": c.Store.Namespace,
		},
		"checkpoint": map[string]any{
			"dir":        c.Checkpoint.Dir,
			"with_embed": c.Checkpoint.WithEmbed,
		},
		"bus": map[string]any{
			"query_timeout":         c.Bus.QueryTimeout.String(),
			"circuit_threshold":     c.Bus.CircuitThreshold,
			"circuit_reset_timeout": c.Bus.CircuitResetTimeout.String(),
		},
		"llm": map[string]any{
			"endpoint":    c.LLM.Endpoint,
			"api_key_env": c.LLM.APIKeyEnv,
			"timeout":     c.LLM.Timeout.String(),
		},
	}
	if c.Pipeline != nil {
		result["pipeline"] = c.Pipeline.Name
	}
	return result
}

func setString(m map[string]any, key string, dst *string) {
	if v, ok := m[key].(string); ok {
		*dst = v
	}
}

// setInt accepts int and float64 (JSON numbers).
func setInt(m map[string]any, key string, dst *int) {
	if v, ok := m[key].(int); ok {
		*dst = v
	} else if v, ok := m[key].(float64); ok {
		*dst = int(v)
	}
}

func setFloat(m map[string]any, key string, dst *float64) {
	if v, ok := m[key].(float64); ok {
		*dst = v
	} else if v, ok := m[key].(int); ok {
		*dst = float64(v)
	}
}

// setDuration accepts duration strings such as "30s" and time.Duration values.
func setDuration(m map[string]any, key string, dst *time.Duration) {
	switch v := m[key].(type) {
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	case time.Duration:
		*dst = v
	}
}
