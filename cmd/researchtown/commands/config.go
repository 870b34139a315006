package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "RESEARCHTOWN"

// loadConfig layers defaults, the optional config file and RESEARCHTOWN_*
// environment variables, then validates the result.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	setDefaults(v, "", config.DefaultConfig().ToMap())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	cfg := config.DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every leaf of m under its dotted key so AutomaticEnv
// can override it. The pipeline topology only comes from files.
func setDefaults(v *viper.Viper, prefix string, m map[string]any) {
	for k, val := range m {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if key == "pipeline" {
			continue
		}
		if nested, ok := val.(map[string]any); ok {
			setDefaults(v, key, nested)
			continue
		}
		v.SetDefault(key, val)
	}
}

// resolvePipelineSpec returns the spec at path, or the config's own.
func resolvePipelineSpec(cfg *config.Config, path string) (*config.PipelineSpec, error) {
	if path != "" {
		return config.LoadPipelineSpec(path)
	}
	if cfg.Pipeline == nil {
		return nil, errors.New("no pipeline: pass --pipeline or set pipeline in the config file")
	}
	return cfg.Pipeline, nil
}
