package config

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. EDSYNC_SOURCE_BASE_URL.
const EnvPrefix = "EDSYNC"

// Load builds a Config from defaults, the YAML file at filePath (optional)
// and EDSYNC_* environment variables, in increasing precedence.
func Load(filePath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults, err := yaml.Marshal(NewConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal defaults: %w", err)
	}
	if err := v.ReadConfig(bytes.NewReader(defaults)); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if filePath != "" {
		data, err := os.ReadFile(filePath) //nolint:gosec // G304: path is supplied by the operator
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		content := substituteEnvVars(string(data))
		if err := v.MergeConfig(strings.NewReader(content)); err != nil {
			return nil, fmt.Errorf("failed to parse YAML: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	return cfg, nil
}

// Save saves a configuration to a YAML file
func Save(filePath string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal YAML: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// substituteEnvVars replaces ${VAR_NAME} with environment variable values
func substituteEnvVars(content string) string {
	for {
		start := strings.Index(content, "${")
		if start == -1 {
			break
		}
		end := strings.Index(content[start:], "}")
		if end == -1 {
			break
		}
		end += start

		varName := content[start+2 : end]
		envValue := os.Getenv(varName)
		content = content[:start] + envValue + content[end+1:]
	}
	return content
}
