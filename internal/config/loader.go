package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// EnvPath names the environment variable binaries read their config path from.
const EnvPath = "CHATFLOW_CONFIG"

// load reads a YAML file into cfg after expanding environment variables.
// An empty path leaves cfg untouched.
func load(path string, cfg any) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	// Expand ${VAR} environment variables
	expanded := os.ExpandEnv(string(data))

	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return fmt.Errorf("parse config yaml: %w", err)
	}
	return nil
}

// LoadClient reads a load generator config file.
func LoadClient(path string) (*ClientConfig, error) {
	var cfg ClientConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadClientWithDefaults loads a load generator config and applies default values.
func LoadClientWithDefaults(path string) (*ClientConfig, error) {
	cfg, err := LoadClient(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

// LoadClientAndValidate loads a load generator config, applies defaults, and validates.
func LoadClientAndValidate(path string) (*ClientConfig, error) {
	cfg, err := LoadClientWithDefaults(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// LoadServer reads a chat server config file.
func LoadServer(path string) (*ServerConfig, error) {
	var cfg ServerConfig
	if err := load(path, &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadServerAndValidate loads a chat server config, applies defaults, and validates.
func LoadServerAndValidate(path string) (*ServerConfig, error) {
	cfg, err := LoadServer(path)
	if err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}
