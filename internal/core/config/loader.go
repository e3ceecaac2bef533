package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	for i := range cfg.Chains {
		c := &cfg.Chains[i]
		if c.PollInterval == 0 {
			c.PollInterval = 5 * time.Second
		}
		if c.WaitTimeout == 0 {
			c.WaitTimeout = 3 * time.Minute
		}
		if c.LogWindow == 0 {
			c.LogWindow = 1000
		}
		if c.MaxRetries == 0 {
			c.MaxRetries = 10
		}
		if len(c.Pools) == 0 {
			c.Pools = []PoolConfig{{Name: "default"}}
		}
	}

	return &cfg, nil
}
