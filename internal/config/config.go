// internal/config/config.go
package config

import (
	"encoding/json"
	"os"

	"semtree/internal/errors"
)

// DefaultThreshold matches a 0.70 cosine-similarity floor expressed as a
// difference ceiling.
const DefaultThreshold = 0.30

type Config struct {
	Server struct {
		Host string `json:"host"`
		Port int    `json:"port"`
	} `json:"server"`

	// Threshold is the difference ceiling: leaves whose fingerprint moved
	// less than this are treated as unchanged.
	Threshold float64 `json:"threshold"`

	// Workers bounds the leaf evaluation pool. 0 means one per CPU.
	Workers int `json:"workers"`

	Embedder struct {
		Kind      string `json:"kind"` // "service" or "openai"
		URL       string `json:"url"`
		Model     string `json:"model"`
		APIKeyEnv string `json:"api_key_env"`
	} `json:"embedder"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

func Default() *Config {
	cfg := &Config{}
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = 8135
	cfg.Threshold = DefaultThreshold
	cfg.Embedder.Kind = "service"
	cfg.Embedder.URL = "http://localhost:8000"
	cfg.Embedder.APIKeyEnv = "OPENAI_API_KEY"
	cfg.LogLevel = "info"
	return cfg
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	cfg := Default()
	if err := json.NewDecoder(file).Decode(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate fails fast at configuration time; an out-of-range threshold is
// never clamped.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return errors.Config("threshold must be in [0,1], got %v", c.Threshold)
	}
	if c.Workers < 0 {
		return errors.Config("workers must be >= 0, got %d", c.Workers)
	}
	switch c.Embedder.Kind {
	case "service", "openai":
	default:
		return errors.Config("unknown embedder kind %q", c.Embedder.Kind)
	}
	return nil
}
