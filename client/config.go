package client

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailored-agentic-units/statecontext/state"
	"github.com/tailored-agentic-units/statecontext/stream"
)

const defaultEndpoint = "http://localhost:4004"

// Config holds initialization parameters for a Client. Each section delegates
// to its package's DefaultConfig and Merge.
type Config struct {
	// Endpoint is the base URL of the context manager's connect service.
	Endpoint string        `json:"endpoint,omitempty"`
	Stream   stream.Config `json:"stream"`
	State    state.Config  `json:"state"`
}

func DefaultConfig() Config {
	return Config{
		Endpoint: defaultEndpoint,
		Stream:   stream.DefaultConfig(),
		State:    state.DefaultConfig(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Endpoint != "" {
		c.Endpoint = source.Endpoint
	}

	c.Stream.Merge(&source.Stream)
	c.State.Merge(&source.State)
}

// LoadConfig reads a JSON config file, merges it with defaults, and returns
// the resulting Config.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var loaded Config
	if err := json.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.Merge(&loaded)
	return &cfg, nil
}
