package contextstore

import "log/slog"

// Config holds store initialization parameters.
type Config struct {
	// Namespaces restricts readable and writable addresses to these prefixes.
	// Empty allows every address.
	Namespaces []string `json:"namespaces,omitempty"`

	// Contexts are opened when the store is created.
	Contexts []string `json:"contexts,omitempty"`

	Logger *slog.Logger `json:"-"`
}

// DefaultConfig returns an unrestricted store with no open contexts.
func DefaultConfig() Config {
	return Config{
		Logger: slog.Default(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if len(source.Namespaces) > 0 {
		c.Namespaces = source.Namespaces
	}

	if len(source.Contexts) > 0 {
		c.Contexts = source.Contexts
	}

	if source.Logger != nil {
		c.Logger = source.Logger
	}
}
