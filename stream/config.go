package stream

import "log/slog"

// Config defines the settings shared by the stream implementations.
type Config struct {
	// Name identifies the stream in logs, events, and metrics.
	Name string `json:"name,omitempty"`

	// QueueSize bounds the Dispatcher's inbound frame queue.
	QueueSize int `json:"queue_size,omitempty"`

	// Observer names a registered observability.Observer.
	Observer string `json:"observer,omitempty"`

	Logger *slog.Logger `json:"-"`
}

func DefaultConfig() Config {
	return Config{
		Name:      "default",
		QueueSize: 100,
		Observer:  "slog",
		Logger:    slog.Default(),
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.Name != "" {
		c.Name = source.Name
	}

	if source.QueueSize > 0 {
		c.QueueSize = source.QueueSize
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}

	if source.Logger != nil {
		c.Logger = source.Logger
	}
}
