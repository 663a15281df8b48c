package state

import (
	"encoding/json"
	"fmt"
	"time"
)

// DefaultWaitTimeout bounds each of the two waits on a reply.
const DefaultWaitTimeout = 2 * time.Second

// Duration is a time.Duration that reads and writes JSON as a duration
// string ("2s", "500ms"). Plain numbers are read as nanoseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case float64:
		*d = Duration(time.Duration(v))
	default:
		return fmt.Errorf("invalid duration %s", data)
	}
	return nil
}

// Config holds Accessor settings.
//
// Example JSON:
//
//	{"wait_timeout": "2s", "observer": "slog"}
type Config struct {
	// WaitTimeout bounds each wait on a reply. A call waits at most twice.
	WaitTimeout Duration `json:"wait_timeout,omitempty"`

	// Observer names a registered observability.Observer.
	Observer string `json:"observer,omitempty"`
}

func DefaultConfig() Config {
	return Config{
		WaitTimeout: Duration(DefaultWaitTimeout),
		Observer:    "slog",
	}
}

// Merge applies non-zero values from source into c.
func (c *Config) Merge(source *Config) {
	if source.WaitTimeout > 0 {
		c.WaitTimeout = source.WaitTimeout
	}

	if source.Observer != "" {
		c.Observer = source.Observer
	}
}
