package ollama

import "time"

// Config tunes the client used for job summaries.
type Config struct {
	BaseURL string        `yaml:"base_url" json:"base_url"`
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// Retries counts extra attempts after the first failed generate call.
	Retries int           `yaml:"retries" json:"retries"`
	Backoff time.Duration `yaml:"backoff" json:"backoff"`
	// The circuit opens after CircuitFailureThreshold consecutive failures
	// and lets one request through once CircuitReset has passed.
	CircuitFailureThreshold int           `yaml:"circuit_failure_threshold" json:"circuit_failure_threshold"`
	CircuitReset            time.Duration `yaml:"circuit_reset" json:"circuit_reset"`
}

func DefaultConfig() Config {
	return Config{
		BaseURL:                 "http://localhost:11434",
		Timeout:                 30 * time.Second,
		Retries:                 2,
		Backoff:                 500 * time.Millisecond,
		CircuitFailureThreshold: 5,
		CircuitReset:            30 * time.Second,
	}
}

// WithDefaults fills every unset or non-positive field from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.BaseURL == "" {
		c.BaseURL = def.BaseURL
	}
	if c.Timeout <= 0 {
		c.Timeout = def.Timeout
	}
	if c.Retries <= 0 {
		c.Retries = def.Retries
	}
	if c.Backoff <= 0 {
		c.Backoff = def.Backoff
	}
	if c.CircuitFailureThreshold <= 0 {
		c.CircuitFailureThreshold = def.CircuitFailureThreshold
	}
	if c.CircuitReset <= 0 {
		c.CircuitReset = def.CircuitReset
	}
	return c
}
