package telemetry

import "fmt"

// Config controls run tracing.
type Config struct {
	// Enabled turns on the SDK tracer provider. When false a noop
	// provider is installed and spans cost nothing.
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/HTTP collector address (host:port). Spans are
	// recorded but not exported when empty.
	Endpoint string `yaml:"endpoint,omitempty"`

	// Insecure disables TLS towards Endpoint.
	Insecure bool `yaml:"insecure,omitempty"`

	// SampleRate is the fraction of runs traced, 0 to 1.
	SampleRate float64 `yaml:"sample_rate,omitempty"`
}

// DefaultConfig keeps tracing off.
func DefaultConfig() Config {
	return Config{SampleRate: 1.0}
}

func (c Config) Validate() error {
	if c.SampleRate < 0 || c.SampleRate > 1 {
		return fmt.Errorf("sample_rate must be between 0 and 1, got %g", c.SampleRate)
	}
	return nil
}
