package tts

import (
	"log/slog"
	"time"
)

// Config holds TTS provider configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Piper binary and voice model
	Executable string
	Model      string

	// Output sample rate of the voice model
	SampleRate int

	// Timeout bounds a single synthesis
	Timeout time.Duration

	// Observability
	Logger *slog.Logger
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithExecutable sets the path of the piper binary.
func WithExecutable(path string) Option {
	return func(c *Config) {
		c.Executable = path
	}
}

// WithModel sets the voice model path.
func WithModel(path string) Option {
	return func(c *Config) {
		c.Model = path
	}
}

// WithSampleRate sets the model's output sample rate.
func WithSampleRate(rate int) Option {
	return func(c *Config) {
		c.SampleRate = rate
	}
}

// WithTimeout sets the synthesis timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Config) {
		c.Timeout = timeout
	}
}

// WithLogger sets the structured logger for the provider.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	return &Config{
		Executable: "piper",
		SampleRate: 22050, // medium-quality Piper voices
		Timeout:    30 * time.Second,
		Logger:     slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Executable == "" {
		return ErrNoExecutable
	}
	if c.Model == "" {
		return ErrNoModel
	}
	if c.SampleRate <= 0 {
		return ErrBadSampleRate
	}
	return nil
}
