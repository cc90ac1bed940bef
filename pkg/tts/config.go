package tts

import (
	"fmt"
	"log/slog"
	"time"
)

// Config holds engine configuration.
// Use functional options (WithXxx) to set these values.
type Config struct {
	// Rate multiplies the engine's base words-per-minute.
	Rate float64

	// Voice is an engine-specific voice name. Empty uses the engine default.
	Voice string

	// Binary overrides the executable path.
	Binary string

	// Timeout bounds one synthesis.
	Timeout time.Duration

	// Logger for the provider.
	Logger *slog.Logger
}

// Option is a functional option for configuring TTS providers.
type Option func(*Config)

// WithRate sets the speaking-rate multiplier.
func WithRate(rate float64) Option {
	return func(c *Config) {
		c.Rate = rate
	}
}

// WithVoice sets the voice name.
func WithVoice(voice string) Option {
	return func(c *Config) {
		c.Voice = voice
	}
}

// WithBinary overrides the engine executable.
func WithBinary(path string) Option {
	return func(c *Config) {
		c.Binary = path
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
		Rate:    DefaultRate,
		Timeout: 30 * time.Second,
		Logger:  slog.Default(),
	}
}

// Apply applies functional options to the config.
func (c *Config) Apply(opts ...Option) {
	for _, opt := range opts {
		opt(c)
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Rate <= 0 || c.Rate > 4 {
		return fmt.Errorf("tts: rate must be in (0, 4], got %v", c.Rate)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("tts: timeout must be positive, got %v", c.Timeout)
	}
	return nil
}

// wordsPerMinute scales an engine's base rate.
func (c *Config) wordsPerMinute(base int) int {
	return int(float64(base)*c.Rate + 0.5)
}
