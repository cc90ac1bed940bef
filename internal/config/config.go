// Package config loads parley's settings from a YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/teslashibe/parley/pkg/audioio"
	"github.com/teslashibe/parley/pkg/session"
	"github.com/teslashibe/parley/pkg/tts"
)

// Defaults.
const (
	DefaultBackendURL     = "http://localhost:5000"
	DefaultSkin           = "quiz"
	DefaultProductsDir    = "./products"
	DefaultRequestTimeout = 60 * time.Second
)

// opusRates are the capture rates the clip encoder accepts.
var opusRates = []int{8000, 12000, 16000, 24000, 48000}

// Config is the full client configuration.
type Config struct {
	// BackendURL is the dialogue backend's base URL.
	BackendURL string `yaml:"backend_url"`
	// Skin selects the session variant: quiz, rpg, wellness or shopping.
	Skin string `yaml:"skin"`
	// PlayerName is sent with the bootstrap request when set.
	PlayerName string `yaml:"player_name"`
	// RequestTimeout bounds one backend round trip.
	RequestTimeout time.Duration `yaml:"request_timeout"`
	// LogLevel is debug, info, warn or error.
	LogLevel string `yaml:"log_level"`

	Input     audioio.Config  `yaml:"input"`
	Output    audioio.Config  `yaml:"output"`
	Voice     VoiceConfig     `yaml:"voice"`
	Dashboard DashboardConfig `yaml:"dashboard"`
}

// VoiceConfig configures local speech synthesis.
type VoiceConfig struct {
	Rate  float64 `yaml:"rate"`
	Voice string  `yaml:"voice"`
}

// DashboardConfig configures the browser dashboard. An empty Port
// disables it.
type DashboardConfig struct {
	Port        string `yaml:"port"`
	ProductsDir string `yaml:"products_dir"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	in := audioio.DefaultConfig()
	in.SampleRate = 48000

	return &Config{
		BackendURL:     DefaultBackendURL,
		Skin:           DefaultSkin,
		RequestTimeout: DefaultRequestTimeout,
		LogLevel:       "info",
		Input:          in,
		Output:         audioio.DefaultConfig(),
		Voice:          VoiceConfig{Rate: tts.DefaultRate},
		Dashboard:      DashboardConfig{ProductsDir: DefaultProductsDir},
	}
}

// LoadFile reads a YAML file over the defaults.
func LoadFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ApplyEnv overrides settings from environment variables.
func (c *Config) ApplyEnv() {
	c.BackendURL = Env("PARLEY_BACKEND_URL", c.BackendURL)
	c.Skin = Env("PARLEY_SKIN", c.Skin)
	c.PlayerName = Env("PARLEY_PLAYER_NAME", c.PlayerName)
	c.Dashboard.Port = Env("PARLEY_DASHBOARD_PORT", c.Dashboard.Port)
	c.LogLevel = Env("LOG_LEVEL", c.LogLevel)
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	var errs []error

	u, err := url.Parse(c.BackendURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("backend_url must be an http(s) URL, got %q", c.BackendURL))
	}
	if _, err := session.ParseSkin(c.Skin); err != nil {
		errs = append(errs, fmt.Errorf("skin: %w", err))
	}
	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("request_timeout must be positive, got %v", c.RequestTimeout))
	}
	if err := c.Input.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("input: %w", err))
	} else if !slices.Contains(opusRates, c.Input.SampleRate) {
		errs = append(errs, fmt.Errorf("input.sample_rate must be one of %v, got %d", opusRates, c.Input.SampleRate))
	}
	if err := c.Output.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("output: %w", err))
	}
	if c.Voice.Rate <= 0 || c.Voice.Rate > 4 {
		errs = append(errs, fmt.Errorf("voice.rate must be in (0, 4], got %v", c.Voice.Rate))
	}
	return errors.Join(errs...)
}

// SkinValue returns the parsed skin. Call Validate first.
func (c *Config) SkinValue() session.Skin {
	skin, _ := session.ParseSkin(c.Skin)
	return skin
}

// DashboardAddr returns the listen address, or "" when disabled.
func (c *Config) DashboardAddr() string {
	port := strings.TrimPrefix(strings.TrimSpace(c.Dashboard.Port), ":")
	if port == "" {
		return ""
	}
	return ":" + port
}

// Env returns the environment variable key, or def when it is unset or
// blank.
func Env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}
