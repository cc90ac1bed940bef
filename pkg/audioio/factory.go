package audioio

import (
	"fmt"
	"log/slog"
)

// NewSource opens a capture source with the given configuration.
// BackendAuto selects malgo.
func NewSource(cfg Config, logger *slog.Logger) (Source, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendMalgo
	}

	logger.Debug("creating audio source",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
		"buffer_ms", cfg.BufferDuration.Milliseconds(),
	)

	switch backend {
	case BackendMock:
		return NewMockSource(cfg, logger), nil
	case BackendMalgo:
		return newMalgoSource(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported capture backend: %s", backend)
	}
}

// NewSink opens a playback sink with the given configuration.
// BackendAuto selects oto.
func NewSink(cfg Config, logger *slog.Logger) (Sink, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	backend := cfg.Backend
	if backend == BackendAuto {
		backend = BackendOto
	}

	logger.Debug("creating audio sink",
		"backend", backend,
		"sample_rate", cfg.SampleRate,
		"channels", cfg.Channels,
	)

	switch backend {
	case BackendMock:
		return NewMockSink(cfg, logger), nil
	case BackendOto:
		return newOtoSink(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported playback backend: %s", backend)
	}
}

// SourceOpener returns a function that opens a fresh source per call, so a
// recorder can hold the device only while recording.
func SourceOpener(cfg Config, logger *slog.Logger) func() (Source, error) {
	return func() (Source, error) {
		return NewSource(cfg, logger)
	}
}
