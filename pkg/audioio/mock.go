package audioio

import (
	"context"
	"io"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Signal returns the mono sample a mock microphone hears at frame n.
type Signal func(n int64) int16

// Silence is the default signal.
func Silence(int64) int16 { return 0 }

// MockSource is a microphone that captures a synthetic Signal in real time,
// one chunk per BufferDuration.
type MockSource struct {
	cfg    Config
	logger *slog.Logger
	signal Signal

	mu       sync.Mutex
	running  bool
	closed   bool
	startErr error
	frame    int64
	streamCh chan AudioChunk
	stopCh   chan struct{}

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

// MockSourceOption configures a MockSource.
type MockSourceOption func(*MockSource)

// WithSineWave makes the microphone hear a steady tone.
func WithSineWave(frequency, amplitude float64) MockSourceOption {
	return func(m *MockSource) {
		rate := float64(m.cfg.SampleRate)
		m.signal = func(n int64) int16 {
			return int16(amplitude * 32767 * math.Sin(2*math.Pi*frequency*float64(n)/rate))
		}
	}
}

// WithClip makes the microphone hear samples once, then silence, the way
// a player says one phrase into it.
func WithClip(samples []int16) MockSourceOption {
	clip := append([]int16(nil), samples...)
	return func(m *MockSource) {
		m.signal = func(n int64) int16 {
			if n < int64(len(clip)) {
				return clip[n]
			}
			return 0
		}
	}
}

// WithStartError makes Start fail with err, the way a device does when the
// user denies microphone access.
func WithStartError(err error) MockSourceOption {
	return func(m *MockSource) {
		m.startErr = err
	}
}

// NewMockSource creates a mock microphone.
func NewMockSource(cfg Config, logger *slog.Logger, opts ...MockSourceOption) *MockSource {
	if logger == nil {
		logger = slog.Default()
	}
	m := &MockSource{
		cfg:    cfg,
		logger: logger,
		signal: Silence,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start begins capturing. Each Start opens a fresh stream.
func (m *MockSource) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case m.closed:
		return io.ErrClosedPipe
	case m.startErr != nil:
		return &DeviceError{Backend: "mock", Op: "start", Err: m.startErr}
	case m.running:
		return nil
	}

	m.running = true
	m.stopCh = make(chan struct{})
	m.streamCh = make(chan AudioChunk, 64)
	go m.capture(ctx, m.stopCh, m.streamCh)

	m.logger.Debug("mock microphone started", "sample_rate", m.cfg.SampleRate)
	return nil
}

func (m *MockSource) capture(ctx context.Context, stop <-chan struct{}, out chan AudioChunk) {
	ticker := time.NewTicker(m.cfg.BufferDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = m.Stop()
			return
		case <-stop:
			return
		case <-ticker.C:
		}

		m.mu.Lock()
		if !m.running || out != m.streamCh {
			m.mu.Unlock()
			return
		}
		chunk := m.next()
		select {
		case out <- chunk:
			m.chunksRead.Add(1)
			m.samplesRead.Add(int64(len(chunk.Samples)))
		default:
			m.overruns.Add(1)
		}
		m.mu.Unlock()
	}
}

// next renders one buffer of the signal. Callers hold mu.
func (m *MockSource) next() AudioChunk {
	frames, channels := m.cfg.BufferSize(), m.cfg.Channels
	samples := make([]int16, frames*channels)
	for i := 0; i < frames; i++ {
		v := m.signal(m.frame)
		m.frame++
		for ch := 0; ch < channels; ch++ {
			samples[i*channels+ch] = v
		}
	}
	return AudioChunk{Samples: samples, SampleRate: m.cfg.SampleRate, Channels: channels}
}

// Stop halts capture. Chunks already produced stay readable until the
// stream is drained.
func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return nil
	}
	m.running = false
	close(m.stopCh)
	close(m.streamCh)
	return nil
}

// Read reads the next audio chunk.
func (m *MockSource) Read(ctx context.Context) (AudioChunk, error) {
	ch := m.Stream()
	if ch == nil {
		return AudioChunk{}, io.EOF
	}
	select {
	case <-ctx.Done():
		return AudioChunk{}, ctx.Err()
	case chunk, ok := <-ch:
		if !ok {
			return AudioChunk{}, io.EOF
		}
		return chunk, nil
	}
}

// Stream returns the current capture stream, nil before the first Start.
func (m *MockSource) Stream() <-chan AudioChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.streamCh
}

// Config returns the audio configuration.
func (m *MockSource) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSource) Name() string {
	return "mock"
}

// Close stops capture for good.
func (m *MockSource) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()
	return m.Stop()
}

// Stats returns capture statistics.
func (m *MockSource) Stats() SourceStats {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	return SourceStats{
		ChunksRead:  m.chunksRead.Load(),
		SamplesRead: m.samplesRead.Load(),
		Overruns:    m.overruns.Load(),
		Running:     running,
		Backend:     "mock",
	}
}

var _ SourceWithStats = (*MockSource)(nil)

// MockSink is a speaker that keeps every sample it plays.
type MockSink struct {
	cfg    Config
	logger *slog.Logger

	// FlushDelay simulates playback time in Flush.
	FlushDelay time.Duration

	mu      sync.Mutex
	running bool
	closed  bool
	pending []int16
	played  []int16

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
	clears         atomic.Int64
}

// NewMockSink creates a mock speaker.
func NewMockSink(cfg Config, logger *slog.Logger) *MockSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &MockSink{cfg: cfg, logger: logger}
}

// Start opens the speaker.
func (m *MockSink) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return io.ErrClosedPipe
	}
	m.running = true
	return nil
}

// Stop closes the speaker until the next Start.
func (m *MockSink) Stop() error {
	m.mu.Lock()
	m.running = false
	m.mu.Unlock()
	return nil
}

// Write queues a chunk.
func (m *MockSink) Write(ctx context.Context, chunk AudioChunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed || !m.running {
		return io.ErrClosedPipe
	}
	m.pending = append(m.pending, chunk.Samples...)
	m.chunksWritten.Add(1)
	m.samplesWritten.Add(int64(len(chunk.Samples)))
	return nil
}

// Flush waits FlushDelay, then counts whatever is still queued as played.
// Audio cleared while Flush waits is not played.
func (m *MockSink) Flush(ctx context.Context) error {
	if m.FlushDelay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.FlushDelay):
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.played = append(m.played, m.pending...)
	m.pending = m.pending[:0]
	return ctx.Err()
}

// Clear drops queued audio.
func (m *MockSink) Clear() error {
	m.mu.Lock()
	m.pending = m.pending[:0]
	m.mu.Unlock()
	m.clears.Add(1)
	return nil
}

// Played returns a copy of all samples that made it through Flush.
func (m *MockSink) Played() []int16 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int16(nil), m.played...)
}

// Clears returns how many times Clear was called.
func (m *MockSink) Clears() int64 {
	return m.clears.Load()
}

// Config returns the audio configuration.
func (m *MockSink) Config() Config {
	return m.cfg
}

// Name returns "mock".
func (m *MockSink) Name() string {
	return "mock"
}

// Close shuts the speaker for good.
func (m *MockSink) Close() error {
	m.mu.Lock()
	m.closed = true
	m.running = false
	m.mu.Unlock()
	return nil
}

// Stats returns playback statistics.
func (m *MockSink) Stats() SinkStats {
	m.mu.Lock()
	running, pending := m.running, len(m.pending)
	m.mu.Unlock()

	return SinkStats{
		ChunksWritten:   m.chunksWritten.Load(),
		SamplesWritten:  m.samplesWritten.Load(),
		Running:         running,
		Backend:         "mock",
		BufferedSamples: int64(pending),
	}
}

var _ SinkWithStats = (*MockSink)(nil)
