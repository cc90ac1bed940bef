package tts

import (
	"context"
	"sync"
	"time"
)

// Mock is an in-memory engine for tests. By default it answers every
// non-empty text with a quiet 24 kHz PCM tone, 20ms per character.
type Mock struct {
	// SampleRate of the generated tone.
	SampleRate int

	// Err, when set, is returned by Synthesize and Health.
	Err error

	// Delay is waited out before answering, honouring ctx.
	Delay time.Duration

	mu    sync.Mutex
	calls []MockCall
}

// MockCall records a method invocation for verification.
type MockCall struct {
	Method string
	Text   string
	Time   time.Time
}

// NewMock creates a working mock engine.
func NewMock() *Mock {
	return &Mock{SampleRate: 24000}
}

// WithError returns a mock engine that always fails with err.
func WithError(err error) *Mock {
	m := NewMock()
	m.Err = err
	return m
}

// WithLatency makes m wait delay before answering.
func WithLatency(m *Mock, delay time.Duration) *Mock {
	m.Delay = delay
	return m
}

// Synthesize records the call and returns the tone for text.
func (m *Mock) Synthesize(ctx context.Context, text string) (*AudioResult, error) {
	m.record("Synthesize", text)

	if m.Delay > 0 {
		select {
		case <-time.After(m.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.Err != nil {
		return nil, m.Err
	}
	if text == "" {
		return nil, WrapError(m.Name(), ErrEmptyText)
	}

	perChar := m.SampleRate / 50
	audio := make([]byte, len(text)*perChar*2)
	for i := 0; i < len(audio); i += 2 {
		audio[i] = 0x40
	}

	return &AudioResult{
		Audio: audio,
		Format: AudioFormat{
			Encoding:   EncodingPCM16,
			SampleRate: m.SampleRate,
			Channels:   1,
			BitDepth:   16,
		},
		CharCount: len(text),
		Duration:  time.Duration(len(text)) * 20 * time.Millisecond,
		Provider:  m.Name(),
	}, nil
}

// Name returns "mock".
func (m *Mock) Name() string {
	return "mock"
}

// Health returns Err.
func (m *Mock) Health(ctx context.Context) error {
	m.record("Health", "")
	return m.Err
}

// Close records the call.
func (m *Mock) Close() error {
	m.record("Close", "")
	return nil
}

func (m *Mock) record(method, text string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, MockCall{Method: method, Text: text, Time: time.Now()})
}

// Calls returns all recorded method calls.
func (m *Mock) Calls() []MockCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]MockCall(nil), m.calls...)
}

// CallCount returns the number of times a method was called.
func (m *Mock) CallCount(method string) int {
	n := 0
	for _, c := range m.Calls() {
		if c.Method == method {
			n++
		}
	}
	return n
}

// LastCall returns the most recent call, or nil if none.
func (m *Mock) LastCall() *MockCall {
	calls := m.Calls()
	if len(calls) == 0 {
		return nil
	}
	return &calls[len(calls)-1]
}

// Reset clears all recorded calls.
func (m *Mock) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

var _ Provider = (*Mock)(nil)
