// Package tts synthesizes speech on the local machine.
//
// It is the fallback voice for turns whose reply arrives without audio.
// Engines are external programs (espeak-ng, macOS say) wrapped as Providers;
// a Chain tries them in order.
//
// Example usage:
//
//	engine, _ := tts.NewChain(tts.NewEspeak(), tts.NewSay())
//	result, _ := engine.Synthesize(ctx, "Hello world")
//	// result.Audio holds a WAV file at the engine's native rate
package tts

import (
	"context"
	"time"
)

// DefaultRate is the speaking-rate multiplier applied to every engine.
const DefaultRate = 1.1

// Provider defines the TTS provider interface.
type Provider interface {
	// Synthesize converts text to audio, returning the complete buffer.
	Synthesize(ctx context.Context, text string) (*AudioResult, error)

	// Health reports whether the engine can run on this machine.
	Health(ctx context.Context) error

	// Name identifies the engine in logs.
	Name() string

	// Close releases any resources held by the provider.
	Close() error
}

// AudioResult represents a complete audio synthesis result.
type AudioResult struct {
	// Audio contains the encoded audio.
	Audio []byte

	// Format describes the audio encoding and sample rate.
	Format AudioFormat

	// Duration is the estimated playback duration, 0 if unknown.
	Duration time.Duration

	// CharCount is the number of characters synthesized.
	CharCount int

	// Latency is how long the engine took.
	Latency time.Duration

	// Provider names the engine that produced the audio.
	Provider string
}

// AudioFormat describes the audio encoding parameters.
type AudioFormat struct {
	// Encoding specifies the container or raw layout.
	Encoding Encoding

	// SampleRate in Hz. 0 when the container carries it (WAV).
	SampleRate int

	// Channels is 1 for mono, 2 for stereo.
	Channels int

	// BitDepth for PCM formats.
	BitDepth int
}

// Encoding represents audio encoding types.
type Encoding string

const (
	// EncodingPCM16 is raw little-endian 16-bit PCM.
	EncodingPCM16 Encoding = "pcm_s16le"
	// EncodingWAV is a RIFF/WAVE file.
	EncodingWAV Encoding = "wav"
)
