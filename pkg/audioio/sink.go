package audioio

import (
	"context"
	"io"
)

// Sink plays audio to a speaker. It is the single audio-output element of a
// client: writing new audio after Clear replaces whatever was pending.
type Sink interface {
	// Start opens the output device.
	Start(ctx context.Context) error

	// Stop halts audio playback.
	// It is safe to call Stop multiple times.
	Stop() error

	// Write queues an audio chunk. Chunks must already be at the sink's
	// sample rate and channel count.
	Write(ctx context.Context, chunk AudioChunk) error

	// Flush blocks until all queued audio has been played or ctx is done.
	Flush(ctx context.Context) error

	// Clear discards all queued audio immediately.
	Clear() error

	// Config returns the current audio configuration.
	Config() Config

	// Name returns the backend name.
	Name() string

	// Close releases all resources.
	io.Closer
}

// SinkStats contains statistics about the audio sink.
type SinkStats struct {
	ChunksWritten   int64  `json:"chunks_written"`
	SamplesWritten  int64  `json:"samples_written"`
	Running         bool   `json:"running"`
	Backend         string `json:"backend"`
	BufferedSamples int64  `json:"buffered_samples"`
}

// SinkWithStats extends Sink with statistics.
type SinkWithStats interface {
	Sink
	Stats() SinkStats
}
