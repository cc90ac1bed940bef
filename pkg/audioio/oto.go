package audioio

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ebitengine/oto/v3"
)

// oto allows a single context per process.
var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoErr  error
	otoCfg  Config
)

func sharedOtoContext(cfg Config) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoCfg = cfg
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   cfg.SampleRate,
			ChannelCount: cfg.Channels,
			Format:       oto.FormatSignedInt16LE,
			BufferSize:   cfg.BufferDuration * 5,
		})
		if err != nil {
			otoErr = &DeviceError{Backend: "oto", Op: "init context", Err: err}
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoCfg.SampleRate != cfg.SampleRate || otoCfg.Channels != cfg.Channels {
		return nil, fmt.Errorf("oto context already opened at %d Hz/%d ch", otoCfg.SampleRate, otoCfg.Channels)
	}
	return otoCtx, nil
}

// OtoSink plays PCM16 through the default output device.
type OtoSink struct {
	cfg    Config
	logger *slog.Logger
	ctx    *oto.Context

	mu      sync.Mutex
	cond    *sync.Cond
	player  *oto.Player
	gen     uint64
	buf     []byte
	running bool
	closed  bool

	chunksWritten  atomic.Int64
	samplesWritten atomic.Int64
}

func newOtoSink(cfg Config, logger *slog.Logger) (*OtoSink, error) {
	ctx, err := sharedOtoContext(cfg)
	if err != nil {
		return nil, err
	}
	s := &OtoSink{
		cfg:    cfg,
		logger: logger,
		ctx:    ctx,
		buf:    make([]byte, 0, cfg.SampleRate*cfg.Channels*4),
	}
	s.cond = sync.NewCond(&s.mu)
	return s, nil
}

// Start marks the sink ready. The player is created on first Write.
func (s *OtoSink) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return io.ErrClosedPipe
	}
	s.running = true
	return nil
}

// Stop drops pending audio and halts the player.
func (s *OtoSink) Stop() error {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
	return s.Clear()
}

// Write queues a chunk for playback.
func (s *OtoSink) Write(ctx context.Context, chunk AudioChunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed || !s.running {
		return io.ErrClosedPipe
	}

	s.buf = append(s.buf, chunk.Bytes()...)
	s.chunksWritten.Add(1)
	s.samplesWritten.Add(int64(len(chunk.Samples)))

	if s.player == nil {
		s.player = s.ctx.NewPlayer(&otoReader{sink: s, gen: s.gen})
		s.player.Play()
	}
	s.cond.Signal()
	return nil
}

// otoReader is the io.Reader one oto.Player pulls from. It reports EOF once
// the sink has been cleared past its generation.
type otoReader struct {
	sink *OtoSink
	gen  uint64
}

func (r *otoReader) Read(p []byte) (int, error) {
	s := r.sink
	s.mu.Lock()
	defer s.mu.Unlock()

	for len(s.buf) == 0 && !s.closed && s.gen == r.gen {
		s.cond.Wait()
	}
	if s.gen != r.gen || len(s.buf) == 0 {
		return 0, io.EOF
	}

	n := copy(p, s.buf)
	s.buf = s.buf[n:]
	if len(s.buf) == 0 {
		s.cond.Broadcast()
	}
	return n, nil
}

// Flush waits until the queue is empty and the device buffer has drained.
func (s *OtoSink) Flush(ctx context.Context) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		s.mu.Lock()
		pending := len(s.buf)
		player := s.player
		s.mu.Unlock()

		if pending == 0 && (player == nil || player.BufferedSize() == 0) {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Clear silences the output immediately and discards queued audio.
func (s *OtoSink) Clear() error {
	s.mu.Lock()
	s.buf = s.buf[:0]
	player := s.player
	s.player = nil
	s.gen++
	s.cond.Broadcast()
	s.mu.Unlock()

	if player != nil {
		player.Pause()
		return player.Close()
	}
	return nil
}

// Config returns the audio configuration.
func (s *OtoSink) Config() Config {
	return s.cfg
}

// Name returns "oto".
func (s *OtoSink) Name() string {
	return "oto"
}

// Close stops playback. The shared oto context stays open for the process.
func (s *OtoSink) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()
	return s.Stop()
}

// Stats returns playback statistics.
func (s *OtoSink) Stats() SinkStats {
	s.mu.Lock()
	running := s.running
	buffered := int64(len(s.buf) / 2)
	s.mu.Unlock()

	return SinkStats{
		ChunksWritten:   s.chunksWritten.Load(),
		SamplesWritten:  s.samplesWritten.Load(),
		Running:         running,
		Backend:         "oto",
		BufferedSamples: buffered,
	}
}

var _ SinkWithStats = (*OtoSink)(nil)
