package audioio

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoSource captures microphone audio through miniaudio.
type MalgoSource struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	mctx     *malgo.AllocatedContext
	device   *malgo.Device
	running  bool
	closed   bool
	streamCh chan AudioChunk

	chunksRead  atomic.Int64
	samplesRead atomic.Int64
	overruns    atomic.Int64
}

func newMalgoSource(cfg Config, logger *slog.Logger) (*MalgoSource, error) {
	ctxCfg := malgo.ContextConfig{}
	ctxCfg.ThreadPriority = malgo.ThreadPriorityRealtime

	mctx, err := malgo.InitContext(nil, ctxCfg, nil)
	if err != nil {
		return nil, &DeviceError{Backend: "malgo", Op: "init context", Err: err}
	}

	return &MalgoSource{
		cfg:      cfg,
		logger:   logger,
		mctx:     mctx,
		streamCh: make(chan AudioChunk, 64),
	}, nil
}

// Start opens the default capture device and begins streaming.
func (s *MalgoSource) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return io.ErrClosedPipe
	}
	if s.running {
		return nil
	}

	devCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	devCfg.Capture.Format = malgo.FormatS16
	devCfg.Capture.Channels = uint32(s.cfg.Channels)
	devCfg.SampleRate = uint32(s.cfg.SampleRate)
	devCfg.PeriodSizeInMilliseconds = uint32(s.cfg.BufferDuration.Milliseconds())

	s.streamCh = make(chan AudioChunk, 64)
	out := s.streamCh

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			chunk := AudioChunk{
				Samples:    BytesToSamples(input),
				SampleRate: s.cfg.SampleRate,
				Channels:   s.cfg.Channels,
			}

			s.mu.Lock()
			defer s.mu.Unlock()
			if !s.running {
				return
			}
			select {
			case out <- chunk:
				s.chunksRead.Add(1)
				s.samplesRead.Add(int64(len(chunk.Samples)))
			default:
				s.overruns.Add(1)
			}
		},
	}

	device, err := malgo.InitDevice(s.mctx.Context, devCfg, callbacks)
	if err != nil {
		return &DeviceError{Backend: "malgo", Op: "init capture device", Err: err}
	}
	s.device = device
	s.running = true

	// Start invokes the data callback on another thread, which takes s.mu.
	s.mu.Unlock()
	err = device.Start()
	s.mu.Lock()
	if err != nil {
		s.running = false
		s.device = nil
		device.Uninit()
		return &DeviceError{Backend: "malgo", Op: "start capture", Err: err}
	}

	s.logger.Debug("microphone started",
		"sample_rate", s.cfg.SampleRate,
		"channels", s.cfg.Channels,
	)
	return nil
}

// Stop stops the capture device and closes the stream.
func (s *MalgoSource) Stop() error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	device := s.device
	s.device = nil
	s.mu.Unlock()

	if device != nil {
		_ = device.Stop()
		device.Uninit()
	}

	s.mu.Lock()
	close(s.streamCh)
	s.mu.Unlock()

	s.logger.Debug("microphone stopped", "chunks", s.chunksRead.Load())
	return nil
}

// Read returns the next captured chunk.
func (s *MalgoSource) Read(ctx context.Context) (AudioChunk, error) {
	ch := s.Stream()
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

// Stream returns the capture channel for the current recording.
func (s *MalgoSource) Stream() <-chan AudioChunk {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamCh
}

// Config returns the audio configuration.
func (s *MalgoSource) Config() Config {
	return s.cfg
}

// Name returns "malgo".
func (s *MalgoSource) Name() string {
	return "malgo"
}

// Close stops capture and releases the miniaudio context.
func (s *MalgoSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.Stop()
	if s.mctx != nil {
		_ = s.mctx.Uninit()
		s.mctx.Free()
	}
	return err
}

// Stats returns capture statistics.
func (s *MalgoSource) Stats() SourceStats {
	s.mu.Lock()
	running := s.running
	s.mu.Unlock()

	return SourceStats{
		ChunksRead:  s.chunksRead.Load(),
		SamplesRead: s.samplesRead.Load(),
		Overruns:    s.overruns.Load(),
		Running:     running,
		Backend:     "malgo",
	}
}

var _ SourceWithStats = (*MalgoSource)(nil)
