// Package recorder turns a stretch of microphone audio into one encoded clip.
//
// A Recorder holds the capture device only between Start and Stop. Each
// recording owns exactly one buffer; Stop finalizes it into a Clip ready to
// upload.
package recorder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/audioio"
)

// Clip is one finished recording.
type Clip struct {
	Data     []byte
	MIMEType string
	Filename string
	Duration time.Duration
}

// Opener acquires a capture device for one recording.
type Opener func() (audioio.Source, error)

// Recorder captures one recording at a time.
type Recorder struct {
	open    Opener
	encoder Encoder
	logger  *slog.Logger

	mu  sync.Mutex
	rec *recording
}

type recording struct {
	src     audioio.Source
	cancel  context.CancelFunc
	started time.Time
	done    chan struct{}

	// written only by the collect goroutine until done is closed
	samples    []int16
	sampleRate int
	channels   int
	peak       float64
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithEncoder sets the clip encoder. Default: WebMOpusEncoder.
func WithEncoder(e Encoder) Option {
	return func(r *Recorder) {
		r.encoder = e
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Recorder) {
		r.logger = l
	}
}

// New creates a Recorder that opens a fresh source for every recording.
func New(open Opener, opts ...Option) *Recorder {
	r := &Recorder{
		open:    open,
		encoder: NewWebMOpusEncoder(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = log.Or(r.logger, "recorder")
	return r
}

// Recording reports whether a recording is live.
func (r *Recorder) Recording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rec != nil
}

// Start acquires the microphone and begins buffering audio. A refused device
// yields ErrPermissionDenied and leaves the Recorder idle.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.rec != nil {
		return ErrAlreadyRecording
	}

	src, err := r.open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	// The capture outlives the caller's ctx; Stop or shutdown ends it.
	capCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := src.Start(capCtx); err != nil {
		cancel()
		_ = src.Close()
		return fmt.Errorf("%w: %w", ErrPermissionDenied, err)
	}

	cfg := src.Config()
	rec := &recording{
		src:        src,
		cancel:     cancel,
		started:    time.Now(),
		done:       make(chan struct{}),
		sampleRate: cfg.SampleRate,
		channels:   cfg.Channels,
	}
	go rec.collect(src.Stream())
	r.rec = rec

	r.logger.Debug("recording started", "backend", src.Name(), "sample_rate", cfg.SampleRate)
	return nil
}

func (rec *recording) collect(stream <-chan audioio.AudioChunk) {
	defer close(rec.done)
	for chunk := range stream {
		rec.samples = append(rec.samples, chunk.Samples...)
		if l := audioio.Level(chunk.Samples); l > rec.peak {
			rec.peak = l
		}
	}
}

// Stop releases the microphone and encodes everything captured since Start.
func (r *Recorder) Stop(ctx context.Context) (*Clip, error) {
	r.mu.Lock()
	rec := r.rec
	r.rec = nil
	r.mu.Unlock()

	if rec == nil {
		return nil, ErrNotRecording
	}

	defer rec.cancel()
	defer rec.src.Close()

	if err := rec.src.Stop(); err != nil {
		r.logger.Warn("stop capture", "error", err)
	}

	select {
	case <-rec.done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if s, ok := rec.src.(audioio.SourceWithStats); ok {
		if st := s.Stats(); st.Overruns > 0 {
			r.logger.Warn("capture dropped audio", "overruns", st.Overruns, "chunks", st.ChunksRead)
		}
	}

	if len(rec.samples) == 0 {
		return nil, ErrEmptyClip
	}

	data, err := r.encoder.Encode(rec.samples, rec.sampleRate, rec.channels)
	if err != nil {
		return nil, &EncodeError{Format: r.encoder.MIMEType(), Err: err}
	}

	frames := len(rec.samples) / max(rec.channels, 1)
	clip := &Clip{
		Data:     data,
		MIMEType: r.encoder.MIMEType(),
		Filename: "recording" + r.encoder.Extension(),
		Duration: time.Duration(frames) * time.Second / time.Duration(rec.sampleRate),
	}

	r.logger.Debug("recording finished",
		"duration", clip.Duration,
		"bytes", len(clip.Data),
		"peak_level", rec.peak,
		"wall", time.Since(rec.started),
	)
	return clip, nil
}

// Cancel drops a live recording without encoding it.
func (r *Recorder) Cancel() {
	r.mu.Lock()
	rec := r.rec
	r.rec = nil
	r.mu.Unlock()

	if rec == nil {
		return
	}
	_ = rec.src.Stop()
	<-rec.done
	_ = rec.src.Close()
	rec.cancel()
}
