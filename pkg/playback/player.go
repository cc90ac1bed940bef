// Package playback voices agent replies through the single speaker sink.
//
// A reply plays the backend's synthesized audio when a URL is supplied and
// falls back to a local speech engine otherwise, so a turn never stalls
// waiting for sound. Play is awaited and reports an Outcome; a new Play
// supersedes whatever was still sounding.
package playback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/teslashibe/parley/internal/httpc"
	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/audioio"
	"github.com/teslashibe/parley/pkg/tts"
)

// ErrSuperseded is the Outcome error of a playback cut off by a newer one.
var ErrSuperseded = errors.New("playback: superseded")

// ErrNoSynthesizer is returned when a reply has no audio and no local engine
// is configured.
var ErrNoSynthesizer = errors.New("playback: no local synthesizer")

// Status is how a playback ended.
type Status int

const (
	Completed Status = iota
	Failed
)

func (s Status) String() string {
	if s == Completed {
		return "completed"
	}
	return "failed"
}

// Via names the audio path taken.
type Via string

const (
	ViaNone   Via = "none"
	ViaRemote Via = "remote"
	ViaLocal  Via = "local"
)

// Outcome is the result of one Play.
type Outcome struct {
	Status   Status
	Via      Via
	Err      error
	Duration time.Duration
}

// OK reports whether playback completed.
func (o Outcome) OK() bool {
	return o.Status == Completed
}

// Player owns the speaker sink.
type Player struct {
	sink       audioio.Sink
	synth      tts.Provider
	httpClient *http.Client
	logger     *slog.Logger
	maxBytes   int64
	chunk      time.Duration
	observer   func(Outcome)

	mu      sync.Mutex
	gen     uint64
	cancel  context.CancelFunc
	started bool
}

// Option configures a Player.
type Option func(*Player)

// WithHTTPClient sets the client used to fetch remote audio.
func WithHTTPClient(c *http.Client) Option {
	return func(p *Player) {
		p.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Player) {
		p.logger = l
	}
}

// WithObserver registers a callback invoked with every Outcome.
func WithObserver(fn func(Outcome)) Option {
	return func(p *Player) {
		p.observer = fn
	}
}

// WithMaxBytes caps remote audio downloads. Default: 32 MiB.
func WithMaxBytes(n int64) Option {
	return func(p *Player) {
		p.maxBytes = n
	}
}

// New creates a Player writing to sink. synth may be nil, in which case
// replies without audio fail.
func New(sink audioio.Sink, synth tts.Provider, opts ...Option) *Player {
	p := &Player{
		sink:     sink,
		synth:    synth,
		maxBytes: 32 << 20,
		chunk:    100 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.httpClient = httpc.OrDefault(p.httpClient)
	p.logger = log.Or(p.logger, "playback")
	return p
}

// Play voices one reply and blocks until it ends. audioURL wins when set;
// otherwise text is synthesized locally. Nothing to say completes at once.
func (p *Player) Play(ctx context.Context, text, audioURL string) Outcome {
	text = strings.TrimSpace(text)
	audioURL = strings.TrimSpace(audioURL)

	start := time.Now()
	ctx, gen, err := p.begin(ctx)
	if err != nil {
		return p.finish(gen, start, Outcome{Status: Failed, Via: ViaNone, Err: err})
	}

	switch {
	case audioURL != "":
		return p.finish(gen, start, p.playRemote(ctx, gen, audioURL))
	case text != "":
		return p.finish(gen, start, p.playLocal(ctx, gen, text))
	default:
		return p.finish(gen, start, Outcome{Status: Completed, Via: ViaNone})
	}
}

// Stop cuts off the live playback, if any.
func (p *Player) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.cancel = nil
	p.gen++
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if err := p.sink.Clear(); err != nil {
		p.logger.Debug("clear sink", "error", err)
	}
}

// Close stops playback and closes the sink.
func (p *Player) Close() error {
	p.Stop()
	return p.sink.Close()
}

func (p *Player) begin(ctx context.Context) (context.Context, uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if err := p.sink.Clear(); err != nil {
		p.logger.Debug("clear sink", "error", err)
	}
	if !p.started {
		if err := p.sink.Start(ctx); err != nil {
			return ctx, p.gen, fmt.Errorf("start sink: %w", err)
		}
		p.started = true
	}

	p.gen++
	ctx, cancel := context.WithCancelCause(ctx)
	p.cancel = func() { cancel(ErrSuperseded) }
	return ctx, p.gen, nil
}

func (p *Player) finish(gen uint64, start time.Time, out Outcome) Outcome {
	out.Duration = time.Since(start)

	p.mu.Lock()
	if p.gen == gen && p.cancel != nil {
		p.cancel = nil
	}
	p.mu.Unlock()

	if out.Err != nil {
		p.logger.Warn("playback failed", "via", out.Via, "error", out.Err)
	} else {
		p.logger.Debug("playback completed", "via", out.Via, "duration", out.Duration)
	}
	if p.observer != nil {
		p.observer(out)
	}
	return out
}

func (p *Player) playRemote(ctx context.Context, gen uint64, audioURL string) Outcome {
	fail := func(err error) Outcome {
		return Outcome{Status: Failed, Via: ViaRemote, Err: cause(ctx, err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, audioURL, nil)
	if err != nil {
		return fail(fmt.Errorf("create request: %w", err))
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fail(fmt.Errorf("fetch audio: %w", err))
	}
	defer resp.Body.Close()

	if !httpc.IsSuccess(resp.StatusCode) {
		return fail(fmt.Errorf("fetch audio: status %s", resp.Status))
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBytes))
	if err != nil {
		return fail(fmt.Errorf("read audio: %w", err))
	}

	format, err := sniff(resp.Header.Get("Content-Type"), data)
	if err != nil {
		return fail(err)
	}
	pcm, err := decode(format, data)
	if err != nil {
		return fail(err)
	}

	if err := p.write(ctx, gen, pcm); err != nil {
		return fail(err)
	}
	return Outcome{Status: Completed, Via: ViaRemote}
}

func (p *Player) playLocal(ctx context.Context, gen uint64, text string) Outcome {
	fail := func(err error) Outcome {
		return Outcome{Status: Failed, Via: ViaLocal, Err: cause(ctx, err)}
	}
	if p.synth == nil {
		return fail(ErrNoSynthesizer)
	}

	res, err := p.synth.Synthesize(ctx, text)
	if err != nil {
		return fail(err)
	}
	pcm, err := decodeSynth(res)
	if err != nil {
		return fail(err)
	}

	if err := p.write(ctx, gen, pcm); err != nil {
		return fail(err)
	}
	return Outcome{Status: Completed, Via: ViaLocal}
}

// write converts pcm to the sink's format, queues it in small chunks and
// waits for it to drain. A chunk is only queued while gen is still current,
// so a superseded playback cannot leak audio past the Clear.
func (p *Player) write(ctx context.Context, gen uint64, pcm audioio.AudioChunk) error {
	cfg := p.sink.Config()
	pcm = audioio.Convert(pcm, cfg.SampleRate, cfg.Channels)

	step := int(float64(cfg.SampleRate)*p.chunk.Seconds()) * cfg.Channels
	if step <= 0 {
		step = len(pcm.Samples)
	}
	for off := 0; off < len(pcm.Samples); off += step {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := min(off+step, len(pcm.Samples))
		chunk := audioio.AudioChunk{
			Samples:    pcm.Samples[off:end],
			SampleRate: cfg.SampleRate,
			Channels:   cfg.Channels,
		}
		p.mu.Lock()
		if p.gen != gen {
			p.mu.Unlock()
			return ErrSuperseded
		}
		err := p.sink.Write(ctx, chunk)
		p.mu.Unlock()
		if err != nil {
			return fmt.Errorf("write sink: %w", err)
		}
	}
	return p.sink.Flush(ctx)
}

// cause reports ErrSuperseded rather than a bare context.Canceled.
func cause(ctx context.Context, err error) error {
	if c := context.Cause(ctx); c != nil && errors.Is(c, ErrSuperseded) {
		return ErrSuperseded
	}
	return err
}
