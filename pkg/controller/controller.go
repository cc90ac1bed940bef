// Package controller drives one voice session: the mic control, the turn
// exchange, the state merge and reply playback.
//
// A Controller is an event loop. Run owns every piece of mutable state;
// TapMic and Start post events to it, and the long operations (stopping
// the recorder and submitting the turn, playing the reply) run in their own
// goroutines and post their results back. Transitions are therefore
// serialized and at most one turn is ever in flight.
package controller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/exchange"
	"github.com/teslashibe/parley/pkg/metrics"
	"github.com/teslashibe/parley/pkg/playback"
	"github.com/teslashibe/parley/pkg/recorder"
	"github.com/teslashibe/parley/pkg/render"
	"github.com/teslashibe/parley/pkg/session"
)

// Fixed user-facing messages.
const (
	MessageTurnFailed    = "Technical difficulties on set. Please retry."
	MessageConnectFailed = "Error connecting to studio server."
	NoticeMicDenied      = "Microphone denied. Please check your audio settings."
)

var (
	// ErrMicDisabled is returned by TapMic while a turn is being processed
	// or spoken, or after the session ended.
	ErrMicDisabled = errors.New("controller: mic disabled")

	// ErrAlreadyStarted is returned by Start once the session was seeded or
	// a turn has begun.
	ErrAlreadyStarted = errors.New("controller: already started")

	// ErrStopped is returned when the event loop is not running.
	ErrStopped = errors.New("controller: stopped")
)

// State is the controller's turn state.
type State int

const (
	Idle State = iota
	Recording
	Processing
	Speaking
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Recording:
		return "recording"
	case Processing:
		return "processing"
	case Speaking:
		return "speaking"
	case Done:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Recorder captures one clip at a time.
type Recorder interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) (*recorder.Clip, error)
	Cancel()
}

// Exchange talks to the dialogue backend.
type Exchange interface {
	Start(ctx context.Context, playerName string) (*exchange.Result, error)
	Submit(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error)
}

// Player voices replies.
type Player interface {
	Play(ctx context.Context, text, audioURL string) playback.Outcome
	Stop()
}

// Presenter receives every screen the controller publishes.
type Presenter interface {
	Present(render.Screen)
}

// PresenterFunc adapts a function to Presenter.
type PresenterFunc func(render.Screen)

// Present calls f(s).
func (f PresenterFunc) Present(s render.Screen) { f(s) }

// Controller runs one session. Several controllers may share a process.
type Controller struct {
	id         string
	skin       session.Skin
	playerName string

	rec      Recorder
	ex       Exchange
	player   Player
	renderer render.Renderer
	metrics  *metrics.Collector
	logger   *slog.Logger

	events  chan event
	stopped chan struct{}
	done    chan struct{}

	presentersMu sync.RWMutex
	presenters   []Presenter

	// Loop-owned.
	state     State
	sess      session.Session
	screen    render.Screen
	turn      int
	seeded    bool
	pending   chan error // Start caller waiting on bootstrap
	recording time.Time

	// Published copies for readers outside the loop.
	mu        sync.RWMutex
	snapState State
	snapSess  session.Session
	snapView  render.Screen
}

// Option configures a Controller.
type Option func(*Controller)

// WithPlayerName sets the name sent with the bootstrap request.
func WithPlayerName(name string) Option {
	return func(c *Controller) {
		c.playerName = name
	}
}

// WithRenderer sets display options.
func WithRenderer(r render.Renderer) Option {
	return func(c *Controller) {
		c.renderer = r
	}
}

// WithMetrics records per-turn latency.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithPresenter adds a presenter.
func WithPresenter(p Presenter) Option {
	return func(c *Controller) {
		c.presenters = append(c.presenters, p)
	}
}

// New creates a controller for the skin the exchange client speaks.
func New(skin session.Skin, rec Recorder, ex Exchange, player Player, opts ...Option) (*Controller, error) {
	if !skin.Valid() {
		return nil, fmt.Errorf("controller: %w", session.ErrUnknownSkin)
	}
	if rec == nil || ex == nil || player == nil {
		return nil, errors.New("controller: recorder, exchange and player are required")
	}

	c := &Controller{
		id:      uuid.NewString(),
		skin:    skin,
		rec:     rec,
		ex:      ex,
		player:  player,
		events:  make(chan event),
		stopped: make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = log.Or(c.logger, "controller").With("session_id", c.id, "skin", string(skin))

	c.sess = session.New(skin)
	c.screen = render.Screen{
		Mic:  render.Mic{Glyph: render.GlyphMic, Enabled: true},
		View: c.renderer.Render(c.sess),
	}
	c.snapshot()
	return c, nil
}

// ID returns the session id used in logs.
func (c *Controller) ID() string {
	return c.id
}

// AddPresenter registers a presenter and sends it the current screen.
func (c *Controller) AddPresenter(p Presenter) {
	c.presentersMu.Lock()
	c.presenters = append(c.presenters, p)
	c.presentersMu.Unlock()
	p.Present(c.Screen())
}

// State returns the current turn state.
func (c *Controller) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapState
}

// Session returns the current session mirror.
func (c *Controller) Session() session.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapSess
}

// Screen returns the last published screen.
func (c *Controller) Screen() render.Screen {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapView
}

// Finished is closed once the session reaches a terminal phase.
func (c *Controller) Finished() <-chan struct{} {
	return c.done
}

// Run processes events until ctx is cancelled. Operations started by the
// controller use ctx, so cancelling it is the only way to abandon a turn.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.stopped)
	c.logger.Info("session loop started")

	for {
		select {
		case <-ctx.Done():
			c.shutdown()
			return nil
		case ev := <-c.events:
			ev.apply(ctx, c)
		}
	}
}

// Start performs the bootstrap turn: it asks the backend for the opening
// session and utterance and waits for the answer. The greeting plays in
// the background. On failure the controller stays idle and Start may be
// called again.
func (c *Controller) Start(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.post(ctx, startEvent{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// TapMic toggles the mic: Idle starts recording, Recording submits the
// turn. Any other state returns ErrMicDisabled.
func (c *Controller) TapMic(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.post(ctx, tapEvent{reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

func (c *Controller) post(ctx context.Context, ev event) error {
	select {
	case c.events <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// emit is used by worker goroutines to hand results back to the loop.
func (c *Controller) emit(ctx context.Context, ev event) {
	select {
	case c.events <- ev:
	case <-ctx.Done():
	case <-c.stopped:
	}
}

func (c *Controller) shutdown() {
	switch c.state {
	case Recording:
		c.rec.Cancel()
	case Speaking:
		c.player.Stop()
	}
	if c.pending != nil {
		c.pending <- ErrStopped
		c.pending = nil
	}
	c.logger.Info("session loop stopped", "state", c.state.String(), "turns", c.turn)
}

// publish stamps and fans out the current screen.
func (c *Controller) publish() {
	c.screen.Seq++
	c.screen.Done = c.state == Done
	c.snapshot()

	c.presentersMu.RLock()
	presenters := append([]Presenter(nil), c.presenters...)
	c.presentersMu.RUnlock()
	for _, p := range presenters {
		p.Present(c.screen)
	}
}

func (c *Controller) snapshot() {
	c.mu.Lock()
	c.snapState = c.state
	c.snapSess = c.sess
	c.snapView = c.screen
	c.mu.Unlock()
}

var (
	_ Recorder = (*recorder.Recorder)(nil)
	_ Exchange = (*exchange.Client)(nil)
	_ Player   = (*playback.Player)(nil)
)
