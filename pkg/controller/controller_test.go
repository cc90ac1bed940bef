package controller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/exchange"
	"github.com/teslashibe/parley/pkg/metrics"
	"github.com/teslashibe/parley/pkg/playback"
	"github.com/teslashibe/parley/pkg/recorder"
	"github.com/teslashibe/parley/pkg/render"
	"github.com/teslashibe/parley/pkg/session"
)

// fakeRecorder hands out a fixed clip.
type fakeRecorder struct {
	mu       sync.Mutex
	startErr error
	stopErr  error
	starts   int
	cancels  int
}

func (r *fakeRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	return r.startErr
}

func (r *fakeRecorder) Stop(ctx context.Context) (*recorder.Clip, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopErr != nil {
		return nil, r.stopErr
	}
	return &recorder.Clip{
		Data:     []byte("webm"),
		MIMEType: "audio/webm",
		Filename: "recording.webm",
		Duration: time.Second,
	}, nil
}

func (r *fakeRecorder) Cancel() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cancels++
}

// fakeExchange answers with function fields.
type fakeExchange struct {
	StartFunc  func(ctx context.Context, playerName string) (*exchange.Result, error)
	SubmitFunc func(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error)

	mu        sync.Mutex
	submitted []session.Session
	names     []string
}

func (e *fakeExchange) Start(ctx context.Context, playerName string) (*exchange.Result, error) {
	e.mu.Lock()
	e.names = append(e.names, playerName)
	e.mu.Unlock()
	return e.StartFunc(ctx, playerName)
}

func (e *fakeExchange) Submit(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error) {
	e.mu.Lock()
	e.submitted = append(e.submitted, current)
	e.mu.Unlock()
	return e.SubmitFunc(ctx, clip, current)
}

func (e *fakeExchange) Submitted() []session.Session {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]session.Session(nil), e.submitted...)
}

type playCall struct {
	Text, AudioURL string
}

// fakePlayer records calls and optionally blocks until released.
type fakePlayer struct {
	mu      sync.Mutex
	calls   []playCall
	outcome playback.Outcome
	gate    chan struct{}
	stops   int
}

func (p *fakePlayer) Play(ctx context.Context, text, audioURL string) playback.Outcome {
	p.mu.Lock()
	p.calls = append(p.calls, playCall{text, audioURL})
	gate, out := p.gate, p.outcome
	p.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return playback.Outcome{Status: playback.Failed, Err: ctx.Err()}
		}
	}
	return out
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePlayer) Calls() []playCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]playCall(nil), p.calls...)
}

func state(t *testing.T, raw string) *session.Session {
	t.Helper()
	s, err := session.Parse(session.SkinQuiz, []byte(raw))
	require.NoError(t, err)
	return &s
}

func welcome(t *testing.T) func(context.Context, string) (*exchange.Result, error) {
	return func(ctx context.Context, name string) (*exchange.Result, error) {
		return &exchange.Result{Text: "Welcome", State: state(t, `{"phase":"intro"}`)}, nil
	}
}

func networkDown(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error) {
	return nil, &exchange.NetworkError{Op: "submit", StatusCode: 500, Message: "boom", Err: exchange.ErrNetwork}
}

type harness struct {
	c      *Controller
	rec    *fakeRecorder
	ex     *fakeExchange
	player *fakePlayer

	mu      sync.Mutex
	screens []render.Screen
}

func newHarness(t *testing.T, ex *fakeExchange, opts ...Option) *harness {
	t.Helper()
	h := &harness{rec: &fakeRecorder{}, ex: ex, player: &fakePlayer{}}
	opts = append([]Option{
		WithLogger(log.Discard()),
		WithPresenter(PresenterFunc(func(s render.Screen) {
			h.mu.Lock()
			h.screens = append(h.screens, s)
			h.mu.Unlock()
		})),
	}, opts...)

	c, err := New(session.SkinQuiz, h.rec, ex, h.player, opts...)
	require.NoError(t, err)
	h.c = c

	go func() { _ = c.Run(t.Context()) }()
	return h
}

func (h *harness) waitState(t *testing.T, want State) {
	t.Helper()
	require.Eventually(t, func() bool {
		return h.c.State() == want
	}, 2*time.Second, 5*time.Millisecond, "want state %s, have %s", want, h.c.State())
}

func (h *harness) bootstrap(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.Start(t.Context()))
	h.waitState(t, Idle)
}

func (h *harness) turn(t *testing.T) {
	t.Helper()
	require.NoError(t, h.c.TapMic(t.Context()))
	require.Equal(t, Recording, h.c.State())
	require.NoError(t, h.c.TapMic(t.Context()))
}

func TestBootstrapScenario(t *testing.T) {
	h := newHarness(t, &fakeExchange{StartFunc: welcome(t)}, WithPlayerName("Ada"))
	h.bootstrap(t)

	scr := h.c.Screen()
	assert.Equal(t, "Welcome", scr.AgentText)
	assert.False(t, scr.View.Scenario.Visible)
	assert.False(t, scr.View.RoundBadge.Visible)
	assert.Empty(t, scr.PlayerText)
	assert.Equal(t, render.StatusReady, scr.Status)
	assert.True(t, scr.Mic.Enabled)

	assert.Equal(t, []playCall{{Text: "Welcome"}}, h.player.Calls())
	assert.Equal(t, []string{"Ada"}, h.ex.names)
	assert.Equal(t, session.PhaseIntro, h.c.Session().Phase)
}

func TestRoundTwoScenario(t *testing.T) {
	ex := &fakeExchange{
		StartFunc: welcome(t),
		SubmitFunc: func(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error) {
			return &exchange.Result{
				Transcript: "Let's go",
				Text:       "Round 2 begins",
				State:      state(t, `{"phase":"playing","round":1,"max_rounds":3,"current_scenario":"A customer complains"}`),
			}, nil
		},
	}
	h := newHarness(t, ex)
	h.bootstrap(t)

	h.turn(t)
	h.waitState(t, Idle)

	scr := h.c.Screen()
	assert.Equal(t, "Round 2 / 3", scr.View.RoundBadge.Text)
	assert.True(t, scr.View.RoundBadge.Visible)
	assert.Equal(t, `"A customer complains"`, scr.View.Scenario.Text)
	assert.Equal(t, `"Let's go"`, scr.PlayerText)
	assert.Equal(t, "Round 2 begins", scr.AgentText)

	// The turn carried the bootstrap session verbatim.
	sub := ex.Submitted()
	require.Len(t, sub, 1)
	assert.JSONEq(t, `{"phase":"intro"}`, string(sub[0].Raw()))

	// No audio URL: playback is asked to speak the text.
	calls := h.player.Calls()
	require.Len(t, calls, 2)
	assert.Equal(t, playCall{Text: "Round 2 begins"}, calls[1])
}

func TestNetworkFailureScenario(t *testing.T) {
	h := newHarness(t, &fakeExchange{StartFunc: welcome(t), SubmitFunc: networkDown})
	h.bootstrap(t)
	before := h.c.Session()
	viewBefore := h.c.Screen().View

	h.turn(t)
	require.Eventually(t, func() bool {
		return h.c.Screen().AgentText == MessageTurnFailed
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, Idle, h.c.State())
	scr := h.c.Screen()
	assert.Equal(t, render.StatusReady, scr.Status)
	assert.True(t, scr.Mic.Enabled)
	assert.Equal(t, render.GlyphMic, scr.Mic.Glyph)
	assert.Equal(t, before, h.c.Session())
	assert.Equal(t, viewBefore, scr.View)
	assert.Len(t, h.player.Calls(), 1, "no playback after a failed exchange")

	// The mic works again.
	require.NoError(t, h.c.TapMic(t.Context()))
	assert.Equal(t, Recording, h.c.State())
}

func TestOmittedStateLeavesSession(t *testing.T) {
	ex := &fakeExchange{
		StartFunc: func(ctx context.Context, name string) (*exchange.Result, error) {
			return &exchange.Result{Text: "Go", State: state(t, `{"phase":"playing","round":0,"current_scenario":"A heist"}`)}, nil
		},
		SubmitFunc: func(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error) {
			return &exchange.Result{Text: "Nice"}, nil
		},
	}
	h := newHarness(t, ex)
	h.bootstrap(t)
	before := h.c.Session()
	viewBefore := h.c.Screen().View

	h.turn(t)
	require.Eventually(t, func() bool {
		return h.c.State() == Idle && h.c.Screen().AgentText == "Nice"
	}, 2*time.Second, 5*time.Millisecond)

	assert.Equal(t, before, h.c.Session())
	assert.Equal(t, viewBefore, h.c.Screen().View)
	assert.Empty(t, h.c.Screen().PlayerText, "no transcript keeps the bubble hidden")
}

func TestMicDisabledWhileBusy(t *testing.T) {
	release := make(chan struct{})
	ex := &fakeExchange{
		StartFunc: welcome(t),
		SubmitFunc: func(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error) {
			<-release
			return &exchange.Result{Text: "ok"}, nil
		},
	}
	h := newHarness(t, ex)
	h.bootstrap(t)

	h.turn(t)
	assert.Equal(t, Processing, h.c.State())
	assert.False(t, h.c.Screen().Mic.Enabled)
	assert.Equal(t, render.GlyphThinking, h.c.Screen().Mic.Glyph)
	assert.ErrorIs(t, h.c.TapMic(t.Context()), ErrMicDisabled)
	assert.ErrorIs(t, h.c.Start(t.Context()), ErrAlreadyStarted)

	gate := make(chan struct{})
	h.player.mu.Lock()
	h.player.gate = gate
	h.player.mu.Unlock()

	close(release)
	h.waitState(t, Speaking)
	assert.Equal(t, render.StatusSpeaking, h.c.Screen().Status)
	assert.ErrorIs(t, h.c.TapMic(t.Context()), ErrMicDisabled)

	close(gate)
	h.waitState(t, Idle)
	assert.Equal(t, 1, h.rec.starts, "rejected taps never reached the recorder")
}

func TestStatesAreMutuallyExclusive(t *testing.T) {
	release := make(chan struct{})
	ex := &fakeExchange{
		StartFunc: welcome(t),
		SubmitFunc: func(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error) {
			<-release
			return &exchange.Result{Text: "ok"}, nil
		},
	}
	h := newHarness(t, ex)
	h.bootstrap(t)
	h.turn(t)
	close(release)
	h.waitState(t, Idle)

	h.mu.Lock()
	defer h.mu.Unlock()
	var last uint64
	for _, s := range h.screens {
		assert.Greater(t, s.Seq, last)
		last = s.Seq
		busy := 0
		if s.Mic.Recording {
			busy++
		}
		if s.Status == render.StatusThinking || s.Status == render.StatusConnecting {
			busy++
		}
		if s.Status == render.StatusSpeaking {
			busy++
		}
		assert.LessOrEqual(t, busy, 1, "screen %d mixes states", s.Seq)
		if s.Status == render.StatusThinking || s.Status == render.StatusSpeaking {
			assert.False(t, s.Mic.Enabled)
		}
	}
}

func TestPermissionDenied(t *testing.T) {
	h := newHarness(t, &fakeExchange{StartFunc: welcome(t)})
	h.bootstrap(t)
	h.rec.startErr = fmt.Errorf("%w: %w", recorder.ErrPermissionDenied, errors.New("no device"))

	err := h.c.TapMic(t.Context())
	assert.True(t, recorder.IsPermissionDenied(err))
	assert.Equal(t, Idle, h.c.State())
	assert.Equal(t, NoticeMicDenied, h.c.Screen().Notice)
	assert.True(t, h.c.Screen().Mic.Enabled)

	// Not retried on its own; the next tap tries again and clears the notice.
	h.rec.mu.Lock()
	h.rec.startErr = nil
	h.rec.mu.Unlock()
	require.NoError(t, h.c.TapMic(t.Context()))
	assert.Empty(t, h.c.Screen().Notice)
	assert.Equal(t, 2, h.rec.starts)
}

func TestBootstrapFailure(t *testing.T) {
	fail := true
	ex := &fakeExchange{
		StartFunc: func(ctx context.Context, name string) (*exchange.Result, error) {
			if fail {
				return nil, &exchange.NetworkError{Op: "start", Err: exchange.ErrNetwork}
			}
			return &exchange.Result{Text: "Welcome"}, nil
		},
	}
	h := newHarness(t, ex)

	err := h.c.Start(t.Context())
	assert.ErrorIs(t, err, exchange.ErrNetwork)
	assert.Equal(t, Idle, h.c.State())
	assert.Equal(t, MessageConnectFailed, h.c.Screen().AgentText)
	assert.Empty(t, h.player.Calls())

	fail = false
	require.NoError(t, h.c.Start(t.Context()))
	h.waitState(t, Idle)
	assert.Equal(t, "Welcome", h.c.Screen().AgentText)
}

func TestEmptyClipIsFailedTurn(t *testing.T) {
	h := newHarness(t, &fakeExchange{StartFunc: welcome(t)})
	h.bootstrap(t)
	h.rec.stopErr = recorder.ErrEmptyClip

	h.turn(t)
	require.Eventually(t, func() bool {
		return h.c.Screen().AgentText == MessageTurnFailed
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, Idle, h.c.State())
	assert.Empty(t, h.ex.Submitted())
}

func TestPlaybackFailureCompletesTurn(t *testing.T) {
	h := newHarness(t, &fakeExchange{StartFunc: welcome(t)})
	h.player.outcome = playback.Outcome{Status: playback.Failed, Via: playback.ViaRemote, Err: errors.New("404")}

	h.bootstrap(t)
	assert.Equal(t, render.StatusReady, h.c.Screen().Status)
	assert.True(t, h.c.Screen().Mic.Enabled)
}

func TestTerminalPhaseFinishes(t *testing.T) {
	ex := &fakeExchange{
		StartFunc: welcome(t),
		SubmitFunc: func(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error) {
			return &exchange.Result{Text: "That's a wrap!", AudioURL: "http://backend/bye.mp3", State: state(t, `{"phase":"ended"}`)}, nil
		},
	}
	h := newHarness(t, ex)
	h.bootstrap(t)
	h.turn(t)

	select {
	case <-h.c.Finished():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not finish")
	}
	assert.Equal(t, Done, h.c.State())
	assert.True(t, h.c.Screen().Done)
	assert.False(t, h.c.Screen().Mic.Enabled)
	assert.ErrorIs(t, h.c.TapMic(t.Context()), ErrMicDisabled)

	calls := h.player.Calls()
	assert.Equal(t, "http://backend/bye.mp3", calls[len(calls)-1].AudioURL)
}

func TestMetricsRecorded(t *testing.T) {
	col := metrics.NewCollector(nil)
	ex := &fakeExchange{
		StartFunc: welcome(t),
		SubmitFunc: func(ctx context.Context, clip *recorder.Clip, current session.Session) (*exchange.Result, error) {
			return &exchange.Result{Text: "ok"}, nil
		},
	}
	h := newHarness(t, ex, WithMetrics(col))
	h.bootstrap(t)
	h.turn(t)
	h.waitState(t, Idle)

	require.Eventually(t, func() bool { return col.Turns() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, metrics.ResultOK, col.Current().Result)
	assert.Equal(t, time.Second, col.Current().RecordingLength)
}

func TestControllersAreIndependent(t *testing.T) {
	a := newHarness(t, &fakeExchange{StartFunc: welcome(t)})
	b := newHarness(t, &fakeExchange{StartFunc: welcome(t)})

	a.bootstrap(t)
	require.NoError(t, a.c.TapMic(t.Context()))

	assert.Equal(t, Recording, a.c.State())
	assert.Equal(t, Idle, b.c.State())
	assert.NotEqual(t, a.c.ID(), b.c.ID())
	assert.Empty(t, b.player.Calls())
}

func TestStoppedLoop(t *testing.T) {
	h := &harness{rec: &fakeRecorder{}, player: &fakePlayer{}}
	c, err := New(session.SkinQuiz, h.rec, &fakeExchange{StartFunc: welcome(t)}, h.player, WithLogger(log.Discard()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	go func() {
		_ = c.Run(ctx)
		close(done)
	}()

	require.NoError(t, c.TapMic(t.Context()))
	cancel()
	<-done

	assert.Equal(t, 1, h.rec.cancels, "live recording is released on shutdown")
	assert.ErrorIs(t, c.TapMic(t.Context()), ErrStopped)
}

func TestNewValidates(t *testing.T) {
	_, err := New("karaoke", &fakeRecorder{}, &fakeExchange{}, &fakePlayer{})
	assert.ErrorIs(t, err, session.ErrUnknownSkin)

	_, err = New(session.SkinQuiz, nil, &fakeExchange{}, &fakePlayer{})
	assert.Error(t, err)
}
