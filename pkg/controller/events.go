package controller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/teslashibe/parley/pkg/exchange"
	"github.com/teslashibe/parley/pkg/metrics"
	"github.com/teslashibe/parley/pkg/playback"
	"github.com/teslashibe/parley/pkg/recorder"
	"github.com/teslashibe/parley/pkg/render"
	"github.com/teslashibe/parley/pkg/session"
)

// event is applied on the loop goroutine.
type event interface {
	apply(ctx context.Context, c *Controller)
}

type startEvent struct {
	reply chan error
}

type tapEvent struct {
	reply chan error
}

// replyEvent carries the backend's answer to a turn. turn is zero for the
// bootstrap.
type replyEvent struct {
	turn   int
	result *exchange.Result
	err    error
}

type playedEvent struct {
	turn    int
	outcome playback.Outcome
}

func (ev startEvent) apply(ctx context.Context, c *Controller) {
	if c.seeded || c.state != Idle {
		ev.reply <- ErrAlreadyStarted
		return
	}

	c.state = Processing
	c.pending = ev.reply
	c.screen.Status = render.StatusConnecting
	c.screen.Mic = render.Mic{Glyph: render.GlyphThinking}
	c.screen.Notice = ""
	c.publish()

	c.logger.Info("bootstrapping session", "player_name", c.playerName)
	go func() {
		res, err := c.ex.Start(ctx, c.playerName)
		c.emit(ctx, replyEvent{result: res, err: err})
	}()
}

func (ev tapEvent) apply(ctx context.Context, c *Controller) {
	switch c.state {
	case Idle:
		ev.reply <- c.startRecording(ctx)
	case Recording:
		c.submit(ctx)
		ev.reply <- nil
	default:
		ev.reply <- ErrMicDisabled
	}
}

func (c *Controller) startRecording(ctx context.Context) error {
	if err := c.rec.Start(ctx); err != nil {
		c.logger.Warn("microphone unavailable", "error", err)
		if recorder.IsPermissionDenied(err) {
			c.metrics.MarkMicDenied()
		}
		c.screen.Notice = NoticeMicDenied
		c.publish()
		return err
	}

	c.seeded = true
	c.state = Recording
	c.recording = time.Now()
	c.screen.Status = render.StatusRecording
	c.screen.Mic = render.Mic{Glyph: render.GlyphStop, Enabled: true, Recording: true}
	c.screen.Notice = ""
	c.publish()
	return nil
}

func (c *Controller) submit(ctx context.Context) {
	c.turn++
	turn := c.turn
	current := c.sess

	c.state = Processing
	c.screen.Status = render.StatusThinking
	c.screen.Mic = render.Mic{Glyph: render.GlyphThinking}
	c.publish()

	c.logger.Debug("turn submitted", "turn", turn, "recorded", time.Since(c.recording))
	go func() {
		clip, err := c.rec.Stop(ctx)
		if err != nil {
			c.emit(ctx, replyEvent{turn: turn, err: fmt.Errorf("stop recording: %w", err)})
			return
		}
		c.metrics.MarkSpeechEnd(clip.Duration)
		res, err := c.ex.Submit(ctx, clip, current)
		c.emit(ctx, replyEvent{turn: turn, result: res, err: err})
	}()
}

func (ev replyEvent) apply(ctx context.Context, c *Controller) {
	if c.state != Processing {
		c.logger.Error("unexpected reply", "state", c.state.String(), "turn", ev.turn)
		return
	}
	bootstrap := ev.turn == 0

	if ev.err != nil {
		c.fail(bootstrap, ev.turn, ev.err)
		return
	}

	res := ev.result
	if bootstrap {
		c.seeded = true
		c.resolve(nil)
	} else {
		c.metrics.MarkReply()
	}

	if res.Transcript != "" {
		c.screen.PlayerText = render.PlayerBubble(res.Transcript)
	}
	c.screen.AgentText = res.Text

	prev := c.sess.Phase
	c.sess = session.Apply(c.sess, res.State)
	c.screen.View = c.renderer.Render(c.sess)

	c.state = Speaking
	c.screen.Status = render.StatusSpeaking
	c.publish()

	c.logger.Info("turn answered",
		"turn", ev.turn,
		"request_id", res.RequestID,
		"state_updated", res.HasState(),
		"phase", string(c.sess.Phase),
		"previous_phase", string(prev),
	)

	turn := ev.turn
	go func() {
		out := c.player.Play(ctx, res.Text, res.AudioURL)
		c.emit(ctx, playedEvent{turn: turn, outcome: out})
	}()
}

// fail returns to Idle with a fixed message. The session is untouched and
// nothing is played.
func (c *Controller) fail(bootstrap bool, turn int, err error) {
	c.logger.Warn("turn failed", "turn", turn, "error", err)

	c.state = Idle
	if bootstrap {
		c.screen.AgentText = MessageConnectFailed
	} else {
		c.screen.AgentText = MessageTurnFailed
		result := metrics.ResultNetworkFailed
		if errors.Is(err, recorder.ErrEmptyClip) {
			result = metrics.ResultEmpty
		}
		c.metrics.MarkFailed(result)
	}
	c.ready()
	c.publish()

	if bootstrap {
		c.resolve(err)
	}
}

func (ev playedEvent) apply(ctx context.Context, c *Controller) {
	if c.state != Speaking {
		c.logger.Error("unexpected playback end", "state", c.state.String(), "turn", ev.turn)
		return
	}

	out := ev.outcome
	if !out.OK() {
		c.logger.Warn("reply playback failed", "turn", ev.turn, "via", string(out.Via), "error", out.Err)
	}
	if ev.turn > 0 {
		c.metrics.MarkResponseDone(string(out.Via))
	}

	if c.sess.Terminal() {
		c.state = Done
		c.screen.Status = render.StatusFinished
		c.screen.Mic = render.Mic{Glyph: render.GlyphMic}
		c.publish()
		close(c.done)
		c.logger.Info("session finished", "turns", c.turn, "phase", string(c.sess.Phase))
		return
	}

	c.state = Idle
	c.ready()
	c.publish()
}

func (c *Controller) ready() {
	c.screen.Status = render.StatusReady
	c.screen.Mic = render.Mic{Glyph: render.GlyphMic, Enabled: true}
}

func (c *Controller) resolve(err error) {
	if c.pending == nil {
		return
	}
	if err != nil {
		err = fmt.Errorf("bootstrap: %w", err)
	}
	c.pending <- err
	c.pending = nil
}
