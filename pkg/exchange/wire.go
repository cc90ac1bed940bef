package exchange

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/teslashibe/parley/pkg/session"
)

// Result is one completed turn as the client sees it.
type Result struct {
	// Transcript is what the backend heard the player say. Empty at bootstrap.
	Transcript string

	// Text is the agent's reply.
	Text string

	// State is the backend's new session, nil when the response carried none
	// or carried one that could not be used.
	State *session.Session

	// AudioURL points at the synthesized reply, empty when the backend had
	// no audio.
	AudioURL string

	// RequestID is the X-Request-ID sent with the turn.
	RequestID string
}

// HasState reports whether the turn replaces the session.
func (r *Result) HasState() bool {
	return r.State != nil
}

// wireTurn accepts every key spelling the backends have used.
type wireTurn struct {
	Text       *string `json:"text"`
	AIText     *string `json:"ai_text"`
	Transcript *string `json:"user_transcript"`

	AudioURL      *string `json:"audio_url"`
	AudioURLCamel *string `json:"audioUrl"`

	UpdatedState json.RawMessage `json:"updated_state"`
	GameState    json.RawMessage `json:"game_state"`
	InitialState json.RawMessage `json:"initial_state"`
}

// wireError is the error body shape: {"error": "..."} or {"detail": "..."}.
type wireError struct {
	Error  string `json:"error"`
	Detail any    `json:"detail"`
}

func (w wireError) message() string {
	if w.Error != "" {
		return w.Error
	}
	switch d := w.Detail.(type) {
	case string:
		return d
	case nil:
		return ""
	default:
		b, _ := json.Marshal(d)
		return string(b)
	}
}

// decodeTurn maps a response body onto a Result. A body that is not a JSON
// object fails the turn; an unusable state is dropped and logged.
func decodeTurn(body []byte, skin session.Skin, base *url.URL, logger *slog.Logger) (*Result, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, fmt.Errorf("%w: body is not a JSON object", ErrMalformed)
	}

	var w wireTurn
	if err := json.Unmarshal(trimmed, &w); err != nil {
		// Type clashes on individual keys are tolerated below; only a
		// syntactically broken body fails the turn.
		if !json.Valid(trimmed) {
			return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		w = lenientTurn(trimmed)
	}

	res := &Result{
		Transcript: first(w.Transcript),
		Text:       first(w.AIText, w.Text),
	}

	if raw := firstRaw(w.UpdatedState, w.GameState, w.InitialState); raw != nil {
		s, err := session.Parse(skin, raw)
		if err != nil {
			logger.Warn("ignoring unusable session state", "error", fmt.Errorf("%w: %w", ErrMalformed, err))
		} else {
			if !skin.Knows(s.Phase) {
				logger.Info("session entered an unknown phase", "phase", s.Phase)
			}
			if d := s.Defaulted(); len(d) > 0 {
				logger.Debug("session state missing fields", "phase", s.Phase, "defaulted", d)
			}
			res.State = &s
		}
	}

	if u := first(w.AudioURLCamel, w.AudioURL); u != "" {
		resolved, err := resolveURL(base, u)
		if err != nil {
			logger.Warn("ignoring bad audio url", "url", u, "error", err)
		} else {
			res.AudioURL = resolved
		}
	}

	return res, nil
}

// lenientTurn decodes key by key so one wrongly typed field does not take
// the whole turn down.
func lenientTurn(body []byte) wireTurn {
	var m map[string]json.RawMessage
	_ = json.Unmarshal(body, &m)

	str := func(key string) *string {
		var s string
		if raw, ok := m[key]; ok && json.Unmarshal(raw, &s) == nil {
			return &s
		}
		return nil
	}

	return wireTurn{
		Text:          str("text"),
		AIText:        str("ai_text"),
		Transcript:    str("user_transcript"),
		AudioURL:      str("audio_url"),
		AudioURLCamel: str("audioUrl"),
		UpdatedState:  m["updated_state"],
		GameState:     m["game_state"],
		InitialState:  m["initial_state"],
	}
}

func first(vals ...*string) string {
	for _, v := range vals {
		if v != nil {
			if s := strings.TrimSpace(*v); s != "" {
				return s
			}
		}
	}
	return ""
}

func firstRaw(vals ...json.RawMessage) json.RawMessage {
	for _, v := range vals {
		t := bytes.TrimSpace(v)
		if len(t) > 0 && !bytes.Equal(t, []byte("null")) {
			return t
		}
	}
	return nil
}

func resolveURL(base *url.URL, ref string) (string, error) {
	u, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if u.IsAbs() || base == nil {
		return u.String(), nil
	}
	return base.ResolveReference(u).String(), nil
}
