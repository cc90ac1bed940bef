// Package exchange talks to the dialogue backend: one HTTP round trip per
// turn.
//
// The backend exposes two endpoints:
//
//	POST /start-session     optional {"player_name": "..."}
//	POST /chat-with-voice   multipart: file (audio clip), current_state (JSON)
//
// Both answer with a turn object. Key spellings differ between backends;
// decodeTurn folds them into one Result.
package exchange

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/teslashibe/parley/internal/httpc"
	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/recorder"
	"github.com/teslashibe/parley/pkg/session"
)

const (
	// PathStart is the bootstrap endpoint.
	PathStart = "/start-session"
	// PathTurn is the voice turn endpoint.
	PathTurn = "/chat-with-voice"

	// maxBody caps how much of a response is read.
	maxBody = 8 << 20
)

// Client submits turns to one backend for one skin.
type Client struct {
	base       *url.URL
	skin       session.Skin
	httpClient *http.Client
	logger     *slog.Logger
	headers    http.Header
	observer   func(op string, status int, d time.Duration, err error)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the HTTP client. Default: httpc.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// WithHeader adds a header to every request.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		cl.headers.Add(key, value)
	}
}

// WithObserver registers a callback invoked after every request, for
// metrics.
func WithObserver(fn func(op string, status int, d time.Duration, err error)) Option {
	return func(cl *Client) {
		cl.observer = fn
	}
}

// New creates a client for the backend at baseURL.
func New(baseURL string, skin session.Skin, opts ...Option) (*Client, error) {
	if !skin.Valid() {
		return nil, fmt.Errorf("exchange: %w: %q", session.ErrUnknownSkin, skin)
	}
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("exchange: invalid backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("exchange: backend url must be http(s), got %q", baseURL)
	}

	c := &Client{
		base:    u,
		skin:    skin,
		headers: make(http.Header),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.httpClient = httpc.OrDefault(c.httpClient)
	c.logger = log.Or(c.logger, "exchange")
	return c, nil
}

// Skin returns the skin this client decodes state for.
func (c *Client) Skin() session.Skin {
	return c.skin
}

// Start performs the zero-input bootstrap turn. playerName is sent only when
// non-empty.
func (c *Client) Start(ctx context.Context, playerName string) (*Result, error) {
	var body io.Reader
	contentType := ""
	if playerName != "" {
		b, err := json.Marshal(map[string]string{"player_name": playerName})
		if err != nil {
			return nil, &NetworkError{Op: PathStart, Err: err}
		}
		body = bytes.NewReader(b)
		contentType = "application/json"
	}
	return c.do(ctx, PathStart, body, contentType)
}

// Submit sends one recorded clip together with the current session. The
// session is sent verbatim; unknown keys survive the round trip.
func (c *Client) Submit(ctx context.Context, clip *recorder.Clip, current session.Session) (*Result, error) {
	if clip == nil {
		return nil, &NetworkError{Op: PathTurn, Err: fmt.Errorf("no clip")}
	}

	state, err := json.Marshal(current)
	if err != nil {
		return nil, &NetworkError{Op: PathTurn, Err: fmt.Errorf("encode current_state: %w", err)}
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, clip.Filename))
	h.Set("Content-Type", clip.MIMEType)
	fw, err := mw.CreatePart(h)
	if err != nil {
		return nil, &NetworkError{Op: PathTurn, Err: fmt.Errorf("create form file: %w", err)}
	}
	if _, err := fw.Write(clip.Data); err != nil {
		return nil, &NetworkError{Op: PathTurn, Err: fmt.Errorf("write clip: %w", err)}
	}
	if err := mw.WriteField("current_state", string(state)); err != nil {
		return nil, &NetworkError{Op: PathTurn, Err: fmt.Errorf("write current_state: %w", err)}
	}
	if err := mw.Close(); err != nil {
		return nil, &NetworkError{Op: PathTurn, Err: fmt.Errorf("close multipart writer: %w", err)}
	}

	return c.do(ctx, PathTurn, &buf, mw.FormDataContentType())
}

func (c *Client) do(ctx context.Context, path string, body io.Reader, contentType string) (res *Result, err error) {
	requestID := uuid.NewString()
	start := time.Now()
	status := 0

	logger := c.logger.With("op", path, "request_id", requestID)
	defer func() {
		if c.observer != nil {
			c.observer(path, status, time.Since(start), err)
		}
		if err != nil {
			logger.Warn("turn failed", "error", err, "duration", time.Since(start))
		} else {
			logger.Debug("turn complete",
				"duration", time.Since(start),
				"has_state", res.HasState(),
				"has_audio", res.AudioURL != "",
			)
		}
	}()

	endpoint := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.String(), body)
	if err != nil {
		return nil, &NetworkError{Op: path, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, vs := range c.headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &NetworkError{Op: path, Err: err}
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &NetworkError{Op: path, StatusCode: status, Err: fmt.Errorf("read body: %w", err)}
	}

	if !httpc.IsSuccess(status) {
		var we wireError
		_ = json.Unmarshal(data, &we)
		return nil, &NetworkError{
			Op:         path,
			StatusCode: status,
			Message:    we.message(),
			Err:        fmt.Errorf("unexpected status %s", resp.Status),
		}
	}

	res, err = decodeTurn(data, c.skin, c.base, logger)
	if err != nil {
		return nil, &NetworkError{Op: path, StatusCode: status, Err: err}
	}
	res.RequestID = requestID
	return res, nil
}
