package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/teslashibe/parley/internal/log"
	"github.com/teslashibe/parley/pkg/render"
)

// presenter shows a screen.
type presenter interface {
	Present(render.Screen)
}

// watcher follows the screen socket of one dashboard.
type watcher struct {
	url    string
	out    presenter
	dialer *websocket.Dialer
	logger *slog.Logger
}

func newWatcher(url string, out presenter, logger *slog.Logger) *watcher {
	return &watcher{
		url: url,
		out: out,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: log.Or(logger, "watch"),
	}
}

// Run presents screens until ctx is cancelled or the dashboard goes away.
// Each value on taps sends a mic tap.
func (w *watcher) Run(ctx context.Context, taps <-chan struct{}) error {
	conn, resp, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		if resp != nil {
			return fmt.Errorf("dial %s: %w (status %d)", w.url, err, resp.StatusCode)
		}
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()
	w.logger.Info("connected", "url", w.url)

	readErr := make(chan error, 1)
	go func() {
		readErr <- w.read(conn)
	}()

	for {
		select {
		case <-ctx.Done():
			msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
			return nil
		case err := <-readErr:
			return err
		case <-taps:
			if err := conn.WriteJSON(map[string]string{"action": "tap"}); err != nil {
				return fmt.Errorf("send tap: %w", err)
			}
		}
	}
}

func (w *watcher) read(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return nil
			}
			return fmt.Errorf("read screen: %w", err)
		}

		var screen render.Screen
		if err := json.Unmarshal(data, &screen); err != nil {
			w.logger.Warn("ignoring bad screen", "error", err)
			continue
		}
		w.out.Present(screen)
	}
}
