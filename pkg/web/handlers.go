package web

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/teslashibe/parley/pkg/controller"
	"github.com/teslashibe/parley/pkg/hub"
	"github.com/teslashibe/parley/pkg/recorder"
)

// inbound is a message sent by a browser over the screen socket.
type inbound struct {
	Action string `json:"action"`
}

func (s *Server) handleIndex(c *fiber.Ctx) error {
	page, err := static.ReadFile("static/index.html")
	if err != nil {
		return err
	}
	c.Type("html")
	return c.Send(page)
}

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"clients": s.screenHub.ClientCount(),
	})
}

// handleScreen returns the current screen
func (s *Server) handleScreen(c *fiber.Ctx) error {
	return c.JSON(s.session.Screen())
}

// handleMic toggles the mic, as the on-screen button does
func (s *Server) handleMic(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.tapTimeout)
	defer cancel()

	if err := s.session.TapMic(ctx); err != nil {
		status := fiber.StatusInternalServerError
		switch {
		case errors.Is(err, controller.ErrMicDisabled):
			status = fiber.StatusConflict
		case recorder.IsPermissionDenied(err):
			status = fiber.StatusForbidden
		case errors.Is(err, controller.ErrStopped):
			status = fiber.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(s.session.Screen())
}

// handleProduct serves a product image, or a placeholder when it cannot be
// loaded.
func (s *Server) handleProduct(c *fiber.Ctx) error {
	name := filepath.Base(filepath.Clean("/" + c.Params("name")))
	if s.productsDir != "" && name != "/" && name != "." {
		path := filepath.Join(s.productsDir, name)
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			return c.SendFile(path)
		}
	}

	s.logger.Debug("product image missing, using placeholder", "name", name)
	page, err := static.ReadFile("static/placeholder.svg")
	if err != nil {
		return err
	}
	c.Type("svg")
	return c.Send(page)
}

// handleScreenWS streams screens to one browser
func (s *Server) handleScreenWS(c *websocket.Conn) {
	hub.NewClient(s.screenHub, c).Run()
}

// handleInbound accepts {"action":"tap"} from browsers.
func (s *Server) handleInbound(data []byte) {
	var msg inbound
	if err := json.Unmarshal(data, &msg); err != nil {
		s.logger.Debug("ignoring inbound message", "error", err)
		return
	}
	if msg.Action != "tap" {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.tapTimeout)
	defer cancel()
	if err := s.session.TapMic(ctx); err != nil {
		s.logger.Info("mic tap rejected", "error", err)
	}
}
