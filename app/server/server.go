package server

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/samber/do"

	"voicedesk/app/config"
	"voicedesk/app/service/fault"
	"voicedesk/app/service/session"
)

const maxBodySize = 32 * 1024 * 1024

type Server struct {
	cfg      *config.Config
	appCtx   context.Context
	sessions *session.Manager

	app *fiber.App
}

func New(di *do.Injector) (*Server, error) {
	s := &Server{
		cfg:      do.MustInvoke[*config.Config](di),
		appCtx:   do.MustInvoke[context.Context](di),
		sessions: do.MustInvoke[*session.Manager](di),
	}

	app := fiber.New(fiber.Config{
		ErrorHandler:          s.handleError,
		DisableStartupMessage: true,
		BodyLimit:             maxBodySize,
	})

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	app.Use("/api/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}

		return fiber.ErrUpgradeRequired
	})
	app.Get("/api/ws", websocket.New(s.handleWS))

	api := app.Group("/api", s.requireAuth)
	api.Post("/voice-chat", s.handleVoiceChat)

	s.app = app

	return s, nil
}

func (s *Server) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()

		_ = s.app.Shutdown()
	}()

	slog.Info("Server listening", "addr", s.cfg.Server.Addr)

	return s.app.Listen(s.cfg.Server.Addr)
}

func (s *Server) handleError(c *fiber.Ctx, err error) error {
	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return c.Status(fiberErr.Code).JSON(fiber.Map{
			"success": false,
			"error":   fiberErr.Message,
		})
	}

	status := fault.HTTPStatus(err)
	if status >= fiber.StatusInternalServerError {
		slog.Error("Request failed",
			"path", c.Path(),
			"error", err)
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"error":   err.Error(),
		"code":    fault.Code(err),
	})
}
