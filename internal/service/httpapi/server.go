package httpapi

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	jwtware "github.com/gofiber/jwt/v2"
	log "github.com/sirupsen/logrus"
)

const defaultSessionTTL = 24 * time.Hour

// Config — параметры HTTP API.
type Config struct {
	JWTSecret  string
	SessionTTL time.Duration
}

// Server — fiber-приложение со всеми маршрутами и middleware.
type Server struct {
	app    *fiber.App
	logger *log.Entry
}

// NewServer собирает приложение: сессии, публичный каталог, затем JWT и защищённые маршруты.
func NewServer(handler *Handler, cfg Config, logger *log.Entry) *Server {
	if logger == nil {
		logger = log.WithField("component", "httpapi")
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = defaultSessionTTL
	}

	app := fiber.New(fiber.Config{
		AppName:               "bookstore",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return writeError(c, logger, err)
		},
	})

	app.Use(requestLogger(logger))
	app.Use(sessionMiddleware(NewSessionStore(cfg.SessionTTL), logger))
	handler.RegisterPublicRoutes(app)

	app.Use(jwtware.New(jwtware.Config{
		SigningKey: []byte(cfg.JWTSecret),
		ContextKey: localsUser,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "unauthorized"})
		},
	}))
	handler.RegisterProtectedRoutes(app)

	return &Server{app: app, logger: logger}
}

// App возвращает fiber-приложение (используется в тестах через app.Test).
func (s *Server) App() *fiber.App {
	return s.app
}

// Listen блокируется до остановки сервера.
func (s *Server) Listen(addr string) error {
	s.logger.Infof("HTTP API слушает %s", addr)
	return s.app.Listen(addr)
}

// Shutdown останавливает приём запросов и ждёт активные.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}

func requestLogger(logger *log.Entry) fiber.Handler {
	return func(c *fiber.Ctx) error {
		started := time.Now()
		err := c.Next()
		logger.WithFields(log.Fields{
			"method":   c.Method(),
			"path":     c.Path(),
			"status":   c.Response().StatusCode(),
			"duration": time.Since(started).String(),
		}).Debug("http request")
		return err
	}
}
