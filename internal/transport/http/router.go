package http

import (
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/google/uuid"
	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/internal/transport/http/handlers"
	httpmw "github.com/scrapedeck/console/internal/transport/http/middleware"
)

type RouterConfig struct {
	Registry      ports.TaskRegistry
	Notifications ports.NotificationService
	Channel       ports.LiveChannel
	Logger        *logger.Logger
	APIKey        string
}

const RequestIDHeader = "X-Request-ID"

// NewApp builds the console fiber app: panic recovery, request ids, access
// logging and JSON errors around the routes.
func NewApp(cfg RouterConfig) *fiber.App {
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "scrapedeck",
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			if e, ok := err.(*fiber.Error); ok {
				code = e.Code
			}
			cfg.Logger.Errorw("http_error", "path", c.Path(), "status", code, "error", err)
			return c.Status(code).JSON(fiber.Map{"error": err.Error()})
		},
	})

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(func(c *fiber.Ctx) error {
		reqID := c.Get(RequestIDHeader)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Locals("request_id", reqID)
		c.Set(RequestIDHeader, reqID)
		return c.Next()
	})

	app.Use(func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		routePath := ""
		if c.Route() != nil {
			routePath = c.Route().Path
		}
		cfg.Logger.Infow("http_access",
			"method", c.Method(),
			"path", c.Path(),
			"route", routePath,
			"status", c.Response().StatusCode(),
			"latency_ms", time.Since(start).Milliseconds(),
			"client_ip", c.IP(),
			"request_id", c.Locals("request_id"),
		)
		return err
	})

	SetupRoutes(app, cfg)
	return app
}

func SetupRoutes(app *fiber.App, cfg RouterConfig) {
	taskHandler := handlers.NewTaskHandler(cfg.Registry, cfg.Logger)
	notificationHandler := handlers.NewNotificationHandler(cfg.Notifications, cfg.Logger)
	channelHandler := handlers.NewChannelHandler(cfg.Channel, cfg.Logger)

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"channel": cfg.Channel.State(),
		})
	})

	// Notification stream
	app.Use("/ws", httpmw.APIKeyAuth(cfg.APIKey), func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			c.Locals("allowed", true)
			return c.Next()
		}
		return c.SendStatus(fiber.StatusUpgradeRequired)
	})
	app.Get("/ws/notifications", websocket.New(notificationHandler.Stream))

	api := app.Group("/api", httpmw.APIKeyAuth(cfg.APIKey))

	tasks := api.Group("/tasks")
	tasks.Get("/", taskHandler.GetTasks)
	tasks.Post("/", taskHandler.CreateTask)
	tasks.Get("/:id", taskHandler.GetTask)
	tasks.Delete("/:id", taskHandler.DeleteTask)
	tasks.Post("/:id/execute", taskHandler.ExecuteTask)
	tasks.Post("/:id/retry", taskHandler.RetryTask)
	tasks.Get("/:id/logs", taskHandler.GetTaskLogs)
	tasks.Get("/:id/results", taskHandler.GetTaskResults)

	notifications := api.Group("/notifications")
	notifications.Get("/", notificationHandler.GetNotifications)
	notifications.Delete("/:id", notificationHandler.DismissNotification)

	channel := api.Group("/channel")
	channel.Get("/", channelHandler.GetStatus)
	channel.Post("/reconnect", channelHandler.Reconnect)
}
