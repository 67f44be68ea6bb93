package handlers

import (
	"encoding/json"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/internal/transport/http/dto"
)

type NotificationHandler struct {
	notifications ports.NotificationService
	logger        *logger.Logger
}

func NewNotificationHandler(notifications ports.NotificationService, logger *logger.Logger) *NotificationHandler {
	return &NotificationHandler{notifications: notifications, logger: logger}
}

func (h *NotificationHandler) GetNotifications(c *fiber.Ctx) error {
	return c.JSON(h.notifications.List())
}

func (h *NotificationHandler) DismissNotification(c *fiber.Ctx) error {
	id := c.Params("id")
	if !h.notifications.Dismiss(id) {
		return c.Status(fiber.StatusNotFound).JSON(dto.ErrorResponse{
			Error: "notification not found",
		})
	}
	h.logger.Debugw("notification_dismissed", "id", id)
	return c.SendStatus(fiber.StatusNoContent)
}

// Stream pushes every new notification to the websocket client as a JSON
// text frame until either side goes away.
func (h *NotificationHandler) Stream(c *websocket.Conn) {
	events, cancel := h.notifications.Subscribe(32)
	defer cancel()

	h.logger.Infow("notification_stream_open", "remote", c.RemoteAddr().String())

	// Client frames are ignored; reading detects the disconnect.
	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := c.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case n, ok := <-events:
			if !ok {
				c.Close()
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				h.logger.Errorw("notification_stream_encode_failed", "error", err)
				continue
			}
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				h.logger.Infow("notification_stream_closed", "error", err)
				return
			}
		case <-gone:
			h.logger.Infow("notification_stream_closed")
			return
		}
	}
}
