package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/scrapedeck/console/internal/core/ports"
	"github.com/scrapedeck/console/internal/infrastructure/logger"
	"github.com/scrapedeck/console/internal/transport/http/dto"
)

type ChannelHandler struct {
	channel ports.LiveChannel
	logger  *logger.Logger
}

func NewChannelHandler(channel ports.LiveChannel, logger *logger.Logger) *ChannelHandler {
	return &ChannelHandler{channel: channel, logger: logger}
}

func (h *ChannelHandler) GetStatus(c *fiber.Ctx) error {
	return c.JSON(dto.ChannelToResponse(h.channel.Status()))
}

func (h *ChannelHandler) Reconnect(c *fiber.Ctx) error {
	h.logger.Infow("channel_reconnect_request")
	if err := h.channel.Reconnect(); err != nil {
		h.logger.Warnw("channel_reconnect_failed", "error", err)
		return c.Status(fiber.StatusConflict).JSON(dto.ErrorResponse{
			Error: err.Error(),
		})
	}
	return c.Status(fiber.StatusAccepted).JSON(dto.ChannelToResponse(h.channel.Status()))
}
