package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	apperrors "github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/presence"
	"github.com/karthikraju391/go-chat-sync-server/services"
)

type getMessagesRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

type addMessageRequest struct {
	From    string `json:"from" validate:"required"`
	To      string `json:"to" validate:"required"`
	Message string `json:"message"`
}

type updateMessageRequest struct {
	ID      string `json:"id" validate:"required"`
	From    string `json:"from" validate:"required"`
	Message string `json:"message"`
}

type actorRequest struct {
	From string `json:"from" validate:"required"`
}

// MessageHandler exposes the message operations over HTTP.
type MessageHandler struct {
	messages      *services.MessageService
	conversations *services.ConversationService
	timeout       time.Duration
}

// GetMessages opens the conversation of from with to.
func (h *MessageHandler) GetMessages(c *fiber.Ctx) error {
	var req getMessagesRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()

	conversation, err := h.conversations.Open(ctx, req.From, req.To)
	if err != nil {
		return err
	}
	return c.JSON(conversation)
}

func (h *MessageHandler) AddMessage(c *fiber.Ctx) error {
	var req addMessageRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()

	m, err := h.messages.AddMessage(ctx, req.From, req.To, req.Message)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"msg": "Message added successfully.", "id": m.ID})
}

func (h *MessageHandler) UpdateMessage(c *fiber.Ctx) error {
	var req updateMessageRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()

	if _, err := h.messages.UpdateText(ctx, req.From, req.ID, req.Message); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"msg": "Message updated successfully."})
}

func (h *MessageHandler) DeleteMessage(c *fiber.Ctx) error {
	var req actorRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()

	if _, err := h.messages.Delete(ctx, req.From, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"msg": "Message deleted successfully."})
}

func (h *MessageHandler) MarkSeen(c *fiber.Ctx) error {
	var req actorRequest
	if err := parse(c, &req); err != nil {
		return err
	}
	ctx, cancel := h.context(c)
	defer cancel()

	if _, err := h.messages.MarkSeen(ctx, req.From, c.Params("id")); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"msg": "Message marked as seen."})
}

func (h *MessageHandler) context(c *fiber.Ctx) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.UserContext(), h.timeout)
}

// PresenceHandler reports who is connected to this instance.
type PresenceHandler struct {
	registry *presence.Registry
}

func (h *PresenceHandler) Online(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"online": h.registry.Online()})
}

func (h *PresenceHandler) Status(c *fiber.Ctx) error {
	userID := c.Params("userId")
	_, online := h.registry.Lookup(userID)
	return c.JSON(fiber.Map{"userId": userID, "online": online})
}

func parse(c *fiber.Ctx, req any) error {
	if err := c.BodyParser(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return validate.Struct(req)
}

// errorHandler maps the error taxonomy to HTTP statuses.
func errorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		msg := err.Error()

		var fiberErr *fiber.Error
		var validationErrors validator.ValidationErrors
		switch {
		case errors.As(err, &fiberErr):
			code = fiberErr.Code
		case errors.As(err, &validationErrors):
			code = fiber.StatusBadRequest
		case errors.Is(err, apperrors.ErrNotFound):
			code = fiber.StatusNotFound
		case errors.Is(err, apperrors.ErrInvalidTransition):
			code = fiber.StatusConflict
		case errors.Is(err, apperrors.ErrEmptyText):
			code = fiber.StatusBadRequest
		case errors.Is(err, context.DeadlineExceeded):
			code = fiber.StatusGatewayTimeout
		}

		if code >= fiber.StatusInternalServerError {
			log.Error("Request failed", "method", c.Method(), "path", c.Path(), "error", err)
			msg = "internal server error"
		}
		return c.Status(code).JSON(fiber.Map{"msg": msg})
	}
}
