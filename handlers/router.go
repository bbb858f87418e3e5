package handlers

import (
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/karthikraju391/go-chat-sync-server/presence"
	"github.com/karthikraju391/go-chat-sync-server/services"
)

var validate = validator.New()

// Dependencies are shared by every request and connection.
type Dependencies struct {
	Registry       *presence.Registry
	Messages       *services.MessageService
	Conversations  *services.ConversationService
	Log            *slog.Logger
	SendBufferSize int
	RequestTimeout time.Duration
	AllowedOrigins string
}

// NewApp builds the HTTP API and the WebSocket endpoint.
func NewApp(deps Dependencies) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler:          errorHandler(deps.Log),
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(logger.New()) // Basic request logging
	app.Use(cors.New(cors.Config{AllowOrigins: deps.AllowedOrigins}))

	app.Get("/ping", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"msg": "Ping Successful"})
	})

	h := &MessageHandler{
		messages:      deps.Messages,
		conversations: deps.Conversations,
		timeout:       deps.RequestTimeout,
	}
	api := app.Group("/api")
	messages := api.Group("/messages")
	messages.Post("/getmsg", h.GetMessages)
	messages.Post("/addmsg", h.AddMessage)
	messages.Put("/updatemsg", h.UpdateMessage)
	messages.Put("/deletemsg/:id", h.DeleteMessage)
	messages.Put("/markseen/:id", h.MarkSeen)

	p := &PresenceHandler{registry: deps.Registry}
	api.Get("/presence", p.Online)
	api.Get("/presence/:userId", p.Status)

	app.Use("/ws", func(c *fiber.Ctx) error {
		// Check if the request is a WebSocket upgrade request
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		HandleWebSocket(c, deps)
	}))

	return app
}
