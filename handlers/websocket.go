package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/contrib/websocket"
	"github.com/karthikraju391/go-chat-sync-server/config"
	apperrors "github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/karthikraju391/go-chat-sync-server/presence"
	"github.com/karthikraju391/go-chat-sync-server/services"
)

type eventHandler func(ctx context.Context, data json.RawMessage) error

// Client is one live socket. Commands are read and dispatched synchronously
// in the reader goroutine; outbound frames go through a bounded buffer drained
// by the writer goroutine, so a slow socket never blocks a relay.
type Client struct {
	Conn     *websocket.Conn
	registry *presence.Registry
	messages *services.MessageService
	log      *slog.Logger
	timeout  time.Duration
	handlers map[string]eventHandler

	mu     sync.RWMutex
	userID string // Set by add-user
	closed bool
	send   chan []byte   // Outbound frames
	done   chan struct{} // Closed when the reader exits
}

func NewClient(conn *websocket.Conn, deps Dependencies) *Client {
	c := &Client{
		Conn:     conn,
		registry: deps.Registry,
		messages: deps.Messages,
		log:      deps.Log,
		timeout:  deps.RequestTimeout,
		send:     make(chan []byte, deps.SendBufferSize),
		done:     make(chan struct{}),
	}
	c.handlers = map[string]eventHandler{
		models.CommandAddUser:       c.onAddUser,
		models.CommandSendMsg:       c.onSendMsg,
		string(models.EventEdited):  c.onMessageEdited,
		string(models.EventDeleted): c.onMessageDeleted,
		string(models.EventSeen):    c.onMessageSeen,
	}
	return c
}

// UserID returns the user registered on this socket, empty until add-user.
func (c *Client) UserID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// Push implements presence.Conn. It never blocks.
func (c *Client) Push(event models.LifecycleEvent) error {
	return c.emit(string(event.Kind), event.Payload())
}

func (c *Client) emit(event string, payload any) error {
	envelope, err := models.NewEnvelope(event, payload)
	if err != nil {
		return err
	}
	frame, err := json.Marshal(envelope)
	if err != nil {
		return err
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return apperrors.ErrConnClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return apperrors.ErrSendBufferFull
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

// HandleRead reads commands from the WebSocket connection and dispatches them.
func (c *Client) HandleRead(ctx context.Context) {
	defer func() {
		c.log.Debug("Reader closed", "user_id", c.UserID())
		close(c.done) // Signal writer to stop
	}()
	c.Conn.SetReadLimit(config.MaxMessageSize)
	_ = c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		return c.Conn.SetReadDeadline(time.Now().Add(config.PongWait))
	})

	for {
		_, data, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.log.Warn("WebSocket read error", "user_id", c.UserID(), "error", err)
			} else {
				c.log.Debug("WebSocket closed", "user_id", c.UserID(), "error", err)
			}
			return
		}

		var envelope models.Envelope
		if err := json.Unmarshal(data, &envelope); err != nil {
			c.reject("", "", fmt.Errorf("malformed frame: %w", err))
			continue
		}
		c.dispatch(ctx, envelope)
	}
}

func (c *Client) dispatch(ctx context.Context, envelope models.Envelope) {
	handler, ok := c.handlers[envelope.Event]
	if !ok {
		c.reject(envelope.Event, "", apperrors.ErrUnknownEvent)
		return
	}
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := handler(reqCtx, envelope.Data); err != nil {
		c.reject(envelope.Event, messageID(envelope.Data), err)
	}
}

// HandleWrite writes queued frames to the WebSocket connection.
func (c *Client) HandleWrite() {
	ticker := time.NewTicker(config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.log.Debug("Writer closed", "user_id", c.UserID())
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if !ok {
				_ = c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.log.Debug("WebSocket write error", "user_id", c.UserID(), "error", err)
				return
			}

		case <-ticker.C:
			_ = c.Conn.SetWriteDeadline(time.Now().Add(config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.log.Debug("WebSocket ping error", "user_id", c.UserID(), "error", err)
				return
			}

		case <-c.done:
			return
		}
	}
}

func (c *Client) onAddUser(_ context.Context, data json.RawMessage) error {
	var userID string
	if err := json.Unmarshal(data, &userID); err != nil || userID == "" {
		return fmt.Errorf("add-user expects a user id string: %w", apperrors.ErrInvalidTransition)
	}
	c.register(userID)
	return nil
}

func (c *Client) register(userID string) {
	c.mu.Lock()
	c.userID = userID
	c.mu.Unlock()
	c.registry.Register(userID, c)
	c.log.Info("User connected", "user_id", userID, "online", c.registry.Len())
}

func (c *Client) onSendMsg(ctx context.Context, data json.RawMessage) error {
	var payload models.SendMsgPayload
	actor, err := c.decode(data, &payload, func() string { return payload.From })
	if err != nil {
		return err
	}
	if payload.ID != "" {
		_, err = c.messages.Announce(ctx, actor, payload.ID)
		return err
	}
	m, err := c.messages.SendMessage(ctx, actor, payload.To, payload.Msg)
	if err != nil {
		return err
	}
	return c.emit(models.EventSent, models.SentPayload{ID: m.ID, To: payload.To})
}

func (c *Client) onMessageEdited(ctx context.Context, data json.RawMessage) error {
	var payload models.EditMsgPayload
	actor, err := c.decode(data, &payload, func() string { return payload.From })
	if err != nil {
		return err
	}
	_, err = c.messages.UpdateText(ctx, actor, payload.ID, payload.Message)
	return err
}

func (c *Client) onMessageDeleted(ctx context.Context, data json.RawMessage) error {
	var payload models.TargetMsgPayload
	actor, err := c.decode(data, &payload, func() string { return payload.From })
	if err != nil {
		return err
	}
	_, err = c.messages.Delete(ctx, actor, payload.ID)
	return err
}

func (c *Client) onMessageSeen(ctx context.Context, data json.RawMessage) error {
	var payload models.TargetMsgPayload
	actor, err := c.decode(data, &payload, func() string { return payload.From })
	if err != nil {
		return err
	}
	_, err = c.messages.MarkSeen(ctx, actor, payload.ID)
	return err
}

// decode unmarshals and validates a command payload and returns the acting
// user, which must be the user registered on this socket.
func (c *Client) decode(data json.RawMessage, payload any, from func() string) (string, error) {
	actor := c.UserID()
	if actor == "" {
		return "", apperrors.ErrNotRegistered
	}
	if err := json.Unmarshal(data, payload); err != nil {
		return "", fmt.Errorf("malformed payload: %w", err)
	}
	if err := validate.Struct(payload); err != nil {
		return "", err
	}
	if from() != actor {
		return "", fmt.Errorf("%s cannot act as %s: %w", actor, from(), apperrors.ErrInvalidTransition)
	}
	return actor, nil
}

func (c *Client) reject(event, id string, err error) {
	level := slog.LevelInfo
	var validationErrors validator.ValidationErrors
	if !errors.Is(err, apperrors.ErrNotFound) && !errors.Is(err, apperrors.ErrInvalidTransition) &&
		!errors.Is(err, apperrors.ErrEmptyText) && !errors.As(err, &validationErrors) {
		level = slog.LevelWarn
	}
	c.log.Log(context.Background(), level, "Command rejected", "user_id", c.UserID(), "event", event, "error", err)
	if emitErr := c.emit(models.EventError, models.ErrorPayload{Event: event, ID: id, Msg: err.Error()}); emitErr != nil {
		c.log.Debug("Could not report error to client", "user_id", c.UserID(), "error", emitErr)
	}
}

func messageID(data json.RawMessage) string {
	var payload struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(data, &payload)
	return payload.ID
}

// HandleWebSocket manages the lifecycle of a WebSocket connection
func HandleWebSocket(conn *websocket.Conn, deps Dependencies) {
	client := NewClient(conn, deps)
	if userID := conn.Query("userId"); userID != "" {
		client.register(userID)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cleanup presence and connection when handler exits
	defer func() {
		if userID, ok := deps.Registry.Unregister(client); ok {
			deps.Log.Info("User disconnected", "user_id", userID, "online", deps.Registry.Len())
		}
		client.closeSend()
		_ = conn.Close()
	}()

	go client.HandleWrite()

	// The read loop blocks until the connection closes or errors, triggering defers.
	client.HandleRead(ctx)
}
