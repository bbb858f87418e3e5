package models

import (
	"encoding/json"
)

// EventKind is the socket event name a lifecycle event travels under.
type EventKind string

const (
	EventReceived EventKind = "msg-recieve"
	EventEdited   EventKind = "message-edited"
	EventDeleted  EventKind = "message-deleted"
	EventSeen     EventKind = "message-seen"
)

// Client commands and server acknowledgements.
const (
	CommandAddUser = "add-user"
	CommandSendMsg = "send-msg"
	EventSent      = "msg-sent"
	EventError     = "error"
)

// LifecycleEvent is a transient notification about a message state change.
// It is never persisted.
type LifecycleEvent struct {
	Kind      EventKind `json:"kind"`
	MessageID string    `json:"messageId"`
	From      string    `json:"from,omitempty"`
	Text      string    `json:"text,omitempty"`
}

type ReceivedPayload struct {
	Message string `json:"message"`
	ID      string `json:"id"`
	From    string `json:"from"`
}

type EditedPayload struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

type IDPayload struct {
	ID string `json:"id"`
}

// Payload returns the outbound shape the client expects for this event.
func (e LifecycleEvent) Payload() any {
	switch e.Kind {
	case EventReceived:
		return ReceivedPayload{Message: e.Text, ID: e.MessageID, From: e.From}
	case EventEdited:
		return EditedPayload{ID: e.MessageID, Message: e.Text}
	default:
		return IDPayload{ID: e.MessageID}
	}
}

// Envelope frames every socket message in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// NewEnvelope marshals data under the given event name.
func NewEnvelope(event string, data any) (Envelope, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return Envelope{}, err
	}
	return Envelope{Event: event, Data: raw}, nil
}

// Inbound payloads sent by clients.

type SendMsgPayload struct {
	To   string `json:"to" validate:"required"`
	From string `json:"from" validate:"required"`
	Msg  string `json:"msg"`
	ID   string `json:"id"`
}

type EditMsgPayload struct {
	To      string `json:"to"`
	From    string `json:"from" validate:"required"`
	ID      string `json:"id" validate:"required"`
	Message string `json:"message"`
}

type TargetMsgPayload struct {
	To   string `json:"to"`
	From string `json:"from" validate:"required"`
	ID   string `json:"id" validate:"required"`
}

type SentPayload struct {
	ID string `json:"id"`
	To string `json:"to"`
}

type ErrorPayload struct {
	Event string `json:"event"`
	ID    string `json:"id,omitempty"`
	Msg   string `json:"msg"`
}
