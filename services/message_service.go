package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/lifecycle"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/karthikraju391/go-chat-sync-server/relay"
	"github.com/karthikraju391/go-chat-sync-server/store"
)

// Relayer forwards a lifecycle event to a user if it is online.
type Relayer interface {
	Relay(ctx context.Context, target string, event models.LifecycleEvent) relay.Outcome
}

// MessageService applies client actions: the store is mutated first, then the
// resulting event is relayed to the other participant. The store result is
// authoritative whatever the relay outcome.
type MessageService struct {
	store store.MessageStore
	relay Relayer
	log   *slog.Logger
}

func NewMessageService(store store.MessageStore, relay Relayer, log *slog.Logger) *MessageService {
	return &MessageService{store: store, relay: relay, log: log}
}

// AddMessage stores a new message without notifying anyone. Clients using it
// announce the message themselves over their socket (send-msg with an id).
func (s *MessageService) AddMessage(ctx context.Context, from, to, text string) (models.Message, error) {
	draft, err := lifecycle.Send(from, to, text)
	if err != nil {
		return models.Message{}, err
	}
	m, err := s.store.Create(ctx, draft.Participants, draft.Sender, draft.Text)
	if err != nil {
		return models.Message{}, err
	}
	s.log.Info("Message added", "message_id", m.ID, "from", from, "to", to)
	return m, nil
}

// SendMessage stores a new message and pushes it to the recipient.
func (s *MessageService) SendMessage(ctx context.Context, from, to, text string) (models.Message, error) {
	m, err := s.AddMessage(ctx, from, to, text)
	if err != nil {
		return models.Message{}, err
	}
	s.emit(ctx, models.EventReceived, m, from)
	return m, nil
}

// Announce pushes an already stored message to its recipient.
func (s *MessageService) Announce(ctx context.Context, actor, id string) (models.Message, error) {
	m, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	if m.Sender != actor {
		return models.Message{}, fmt.Errorf("%s is not the sender of message %s: %w", actor, id, errors.ErrInvalidTransition)
	}
	if m.IsDeleted {
		return models.Message{}, fmt.Errorf("message %s is deleted: %w", id, errors.ErrInvalidTransition)
	}
	s.emit(ctx, models.EventReceived, m, actor)
	return m, nil
}

// UpdateText edits a message of actor. The store may still reject the edit if
// the message was deleted after it was read.
func (s *MessageService) UpdateText(ctx context.Context, actor, id, text string) (models.Message, error) {
	m, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	next, err := lifecycle.Edit(m, actor, text)
	if err != nil {
		return models.Message{}, err
	}
	stored, err := s.store.UpdateText(ctx, id, next.Text)
	if err != nil {
		return models.Message{}, err
	}
	s.log.Info("Message edited", "message_id", id, "by", actor)
	s.emit(ctx, models.EventEdited, stored, actor)
	return stored, nil
}

// Delete soft deletes a message of actor. Deleting twice emits nothing.
func (s *MessageService) Delete(ctx context.Context, actor, id string) (models.Message, error) {
	m, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	_, changed, err := lifecycle.Delete(m, actor)
	if err != nil {
		return models.Message{}, err
	}
	if !changed {
		return m, nil
	}
	stored, err := s.store.MarkDeleted(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	s.log.Info("Message deleted", "message_id", id, "by", actor)
	s.emit(ctx, models.EventDeleted, stored, actor)
	return stored, nil
}

// MarkSeen flags one message seen by its recipient, typically after a live
// delivery into an open conversation.
func (s *MessageService) MarkSeen(ctx context.Context, actor, id string) (models.Message, error) {
	m, err := s.store.FindByID(ctx, id)
	if err != nil {
		return models.Message{}, err
	}
	next, changed, err := lifecycle.MarkSeen(m, actor)
	if err != nil {
		return models.Message{}, err
	}
	if !changed {
		return m, nil
	}
	marked, err := s.store.MarkSeen(ctx, []string{id})
	if err != nil {
		return models.Message{}, err
	}
	if len(marked) == 0 {
		// Marked by a concurrent request, which emitted the event.
		return next, nil
	}
	s.emit(ctx, models.EventSeen, next, actor)
	return next, nil
}

func (s *MessageService) emit(ctx context.Context, kind models.EventKind, m models.Message, actor string) {
	target, event := lifecycle.EventFor(kind, m, actor)
	outcome := s.relay.Relay(ctx, target, event)
	s.log.Debug("Event relayed", "event", kind, "message_id", m.ID, "user_id", target, "outcome", outcome.String())
}
