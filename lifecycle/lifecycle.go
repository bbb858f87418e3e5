// Package lifecycle holds the state machine of a direct message.
//
// A message is Active(seen, edited) until it is deleted; Deleted is terminal.
// Functions here are pure: they validate a transition against the current
// record and return the next record. Persisting it is the store's job, and the
// store may still reject a transition that became stale in between.
package lifecycle

import (
	"fmt"
	"strings"

	"github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/models"
)

type State int

const (
	Active State = iota
	Deleted
)

func (s State) String() string {
	if s == Deleted {
		return "deleted"
	}
	return "active"
}

func StateOf(m models.Message) State {
	if m.IsDeleted {
		return Deleted
	}
	return Active
}

// Send builds a new unseen, unedited message. Id and timestamps are left
// for the store.
func Send(sender, recipient, text string) (models.Message, error) {
	if sender == "" || recipient == "" || sender == recipient {
		return models.Message{}, fmt.Errorf("send from %q to %q: %w", sender, recipient, errors.ErrInvalidTransition)
	}
	if strings.TrimSpace(text) == "" {
		return models.Message{}, errors.ErrEmptyText
	}
	return models.Message{
		Participants: [2]string{sender, recipient},
		Sender:       sender,
		Text:         text,
	}, nil
}

// MarkSeen flags the message as seen by its recipient.
// changed is false when it was already seen.
func MarkSeen(m models.Message, actor string) (models.Message, bool, error) {
	if !m.HasParticipant(actor) || actor == m.Sender {
		return m, false, fmt.Errorf("%s cannot mark message %s seen: %w", actor, m.ID, errors.ErrInvalidTransition)
	}
	if m.Seen {
		return m, false, nil
	}
	m.Seen = true
	return m, true, nil
}

// Edit replaces the text of an active message. Only the sender may edit.
func Edit(m models.Message, actor, text string) (models.Message, error) {
	if StateOf(m) == Deleted {
		return m, fmt.Errorf("message %s is deleted: %w", m.ID, errors.ErrInvalidTransition)
	}
	if actor != m.Sender {
		return m, fmt.Errorf("%s is not the sender of message %s: %w", actor, m.ID, errors.ErrInvalidTransition)
	}
	if strings.TrimSpace(text) == "" {
		return m, errors.ErrEmptyText
	}
	m.Text = text
	m.IsEdited = true
	return m, nil
}

// Delete soft deletes the message and redacts its text. Only the sender may
// delete; deleting twice is a no-op with changed false.
func Delete(m models.Message, actor string) (models.Message, bool, error) {
	if actor != m.Sender {
		return m, false, fmt.Errorf("%s is not the sender of message %s: %w", actor, m.ID, errors.ErrInvalidTransition)
	}
	if StateOf(m) == Deleted {
		return m, false, nil
	}
	return Redact(m), true, nil
}

// Redact applies the deleted state without any actor check.
func Redact(m models.Message) models.Message {
	m.IsDeleted = true
	m.Text = models.DeletedText
	return m
}

// EventFor returns the event a changing transition emits and the user it is
// addressed to: always the participant that did not act.
func EventFor(kind models.EventKind, m models.Message, actor string) (string, models.LifecycleEvent) {
	event := models.LifecycleEvent{Kind: kind, MessageID: m.ID, From: actor}
	switch kind {
	case models.EventReceived, models.EventEdited:
		event.Text = m.Text
	}
	return m.Other(actor), event
}
