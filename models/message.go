package models

import (
	"time"
)

// DeletedText replaces the text of a soft deleted message.
const DeletedText = "This message was deleted"

// Message is the durable record of a direct message between two users.
type Message struct {
	ID           string    `json:"id"`        // Unique message ID (UUID), assigned by the store
	Participants [2]string `json:"users"`     // The two users of the conversation, unordered
	Sender       string    `json:"sender"`    // One of Participants
	Text         string    `json:"text"`      // Current content, DeletedText once deleted
	Seen         bool      `json:"seen"`      // Set once the recipient has opened or received it
	IsEdited     bool      `json:"isEdited"`  // Set by the first edit
	IsDeleted    bool      `json:"isDeleted"` // Soft delete flag, terminal
	CreatedAt    time.Time `json:"createdAt"` // Timestamp of message creation
	UpdatedAt    time.Time `json:"updatedAt"` // Timestamp of the last mutation
}

// HasParticipant reports whether userID is one side of the conversation.
func (m Message) HasParticipant(userID string) bool {
	return userID != "" && (m.Participants[0] == userID || m.Participants[1] == userID)
}

// Recipient returns the participant who did not send the message.
func (m Message) Recipient() string {
	return m.Other(m.Sender)
}

// Other returns the participant that is not userID.
func (m Message) Other(userID string) string {
	if m.Participants[0] == userID {
		return m.Participants[1]
	}
	return m.Participants[0]
}

// MessageView is a message as seen by one side of the conversation.
type MessageView struct {
	FromSelf  bool      `json:"fromSelf"`
	Message   string    `json:"message"`
	ID        string    `json:"id"`
	Seen      bool      `json:"seen"`
	IsEdited  bool      `json:"isEdited"`
	IsDeleted bool      `json:"isDeleted"`
	CreatedAt time.Time `json:"createdAt"`
}

// ViewFor projects the message for userID.
func (m Message) ViewFor(userID string) MessageView {
	return MessageView{
		FromSelf:  m.Sender == userID,
		Message:   m.Text,
		ID:        m.ID,
		Seen:      m.Seen,
		IsEdited:  m.IsEdited,
		IsDeleted: m.IsDeleted,
		CreatedAt: m.CreatedAt,
	}
}

// Conversation is the answer to a conversation sync.
type Conversation struct {
	Messages       []MessageView `json:"messages"`
	SeenMessageIDs []string      `json:"seenMessageIds"`
}
