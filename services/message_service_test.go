package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/mocks"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestMessageService_AddMessage_Does_Not_Relay(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRecordingRelay("bob")
	svc := NewMessageService(newBadgerStore(t), relay, testLogger())

	m, err := svc.AddMessage(ctx, "alice", "bob", "hi")

	req.NoError(err)
	req.NotEmpty(m.ID)
	req.Equal("alice", m.Sender)
	req.Empty(relay.sent())
}

func TestMessageService_SendMessage_To_Offline_User(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStore(t)
	relay := newRecordingRelay()
	svc := NewMessageService(s, relay, testLogger())

	// Given bob is offline
	// When alice sends "hi"
	m, err := svc.SendMessage(ctx, "alice", "bob", "hi")
	req.NoError(err)

	// Then the store holds one active unseen message and nothing was relayed
	messages, err := s.FindByPair(ctx, "alice", "bob")
	req.NoError(err)
	req.Len(messages, 1)
	req.Equal(m.ID, messages[0].ID)
	req.Equal("alice", messages[0].Sender)
	req.False(messages[0].Seen)
	req.False(messages[0].IsDeleted)
	req.Empty(relay.sent())
}

func TestMessageService_SendMessage_To_Online_User(t *testing.T) {
	req := require.New(t)
	relay := newRecordingRelay("bob")
	svc := NewMessageService(newBadgerStore(t), relay, testLogger())

	m, err := svc.SendMessage(context.Background(), "alice", "bob", "hi")

	req.NoError(err)
	req.Equal([]relayed{{
		target: "bob",
		event:  models.LifecycleEvent{Kind: models.EventReceived, MessageID: m.ID, From: "alice", Text: "hi"},
	}}, relay.sent())
}

func TestMessageService_SendMessage_Rejects_Empty_Text(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStore(t)
	svc := NewMessageService(s, newRecordingRelay("bob"), testLogger())

	_, err := svc.SendMessage(ctx, "alice", "bob", "  ")

	req.ErrorIs(err, errors.ErrEmptyText)
	messages, err := s.FindByPair(ctx, "alice", "bob")
	req.NoError(err)
	req.Empty(messages)
}

func TestMessageService_Announce(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRecordingRelay("bob")
	svc := NewMessageService(newBadgerStore(t), relay, testLogger())
	m, err := svc.AddMessage(ctx, "alice", "bob", "hi")
	req.NoError(err)

	_, err = svc.Announce(ctx, "bob", m.ID)
	req.ErrorIs(err, errors.ErrInvalidTransition)

	_, err = svc.Announce(ctx, "alice", "unknown")
	req.ErrorIs(err, errors.ErrNotFound)

	_, err = svc.Announce(ctx, "alice", m.ID)
	req.NoError(err)
	req.Len(relay.sent(), 1)
	req.Equal(models.EventReceived, relay.sent()[0].event.Kind)
}

func TestMessageService_UpdateText(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRecordingRelay("bob")
	svc := NewMessageService(newBadgerStore(t), relay, testLogger())
	m, _ := svc.AddMessage(ctx, "alice", "bob", "hi")

	edited, err := svc.UpdateText(ctx, "alice", m.ID, "hello")

	req.NoError(err)
	req.True(edited.IsEdited)
	req.Equal("hello", edited.Text)
	req.Equal([]relayed{{
		target: "bob",
		event:  models.LifecycleEvent{Kind: models.EventEdited, MessageID: m.ID, From: "alice", Text: "hello"},
	}}, relay.sent())
}

func TestMessageService_UpdateText_By_Non_Sender(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStore(t)
	relay := newRecordingRelay("alice", "bob")
	svc := NewMessageService(s, relay, testLogger())
	m, _ := svc.AddMessage(ctx, "alice", "bob", "hi")

	_, err := svc.UpdateText(ctx, "bob", m.ID, "hijacked")

	req.ErrorIs(err, errors.ErrInvalidTransition)
	found, err := s.FindByID(ctx, m.ID)
	req.NoError(err)
	req.Equal("hi", found.Text)
	req.Empty(relay.sent())
}

func TestMessageService_Edit_After_Delete_Is_Rejected(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStore(t)
	relay := newRecordingRelay("bob")
	svc := NewMessageService(s, relay, testLogger())
	m, _ := svc.AddMessage(ctx, "alice", "bob", "hi")
	deleted, err := svc.Delete(ctx, "alice", m.ID)
	req.NoError(err)

	// When alice edits the deleted message
	_, err = svc.UpdateText(ctx, "alice", m.ID, "back from the dead")

	// Then it is rejected and the store is unchanged
	req.ErrorIs(err, errors.ErrInvalidTransition)
	found, err := s.FindByID(ctx, m.ID)
	req.NoError(err)
	req.Equal(deleted, found)
	req.Len(relay.sent(), 1)
}

func TestMessageService_UpdateText_Empty(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	svc := NewMessageService(newBadgerStore(t), newRecordingRelay("bob"), testLogger())
	m, _ := svc.AddMessage(ctx, "alice", "bob", "hi")

	_, err := svc.UpdateText(ctx, "alice", m.ID, "   ")

	req.ErrorIs(err, errors.ErrEmptyText)
}

func TestMessageService_Delete_Is_Visible_To_Offline_Peer(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStore(t)
	relay := newRecordingRelay()
	svc := NewMessageService(s, relay, testLogger())
	conversations := NewConversationService(s, relay, testLogger())
	m, _ := svc.AddMessage(ctx, "alice", "bob", "secret")

	// Given bob is offline when alice deletes
	deleted, err := svc.Delete(ctx, "alice", m.ID)
	req.NoError(err)
	req.True(deleted.IsDeleted)
	req.Equal(models.DeletedText, deleted.Text)
	req.Empty(relay.sent())

	// When bob later opens the conversation he sees the placeholder
	conversation, err := conversations.Open(ctx, "bob", "alice")
	req.NoError(err)
	req.Len(conversation.Messages, 1)
	req.True(conversation.Messages[0].IsDeleted)
	req.Equal(models.DeletedText, conversation.Messages[0].Message)
}

func TestMessageService_Delete_Twice_Emits_Once(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	relay := newRecordingRelay("bob")
	svc := NewMessageService(newBadgerStore(t), relay, testLogger())
	m, _ := svc.AddMessage(ctx, "alice", "bob", "hi")

	_, err := svc.Delete(ctx, "alice", m.ID)
	req.NoError(err)
	again, err := svc.Delete(ctx, "alice", m.ID)
	req.NoError(err)

	req.True(again.IsDeleted)
	req.Len(relay.sent(), 1)
	req.Equal(models.LifecycleEvent{Kind: models.EventDeleted, MessageID: m.ID, From: "alice"}, relay.sent()[0].event)

	_, err = svc.Delete(ctx, "bob", m.ID)
	req.ErrorIs(err, errors.ErrInvalidTransition)
}

func TestMessageService_MarkSeen_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := newBadgerStore(t)
	relay := newRecordingRelay("alice")
	svc := NewMessageService(s, relay, testLogger())
	m, _ := svc.SendMessage(ctx, "alice", "bob", "hi")

	once, err := svc.MarkSeen(ctx, "bob", m.ID)
	req.NoError(err)
	twice, err := svc.MarkSeen(ctx, "bob", m.ID)
	req.NoError(err)

	req.True(once.Seen)
	req.Equal(once.Seen, twice.Seen)
	req.Equal([]relayed{{
		target: "alice",
		event:  models.LifecycleEvent{Kind: models.EventSeen, MessageID: m.ID, From: "bob"},
	}}, relay.sent())

	_, err = svc.MarkSeen(ctx, "alice", m.ID)
	req.ErrorIs(err, errors.ErrInvalidTransition)
}

func TestMessageService_Store_Unavailable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()
	mockStore := mocks.NewMockMessageStore(ctrl)
	relay := newRecordingRelay("alice", "bob")
	svc := NewMessageService(mockStore, relay, testLogger())
	unavailable := fmt.Errorf("connection refused")

	t.Run("create failure is surfaced", func(t *testing.T) {
		req := require.New(t)
		mockStore.EXPECT().
			Create(gomock.Any(), [2]string{"alice", "bob"}, "alice", "hi").
			Return(models.Message{}, unavailable).
			Times(1)

		_, err := svc.SendMessage(context.Background(), "alice", "bob", "hi")

		req.ErrorIs(err, unavailable)
		req.Empty(relay.sent())
	})

	t.Run("stale edit rejected by the store emits nothing", func(t *testing.T) {
		req := require.New(t)
		live := models.Message{ID: "m1", Participants: [2]string{"alice", "bob"}, Sender: "alice", Text: "hi"}
		mockStore.EXPECT().FindByID(gomock.Any(), "m1").Return(live, nil).Times(1)
		mockStore.EXPECT().
			UpdateText(gomock.Any(), "m1", "hello").
			Return(models.Message{}, errors.ErrInvalidTransition).
			Times(1)

		_, err := svc.UpdateText(context.Background(), "alice", "m1", "hello")

		req.ErrorIs(err, errors.ErrInvalidTransition)
		req.Empty(relay.sent())
	})

	t.Run("seen already applied concurrently emits nothing", func(t *testing.T) {
		req := require.New(t)
		live := models.Message{ID: "m2", Participants: [2]string{"alice", "bob"}, Sender: "alice", Text: "hi"}
		mockStore.EXPECT().FindByID(gomock.Any(), "m2").Return(live, nil).Times(1)
		mockStore.EXPECT().MarkSeen(gomock.Any(), []string{"m2"}).Return(nil, nil).Times(1)

		m, err := svc.MarkSeen(context.Background(), "bob", "m2")

		req.NoError(err)
		req.True(m.Seen)
		req.Empty(relay.sent())
	})
}
