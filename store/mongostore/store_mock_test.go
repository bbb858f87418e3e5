package mongostore

import (
	"context"
	"log/slog"
	"testing"

	"github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"
)

// These tests run against the driver's mock deployment, so the fallback
// branches of the conditional updates are covered without a server.

const mockNamespace = "chat.messages"

func noMatch() bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "value", Value: nil})
}

func found(docs ...bson.D) bson.D {
	return mtest.CreateCursorResponse(0, mockNamespace, mtest.FirstBatch, docs...)
}

func updated(n int32) bson.D {
	return mtest.CreateSuccessResponse(bson.E{Key: "n", Value: n}, bson.E{Key: "nModified", Value: n})
}

func deletedDocument(id string) bson.D {
	return bson.D{
		{Key: "_id", Value: id},
		{Key: "message", Value: bson.D{{Key: "text", Value: models.DeletedText}}},
		{Key: "users", Value: bson.A{"alice", "bob"}},
		{Key: "sender", Value: "alice"},
		{Key: "isDeleted", Value: true},
	}
}

func TestStore_Conditional_Updates(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("update of a deleted message is an invalid transition", func(mt *mtest.T) {
		req := require.New(mt)
		s := New(mt.DB, slog.Default())

		// Given the live-only filter matches nothing but the message exists
		mt.AddMockResponses(noMatch(), found(deletedDocument("m1")))

		// When it is edited
		_, err := s.UpdateText(context.Background(), "m1", "resurrect")

		// Then the edit is rejected
		req.ErrorIs(err, errors.ErrInvalidTransition)
	})

	mt.Run("update of an unknown message is not found", func(mt *mtest.T) {
		req := require.New(mt)
		s := New(mt.DB, slog.Default())
		mt.AddMockResponses(noMatch(), found())

		_, err := s.UpdateText(context.Background(), "unknown", "hello")

		req.ErrorIs(err, errors.ErrNotFound)
	})

	mt.Run("deleting a deleted message returns it unchanged", func(mt *mtest.T) {
		req := require.New(mt)
		s := New(mt.DB, slog.Default())
		mt.AddMockResponses(noMatch(), found(deletedDocument("m1")))

		m, err := s.MarkDeleted(context.Background(), "m1")

		req.NoError(err)
		req.True(m.IsDeleted)
		req.Equal(models.DeletedText, m.Text)
		req.Equal([2]string{"alice", "bob"}, m.Participants)
	})

	mt.Run("deleting an unknown message is not found", func(mt *mtest.T) {
		req := require.New(mt)
		s := New(mt.DB, slog.Default())
		mt.AddMockResponses(noMatch(), found())

		_, err := s.MarkDeleted(context.Background(), "unknown")

		req.ErrorIs(err, errors.ErrNotFound)
	})

	mt.Run("mark seen reports only the messages it changed", func(mt *mtest.T) {
		req := require.New(mt)
		s := New(mt.DB, slog.Default())

		// Given m2 was already seen by a concurrent request
		mt.AddMockResponses(updated(1), updated(0), updated(1))

		// When the batch is marked
		marked, err := s.MarkSeen(context.Background(), []string{"m1", "m2", "m3", "m1"})

		// Then m2 is left out and duplicates are ignored
		req.NoError(err)
		req.Equal([]string{"m1", "m3"}, marked)
	})
}
