package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	apperrors "github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/karthikraju391/go-chat-sync-server/store"
	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const messageCollection = "messages"

// messageDocument keeps the layout of the messages collection:
// { message: { text }, users: [a, b], sender, seen, isEdited, isDeleted, createdAt, updatedAt }
type messageDocument struct {
	ID        string      `bson:"_id"`
	Message   textContent `bson:"message"`
	Users     []string    `bson:"users"`
	Sender    string      `bson:"sender"`
	Seen      bool        `bson:"seen"`
	IsEdited  bool        `bson:"isEdited"`
	IsDeleted bool        `bson:"isDeleted"`
	CreatedAt time.Time   `bson:"createdAt"`
	UpdatedAt time.Time   `bson:"updatedAt"`
}

type textContent struct {
	Text string `bson:"text"`
}

// Store handles message persistence in MongoDB.
type Store struct {
	db         *mongo.Database
	collection *mongo.Collection
	log        *slog.Logger
	clock      *store.Clock
}

var _ store.MessageStore = (*Store)(nil)

func New(db *mongo.Database, log *slog.Logger) *Store {
	return &Store{
		db:         db,
		collection: db.Collection(messageCollection),
		log:        log,
		clock:      store.NewClock(nil),
	}
}

// EnsureIndexes creates the conversation index used by every read.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "users", Value: 1}, {Key: "updatedAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create messages index: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.db.Client().Disconnect(ctx)
}

func (s *Store) Create(ctx context.Context, participants [2]string, sender, text string) (models.Message, error) {
	at := s.clock.Now().Truncate(time.Millisecond)
	doc := messageDocument{
		ID:        uuid.NewString(),
		Message:   textContent{Text: text},
		Users:     participants[:],
		Sender:    sender,
		CreatedAt: at,
		UpdatedAt: at,
	}
	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		return models.Message{}, fmt.Errorf("failed to insert message: %w", err)
	}
	s.log.Debug("Message stored", "message_id", doc.ID, "sender", sender)
	return doc.toMessage(), nil
}

func (s *Store) FindByID(ctx context.Context, id string) (models.Message, error) {
	var doc messageDocument
	err := s.collection.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to read message %s: %w", id, err)
	}
	return doc.toMessage(), nil
}

func (s *Store) FindByPair(ctx context.Context, a, b string) ([]models.Message, error) {
	return s.find(ctx, pairFilter(a, b))
}

func (s *Store) FindUnseenFrom(ctx context.Context, a, b, counterpart string) ([]models.Message, error) {
	filter := pairFilter(a, b)
	filter["sender"] = counterpart
	filter["seen"] = false
	return s.find(ctx, filter)
}

// MarkSeen updates each id with a conditional filter on seen, so an id marked
// concurrently by another request is not reported here.
func (s *Store) MarkSeen(ctx context.Context, ids []string) ([]string, error) {
	var marked []string
	at := s.now()
	for _, id := range lo.Uniq(ids) {
		result, err := s.collection.UpdateOne(ctx,
			bson.M{"_id": id, "seen": false},
			bson.M{"$set": bson.M{"seen": true, "updatedAt": at}},
		)
		if err != nil {
			return marked, fmt.Errorf("failed to mark message %s seen: %w", id, err)
		}
		if result.ModifiedCount == 1 {
			marked = append(marked, id)
		}
	}
	return marked, nil
}

// UpdateText only matches live messages, so an edit racing a delete loses.
func (s *Store) UpdateText(ctx context.Context, id, text string) (models.Message, error) {
	m, err := s.findOneAndSet(ctx, id, bson.M{
		"message.text": text,
		"isEdited":     true,
		"updatedAt":    s.now(),
	})
	if !errors.Is(err, apperrors.ErrNotFound) {
		return m, err
	}
	if _, findErr := s.FindByID(ctx, id); findErr != nil {
		return models.Message{}, findErr
	}
	return models.Message{}, fmt.Errorf("message %s is deleted: %w", id, apperrors.ErrInvalidTransition)
}

func (s *Store) MarkDeleted(ctx context.Context, id string) (models.Message, error) {
	m, err := s.findOneAndSet(ctx, id, bson.M{
		"isDeleted":    true,
		"message.text": models.DeletedText,
		"updatedAt":    s.now(),
	})
	if errors.Is(err, apperrors.ErrNotFound) {
		// Already deleted, or unknown.
		return s.FindByID(ctx, id)
	}
	return m, err
}

func (s *Store) findOneAndSet(ctx context.Context, id string, set bson.M) (models.Message, error) {
	var doc messageDocument
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "isDeleted": false},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Message{}, fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to update message %s: %w", id, err)
	}
	return doc.toMessage(), nil
}

func (s *Store) find(ctx context.Context, filter bson.M) ([]models.Message, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "updatedAt", Value: 1},
		{Key: "createdAt", Value: 1},
		{Key: "_id", Value: 1},
	})
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []messageDocument
	if err = cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode messages: %w", err)
	}
	return lo.Map(docs, func(doc messageDocument, _ int) models.Message {
		return doc.toMessage()
	}), nil
}

// now is truncated to the precision BSON dates keep.
func (s *Store) now() time.Time {
	return s.clock.Now().Truncate(time.Millisecond)
}

func pairFilter(a, b string) bson.M {
	return bson.M{"users": bson.M{"$all": []string{a, b}}}
}

func (d messageDocument) toMessage() models.Message {
	var participants [2]string
	copy(participants[:], d.Users)
	return models.Message{
		ID:           d.ID,
		Participants: participants,
		Sender:       d.Sender,
		Text:         d.Message.Text,
		Seen:         d.Seen,
		IsEdited:     d.IsEdited,
		IsDeleted:    d.IsDeleted,
		CreatedAt:    d.CreatedAt.UTC(),
		UpdatedAt:    d.UpdatedAt.UTC(),
	}
}
