//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=../mocks/mock_message_store.go -package=mocks
package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/karthikraju391/go-chat-sync-server/models"
)

// MessageStore is the durable source of truth for messages.
// Records are never removed, only flagged.
type MessageStore interface {
	// Create persists a new message and assigns its id.
	Create(ctx context.Context, participants [2]string, sender, text string) (models.Message, error)
	FindByID(ctx context.Context, id string) (models.Message, error)
	// FindByPair returns every message between a and b, oldest update first.
	FindByPair(ctx context.Context, a, b string) ([]models.Message, error)
	// FindUnseenFrom returns the unseen messages between a and b sent by counterpart.
	FindUnseenFrom(ctx context.Context, a, b, counterpart string) ([]models.Message, error)
	// MarkSeen flags the given messages seen and returns the ids it changed.
	// Ids that were already seen or do not exist are left out.
	MarkSeen(ctx context.Context, ids []string) ([]string, error)
	// UpdateText fails with ErrInvalidTransition when the message is deleted.
	UpdateText(ctx context.Context, id, text string) (models.Message, error)
	// MarkDeleted is idempotent.
	MarkDeleted(ctx context.Context, id string) (models.Message, error)
	Close() error
}

// PairKey identifies the unordered pair {a, b}. Both ids are length-prefixed,
// so no key is a prefix of another pair's key whatever the ids contain.
func PairKey(a, b string) string {
	if b < a {
		a, b = b, a
	}
	return fmt.Sprintf("%d:%s%d:%s", len(a), a, len(b), b)
}

// SortByUpdate orders messages by last update, then creation, then id.
func SortByUpdate(messages []models.Message) {
	sort.SliceStable(messages, func(i, j int) bool {
		mi, mj := messages[i], messages[j]
		if !mi.UpdatedAt.Equal(mj.UpdatedAt) {
			return mi.UpdatedAt.Before(mj.UpdatedAt)
		}
		if !mi.CreatedAt.Equal(mj.CreatedAt) {
			return mi.CreatedAt.Before(mj.CreatedAt)
		}
		return mi.ID < mj.ID
	})
}
