package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	apperrors "github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/lifecycle"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/karthikraju391/go-chat-sync-server/store"
	"github.com/samber/lo"
)

const maxConflictRetries = 5

// Store keeps messages in BadgerDB.
// Keys:
//   - "msg:{id}" holds the JSON record
//   - "pair:{PairKey(a, b)}/{id}" indexes the record under its unordered pair
//     of participants; the value is the id
type Store struct {
	db    *badger.DB
	log   *slog.Logger
	clock *store.Clock
}

var _ store.MessageStore = (*Store)(nil)

// Open opens (or creates) the database at path.
func Open(path string, log *slog.Logger) (*Store, error) {
	db, err := badger.Open(badger.DefaultOptions(path).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %s: %w", path, err)
	}
	return New(db, log), nil
}

func New(db *badger.DB, log *slog.Logger) *Store {
	return &Store{db: db, log: log, clock: store.NewClock(nil)}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Create(ctx context.Context, participants [2]string, sender, text string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	at := s.clock.Now()
	m := models.Message{
		ID:           uuid.NewString(),
		Participants: participants,
		Sender:       sender,
		Text:         text,
		CreatedAt:    at,
		UpdatedAt:    at,
	}
	err := s.update(func(txn *badger.Txn) error {
		if err := put(txn, m); err != nil {
			return err
		}
		return txn.Set(pairIndexKey(participants[0], participants[1], m.ID), []byte(m.ID))
	})
	if err != nil {
		return models.Message{}, fmt.Errorf("failed to create message: %w", err)
	}
	s.log.Debug("Message stored", "message_id", m.ID, "sender", sender)
	return m, nil
}

func (s *Store) FindByID(ctx context.Context, id string) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	var m models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		m, err = get(txn, id)
		return err
	})
	return m, err
}

// FindByPair scans the pair index.
func (s *Store) FindByPair(ctx context.Context, a, b string) ([]models.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var messages []models.Message
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := pairPrefix(a, b)
		options := badger.DefaultIteratorOptions
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		var ids []string
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			ids = append(ids, string(id))
		}
		for _, id := range ids {
			m, err := get(txn, id)
			if err != nil {
				return err
			}
			messages = append(messages, m)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read conversation: %w", err)
	}

	store.SortByUpdate(messages)
	return messages, nil
}

func (s *Store) FindUnseenFrom(ctx context.Context, a, b, counterpart string) ([]models.Message, error) {
	messages, err := s.FindByPair(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return lo.Filter(messages, func(m models.Message, _ int) bool {
		return m.Sender == counterpart && !m.Seen
	}), nil
}

// MarkSeen updates every id in one transaction. Unknown ids are skipped.
// A conflicting transaction is retried, so an id marked concurrently is
// reported by only one of the callers.
func (s *Store) MarkSeen(ctx context.Context, ids []string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	var marked []string
	err := s.update(func(txn *badger.Txn) error {
		marked = nil
		at := s.clock.Now()
		for _, id := range lo.Uniq(ids) {
			m, err := get(txn, id)
			if errors.Is(err, apperrors.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			if m.Seen {
				continue
			}
			m.Seen = true
			m.UpdatedAt = at
			if err = put(txn, m); err != nil {
				return err
			}
			marked = append(marked, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to mark messages seen: %w", err)
	}
	return marked, nil
}

func (s *Store) UpdateText(ctx context.Context, id, text string) (models.Message, error) {
	return s.mutate(ctx, id, func(m models.Message) (models.Message, bool, error) {
		if m.IsDeleted {
			return m, false, fmt.Errorf("message %s is deleted: %w", id, apperrors.ErrInvalidTransition)
		}
		m.Text = text
		m.IsEdited = true
		return m, true, nil
	})
}

func (s *Store) MarkDeleted(ctx context.Context, id string) (models.Message, error) {
	return s.mutate(ctx, id, func(m models.Message) (models.Message, bool, error) {
		if m.IsDeleted {
			return m, false, nil
		}
		return lifecycle.Redact(m), true, nil
	})
}

// mutate reads, changes and writes one record in a single transaction.
func (s *Store) mutate(ctx context.Context, id string, change func(models.Message) (models.Message, bool, error)) (models.Message, error) {
	if err := ctx.Err(); err != nil {
		return models.Message{}, err
	}
	var result models.Message
	err := s.update(func(txn *badger.Txn) error {
		m, err := get(txn, id)
		if err != nil {
			return err
		}
		next, changed, err := change(m)
		if err != nil {
			return err
		}
		if changed {
			next.UpdatedAt = s.clock.Now()
			if err = put(txn, next); err != nil {
				return err
			}
		}
		result = next
		return nil
	})
	return result, err
}

// update retries transactions that lost a write conflict.
func (s *Store) update(fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
		s.log.Debug("Transaction conflict, retrying", "attempt", attempt+1)
	}
	return err
}

func get(txn *badger.Txn, id string) (models.Message, error) {
	item, err := txn.Get(messageKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.Message{}, fmt.Errorf("message %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return models.Message{}, err
	}
	var m models.Message
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &m)
	})
	return m, err
}

func put(txn *badger.Txn, m models.Message) error {
	bytes, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return txn.Set(messageKey(m.ID), bytes)
}

func messageKey(id string) []byte {
	return []byte("msg:" + id)
}

func pairPrefix(a, b string) []byte {
	return []byte("pair:" + store.PairKey(a, b) + "/")
}

func pairIndexKey(a, b, id string) []byte {
	return append(pairPrefix(a, b), id...)
}
