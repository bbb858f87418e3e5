package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/lifecycle"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/karthikraju391/go-chat-sync-server/store"
	"github.com/samber/lo"
)

// ConversationService reconciles a client with the store when it opens a
// conversation.
type ConversationService struct {
	store store.MessageStore
	relay Relayer
	log   *slog.Logger
}

func NewConversationService(store store.MessageStore, relay Relayer, log *slog.Logger) *ConversationService {
	return &ConversationService{store: store, relay: relay, log: log}
}

// Open returns the conversation of self with peer, oldest update first, and
// marks every unseen message from peer as seen. Opening counts as seeing all
// of them. One seen event is relayed to peer per message the store actually
// changed, so concurrent opens never report the same message twice.
func (s *ConversationService) Open(ctx context.Context, self, peer string) (models.Conversation, error) {
	if self == "" || peer == "" || self == peer {
		return models.Conversation{}, fmt.Errorf("open conversation %q with %q: %w", self, peer, errors.ErrInvalidTransition)
	}

	messages, err := s.store.FindByPair(ctx, self, peer)
	if err != nil {
		return models.Conversation{}, err
	}
	unseen, err := s.store.FindUnseenFrom(ctx, self, peer, peer)
	if err != nil {
		return models.Conversation{}, err
	}

	// Only what is returned to the caller counts as seen; a message stored
	// between the two reads waits for the next open.
	listed := lo.SliceToMap(messages, func(m models.Message) (string, struct{}) {
		return m.ID, struct{}{}
	})
	candidates := make(map[string]models.Message, len(unseen))
	var candidateIDs []string
	for _, m := range unseen {
		if _, ok := listed[m.ID]; !ok {
			continue
		}
		if _, changed, err := lifecycle.MarkSeen(m, self); err != nil || !changed {
			continue
		}
		candidates[m.ID] = m
		candidateIDs = append(candidateIDs, m.ID)
	}

	seenIDs := make([]string, 0, len(candidateIDs))
	if len(candidateIDs) > 0 {
		marked, err := s.store.MarkSeen(ctx, candidateIDs)
		if err != nil {
			return models.Conversation{}, err
		}
		seenIDs = append(seenIDs, marked...)
		s.log.Debug("Messages marked seen", "user_id", self, "peer", peer, "found", len(candidateIDs), "updated", len(marked))
	}

	// A candidate missing from seenIDs was marked by a concurrent open; it is
	// seen either way, but only the open that changed it reports it.
	views := lo.Map(messages, func(m models.Message, _ int) models.MessageView {
		if _, ok := candidates[m.ID]; ok {
			m.Seen = true
		}
		return m.ViewFor(self)
	})

	for _, id := range seenIDs {
		m, ok := candidates[id]
		if !ok {
			continue
		}
		_, event := lifecycle.EventFor(models.EventSeen, m, self)
		s.relay.Relay(ctx, peer, event)
	}

	return models.Conversation{Messages: views, SeenMessageIDs: seenIDs}, nil
}
