package nats_service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/nats-io/nats.go"
)

// subjectToken keeps user ids from breaking the subject hierarchy.
var subjectToken = strings.NewReplacer(".", "_", "*", "_", ">", "_", " ", "_")

// NatsService carries relay events between server instances, so a user
// connected to another instance still gets live updates. It uses core NATS:
// delivery is at-most-once and nothing is persisted.
type NatsService struct {
	nc         *nats.Conn
	sub        *nats.Subscription
	prefix     string
	instanceID string
	log        *slog.Logger
}

type bridgeMessage struct {
	Origin string                `json:"origin"`
	Target string                `json:"target"`
	Event  models.LifecycleEvent `json:"event"`
}

// NewNatsService connects to NATS.
func NewNatsService(url, prefix string, log *slog.Logger) (*NatsService, error) {
	instanceID := uuid.NewString()
	nc, err := nats.Connect(url,
		nats.Name("chat-sync-"+instanceID[:8]),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NatsService{nc: nc, prefix: prefix, instanceID: instanceID, log: log}, nil
}

// Close NATS connection
func (s *NatsService) Close() {
	if s.sub != nil {
		_ = s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Close()
	}
}

// Forward publishes an event for a user that is not connected to this instance.
func (s *NatsService) Forward(ctx context.Context, target string, event models.LifecycleEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	subject := s.getSubject(target)
	data, err := json.Marshal(bridgeMessage{Origin: s.instanceID, Target: target, Event: event})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err = s.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish event to subject '%s': %w", subject, err)
	}
	s.log.Debug("Forwarded event", "subject", subject, "event", event.Kind, "message_id", event.MessageID)
	return nil
}

// Subscribe calls handler for every event published by other instances.
func (s *NatsService) Subscribe(handler func(target string, event models.LifecycleEvent)) error {
	subject := fmt.Sprintf("%s.*", s.prefix)
	sub, err := s.nc.Subscribe(subject, func(msg *nats.Msg) {
		var m bridgeMessage
		if err := json.Unmarshal(msg.Data, &m); err != nil {
			s.log.Warn("Error unmarshaling bridge message", "subject", msg.Subject, "error", err)
			return
		}
		if m.Origin == s.instanceID {
			return
		}
		handler(m.Target, m.Event)
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to '%s': %w", subject, err)
	}
	s.sub = sub
	// Make sure the server knows about the subscription before returning.
	if err = s.nc.Flush(); err != nil {
		return fmt.Errorf("failed to flush subscription: %w", err)
	}
	s.log.Info("Subscribed to bridge", "subject", subject)
	return nil
}

// getSubject generates the NATS subject for a user
func (s *NatsService) getSubject(userID string) string {
	return fmt.Sprintf("%s.%s", s.prefix, subjectToken.Replace(userID))
}
