// Package relay forwards lifecycle events to the live connection of a user.
//
// Delivery is at-most-once and best effort: the store already holds the
// authoritative state, so an event that cannot be pushed is dropped, never
// queued or retried.
package relay

import (
	"context"
	"log/slog"

	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/karthikraju391/go-chat-sync-server/presence"
)

type Outcome int

const (
	Offline   Outcome = iota // target has no connection anywhere we know of
	Delivered                // pushed to the local connection
	Dropped                  // local connection refused the push
	Forwarded                // handed to the cluster bridge
)

func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Dropped:
		return "dropped"
	case Forwarded:
		return "forwarded"
	default:
		return "offline"
	}
}

// Forwarder hands an event to other instances, which deliver it to their own
// local connection of target, if any.
type Forwarder interface {
	Forward(ctx context.Context, target string, event models.LifecycleEvent) error
}

type Relay struct {
	registry  *presence.Registry
	forwarder Forwarder
	log       *slog.Logger
}

func NewRelay(registry *presence.Registry, log *slog.Logger) *Relay {
	return &Relay{registry: registry, log: log}
}

// WithForwarder enables the hop to other instances for users not connected here.
func (r *Relay) WithForwarder(f Forwarder) *Relay {
	r.forwarder = f
	return r
}

// Relay pushes event to target if it is connected. It never fails: every
// failure is reported as an Outcome and logged.
func (r *Relay) Relay(ctx context.Context, target string, event models.LifecycleEvent) Outcome {
	if outcome, ok := r.deliver(target, event); ok {
		return outcome
	}
	if r.forwarder == nil {
		r.log.Debug("Target offline, event dropped", "user_id", target, "event", event.Kind, "message_id", event.MessageID)
		return Offline
	}
	if err := r.forwarder.Forward(ctx, target, event); err != nil {
		r.log.Warn("Failed to forward event", "user_id", target, "event", event.Kind, "error", err)
		return Offline
	}
	return Forwarded
}

// DeliverLocal pushes an event received from another instance. It never
// forwards again.
func (r *Relay) DeliverLocal(target string, event models.LifecycleEvent) Outcome {
	if outcome, ok := r.deliver(target, event); ok {
		return outcome
	}
	return Offline
}

func (r *Relay) deliver(target string, event models.LifecycleEvent) (Outcome, bool) {
	conn, ok := r.registry.Lookup(target)
	if !ok {
		return Offline, false
	}
	if err := conn.Push(event); err != nil {
		// A dead handle left behind by a fast reconnect looks like this.
		r.log.Debug("Push failed, event dropped", "user_id", target, "event", event.Kind, "error", err)
		return Dropped, true
	}
	return Delivered, true
}
