package services

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/karthikraju391/go-chat-sync-server/presence"
	"github.com/karthikraju391/go-chat-sync-server/relay"
	"github.com/karthikraju391/go-chat-sync-server/store/badgerstore"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type relayed struct {
	target string
	event  models.LifecycleEvent
}

// recordingRelay records every relayed event and answers Offline for users
// that are not in online.
type recordingRelay struct {
	mu     sync.Mutex
	online map[string]bool
	events []relayed
}

func newRecordingRelay(online ...string) *recordingRelay {
	r := &recordingRelay{online: make(map[string]bool)}
	for _, id := range online {
		r.online[id] = true
	}
	return r
}

func (r *recordingRelay) Relay(_ context.Context, target string, event models.LifecycleEvent) relay.Outcome {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[target] {
		return relay.Offline
	}
	r.events = append(r.events, relayed{target: target, event: event})
	return relay.Delivered
}

func (r *recordingRelay) sent() []relayed {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]relayed(nil), r.events...)
}

func newBadgerStore(t *testing.T) *badgerstore.Store {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	s := badgerstore.New(db, slog.Default())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testLogger() *slog.Logger {
	return logs.GetLoggerFromLevel(slog.LevelDebug)
}

// pushConn is a live connection stub for tests that go through the real relay.
type pushConn struct {
	mu     sync.Mutex
	events []models.LifecycleEvent
}

func (c *pushConn) Push(event models.LifecycleEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func newLiveRelay() (*relay.Relay, *presence.Registry) {
	registry := presence.NewRegistry()
	return relay.NewRelay(registry, testLogger()), registry
}
