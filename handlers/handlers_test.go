package handlers

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/gofiber/fiber/v2"
	"github.com/karthikraju391/go-chat-sync-server/presence"
	"github.com/karthikraju391/go-chat-sync-server/relay"
	"github.com/karthikraju391/go-chat-sync-server/services"
	"github.com/karthikraju391/go-chat-sync-server/store/badgerstore"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type testServer struct {
	app   *fiber.App
	deps  Dependencies
	store *badgerstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).WithLoggingLevel(badger.ERROR))
	require.NoError(t, err)
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	s := badgerstore.New(db, log)
	t.Cleanup(func() { _ = s.Close() })

	registry := presence.NewRegistry()
	eventRelay := relay.NewRelay(registry, log)
	deps := Dependencies{
		Registry:       registry,
		Messages:       services.NewMessageService(s, eventRelay, log),
		Conversations:  services.NewConversationService(s, eventRelay, log),
		Log:            log,
		SendBufferSize: 16,
		RequestTimeout: 5 * time.Second,
		AllowedOrigins: "*",
	}
	return &testServer{app: NewApp(deps), deps: deps, store: s}
}

func (s *testServer) do(t *testing.T, method, path string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))
	return resp.StatusCode, decoded
}
