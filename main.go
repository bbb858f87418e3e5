package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/karthikraju391/go-chat-sync-server/config"
	"github.com/karthikraju391/go-chat-sync-server/errors"
	"github.com/karthikraju391/go-chat-sync-server/handlers"
	"github.com/karthikraju391/go-chat-sync-server/models"
	"github.com/karthikraju391/go-chat-sync-server/nats_service"
	"github.com/karthikraju391/go-chat-sync-server/presence"
	"github.com/karthikraju391/go-chat-sync-server/relay"
	"github.com/karthikraju391/go-chat-sync-server/services"
	"github.com/karthikraju391/go-chat-sync-server/store"
	"github.com/karthikraju391/go-chat-sync-server/store/badgerstore"
	"github.com/karthikraju391/go-chat-sync-server/store/mongostore"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server failure.
// Returning instead of exiting lets the deferred closes run.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logs.GetLoggerFromString(cfg.LogLevel)

	// --- Initialize Durable Store ---
	messageStore, err := openStore(cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize message store: %w", err)
	}
	defer func() {
		log.Info("Closing message store...")
		_ = messageStore.Close()
	}()
	log.Info("Message store initialized", "driver", cfg.StoreDriver)

	// --- Presence & Relay ---
	registry := presence.NewRegistry()
	eventRelay := relay.NewRelay(registry, log)

	if cfg.BridgeEnabled() {
		natsSvc, err := nats_service.NewNatsService(cfg.NatsURL, cfg.SubjectPrefix, log)
		if err != nil {
			return fmt.Errorf("failed to initialize NATS service: %w", err)
		}
		defer natsSvc.Close()
		err = natsSvc.Subscribe(func(target string, event models.LifecycleEvent) {
			eventRelay.DeliverLocal(target, event)
		})
		if err != nil {
			return err
		}
		eventRelay.WithForwarder(natsSvc)
		log.Info("NATS Service Initialized", "url", cfg.NatsURL)
	}

	// --- Initialize Fiber App ---
	app := handlers.NewApp(handlers.Dependencies{
		Registry:       registry,
		Messages:       services.NewMessageService(messageStore, eventRelay, log),
		Conversations:  services.NewConversationService(messageStore, eventRelay, log),
		Log:            log,
		SendBufferSize: cfg.SendBufferSize,
		RequestTimeout: cfg.RequestTimeout,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	// --- Start Server ---
	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", cfg.ServerAddr)
		if err := app.Listen(cfg.ServerAddr); err != nil {
			errChan <- fmt.Errorf("server failed: %w", err)
		}
	}()

	// --- Graceful Shutdown ---
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	select {
	case <-ctx.Done(): // Block until signal received
		log.Info("Shutting down server...")
	case err := <-errChan:
		return err
	}

	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Error("Error shutting down Fiber", "error", err)
	}

	// Store and NATS connection are closed by the deferred calls
	log.Info("Server gracefully stopped")
	return nil
}

func openStore(cfg config.Config, log *slog.Logger) (store.MessageStore, error) {
	switch cfg.StoreDriver {
	case config.DriverBadger:
		return badgerstore.Open(cfg.BadgerFilepath, log)
	case config.DriverMongo:
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		db, err := mongostore.NewDB(ctx, cfg.MongoURL, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		s := mongostore.New(db, log)
		if err := s.EnsureIndexes(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("%q: %w", cfg.StoreDriver, errors.ErrUnknownDriver)
	}
}
