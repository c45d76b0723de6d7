/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the voice bridge server.
  Handles configuration, dependency injection, and graceful shutdown.

STARTUP SEQUENCE:
  1. Load configuration (.env, then environment)
  2. Resolve and open the ledger store
  3. Build the SMS messenger, token issuer and billing service
  4. Start the reconciler
  5. Configure HTTP router and start serving

MESSENGER:
  With TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_PHONE_NUMBER set, SMS
  go out through the provider. Otherwise a mock messenger accepts them, so
  billing still runs end to end in development.

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the reconciler
  4. Close the event publisher and the store
  5. Exit

EXAMPLES:
  # Local development on SQLite
  STORE_DRIVER=sqlite SQLITE_PATH=./data/ledger.db ./server

  # In-memory ledger, debug logging
  STORE_DRIVER=memory LOG_LEVEL=debug ./server

SEE ALSO:
  - config/config.go: Environment variables
  - api/server.go: Router configuration
  - store/open.go: Store selection
*/
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/warp/voice-bridge/api"
	"github.com/warp/voice-bridge/billing"
	"github.com/warp/voice-bridge/config"
	"github.com/warp/voice-bridge/events/kafka"
	"github.com/warp/voice-bridge/logger"
	"github.com/warp/voice-bridge/store"
	"github.com/warp/voice-bridge/telephony"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.New("info").Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel)

	// Initialize store
	src, err := config.ResolveStore(cfg)
	if err != nil {
		log.Error("cannot resolve ledger store", "error", err)
		os.Exit(1)
	}
	if src.Degraded {
		log.Warn("ledger store running in degraded mode", "driver", src.Driver, "project_id", src.ProjectID, "reason", src.Warning)
	}

	ctx := context.Background()
	ledgerStore, err := store.Open(ctx, src, log)
	if err != nil {
		log.Error("failed to open ledger store", "driver", src.Driver, "error", err)
		os.Exit(1)
	}
	defer ledgerStore.Close()
	log.Info("ledger store ready", "driver", src.Driver, "origin", src.Origin)

	// Ledger events
	var publisher billing.EventPublisher
	if len(cfg.KafkaBrokers) > 0 {
		p := kafka.NewPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer p.Close()
		publisher = p
		log.Info("publishing ledger events", "brokers", cfg.KafkaBrokers, "topic", cfg.KafkaTopic)
	}

	// SMS messenger
	var messenger billing.Messenger
	if cfg.SMSConfigured() {
		messenger = telephony.NewTwilioMessenger(log, telephony.SMSConfig{
			AccountSID: cfg.TwilioAccountSID,
			AuthToken:  cfg.TwilioAuthToken,
			From:       cfg.TwilioPhoneNumber,
		}, nil)
	} else {
		log.Warn("sms credentials not set, using mock messenger")
		messenger = telephony.NewMockMessenger(log)
	}
	if !cfg.TwilioConfigured() {
		log.Warn("voice token credentials not set, /token will fail")
	}

	tokens := telephony.NewTokenIssuer(telephony.TokenConfig{
		AccountSID: cfg.TwilioAccountSID,
		APIKey:     cfg.TwilioAPIKey,
		APISecret:  cfg.TwilioAPISecret,
		AppSID:     cfg.TwilioAppSID,
		TTL:        cfg.TokenTTL,
	})

	ledger := billing.NewLedger(ledgerStore, publisher, log)
	svc := billing.NewService(ledger, billing.NewGuard(ledgerStore), messenger, cfg.SMSTariff(), log)

	reconciler := billing.NewReconciler(ledgerStore, log)
	reconciler.Interval = cfg.ReconcileInterval
	reconciler.Enabled = cfg.ReconcileInterval > 0
	reconciler.Start()
	defer reconciler.Stop()

	handler := api.NewHandler(svc, tokens, telephony.VoiceConfig{
		CallerID:        cfg.TwilioPhoneNumber,
		Language:        cfg.VoiceLanguage,
		FallbackMessage: cfg.VoiceFallbackMessage,
	}, reconciler, log)
	handler.StoreName = src.Driver

	router := api.NewRouter(handler, api.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		StaticDir:      cfg.StaticDir,
	})

	server := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	serverErr := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", server.Addr, "sms_provider", messenger.Name())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serverErr:
		log.Error("server failed", "error", err)
	}

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}
