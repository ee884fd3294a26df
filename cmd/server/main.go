// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/sirupsen/logrus"

	"github.com/xoduel/xoduel/internal/auth"
	"github.com/xoduel/xoduel/internal/cache"
	"github.com/xoduel/xoduel/internal/clock"
	"github.com/xoduel/xoduel/internal/config"
	"github.com/xoduel/xoduel/internal/database"
	"github.com/xoduel/xoduel/internal/game"
	"github.com/xoduel/xoduel/internal/handlers"
	"github.com/xoduel/xoduel/internal/hub"
	"github.com/xoduel/xoduel/internal/invite"
	"github.com/xoduel/xoduel/internal/middleware"
)

// multiRecorder fans one outcome out to every configured sink.
type multiRecorder []game.OutcomeRecorder

func (m multiRecorder) RecordMatchOutcome(ctx context.Context, outcome game.Outcome) error {
	var errs []error
	for _, r := range m {
		if err := r.RecordMatchOutcome(ctx, outcome); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func main() {
	logger := logrus.New()
	logger.SetLevel(logrus.DebugLevel)

	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// All durable backends are optional. Missing ones degrade the server to
	// memory-only with an unchanged protocol.
	var (
		recorders   multiRecorder
		profiles    hub.ProfileLookup
		identities  hub.IdentityStore
		inviteStore invite.Store
	)

	if cfg.DatabaseURL != "" {
		db, err := database.Connect(ctx, cfg.DatabaseURL, logger)
		if err != nil {
			logger.Fatalf("database connect failed: %v", err)
		}
		defer db.Close()
		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatalf("database schema setup failed: %v", err)
		}
		recorders = append(recorders, db)
		profiles = db
		identities = db
		inviteStore = db
	} else {
		logger.Warn("DATABASE_URL not set; running without durable persistence")
	}

	if cfg.RedisAddr != "" {
		c, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB, logger)
		if err != nil {
			logger.Fatalf("redis connect failed: %v", err)
		}
		defer c.Close()
		recorders = append(recorders, c)
	}

	var recorder game.OutcomeRecorder
	if len(recorders) > 0 {
		recorder = recorders
	}

	var verifier auth.Verifier
	if cfg.AuthJWTKey != "" {
		verifier = auth.NewJWTVerifier(cfg.AuthJWTKey)
	} else {
		logger.Warn("AUTH_JWT_KEY not set; all identities are unverified")
	}

	h := hub.New(hub.Options{
		Logger:               logger,
		Clock:                clock.System{},
		Verifier:             verifier,
		Recorder:             recorder,
		Profiles:             profiles,
		Identities:           identities,
		InviteStore:          inviteStore,
		BaseURL:              cfg.PublicURL,
		QueueJoinThrottle:    cfg.QueueJoinThrottle,
		InviteTTL:            cfg.InviteTTL,
		OnlineStatsInterval:  cfg.OnlineStatsInterval,
		MaxMessagesPerSecond: cfg.MaxMessagesPerSecond,
	})
	go h.Run(ctx)

	logMW := middleware.LogMiddleware(logger)
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", handlers.HealthzHandler)
	mux.Handle("/config.json", logMW(handlers.ConfigHandler(cfg.PublicURL)))
	mux.Handle("/ws", logMW(handlers.WSHandler(logger, h, cfg.HeartbeatInterval)))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnf("server shutdown: %v", err)
		}
	}()

	logger.Infof("Running on :%s", cfg.Port)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("server exited: %v", err)
	}
}
