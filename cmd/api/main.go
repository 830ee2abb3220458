package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kantor-dev/kantor-backend/internal/auth"
	"github.com/kantor-dev/kantor-backend/internal/config"
	"github.com/kantor-dev/kantor-backend/internal/events"
	"github.com/kantor-dev/kantor-backend/internal/handler"
	"github.com/kantor-dev/kantor-backend/internal/ledger"
	"github.com/kantor-dev/kantor-backend/internal/logging"
	"github.com/kantor-dev/kantor-backend/internal/middleware"
	"github.com/kantor-dev/kantor-backend/internal/nbp"
	"github.com/kantor-dev/kantor-backend/internal/notify"
	"github.com/kantor-dev/kantor-backend/internal/rates"
	"github.com/kantor-dev/kantor-backend/internal/repository"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.Init("kantor-api", cfg.LogLevel, cfg.AppEnv)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectDB(rootCtx, cfg)
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	accountRepo := repository.NewAccountRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db)
	snapshotRepo := repository.NewSnapshotRepository(db)

	rateSvc := rates.NewService(
		nbp.NewClient(cfg.NBPBaseURL),
		snapshotRepo,
		time.Duration(cfg.RateCacheTTLS)*time.Second,
		cfg.RateArchiveLimit,
	)

	var pusher notify.Notifier = notify.Discard{}
	if cfg.PushGatewayURL != "" {
		pusher = notify.NewPushClient(cfg.PushGatewayURL, cfg.PushAPIKey)
	}
	dispatcher := notify.NewDispatcher(accountRepo, pusher, cfg.NotifyQueueSize, logger)
	go dispatcher.Start(rootCtx)

	var publisher ledgerEvents = events.NoopPublisher{}
	if len(cfg.KafkaBrokers) > 0 {
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer kp.Close()
		publisher = kp
	}

	engine := ledger.NewService(accountRepo, ledgerRepo, rateSvc, dispatcher, publisher, db, cfg)

	verifier := auth.NewJWTVerifier(cfg.JWTSecret)
	authed := middleware.Auth(verifier)

	healthHandler := handler.NewHealthHandler(db)
	ratesHandler := handler.NewRatesHandler(rateSvc)
	accountHandler := handler.NewAccountHandler(engine)
	txHandler := handler.NewTransactionHandler(engine)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health/live", healthHandler.Liveness)
	mux.HandleFunc("GET /health/ready", healthHandler.Readiness)
	mux.HandleFunc("GET /rates", ratesHandler.Latest)
	mux.HandleFunc("GET /rates/archive", ratesHandler.Archive)
	mux.HandleFunc("GET /rates/{date}", ratesHandler.ByDate)
	mux.Handle("GET /user", authed(http.HandlerFunc(accountHandler.Get)))
	mux.Handle("POST /save-token", authed(http.HandlerFunc(accountHandler.SavePushToken)))
	mux.Handle("POST /transaction", authed(http.HandlerFunc(txHandler.Create)))
	mux.Handle("POST /deposit", authed(http.HandlerFunc(txHandler.Deposit)))

	root := middleware.Tracing(middleware.Logging(middleware.Recovery(mux)))

	addr := fmt.Sprintf(":%d", cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           root,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		slog.Info("server started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-rootCtx.Done()

	slog.Info("shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	slog.Info("server stopped")
}

type ledgerEvents interface {
	Publish(ctx context.Context, key string, event any) error
}

func connectDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	pool := repository.PoolConfig{
		MaxOpenConns:     cfg.DBMaxOpenConns,
		MaxIdleConns:     cfg.DBMaxIdleConns,
		ConnMaxLifetimeS: cfg.DBConnMaxLifetimeS,
		ConnMaxIdleTimeS: cfg.DBConnMaxIdleTimeS,
	}

	var lastErr error
	for i := range 30 {
		db, err := repository.NewPostgresDB(ctx, cfg.DatabaseURL, pool)
		if err == nil {
			return db, nil
		}
		lastErr = err
		slog.Info("waiting for database", "attempt", i+1)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(time.Second):
		}
	}
	return nil, fmt.Errorf("connectDB: gave up after 30 attempts: %w", lastErr)
}
