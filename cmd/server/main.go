package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"healthbot/internal/config"
	"healthbot/internal/core"
	"healthbot/internal/db"
	httpserver "healthbot/internal/http"
	"healthbot/internal/llm"

	_ "github.com/lib/pq"
)

func main() {
	v, err := config.LoadConfig("config")
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	cfg, err := config.ParseConfig(v)
	if err != nil {
		slog.Error("failed to parse config", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Logger.Level)

	if cfg.Database.DSN == "" {
		logger.Error("database.dsn must be set")
		os.Exit(1)
	}
	dbConn, err := sql.Open("postgres", cfg.Database.DSN)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Verify connection before serving traffic.
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := dbConn.PingContext(pingCtx); err != nil {
		cancel()
		logger.Error("failed to ping database", "error", err)
		os.Exit(1)
	}
	cancel()
	if err := db.Migrate(context.Background(), dbConn); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	repo := db.NewRepository(dbConn)
	notifier := db.NewNotifier(dbConn, cfg.Database.DSN, cfg.Database.NotifyChannel, logger)

	var responder core.Responder = core.StaticResponder{}
	if cfg.OpenAI.Enabled {
		fallback := ""
		if cfg.Intake.UseFallbackReply {
			fallback = core.FallbackReply
		}
		client := llm.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.Model)
		responder = core.NewAIResponder(client, fallback, logger)
	}

	resolver := core.NewIdentityResolver(repo, cfg.Intake.DefaultLanguage, logger)
	intake := core.NewPipeline(resolver, repo, responder, logger)
	srv := httpserver.NewServer(intake, repo, notifier, logger, cfg.Intake.HistoryLimit)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Tail recorded inbound messages for operational visibility.
	go func() {
		ch, err := notifier.Listen(ctx)
		if err != nil {
			logger.Warn("notify listener unavailable", "error", err)
			return
		}
		for id := range ch {
			logger.Info("inbound message recorded", "message_id", id)
		}
	}()

	addr := ":" + cfg.Server.Port
	httpSrv := &http.Server{Addr: addr, Handler: srv}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", addr, "environment", cfg.Server.Environment)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown error", "error", err)
			os.Exit(1)
		}
	case err := <-errCh:
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
