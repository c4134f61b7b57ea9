// Command backend is the main entrypoint for the chat-scribe bot and API.
// It:
//   - Loads configuration and initializes structured logging.
//   - Connects to Postgres and runs idempotent migrations.
//   - Connects to Twitch chat and serves the /record command surface,
//     recording chat for whitelisted operators into the archive.
//   - Exposes a minimal HTTP server with /healthz, /readyz, /status,
//     /metrics, and the read-only records API.
//
// Shutdown is graceful on SIGINT/SIGTERM; live recordings are flushed to the
// archive before exit.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/onnwee/chat-scribe/backend/archive"
	"github.com/onnwee/chat-scribe/backend/bot"
	"github.com/onnwee/chat-scribe/backend/chat"
	"github.com/onnwee/chat-scribe/backend/config"
	"github.com/onnwee/chat-scribe/backend/crypto"
	"github.com/onnwee/chat-scribe/backend/db"
	"github.com/onnwee/chat-scribe/backend/server"
	"github.com/onnwee/chat-scribe/backend/session"
	"github.com/onnwee/chat-scribe/backend/telemetry"
)

func main() {
	// Load .env file if present (local dev convenience only; production relies on real env)
	_ = godotenv.Load("backend/.env")

	// Configure logging (level + format). Defaults: level=info, format=text.
	lvl := slog.LevelInfo
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	case "info", "":
		// keep default
	default:
		tmp := slog.New(slog.NewTextHandler(os.Stdout, nil))
		tmp.Warn("unknown LOG_LEVEL, using info", slog.String("value", os.Getenv("LOG_LEVEL")))
	}
	var handler slog.Handler
	if strings.ToLower(os.Getenv("LOG_FORMAT")) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	}
	slog.SetDefault(slog.New(handler))

	// Config
	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", slog.Any("err", err))
		os.Exit(1)
	}
	if len(cfg.Whitelist) == 0 {
		slog.Warn("RECORD_WHITELIST empty; nobody can issue record commands")
	}

	// Metrics / telemetry init
	telemetry.Init()

	// Initialize OpenTelemetry tracing (optional; requires OTEL_EXPORTER_OTLP_ENDPOINT)
	shutdownTracing, err := telemetry.InitTracing("chat-scribe", "1.0.0")
	if err != nil {
		slog.Error("tracing initialization failed", slog.Any("err", err))
		os.Exit(1)
	}
	defer shutdownTracing()

	// DB
	database, err := db.Connect()
	if err != nil {
		slog.Error("failed to open db", slog.Any("err", err))
		os.Exit(1)
	}
	defer func() {
		if err := database.Close(); err != nil {
			slog.Error("failed to close database", slog.Any("err", err))
		}
	}()
	slog.Info("running database migrations", slog.String("component", "db_migrate"))
	if err := db.Migrate(context.Background(), database); err != nil {
		slog.Error("failed to migrate db", slog.Any("err", err))
		os.Exit(1)
	}

	// Root context with graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Recording pipeline: store -> controller -> bot -> twitch transport.
	var store archive.Store = archive.NewSQLStore(database)
	if cfg.EncryptionKey != "" {
		enc, err := crypto.NewAESEncryptor(cfg.EncryptionKey)
		if err != nil {
			slog.Error("invalid RECORD_ENCRYPTION_KEY", slog.Any("err", err))
			os.Exit(1)
		}
		store = archive.NewEncryptedStore(store, enc)
		slog.Info("payload encryption enabled")
	}
	b := &bot.Bot{
		Prefix: cfg.CommandPrefix,
		Auth:   bot.NewWhitelist(cfg.Whitelist),
		Sink:   &bot.Sink{Resolver: chat.NewMediaResolver()},
	}
	controller := session.NewController(ctx, store, session.Options{
		InactivityWindow: cfg.InactivityWindow,
		RolloverLimit:    cfg.RolloverLimit,
		Notify:           b.HandleEvent,
	})
	b.Controller = controller

	if err := cfg.ValidateChatReady(); err != nil {
		slog.Info("chat transport disabled", slog.Any("reason", err))
	} else {
		client := chat.NewClient(cfg)
		b.Transport = &chat.Transport{Client: client, Channel: cfg.TwitchChannel}
		go func() {
			if err := chat.Run(ctx, cfg, client, b); err != nil {
				slog.Error("twitch chat exited with error", slog.Any("err", err))
			}
		}()
	}

	// HTTP server (health/status/metrics/records)
	go func() {
		deps := server.Deps{Store: store, Controller: controller}
		if err := server.Start(ctx, database, deps, cfg.HTTPAddr); err != nil {
			slog.Error("http server exited with error", slog.Any("err", err))
		}
	}()

	// Block until shutdown signal, then flush live recordings.
	<-ctx.Done()
	slog.Info("shutting down")
	flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	controller.StopAll(flushCtx)
}
