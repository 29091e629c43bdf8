package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/smartfactory/agent-service/internal/agent"
	"github.com/smartfactory/agent-service/internal/catalog"
	"github.com/smartfactory/agent-service/internal/config"
	"github.com/smartfactory/agent-service/internal/devices"
	"github.com/smartfactory/agent-service/internal/dispatch"
	"github.com/smartfactory/agent-service/internal/httpapi"
	"github.com/smartfactory/agent-service/internal/llm"
	"github.com/smartfactory/agent-service/internal/mqtt"
	"github.com/smartfactory/agent-service/internal/repository"
	"github.com/smartfactory/agent-service/internal/telemetry"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	setupLogging(cfg.LogLevel)

	// Database
	db, err := repository.NewPostgresDB(cfg.DatabaseURL())
	if err != nil {
		slog.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		slog.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}

	conversationRepo := repository.NewConversationRepository(db)
	messageRepo := repository.NewMessageRepository(db)

	// MQTT broker, telemetry ingestion, and the control dispatcher
	broker, err := mqtt.New(cfg.MQTTBrokerURL)
	if err != nil {
		slog.Error("failed to connect to MQTT broker", "error", err)
		os.Exit(1)
	}
	defer broker.Disconnect(250 * time.Millisecond)

	registry := devices.NewRegistry()

	store := telemetry.NewStore()
	if err := store.Attach(broker, cfg.MQTTTopicBase); err != nil {
		slog.Error("failed to subscribe to telemetry topics", "error", err)
		os.Exit(1)
	}

	dispatcher := dispatch.New(dispatch.Options{
		Registry:       registry,
		Telemetry:      store,
		Broker:         broker,
		TopicBase:      cfg.MQTTTopicBase,
		ControlTimeout: cfg.ControlTimeout,
		MCPBaseURL:     cfg.MCPBaseURL,
		ExecuteTimeout: cfg.ExecuteTimeout,
	})
	if err := dispatcher.Start(); err != nil {
		slog.Error("failed to subscribe to status topics", "error", err)
		os.Exit(1)
	}

	// Tool catalog with an eager first fetch and a cron-driven refresh
	toolCatalog := catalog.New(cfg.MCPBaseURL, cfg.CatalogMaxAge, cfg.CatalogTimeout, catalog.DefaultExamples())
	{
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CatalogTimeout)
		if _, err := toolCatalog.Fetch(ctx, true); err != nil {
			slog.Warn("initial catalog fetch failed, will retry in background", "error", err)
		}
		cancel()
	}

	scheduler := cron.New()
	if cfg.CatalogRefresh != "" {
		_, err := scheduler.AddFunc(cfg.CatalogRefresh, func() {
			ctx, cancel := context.WithTimeout(context.Background(), cfg.CatalogTimeout)
			defer cancel()
			if _, err := toolCatalog.Fetch(ctx, true); err != nil {
				slog.Warn("scheduled catalog refresh failed", "error", err)
			}
		})
		if err != nil {
			slog.Error("invalid catalog refresh schedule", "cron", cfg.CatalogRefresh, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
		defer scheduler.Stop()
	}

	// Completion model and the pipeline
	llmClient := llm.NewGeminiClient(cfg.LLMBaseURL, cfg.LLMModel, cfg.LLMAPIKey, cfg.LLMTimeout)

	pipeline := agent.New(agent.Options{
		Catalog:      toolCatalog,
		LLM:          llmClient,
		Executor:     dispatcher,
		HistoryLimit: cfg.HistoryInPrompt,
	})

	// HTTP surface
	handler := httpapi.NewHandler(httpapi.HandlerOptions{
		Config:           cfg,
		LLMClient:        llmClient,
		Pipeline:         pipeline,
		Catalog:          toolCatalog,
		Registry:         registry,
		Telemetry:        store,
		Dispatcher:       dispatcher,
		ConversationRepo: conversationRepo,
		MessageRepo:      messageRepo,
	})
	router := httpapi.NewRouter(handler, cfg)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		slog.Info("agent service starting", "port", cfg.Port, "model", cfg.LLMModel, "mcp", cfg.MCPBaseURL)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		slog.Error("forced shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("server exited")
}

func setupLogging(level string) {
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
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})))
}
