// Package main is the entry point for the support orchestrator API server.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/clearline-ai/support-orchestrator/internal/agent"
	"github.com/clearline-ai/support-orchestrator/internal/config"
	"github.com/clearline-ai/support-orchestrator/internal/events"
	"github.com/clearline-ai/support-orchestrator/internal/handler"
	"github.com/clearline-ai/support-orchestrator/internal/llm"
	"github.com/clearline-ai/support-orchestrator/internal/middleware"
	"github.com/clearline-ai/support-orchestrator/internal/orchestrator"
	"github.com/clearline-ai/support-orchestrator/internal/store"
	"github.com/clearline-ai/support-orchestrator/internal/toolsession"
	"github.com/clearline-ai/support-orchestrator/pkg/logger"
	"github.com/clearline-ai/support-orchestrator/pkg/tracing"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting support orchestrator")

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "support-orchestrator", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	// Storage: Postgres when configured, in-memory otherwise.
	var db *sql.DB
	var st store.Store
	if cfg.DatabaseURL != "" {
		db, err = sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			log.Error("failed to open database", zap.Error(err))
			os.Exit(1)
		}
		defer db.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err = db.PingContext(pingCtx)
		cancel()
		if err != nil {
			log.Error("database unreachable", zap.Error(err))
			os.Exit(1)
		}
		st = store.NewPostgresStore(db)
	} else {
		log.Warn("DATABASE_URL not set, using in-memory store")
		st = store.NewMemoryStore()
	}

	// Event fan-out over NATS, disabled when no URL is configured.
	var eventsClient *events.Client
	var publisher *events.Publisher
	if cfg.NATSURL != "" {
		eventsClient, err = events.Connect(ctx, events.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Error("failed to connect to NATS", zap.Error(err))
			os.Exit(1)
		}
		defer eventsClient.Close()

		publisher = events.NewPublisher(eventsClient)
		if err := publisher.EnsureStream(ctx); err != nil {
			log.Error("failed to ensure event stream", zap.Error(err))
			os.Exit(1)
		}
	} else {
		log.Info("NATS_URL not set, event publishing disabled")
	}

	// Inference backend. A missing key disables classification and answering;
	// the orchestrator then routes every customer message to the AI path with
	// the unavailability fallback.
	var llmClient llm.Client
	if cfg.OpenAIAPIKey != "" {
		client, err := llm.NewOpenAIClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
		if err != nil {
			log.Warn("failed to create OpenAI client, inference disabled", zap.Error(err))
		} else {
			llmClient = client
		}
	} else {
		log.Warn("OPENAI_API_KEY not set, inference disabled")
	}

	// Tool backend session, opened lazily on first use.
	var tools *toolsession.Manager
	if cfg.ToolServerURL != "" {
		dialer := toolsession.NewMCPDialer(cfg.ToolServerURL, cfg.ToolServerToken, "support-orchestrator")
		tools = toolsession.NewManager(dialer, cfg.ToolAllowlist, log)
	} else {
		log.Info("TOOL_SERVER_URL not set, tool calling disabled")
	}

	classifier := agent.NewClassifier(llmClient, log)
	summarizer := agent.NewSummarizer(llmClient, log)
	pipeline := agent.NewPipeline(llmClient, tools, cfg.MaxToolRounds, log)

	orch := orchestrator.New(orchestrator.Options{
		Store:          st,
		Classifier:     classifier,
		Summarizer:     summarizer,
		Pipeline:       pipeline,
		Events:         eventPublisher(publisher),
		Logger:         log,
		BotAgentID:     cfg.BotAgentID,
		HandoffContext: cfg.HandoffContextMessages,
	})

	healthHandler := handler.NewHealthHandler(db, eventsClient)
	conversationHandler := handler.NewConversationHandler(st, orch, cfg.DefaultAgentID, log)
	messageHandler := handler.NewMessageHandler(orch, log)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Requested-With"},
		ExposedHeaders:   []string{"X-Correlation-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Route("/conversations", func(r chi.Router) {
			r.Post("/", conversationHandler.Create)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", conversationHandler.Get)
				r.Get("/messages", conversationHandler.ListMessages)
				r.Post("/escalate", conversationHandler.Escalate)
			})
		})

		r.Post("/messages", messageHandler.Send)
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", zap.Error(err))
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	if tools != nil {
		tools.Shutdown(shutdownCtx)
	}

	log.Info("server stopped")
}

// eventPublisher keeps the orchestrator's events field a typed nil-free
// interface: a nil *events.Publisher must become a nil interface.
func eventPublisher(p *events.Publisher) orchestrator.EventPublisher {
	if p == nil {
		return nil
	}
	return p
}
