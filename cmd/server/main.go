// cmd/server is the runtime's composition root: it wires config, the
// sqlite-backed structured store, the in-process vector store, the LLM
// gateway, the scoring/importance/emotion packages, the memory and
// relationship managers, the decay worker, the conversation engine, the
// session manager, the JSON-RPC dispatcher, and the websocket transport
// into one running process. Grounded on the teacher's cmd/api/main.go
// wiring shape (load env, build repositories, build services, build
// handlers, start the server) generalized from its REST/gin stack onto
// this runtime's JSON-RPC-over-websocket stack.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/saltydev0331/persona-mcp-sub000/internal/config"
	"github.com/saltydev0331/persona-mcp-sub000/internal/conversation"
	"github.com/saltydev0331/persona-mcp-sub000/internal/decay"
	"github.com/saltydev0331/persona-mcp-sub000/internal/dispatcher"
	"github.com/saltydev0331/persona-mcp-sub000/internal/emotion"
	"github.com/saltydev0331/persona-mcp-sub000/internal/llm"
	"github.com/saltydev0331/persona-mcp-sub000/internal/memory"
	"github.com/saltydev0331/persona-mcp-sub000/internal/relationship"
	"github.com/saltydev0331/persona-mcp-sub000/internal/scoring"
	"github.com/saltydev0331/persona-mcp-sub000/internal/session"
	"github.com/saltydev0331/persona-mcp-sub000/internal/store"
	"github.com/saltydev0331/persona-mcp-sub000/internal/transport"
	"github.com/saltydev0331/persona-mcp-sub000/internal/vectorstore"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: loading config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.DebugMode)
	defer logger.Sync()

	db, err := store.Open(cfg.Database.SQLitePath, cfg.Database.EnableWAL)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}
	defer db.Close()

	personaRepo := store.NewSQLitePersonaRepository(db)
	relationshipRepo := store.NewSQLiteRelationshipRepository(db)
	emotionalRepo := store.NewSQLiteEmotionalStateRepository(db)
	conversationRepo := store.NewSQLiteConversationRepository(db)
	memoryRepo := store.NewSQLiteMemoryRepository(db)

	gateway := newGateway(cfg.LLM, logger)
	vectors := vectorstore.New(memoryRepo, gateway)

	scorer := scoring.NewEngine(cfg.Conversation)
	memories := memory.NewManager(memoryRepo, vectors, gateway, logger)
	relationships := relationship.NewManager(relationshipRepo, personaRepo, logger)
	engine := conversation.NewEngine(personaRepo, emotionalRepo, conversationRepo, scorer, gateway, memories, relationships, logger)
	sessions := session.NewManager()

	decayWorker := decay.NewWorker(memories, personaRepo, decayK(cfg.Memory), 0.3, cfg.Memory.MaxPerPersona, logger)
	if cfg.Memory.DecayEnabled {
		decayWorker.Start(time.Duration(cfg.Memory.DecayIntervalSeconds) * time.Second)
	}
	defer decayWorker.Stop()

	regenWorker := emotion.NewWorker(personaRepo, emotionalRepo, cfg.Persona.AvailableTimeCeiling, cfg.Persona.SocialEnergyCeiling, logger)
	if cfg.Persona.RegenEnabled {
		regenWorker.Start(time.Duration(cfg.Persona.RegenIntervalSeconds) * time.Second)
	}
	defer regenWorker.Stop()

	stopSweep := sessions.StartSweep(
		time.Duration(cfg.Session.TickIntervalSeconds)*time.Second,
		time.Duration(cfg.Session.SessionTimeoutHours)*time.Hour,
		30*time.Minute,
	)
	defer stopSweep()

	d := dispatcher.New(logger)
	dispatcher.RegisterAll(d, dispatcher.Services{
		Personas:      personaRepo,
		Conversations: engine,
		ConvStore:     conversationRepo,
		Memories:      memories,
		Relationships: relationships,
		Emotional:     emotionalRepo,
		Sessions:      sessions,
		Decay:         decayAdapter{decayWorker},
		Gateway:       gateway,
	}, transport.ConnectionID)

	wsServer := transport.NewServer(d, sessionHooksAdapter{sessions}, logger)

	mux := http.NewServeMux()
	mux.Handle(cfg.Server.MCPPath, wsServer)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("starting server", zap.String("addr", addr), zap.String("mcp_path", cfg.Server.MCPPath))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("graceful shutdown failed", zap.Error(err))
	}
}

func newLogger(debug bool) *zap.Logger {
	var logger *zap.Logger
	var err error
	if debug {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		logger = zap.NewNop()
	}
	return logger
}

func newGateway(cfg config.LLMConfig, logger *zap.Logger) llm.Gateway {
	if cfg.BaseURL == "" {
		logger.Warn("llm base_url not configured, using mock gateway")
		return &llm.MockGateway{Response: "..."}
	}
	httpClient := &http.Client{Timeout: time.Duration(cfg.TimeoutSeconds) * time.Second}
	return llm.NewHTTPGateway(cfg.BaseURL, "", cfg.DefaultModel, httpClient, logger)
}

// decayK derives the hourly decay exponent from the configured decay
// rate, falling back to a conservative default when unset.
func decayK(cfg config.MemoryConfig) float64 {
	if cfg.DecayRate > 0 {
		return cfg.DecayRate
	}
	return 0.02
}

// decayAdapter narrows *decay.Worker onto dispatcher.DecayService,
// renaming SweepPersona to the operator-facing "force decay" verb and
// boxing Stats behind the dispatcher's untyped result contract.
type decayAdapter struct{ w *decay.Worker }

func (a decayAdapter) Stats() any                 { return a.w.Stats() }
func (a decayAdapter) Start(interval time.Duration) { a.w.Start(interval) }
func (a decayAdapter) Stop()                        { a.w.Stop() }
func (a decayAdapter) ForcePersona(ctx context.Context, personaID string, k float64) (int, int, error) {
	if k <= 0 {
		k = 0.02
	}
	return a.w.SweepPersona(ctx, personaID, k)
}

// sessionHooksAdapter narrows *session.Manager onto transport.SessionHooks,
// discarding Connect's SessionContext return value.
type sessionHooksAdapter struct{ m *session.Manager }

func (a sessionHooksAdapter) Connect(connectionID string)    { a.m.Connect(connectionID) }
func (a sessionHooksAdapter) Disconnect(connectionID string) { a.m.Disconnect(connectionID) }
