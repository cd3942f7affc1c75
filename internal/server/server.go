// Package server provides HTTP server initialization and lifecycle management
// for the bot core.
package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/tanutb/AnanBot/internal/agent"
	"github.com/tanutb/AnanBot/internal/config"
	"github.com/tanutb/AnanBot/internal/history"
	"github.com/tanutb/AnanBot/internal/karma"
	"github.com/tanutb/AnanBot/internal/llm"
	"github.com/tanutb/AnanBot/internal/memoryindex"
	"github.com/tanutb/AnanBot/internal/notify"
	"github.com/tanutb/AnanBot/internal/storage"
	"github.com/tanutb/AnanBot/internal/storage/postgres"
	"github.com/tanutb/AnanBot/internal/storage/sqlite"
	"github.com/tanutb/AnanBot/internal/vault"
	"github.com/tanutb/AnanBot/web/handlers"
)

const vaultPruneInterval = time.Hour

// Runtime holds the long-lived components started by Start, for tests and
// for wiring extra front-ends (a Discord gateway, a CLI) onto the same core.
type Runtime struct {
	Assembler *agent.Assembler
	Worker    *agent.Worker
	Hub       *handlers.WebSocketHub
	Karma     *karma.Store
	History   *history.Store
	Facts     storage.FactStore
}

// securityHeadersMiddleware adds security headers to all HTTP responses.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-XSS-Protection", "1; mode=block")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		next.ServeHTTP(w, r)
	})
}

// Start initializes every store and the HTTP server. It returns the actual
// address being listened on (useful for testing with port 0) and the running
// component set. Shutdown is driven by ctx cancellation.
func Start(ctx context.Context, cfg *config.Config) (string, *Runtime, error) {
	if err := os.MkdirAll(cfg.Storage.DataPath, 0o755); err != nil {
		return "", nil, fmt.Errorf("server: failed to create data dir: %w", err)
	}

	clients, err := llm.NewClients(ctx, cfg.LLM)
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to build LLM clients: %w", err)
	}

	karmaStore, err := karma.NewStore(filepath.Join(cfg.Storage.DataPath, "karma.json"))
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to open karma store: %w", err)
	}

	historyStore, err := history.NewStore(
		filepath.Join(cfg.Storage.DataPath, "history.json"),
		cfg.Agent.HistoryMaxLen, cfg.Agent.ImageRingLen)
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to open history store: %w", err)
	}

	imageVault, err := vault.New(filepath.Join(cfg.Storage.DataPath, "vault"))
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to open image vault: %w", err)
	}

	factStore, err := openFactStore(cfg)
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to open fact store: %w", err)
	}

	memIndex := memoryindex.New(memoryindex.Config{
		BotName:     cfg.Agent.BotName,
		RecallCount: cfg.Memory.RecallCount,
		Threshold:   cfg.Memory.Threshold,
		MaxTokens:   cfg.Memory.MaxMemoryTokens,
	}, factStore, clients.Embedding)

	// Optional file-backed persona with hot reload.
	var persona agent.PersonaProvider
	var personaWatcher *notify.PersonaWatcher
	if cfg.Agent.PersonaFile != "" {
		personaWatcher = notify.NewPersonaWatcher(cfg.Agent.PersonaFile)
		if err := personaWatcher.Start(); err != nil {
			log.Printf("server: persona watcher disabled: %v", err)
		}
		persona = personaWatcher.Current
	}

	assembler := agent.New(cfg.Agent, karmaStore, historyStore, imageVault,
		memIndex, clients.Chat, clients.Image, persona)

	worker := agent.NewWorker(assembler, clients.Text, cfg.Agent.Workers, cfg.Agent.QueueSize, cfg.Memory.MaxSummaryTokens)
	worker.Start()

	wsHub := handlers.NewWebSocketHub()
	go wsHub.Run()

	// Keep the vault within its disk budget.
	if cfg.Storage.VaultMaxBytes > 0 {
		go pruneLoop(ctx, imageVault, cfg.Storage.VaultMaxBytes)
	}

	apiHandlers := handlers.NewAPIHandlers(assembler, worker, karmaStore, wsHub)
	apiHandlers.SetDebug(cfg.Agent.Debug)

	mux := http.NewServeMux()
	apiMux := http.NewServeMux()

	apiMux.HandleFunc("/api/chat", apiHandlers.HandleChat)
	apiMux.HandleFunc("/api/users", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			apiHandlers.ListUsers(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/users/{id}", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			apiHandlers.GetUser(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/users/{id}/score", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPut {
			apiHandlers.SetUserScore(w, r)
		} else {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	apiMux.HandleFunc("/api/debug", apiHandlers.ToggleDebug)

	// Health endpoint — no auth required, used by monitoring.
	mux.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"healthy","version":"1.0.0"}`))
	})

	mux.Handle("/api/", handlers.RequireAuth(apiMux, cfg))

	// WebSocket endpoint (no auth required - origin validation handles security)
	mux.Handle("/ws", wsHub)

	rateLimiter := handlers.NewRateLimiter(10.0, 20)
	handler := handlers.RateLimitMiddleware(mux, rateLimiter)
	handler = securityHeadersMiddleware(handler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return "", nil, fmt.Errorf("server: failed to listen on %s: %w", addr, err)
	}
	actualAddr := listener.Addr().String()

	go func() {
		if err := srv.Serve(listener); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server shutdown error: %v", err)
		}
		if err := worker.Shutdown(shutdownCtx); err != nil {
			log.Printf("Worker shutdown error: %v", err)
		}
		wsHub.Stop()
		if personaWatcher != nil {
			personaWatcher.Stop()
		}
		if err := factStore.Close(); err != nil {
			log.Printf("Fact store close error: %v", err)
		}
	}()

	return actualAddr, &Runtime{
		Assembler: assembler,
		Worker:    worker,
		Hub:       wsHub,
		Karma:     karmaStore,
		History:   historyStore,
		Facts:     factStore,
	}, nil
}

// openFactStore selects the vector store backend from configuration.
func openFactStore(cfg *config.Config) (storage.FactStore, error) {
	switch cfg.Storage.StorageEngine {
	case "postgres":
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("storage_engine is postgres but postgres_dsn is empty")
		}
		return postgres.NewFactStore(cfg.Storage.PostgresDSN)
	case "", "sqlite":
		return sqlite.NewFactStore(filepath.Join(cfg.Storage.DataPath, "facts.db"))
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Storage.StorageEngine)
	}
}

func pruneLoop(ctx context.Context, v *vault.Vault, maxBytes int64) {
	ticker := time.NewTicker(vaultPruneInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			removed, err := v.Prune(maxBytes)
			if err != nil {
				log.Printf("server: vault prune failed: %v", err)
				continue
			}
			if removed > 0 {
				log.Printf("server: vault prune removed %d images", removed)
			}
		}
	}
}
