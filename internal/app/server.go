package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/cors"

	intrnl "pairchat/internal"
	"pairchat/internal/storage"
)

// ServerHandle represents a running HTTP/WebSocket server instance.
type ServerHandle struct {
	addr   string
	server *http.Server
	store  *storage.Store
	done   chan struct{}
	err    error
}

// Addr returns the actual listen address (after the OS allocated a port).
func (h *ServerHandle) Addr() string {
	return h.addr
}

// Stop triggers a graceful shutdown with the provided context deadline.
func (h *ServerHandle) Stop(ctx context.Context) error {
	if h == nil || h.server == nil {
		return nil
	}
	if ctx == nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}
	return h.server.Shutdown(ctx)
}

// Wait blocks until the server exits.
func (h *ServerHandle) Wait() error {
	if h == nil {
		return nil
	}
	<-h.done
	return h.err
}

// RunServer opens the SQLite store, runs migrations, seeds the directory,
// wires handlers, and starts serving in the background. Call Stop/Wait to
// manage its lifecycle.
func RunServer(ctx context.Context, cfg ServerConfig, logger *slog.Logger) (*ServerHandle, error) {
	if cfg.DBPath == "" {
		return nil, errors.New("database path is required")
	}
	if logger == nil {
		logger = NewLogger(cfg.Env)
	}
	cfg.WSPath = normalizeWSPath(cfg.WSPath)

	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), 0o700); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	store, err := storage.NewStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := store.SeedDirectory(context.Background(), intrnl.SeedDirectory()); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("seed directory: %w", err)
	}

	metrics := intrnl.NewMetrics()
	server := intrnl.NewServer(logger, store, metrics, intrnl.Options{
		AllowedOrigins:  cfg.CORSAllow,
		TimestampSource: cfg.TimestampSource,
		PersistMessages: cfg.PersistMessages,
		RequireIdentity: cfg.RequireIdentity,
	})

	mux := http.NewServeMux()
	registerHandlers(mux, cfg, server, metrics)

	corsLayer := cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSAllow,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           corsLayer.Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}

	listener, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("listen: %w", err)
	}

	handle := &ServerHandle{
		addr:   listener.Addr().String(),
		server: httpServer,
		store:  store,
		done:   make(chan struct{}),
	}

	go func() {
		if ctx == nil {
			return
		}
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server.shutdown", "err", err)
		}
	}()

	go handle.serve(listener, logger)
	logger.Info("server.listening", "addr", handle.addr, "ws_path", cfg.WSPath)

	return handle, nil
}

func (h *ServerHandle) serve(listener net.Listener, logger *slog.Logger) {
	defer close(h.done)
	err := h.server.Serve(listener)
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}
	if closeErr := h.store.Close(); closeErr != nil {
		logger.Error("store.close", "err", closeErr)
	}
	h.err = err
}

func registerHandlers(mux *http.ServeMux, cfg ServerConfig, server *intrnl.Server, metrics *intrnl.Metrics) {
	mux.HandleFunc(cfg.WSPath, server.ServeWS)

	mux.HandleFunc("/api/users", server.HandleUsers)
	mux.HandleFunc("/api/auth/signup", server.HandleSignup)
	mux.HandleFunc("/api/auth/login", server.HandleLogin)
	mux.HandleFunc("/api/auth/logout", server.HandleLogout)
	mux.HandleFunc("/api/rooms/{room}/messages", server.HandleRoomMessages)
	mux.HandleFunc("/api/conversations", server.HandleConversations)
	mux.HandleFunc("/api/favorites", server.HandleFavorites)
	mux.HandleFunc("/api/favorites/{contact}", server.HandleFavorite)

	mux.HandleFunc("/exists", server.HandleRoomExists)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) })
	mux.Handle("/metrics", metrics.Handler())

	// everything else is the front end: real files when they exist,
	// index.html for client-side routed paths.
	mux.Handle("/", intrnl.SPAHandler(cfg.StaticDir))
}
