// Package server exposes the memory tools over a websocket.
//
// Protocol: the client sends one JSON message per tool call
//
//	{"id": "1", "tool": "search_memory", "input": {"query": "coffee", "k": 3}}
//
// and receives either
//
//	{"id": "1", "result": {...}}
//	{"id": "1", "error": {"code": "invalid_input", "message": "..."}}
//
// Messages of one connection are handled in order.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/becomeliminal/nim-memory/core"
	"github.com/becomeliminal/nim-memory/engine"
	"github.com/becomeliminal/nim-memory/memory"
	"github.com/becomeliminal/nim-memory/tools"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
)

// Config holds server configuration.
type Config struct {
	// ListenAddr is the host:port Start listens on.
	ListenAddr string

	// Retriever backs the memory tools and the health document count.
	Retriever *memory.Retriever

	// Audit receives an entry per tool call. Optional.
	Audit engine.AuditLogger

	// CallTimeout bounds each tool call. Default: 30s
	CallTimeout time.Duration
}

// Server serves tool calls over websocket connections.
type Server struct {
	cfg      Config
	registry *tools.Registry
	engine   *engine.Engine
	upgrader websocket.Upgrader
	mux      *http.ServeMux

	mu    sync.Mutex
	conns map[*websocket.Conn]struct{}
}

// New creates a server with the memory tools registered.
func New(cfg Config) (*Server, error) {
	if cfg.Retriever == nil {
		return nil, fmt.Errorf("retriever is required")
	}
	if cfg.CallTimeout == 0 {
		cfg.CallTimeout = 30 * time.Second
	}

	registry := tools.NewRegistry(tools.MemoryTools(cfg.Retriever)...)

	var opts []engine.Option
	if cfg.Audit != nil {
		opts = append(opts, engine.WithAudit(cfg.Audit))
	}

	s := &Server{
		cfg:      cfg,
		registry: registry,
		engine:   engine.NewEngine(registry, opts...),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// Local tool server: accept any origin.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		conns: make(map[*websocket.Conn]struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/tools", s.handleTools)
	s.mux = mux

	return s, nil
}

// AddTool registers an additional tool.
func (s *Server) AddTool(t core.Tool) {
	s.registry.Register(t)
}

// AddTools registers additional tools.
func (s *Server) AddTools(ts ...core.Tool) {
	for _, t := range ts {
		s.registry.Register(t)
	}
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start listens on ListenAddr and serves until ctx is cancelled, then shuts
// down gracefully and closes open websocket connections.
func (s *Server) Start(ctx context.Context) error {
	if s.cfg.ListenAddr == "" {
		return fmt.Errorf("listen address is required")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.ListenAddr, err)
	}

	srv := &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	log.Printf("[SERVER] Listening on %s (ws://%s/ws)", ln.Addr(), ln.Addr())

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s.closeConns()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	log.Printf("[SERVER] Stopped")

	return <-errCh
}

// Close closes every open websocket connection.
func (s *Server) Close() error {
	s.closeConns()
	return nil
}

func (s *Server) closeConns() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.conns {
		_ = c.Close()
		delete(s.conns, c)
	}
}

func (s *Server) track(c *websocket.Conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *websocket.Conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	n, err := s.cfg.Retriever.Count(r.Context())
	if err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "unavailable",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"documents": n,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, http.StatusOK, s.registry.List())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[SERVER] Failed to write response: %v", err)
	}
}
