package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/runbox/internal/config"
	"github.com/michaelbrown/runbox/internal/language"
	"github.com/michaelbrown/runbox/internal/pkgcache"
	"github.com/michaelbrown/runbox/internal/runner"
	"github.com/michaelbrown/runbox/internal/storage"
	"github.com/michaelbrown/runbox/internal/terminal"
)

// Server is the playground backend: REST surface plus the websocket
// session endpoint.
type Server struct {
	cfg       *config.Config
	store     storage.Store
	registry  *language.Registry
	runner    *runner.Router
	terminals *terminal.Manager
	sessions  *Supervisor
	router    chi.Router
	http      *http.Server

	// conns maps session id to its websocket writer so terminal events
	// can be pushed from outside the read loop.
	connMu sync.RWMutex
	conns  map[string]*wsConn
}

// New creates a Server wired to the given store.
func New(cfg *config.Config, store storage.Store) (*Server, error) {
	registry, err := language.Load()
	if err != nil {
		return nil, fmt.Errorf("loading language registry: %w", err)
	}

	s := &Server{
		cfg:      cfg,
		store:    store,
		registry: registry,
		sessions: NewSupervisor(),
		router:   chi.NewRouter(),
		conns:    make(map[string]*wsConn),
	}

	s.terminals = terminal.NewManager(s.emitTerminal)

	local := &runner.Local{
		WorkspaceRoot: cfg.Execution.WorkspaceRoot,
		Python:        pkgcache.NewPythonCache(filepath.Join(cfg.Execution.UserLibsDir, "python")),
		Java:          pkgcache.NewJavaCache(filepath.Join(cfg.Execution.UserLibsDir, "java")),
	}
	s.runner = &runner.Router{
		Registry:    registry,
		Local:       local,
		Remote:      runner.NewPiston(cfg.Execution.PistonURL),
		Shell:       s.terminals,
		DefaultMode: cfg.Execution.Mode,
	}

	s.setupRoutes()
	return s, nil
}

func (s *Server) setupRoutes() {
	r := s.router

	// Global middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/", s.handleIndex)
	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonContentType)
		r.Get("/languages", s.handleListLanguages)
	})

	r.Get("/ws", s.handleWebSocket)
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	log.Printf("runbox server starting on http://localhost%s", addr)
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server, tearing down every live
// session (kill attached processes, terminal shells, workspaces) first.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down server...")
	s.sessions.CloseAll()
	s.terminals.CloseAll()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}

// terminalRoot is where a user's shell sandbox lives on disk. It matches
// the storage mirror so saved files are visible to shell commands.
func (s *Server) terminalRoot(userID string) string {
	return filepath.Join(s.cfg.Execution.WorkspaceRoot, userID)
}

// emitTerminal pushes a terminal event to the session's websocket.
func (s *Server) emitTerminal(sessionID string, ev terminal.Event) {
	s.connMu.RLock()
	conn := s.conns[sessionID]
	s.connMu.RUnlock()
	if conn == nil {
		return
	}

	switch ev.Type {
	case terminal.EventOutput:
		conn.writeJSON(wsOutgoing{Type: "terminal:output", Data: ev.Data})
	case terminal.EventCwd:
		conn.writeJSON(wsOutgoing{Type: "terminal:cwd", Cwd: ev.Data})
	case terminal.EventStatus:
		busy := ev.Busy
		conn.writeJSON(wsOutgoing{Type: "terminal:status", Busy: &busy})
	}
}
