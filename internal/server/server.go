package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/felixgeelhaar/bolt/v3"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/michaelbrown/toolselector/internal/logging"
	"github.com/michaelbrown/toolselector/internal/storage"
	"github.com/michaelbrown/toolselector/internal/tools"
)

// Server is the HTTP server for the tool selector API.
//
// The registry is not safe for concurrent use, so every handler holds mu
// while it touches it.
type Server struct {
	mu       sync.Mutex
	registry *tools.Registry
	history  storage.Store
	hub      *Hub
	log      *bolt.Logger
	router   chi.Router
	http     *http.Server
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the /api/history endpoint.
func WithHistory(h storage.Store) Option {
	return func(s *Server) { s.history = h }
}

// WithLogger sets the server logger.
func WithLogger(l *bolt.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a new Server. Registry changes are broadcast to WebSocket
// clients after any OnChange hook already installed on the registry.
func New(registry *tools.Registry, opts ...Option) *Server {
	s := &Server{
		registry: registry,
		log:      logging.Nop(),
		router:   chi.NewRouter(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.hub = NewHub(s.log)

	prev := registry.OnChange
	registry.OnChange = func(c tools.Change) {
		if prev != nil {
			prev(c)
		}
		s.hub.Broadcast(changeMessage(c))
	}

	s.setupRoutes()
	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRoutes() {
	r := s.router

	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.log))
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		// WebSocket (no JSON content-type)
		r.Get("/ws", s.handleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(jsonContentType)

			r.Get("/tools", s.handleListTools)
			r.Post("/tools", s.handleAddTool)
			r.Get("/tools/{name}", s.handleGetTool)
			r.Put("/tools/{name}", s.handleUpdateTool)
			r.Delete("/tools/{name}", s.handleRemoveTool)
			r.Post("/tools/{name}/enable", s.handleEnableTool)
			r.Post("/tools/{name}/disable", s.handleDisableTool)

			r.Post("/import", s.handleImport)
			r.Post("/validate", s.handleValidate)
			r.Post("/reload", s.handleReload)
			r.Get("/backup", s.handleBackup)
			r.Get("/history", s.handleHistory)
		})
	})
}

// jsonContentType sets Content-Type to application/json for API routes.
func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func requestLogger(log *bolt.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", ww.Status()).
				Str("duration", time.Since(start).String()).
				Str("request_id", middleware.GetReqID(r.Context())).
				Msg("request")
		})
	}
}

// Start begins listening on the given port.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	s.http = &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	s.log.Info().Str("addr", "http://"+addr).Msg("server starting")
	return s.http.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down server")
	s.hub.CloseAll()
	if s.http == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	return s.http.Shutdown(shutdownCtx)
}
