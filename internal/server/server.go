// Package server exposes the task API over HTTP and task notifications
// over WebSocket.
//
// The HTTP layer is thin: it authenticates the bearer token, rebuilds the
// actor from the directory, binds the payload and hands it to the
// coordinator. Error codes map to statuses in writeError.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/roach88/teamtask/internal/analytics"
	"github.com/roach88/teamtask/internal/auth"
	"github.com/roach88/teamtask/internal/domain"
	"github.com/roach88/teamtask/internal/ids"
	"github.com/roach88/teamtask/internal/notify"
)

// DefaultSendBuffer is the per-connection outbound queue length.
const DefaultSendBuffer = 64

// TaskService is the coordinator surface used by the handlers.
// Implemented by *coordinator.Coordinator.
type TaskService interface {
	Create(ctx context.Context, actor domain.AuthContext, draft domain.TaskDraft) (domain.Task, error)
	Get(ctx context.Context, actor domain.AuthContext, id string) (domain.Task, error)
	Update(ctx context.Context, actor domain.AuthContext, id string, patch domain.TaskPatch) (domain.Task, error)
	Delete(ctx context.Context, actor domain.AuthContext, id string) error
	List(ctx context.Context, actor domain.AuthContext, q domain.TaskQuery) ([]domain.Task, error)
	RecordEvent(ctx context.Context, eventType domain.EventType, data domain.EventData, userID string) domain.EventRecord
}

// Directory resolves users for authentication.
type Directory interface {
	FindUserByID(ctx context.Context, id string) (domain.User, error)
	FindUserByEmail(ctx context.Context, email string) (domain.User, error)
}

// Metrics reads realtime analytics. Implemented by *analytics.Aggregator.
type Metrics interface {
	Snapshot(ctx context.Context) analytics.Snapshot
	Available(ctx context.Context) bool
}

// Deps are the collaborators a Server needs. All are required.
type Deps struct {
	Tasks   TaskService
	Users   Directory
	Tokens  *auth.Issuer
	Hub     *notify.Hub
	Metrics Metrics
}

// Server routes HTTP and WebSocket traffic.
type Server struct {
	deps       Deps
	router     *gin.Engine
	upgrader   websocket.Upgrader
	sendBuffer int
	ids        ids.Generator

	clientsMu sync.Mutex
	clients   map[string]*wsClient
}

// Option configures a Server.
type Option func(*Server)

// WithSendBuffer sets the per-connection outbound queue length.
func WithSendBuffer(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.sendBuffer = n
		}
	}
}

// WithAllowedOrigins restricts WebSocket upgrades to the given origins.
// "*" allows any origin.
func WithAllowedOrigins(origins []string) Option {
	return func(s *Server) {
		allowed := make(map[string]bool, len(origins))
		for _, o := range origins {
			allowed[o] = true
		}
		s.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return allowed["*"] || origin == "" || allowed[origin]
		}
	}
}

// WithIDs sets the generator for connection and request IDs.
func WithIDs(g ids.Generator) Option {
	return func(s *Server) { s.ids = g }
}

// New builds a Server and its routes.
func New(deps Deps, opts ...Option) *Server {
	s := &Server{
		deps:       deps,
		router:     gin.New(),
		sendBuffer: DefaultSendBuffer,
		ids:        ids.UUIDv7{},
		clients:    make(map[string]*wsClient),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}
	for _, opt := range opts {
		opt(s)
	}

	s.router.Use(gin.Recovery(), s.requestContext())

	s.router.GET("/health", s.handleHealth)
	s.router.POST("/auth/login", s.handleLogin)
	s.router.GET("/ws", s.handleWebSocket)

	api := s.router.Group("/api/v1", s.authenticate())
	{
		api.GET("/tasks", s.handleListTasks)
		api.POST("/tasks", s.handleCreateTask)
		api.GET("/tasks/:id", s.handleGetTask)
		api.PATCH("/tasks/:id", s.handleUpdateTask)
		api.PUT("/tasks/:id", s.handleUpdateTask)
		api.DELETE("/tasks/:id", s.handleDeleteTask)
		api.GET("/analytics/realtime", s.requireRole(domain.RoleAdmin, domain.RoleManager), s.handleRealtime)
	}

	return s
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully,
// closing every WebSocket connection.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	slog.Info("http server listening", "addr", addr)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	slog.Info("http server shutting down", "connections", s.deps.Hub.ConnectedCount())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Hijacked WebSocket connections are not tracked by http.Server.
	s.closeClients()
	s.deps.Hub.Close()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	return nil
}

func (s *Server) closeClients() {
	s.clientsMu.Lock()
	clients := make([]*wsClient, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.clientsMu.Unlock()

	for _, c := range clients {
		c.close()
	}
}
