package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/chatwire/chatwire/pkg/httputil"
	"github.com/chatwire/chatwire/pkg/observability"
	"github.com/chatwire/chatwire/pkg/session"
	"github.com/chatwire/chatwire/pkg/webhook"
)

// maxRequestBody bounds inbound request bodies
const maxRequestBody = 1 << 20 // 1 MiB

// Server is the HTTP API surface over the session registry and the webhook
// dispatcher
type Server struct {
	registry   *session.Registry
	dispatcher *webhook.Dispatcher
	router     *mux.Router
	logger     *observability.Logger
}

// NewServer creates the API server and registers its routes
func NewServer(registry *session.Registry, dispatcher *webhook.Dispatcher, logger *observability.Logger) *Server {
	s := &Server{
		registry:   registry,
		dispatcher: dispatcher,
		router:     mux.NewRouter(),
		logger:     logger.WithField("component", "api"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	// Session routes
	s.router.HandleFunc("/sessions", s.createSession).Methods("POST")
	s.router.HandleFunc("/sessions", s.listSessions).Methods("GET")
	s.router.HandleFunc("/sessions/{id}", s.getSession).Methods("GET")
	s.router.HandleFunc("/sessions/{id}", s.deleteSession).Methods("DELETE")
	s.router.HandleFunc("/sessions/{id}/connect", s.connectSession).Methods("POST")
	s.router.HandleFunc("/sessions/{id}/disconnect", s.disconnectSession).Methods("POST")

	// Webhook delivery routes
	s.router.HandleFunc("/webhooks/stats", s.getStats).Methods("GET")
	s.router.HandleFunc("/webhooks/stats/reset", s.resetStats).Methods("POST")
	s.router.HandleFunc("/webhooks/deliveries", s.listDeliveries).Methods("GET")
}

// Handler returns the router wrapped in the standard middleware stack
func (s *Server) Handler() http.Handler {
	return httputil.Chain(
		httputil.RecoveryMiddleware(s.logger),
		httputil.RequestIDMiddleware,
		httputil.LoggingMiddleware(s.logger),
		httputil.MaxBytesMiddleware(maxRequestBody),
	)(s.router)
}

// Router exposes the bare router for tests
func (s *Server) Router() *mux.Router {
	return s.router
}
