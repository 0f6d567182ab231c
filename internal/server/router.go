package server

import (
	"net/http"

	"github.com/inferloop/tabsynth/pkg/constants"
)

// setupRoutes sets up the HTTP routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handlers.Health).Methods(http.MethodGet)

	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix(constants.APIPrefix).Subrouter()
	api.HandleFunc("/descriptions", s.handlers.ListDescriptions).Methods(http.MethodGet)
	api.HandleFunc("/descriptions", s.handlers.CreateDescription).Methods(http.MethodPost)
	api.HandleFunc("/descriptions/{id}", s.handlers.GetDescription).Methods(http.MethodGet)
	api.HandleFunc("/descriptions/{id}", s.handlers.DeleteDescription).Methods(http.MethodDelete)
	api.HandleFunc("/descriptions/{id}/generate", s.handlers.Generate).Methods(http.MethodPost)

	s.router.NotFoundHandler = http.HandlerFunc(s.handlers.NotFound)
	s.router.MethodNotAllowedHandler = http.HandlerFunc(s.handlers.MethodNotAllowed)
}

// setupMiddleware sets up HTTP middleware on matched routes. Logging wraps
// recovery so it sees the status a recovered panic writes.
func (s *Server) setupMiddleware() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)
	s.router.Use(s.requestSizeLimitMiddleware)
}

// handler wraps the router in CORS handling when enabled. mux only runs
// middleware on matched routes, so preflight requests are answered here.
func (s *Server) handler() http.Handler {
	if s.config.EnableCORS {
		return s.corsMiddleware(s.router)
	}
	return s.router
}
