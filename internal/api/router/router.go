// Package router assembles the HTTP surface of the API binary.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/apichafoko/RegistroCirugias-sub001/internal/conversation"
	"github.com/apichafoko/RegistroCirugias-sub001/pkg/logging"
)

// Config holds router configuration.
type Config struct {
	Logger              *logging.Logger
	ConversationHandler *conversation.Handler
	MetricsHandler      http.Handler
}

// New creates a Chi router with all routes configured.
func New(cfg *Config) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", cfg.ConversationHandler.Health)
	r.Post("/events", cfg.ConversationHandler.Event)
	r.Route("/conversations", func(r chi.Router) {
		r.Post("/message", cfg.ConversationHandler.Message)
	})

	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}
