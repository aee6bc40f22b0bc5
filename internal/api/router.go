package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RouterConfig collects the router's dependencies.
type RouterConfig struct {
	Records       RecordService
	Conversations ConversationLog
	Version       string
	AuthEnabled   bool
	Token         string
	// Events, if non-nil, is mounted at GET /events behind the same auth.
	Events http.Handler
}

// NewRouter creates a chi router with all API routes. Mount it under /api.
func NewRouter(cfg RouterConfig) chi.Router {
	h := NewHandler(cfg.Records, cfg.Conversations, cfg.Version)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	r.Get("/health", h.Health)

	r.Route("/memories", func(r chi.Router) {
		r.Get("/", h.ListMemories)
		r.Post("/", h.CreateMemory)
		r.Get("/{id}", h.GetMemory)
	})
	r.Get("/search", h.Search)
	r.Get("/report", h.Report)

	r.Route("/conversations", func(r chi.Router) {
		r.Get("/", h.ListConversations)
		r.Post("/", h.SaveConversation)
		r.Get("/{id}", h.GetConversation)
	})

	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}
	return r
}
