// Package api exposes the connector's HTTP surface: query registration,
// connection management, tags, and liveness.
package api

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plotly/falcon/internal/domain"
)

// Scheduler is the slice of the scheduler the HTTP layer needs.
type Scheduler interface {
	ScheduleQuery(ctx context.Context, def *domain.QueryDefinition) error
	ClearQuery(fid string)
	RunJob(ctx context.Context, fid string) error
}

// Deps carries the handler's collaborators.
type Deps struct {
	Scheduler   Scheduler
	Queries     domain.QueryRepository
	Connections domain.ConnectionRepository
	Tags        domain.TagRepository
	Gateway     domain.DataSourceGateway
	Grid        domain.GridClient
	Logger      *slog.Logger
}

// Handler implements the HTTP API.
type Handler struct {
	deps   Deps
	logger *slog.Logger
}

// New creates a Handler.
func New(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{deps: deps, logger: logger.With("component", "api")}
}

// Routes builds the route tree.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/ping", h.handlePing)

	r.Route("/queries", func(r chi.Router) {
		r.Get("/", h.handleListQueries)
		r.Post("/", h.handleRegisterQuery)
		r.Get("/{fid}", h.handleGetQuery)
		r.Delete("/{fid}", h.handleDeleteQuery)
	})

	r.Route("/connections", func(r chi.Router) {
		r.Get("/", h.handleListConnections)
		r.Post("/", h.handleCreateConnection)
		r.Get("/{id}", h.handleGetConnection)
		r.Put("/{id}", h.handleEditConnection)
		r.Delete("/{id}", h.handleDeleteConnection)
		r.Post("/{id}/query", h.handleConnectionQuery)
		r.Get("/{id}/tables", h.handleConnectionTables)
	})

	r.Route("/tags", func(r chi.Router) {
		r.Get("/", h.handleListTags)
		r.Post("/", h.handleCreateTag)
		r.Delete("/{id}", h.handleDeleteTag)
	})

	return r
}

func (h *Handler) handlePing(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "pong"})
}
