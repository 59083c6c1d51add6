package httpapi

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/roach88/namehist/internal/history"
)

// Resolver answers name-history lookups.
// *resolver.Resolver implements it.
type Resolver interface {
	Resolve(ctx context.Context, id uuid.UUID) ([]history.Element, error)
}

// Handler serves the name-history endpoint.
type Handler struct {
	resolver Resolver
	logger   *slog.Logger
}

// NewHandler constructs a Handler.
func NewHandler(resolver Resolver, logger *slog.Logger) *Handler {
	return &Handler{resolver: resolver, logger: logger}
}

// Register mounts the lookup endpoint on the router.
func (h *Handler) Register(r chi.Router) {
	r.Get("/user/profiles/{id}/names", h.HandleNames)
}

// HandleNames handles GET /user/profiles/{id}/names.
func (h *Handler) HandleNames(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := middleware.GetReqID(ctx)
	start := time.Now()

	id, err := history.ParseID(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Type: errTypeRequest, Error: err.Error()})
		return
	}

	names, err := h.resolver.Resolve(ctx, id)
	if err != nil {
		level := slog.LevelError
		if history.IsFetchFailure(err) {
			level = slog.LevelWarn
		}
		h.logger.Log(ctx, level, "name history lookup failed",
			"request_id", requestID,
			"identifier", id,
			"error", err,
		)
		writeError(w, err)
		return
	}

	h.logger.DebugContext(ctx, "name history served",
		"request_id", requestID,
		"identifier", id,
		"names", len(names),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	writeJSON(w, http.StatusOK, names)
}
