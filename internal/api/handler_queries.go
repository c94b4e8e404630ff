package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plotly/falcon/internal/domain"
)

// queryRequest is the registration payload: a query definition plus an
// optional filename. When a filename is given and no fid is, a fresh grid is
// created from the query's first run and the schedule targets it.
type queryRequest struct {
	domain.QueryDefinition
	Filename string `json:"filename,omitempty"`
}

func (h *Handler) handleListQueries(w http.ResponseWriter, r *http.Request) {
	defs, err := h.deps.Queries.GetAll()
	if err != nil {
		writeError(w, err)
		return
	}
	if defs == nil {
		defs = []domain.QueryDefinition{}
	}
	writeJSON(w, http.StatusOK, defs)
}

func (h *Handler) handleGetQuery(w http.ResponseWriter, r *http.Request) {
	fid := chi.URLParam(r, "fid")
	def, err := h.deps.Queries.Get(fid)
	if err != nil {
		writeError(w, err)
		return
	}
	if def == nil {
		writeError(w, domain.ErrNotFound("no query registered for fid %s", fid))
		return
	}
	writeJSON(w, http.StatusOK, def)
}

func (h *Handler) handleRegisterQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	def := &req.QueryDefinition
	ctx := r.Context()

	if req.Filename != "" && def.Fid == "" {
		if err := h.createGridFromQuery(ctx, def, req.Filename); err != nil {
			writeError(w, err)
			return
		}
	} else if err := h.deps.Grid.CheckWritePermissions(ctx, def.Fid, def.Requestor); err != nil {
		writeError(w, err)
		return
	}

	previous, err := h.deps.Queries.Get(def.Fid)
	if err != nil {
		writeError(w, err)
		return
	}
	// Re-registering keeps the display metadata unless the caller overrides.
	if previous != nil {
		if def.Name == "" {
			def.Name = previous.Name
		}
		if def.Tags == nil {
			def.Tags = previous.Tags
		}
	}

	if err := h.deps.Scheduler.ScheduleQuery(ctx, def); err != nil {
		writeError(w, err)
		return
	}

	// First refresh runs right away rather than waiting for the cron firing.
	// Its outcome lands in lastExecution like any scheduled run.
	fid := def.Fid
	go func() {
		if err := h.deps.Scheduler.RunJob(context.Background(), fid); err != nil {
			h.logger.Warn("initial run failed", "fid", fid, "error", err)
		}
	}()

	status := http.StatusOK
	if previous == nil {
		status = http.StatusCreated
	}
	writeJSON(w, status, def)
}

// createGridFromQuery runs the query once and materializes a new grid from
// the result, filling in the definition's fid and column uids.
func (h *Handler) createGridFromQuery(ctx context.Context, def *domain.QueryDefinition, filename string) error {
	if def.ConnectionID == "" {
		return domain.ErrValidation("connectionId is required")
	}
	if def.Requestor == "" {
		return domain.ErrValidation("requestor is required")
	}
	conn, err := h.deps.Connections.Get(def.ConnectionID)
	if err != nil {
		return err
	}
	if conn == nil {
		return domain.ErrNotFound("connection %s does not exist", def.ConnectionID)
	}
	result, err := h.deps.Gateway.Query(ctx, def.Query, conn)
	if err != nil {
		return &domain.QueryExecutionError{Err: err}
	}
	fid, uids, err := h.deps.Grid.NewGrid(ctx, filename, result, def.Requestor)
	if err != nil {
		return err
	}
	def.Fid = fid
	def.UIDs = uids
	return nil
}

func (h *Handler) handleDeleteQuery(w http.ResponseWriter, r *http.Request) {
	fid := chi.URLParam(r, "fid")
	def, err := h.deps.Queries.Get(fid)
	if err != nil {
		writeError(w, err)
		return
	}
	if def == nil {
		writeError(w, domain.ErrNotFound("no query registered for fid %s", fid))
		return
	}
	h.deps.Scheduler.ClearQuery(fid)
	if err := h.deps.Queries.Delete(fid); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}
