package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/plotly/falcon/internal/domain"
)

func (h *Handler) handleListConnections(w http.ResponseWriter, r *http.Request) {
	conns, err := h.deps.Connections.GetAll()
	if err != nil {
		writeError(w, err)
		return
	}
	sanitized := make([]*domain.Connection, 0, len(conns))
	for i := range conns {
		sanitized = append(sanitized, conns[i].Sanitize())
	}
	writeJSON(w, http.StatusOK, sanitized)
}

func (h *Handler) handleCreateConnection(w http.ResponseWriter, r *http.Request) {
	var conn domain.Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	if err := conn.Validate(); err != nil {
		writeError(w, err)
		return
	}
	// Reject connections that cannot actually reach their data source.
	if err := h.deps.Gateway.Connect(r.Context(), &conn); err != nil {
		writeError(w, domain.ErrValidation("connection test failed: %v", err))
		return
	}
	id, err := h.deps.Connections.Save(&conn)
	if err != nil {
		writeError(w, err)
		return
	}
	conn.ID = id
	writeJSON(w, http.StatusCreated, conn.Sanitize())
}

func (h *Handler) handleGetConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn.Sanitize())
}

func (h *Handler) handleEditConnection(w http.ResponseWriter, r *http.Request) {
	var conn domain.Connection
	if err := json.NewDecoder(r.Body).Decode(&conn); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	conn.ID = chi.URLParam(r, "id")
	if err := conn.Validate(); err != nil {
		writeError(w, err)
		return
	}
	if err := h.deps.Connections.Edit(&conn); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, conn.Sanitize())
}

func (h *Handler) handleDeleteConnection(w http.ResponseWriter, r *http.Request) {
	if err := h.deps.Connections.Delete(chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{})
}

func (h *Handler) handleConnectionQuery(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body struct {
		Query string `json:"query"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	result, err := h.deps.Gateway.Query(r.Context(), body.Query, conn)
	if err != nil {
		writeError(w, &domain.QueryExecutionError{Err: err})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleConnectionTables(w http.ResponseWriter, r *http.Request) {
	conn, err := h.connection(r)
	if err != nil {
		writeError(w, err)
		return
	}
	tables, err := h.deps.Gateway.ListTables(r.Context(), conn)
	if err != nil {
		writeError(w, err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	writeJSON(w, http.StatusOK, tables)
}

// connection resolves the {id} route parameter to a stored connection.
func (h *Handler) connection(r *http.Request) (*domain.Connection, error) {
	id := chi.URLParam(r, "id")
	conn, err := h.deps.Connections.Get(id)
	if err != nil {
		return nil, err
	}
	if conn == nil {
		return nil, domain.ErrNotFound("connection %s does not exist", id)
	}
	return conn, nil
}
