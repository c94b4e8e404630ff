package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/plotly/falcon/internal/domain"
	"github.com/plotly/falcon/internal/gridstore"
)

// writeError renders any error in the wire shape clients pattern-match on:
// {"error": {"message": "..."}}.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]any{
		"error": map[string]any{"message": err.Error()},
	})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	var (
		notFound        *domain.NotFoundError
		validation      *domain.ValidationError
		invalidSchedule *domain.InvalidScheduleError
		invalidName     *domain.InvalidNameError
		conflict        *domain.ConflictError
		unauthenticated *domain.UnauthenticatedError
		queryExecution  *domain.QueryExecutionError
	)
	switch {
	case errors.As(err, &notFound), errors.Is(err, domain.ErrGridDeleted):
		return http.StatusNotFound
	case errors.As(err, &validation), errors.As(err, &invalidSchedule),
		errors.As(err, &invalidName), errors.As(err, &queryExecution):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &unauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, gridstore.ErrPermissionDenied):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
