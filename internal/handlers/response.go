package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"face-attendance/internal/errors"
	"face-attendance/internal/models"
	"face-attendance/internal/repository"
)

type errorResponse struct {
	Error  string              `json:"error"`
	Reason models.RejectReason `json:"reason,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an error category to a status code
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	resp := errorResponse{Error: err.Error()}

	switch {
	case errors.Is(err, repository.ErrNotFound) || errors.IsNotFound(err):
		status = http.StatusNotFound
	case errors.IsCategory(err, errors.CategoryValidation):
		status = http.StatusUnprocessableEntity
		resp.Reason, _ = errors.RejectReasonOf(err)
	case errors.IsTransient(err):
		status = http.StatusServiceUnavailable
	default:
		resp.Error = "internal error"
	}
	writeJSON(w, status, resp)
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

// parseDate reads a YYYY-MM-DD value in loc; empty returns the zero time
func parseDate(value string, loc *time.Location) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	return models.ParseDate(value, loc)
}

func parseInt(value string, def int) (int, error) {
	if value == "" {
		return def, nil
	}
	return strconv.Atoi(value)
}
