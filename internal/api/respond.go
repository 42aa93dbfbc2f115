package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"taskvoice/internal/store"
	"taskvoice/internal/usecase"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// decodeJSON reads a request body into v. An empty body leaves v untouched.
func decodeJSON(r *http.Request, v any) error {
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

// statusFor maps controller and store errors to HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, usecase.ErrInputBlocked):
		return http.StatusLocked
	case errors.Is(err, usecase.ErrSessionBusy),
		errors.Is(err, usecase.ErrNoActiveSession),
		errors.Is(err, usecase.ErrNotPending),
		errors.Is(err, usecase.ErrNotEditing),
		errors.Is(err, usecase.ErrNothingToCancel):
		return http.StatusConflict
	case errors.Is(err, store.ErrThreadNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), err.Error())
}
