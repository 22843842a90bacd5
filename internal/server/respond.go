package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"bucketadmin/internal/catalog"
	"bucketadmin/internal/domain"
	"bucketadmin/internal/service"
)

// writeJSON encodes data as JSON with the given status.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "err", err)
	}
}

// writeError writes {"error": message}.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, catalog.ErrInvalidPartition):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// publicMessage is the text shown to clients for err. Internal failures
// get the generic fallback; the detail goes to the log.
func publicMessage(err error, fallback string) string {
	switch {
	case errors.Is(err, service.ErrNoConnection):
		return "database not connected"
	case statusFor(err) != http.StatusInternalServerError:
		return err.Error()
	default:
		return fallback
	}
}

// fail logs err and writes the mapped JSON error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		s.logger.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, publicMessage(err, fallback))
}
