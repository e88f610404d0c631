package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/emrgen/docview/internal/service"
	"github.com/sirupsen/logrus"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := errorStatus(err)
	if status >= http.StatusInternalServerError {
		logrus.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}

	writeJSON(w, status, map[string]errorBody{
		"error": {Code: code, Message: err.Error()},
	})
}

// errorStatus maps the service error taxonomy onto HTTP.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, service.ErrInvalidArgument):
		return http.StatusBadRequest, "INVALID_ARGUMENT"
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden, "PERMISSION_DENIED"
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, service.ErrGone):
		return http.StatusGone, "GONE"
	case errors.Is(err, service.ErrIntegrity):
		return http.StatusConflict, "INTEGRITY"
	case errors.Is(err, service.ErrUnavailable):
		return http.StatusServiceUnavailable, "UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}
