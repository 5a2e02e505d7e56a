// Package httpx serves the read-only dashboard: an HTML overview page plus
// JSON APIs over the queue's stats, metrics, job listings, and DLQ.
package httpx

import (
	"bytes"
	"encoding/json"
	"net/http"

	apperrors "github.com/m-navaneeth8770/queuectl/internal/errors"
)

// WriteJSON writes a JSON response with the given status code and data.
func WriteJSON(w http.ResponseWriter, code int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if _, err := buf.WriteTo(w); err != nil {
		// Response writer errors (e.g., client disconnect) can't be recovered from here.
		return
	}
}

// WriteError writes a JSON error response with a status derived from the
// application error code.
func WriteError(w http.ResponseWriter, err error) {
	code := apperrors.GetCode(err)
	WriteJSON(w, statusForCode(code), map[string]string{
		"error":   string(code),
		"message": err.Error(),
	})
}

func statusForCode(code apperrors.ErrorCode) int {
	switch code {
	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound
	case apperrors.ErrCodeValidation:
		return http.StatusBadRequest
	case apperrors.ErrCodeConflict:
		return http.StatusConflict
	case apperrors.ErrCodeUnavailable:
		return http.StatusServiceUnavailable
	case apperrors.ErrCodeTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
