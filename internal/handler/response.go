package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"lodge-api/pkg/apierror"
)

// Success bodies are JSON with a success flag; error bodies are plain
// text so clients can show the message verbatim.

type statusResponse struct {
	Success bool `json:"success"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func writePlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

// writeError maps an APIError to its status and message. Anything else
// is an internal failure; the client gets a generic body, the log gets
// the real error.
func writeError(w http.ResponseWriter, err error) {
	var apiErr *apierror.APIError
	if errors.As(err, &apiErr) {
		writePlain(w, apiErr.HTTPStatus, apiErr.Message)
		return
	}

	slog.Error("request failed", "error", err)
	writePlain(w, http.StatusInternalServerError, "Unexpected server error")
}
