package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type errResponse struct {
	Error string `json:"error" validate:"required"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", slog.String("error", err.Error()))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errResponse{Error: msg})
}

// internalError logs err with its context and hides it from the client.
func internalError(w http.ResponseWriter, op string, err error, attrs ...any) {
	slog.Error("api: "+op+" failed", append(attrs, slog.String("error", err.Error()))...)
	writeError(w, http.StatusInternalServerError, "internal error")
}
