package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error string `json:"error"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeInternal logs err under msg and answers 500 without leaking it.
func writeInternal(w http.ResponseWriter, msg string, err error, attrs ...any) {
	slog.Error(msg, append(attrs, slog.String("error", err.Error()))...)
	writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
}
