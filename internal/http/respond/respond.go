package respond

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// JSON writes a payload as the response body with the given status.
func JSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Error("respond: encode payload failed", "error", err)
	}
}

// Message writes a {message, data} envelope used by mutating endpoints.
func Message(w http.ResponseWriter, status int, message string, data any) {
	type envelope struct {
		Message string `json:"message"`
		Account any    `json:"account,omitempty"`
	}
	JSON(w, status, envelope{Message: message, Account: data})
}

// Error writes an {error} body with the given status.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
