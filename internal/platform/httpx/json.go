package httpx

import (
	"net/http"

	jsoniter "github.com/json-iterator/go"
)

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Details any    `json:"details,omitempty"`
}

// WriteJSON writes body with status and a JSON content type.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	WriteJSON(w, status, ErrorBody{Error: http.StatusText(status), Message: message})
}
