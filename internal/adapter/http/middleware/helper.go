package middleware

import (
	"encoding/json"
	"net/http"
)

type envelope map[string]any

// errorResponse sends a JSON error body without going through the
// handler package, so middleware can reject requests on its own.
func errorResponse(w http.ResponseWriter, status int, message any) {
	body, err := json.Marshal(envelope{"error": message})
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(body)
}
