package controllers

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strconv"
)

// Helper functions for common HTTP responses

// writeError writes an error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// writeJSON writes a JSON response with the given data.
func writeJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(data)
}

// parseLimit parses a limit string and returns a valid limit value.
//
// Returns 0 for empty strings or invalid values.
func parseLimit(limitStr string) int {
	if limitStr == "" {
		return 0
	}
	if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
		return limit
	}
	return 0
}

// requireBasicAuth enforces HTTP Basic auth against the configured
// credentials using constant-time comparison. Writes the 401 itself and
// returns false when the request is not authorized. Empty configured
// credentials mean no publisher is configured; the check fails closed
// rather than matching an empty Authorization header.
func requireBasicAuth(w http.ResponseWriter, r *http.Request, username, password string) bool {
	user, pass, ok := r.BasicAuth()
	if ok && username != "" && password != "" {
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if userOK && passOK {
			return true
		}
	}
	w.Header().Set("WWW-Authenticate", `Basic realm="mailroom"`)
	writeError(w, http.StatusUnauthorized, "Unauthorized")
	return false
}
