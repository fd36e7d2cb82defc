// Package httpapi holds the small pieces of HTTP plumbing shared by the
// handler and dispatcher REST surfaces: Api-Key auth, JSON helpers, and
// the error-to-status-code mapping from spec.md §6 (401/400/503).
package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
)

// RequireAPIKey wraps a httprouter.Handle, rejecting requests whose
// Api-Key header does not match expected with 401. Uses a constant-time
// comparison since this is a bearer-style credential.
func RequireAPIKey(expected string, next httprouter.Handle) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		got := r.Header.Get("Api-Key")
		if subtle.ConstantTimeCompare([]byte(got), []byte(expected)) != 1 {
			WriteError(w, http.StatusUnauthorized, "invalid api key")
			return
		}
		next(w, r, ps)
	}
}

func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func WriteError(w http.ResponseWriter, status int, msg string) {
	WriteJSON(w, status, map[string]string{"error": msg})
}

// BadRequest and Internal are convenience wrappers for the two remaining
// status codes spec.md §6 names (400 on malformed input, 503 on internal
// failure).
func BadRequest(w http.ResponseWriter, msg string) { WriteError(w, http.StatusBadRequest, msg) }
func Internal(w http.ResponseWriter, msg string)   { WriteError(w, http.StatusServiceUnavailable, msg) }
