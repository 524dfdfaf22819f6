package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/tabletalk/tabletalk/internal/storage"
)

const sessionHeader = "X-Session-ID"

var errSessionRequired = errors.New("X-Session-ID header is required")

func handleCreateSession(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusCreated, map[string]any{"session_id": uuid.NewString()})
}

func sessionFromRequest(r *http.Request) (string, error) {
	sessionID := strings.TrimSpace(r.Header.Get(sessionHeader))
	if sessionID == "" {
		return "", errSessionRequired
	}
	if err := storage.ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	return sessionID, nil
}

// requireSession writes the error response and returns false when the
// request carries no usable session id.
func requireSession(w http.ResponseWriter, r *http.Request) (string, bool) {
	sessionID, err := sessionFromRequest(r)
	if err != nil {
		code := "INVALID_SESSION"
		if errors.Is(err, errSessionRequired) {
			code = "SESSION_REQUIRED"
		}
		writeError(r.Context(), w, http.StatusBadRequest, code, err.Error(), false, nil)
		return "", false
	}
	return sessionID, true
}
