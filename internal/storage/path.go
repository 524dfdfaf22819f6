package storage

import (
	"fmt"
	"path"
	"regexp"
)

var (
	sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)
	filenamePattern  = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._ ()-]{0,127}$`)
)

// SessionFileKey returns the object key of an uploaded file:
// sessions/<session>/<filename>.
func SessionFileKey(sessionID, filename string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	if !filenamePattern.MatchString(filename) || filename == "." || filename == ".." {
		return "", fmt.Errorf("invalid filename: %q", filename)
	}
	return path.Join("sessions", sessionID, filename), nil
}

// SessionPrefix returns the key prefix shared by every file of a session,
// with a trailing slash.
func SessionPrefix(sessionID string) (string, error) {
	if err := ValidateSessionID(sessionID); err != nil {
		return "", err
	}
	return path.Join("sessions", sessionID) + "/", nil
}

func ValidateSessionID(sessionID string) error {
	if !sessionIDPattern.MatchString(sessionID) {
		return fmt.Errorf("invalid session id: %q", sessionID)
	}
	return nil
}
