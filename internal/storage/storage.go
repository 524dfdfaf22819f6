// Package storage holds the raw bytes of uploaded session files. Each file
// lives at sessions/<session>/<filename>; callers address files by session
// and filename and never build keys themselves.
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var ErrObjectNotFound = errors.New("session file object not found")

const CSVContentType = "text/csv"

type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	LastModified time.Time
}

type FileStore interface {
	PutFile(ctx context.Context, sessionID, filename string, body io.Reader, size int64) (ObjectInfo, error)
	OpenFile(ctx context.Context, sessionID, filename string) (io.ReadCloser, error)
	StatFile(ctx context.Context, sessionID, filename string) (ObjectInfo, error)
	// DeleteFile is idempotent.
	DeleteFile(ctx context.Context, sessionID, filename string) error
	// DeleteSession removes every object under the session prefix and
	// returns how many were removed.
	DeleteSession(ctx context.Context, sessionID string) (int, error)
	HealthCheck(ctx context.Context) error
}
