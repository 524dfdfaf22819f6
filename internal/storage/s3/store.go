// Package s3 keeps uploaded session files in an S3-compatible bucket.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/storage"
)

// bucket is the slice of the object API the store needs, bound to one
// bucket. Object names are full names including the configured root.
type bucket interface {
	Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error)
	Open(ctx context.Context, name string) (io.ReadCloser, error)
	Stat(ctx context.Context, name string) (storage.ObjectInfo, error)
	Remove(ctx context.Context, name string) error
	List(ctx context.Context, prefix string) ([]string, error)
	RemoveAll(ctx context.Context, names []string) error
	Exists(ctx context.Context) (bool, error)
	Create(ctx context.Context, region string) error
}

type Store struct {
	bucket bucket
	name   string
	root   string
}

var _ storage.FileStore = (*Store)(nil)

// Open connects to the bucket that holds session files, creating it when
// AutoCreateBucket is set.
func Open(ctx context.Context, cfg config.ObjectStoreConfig) (*Store, error) {
	name := strings.TrimSpace(cfg.Bucket)
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("object store endpoint is required")
	}
	if name == "" {
		return nil, fmt.Errorf("object store bucket is required")
	}
	b, err := dialMinio(cfg)
	if err != nil {
		return nil, err
	}
	store := &Store{bucket: b, name: name, root: cleanRoot(cfg.Prefix)}
	if cfg.AutoCreateBucket {
		if err := store.ensureBucket(ctx, strings.TrimSpace(cfg.Region)); err != nil {
			return nil, err
		}
	}
	return store, nil
}

func newStore(name, root string, b bucket) *Store {
	return &Store{bucket: b, name: name, root: cleanRoot(root)}
}

// PutFile stores a CSV upload. The returned key is relative to the root.
func (s *Store) PutFile(ctx context.Context, sessionID, filename string, body io.Reader, size int64) (storage.ObjectInfo, error) {
	key, err := storage.SessionFileKey(sessionID, filename)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.Put(ctx, s.objectName(key), body, size, storage.CSVContentType)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("store %s for session %s: %w", filename, sessionID, err)
	}
	info.Key = key
	return info, nil
}

func (s *Store) OpenFile(ctx context.Context, sessionID, filename string) (io.ReadCloser, error) {
	key, err := storage.SessionFileKey(sessionID, filename)
	if err != nil {
		return nil, err
	}
	reader, err := s.bucket.Open(ctx, s.objectName(key))
	if err != nil {
		return nil, notFoundOr(err, "open %s for session %s", filename, sessionID)
	}
	return reader, nil
}

func (s *Store) StatFile(ctx context.Context, sessionID, filename string) (storage.ObjectInfo, error) {
	key, err := storage.SessionFileKey(sessionID, filename)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	info, err := s.bucket.Stat(ctx, s.objectName(key))
	if err != nil {
		return storage.ObjectInfo{}, notFoundOr(err, "stat %s for session %s", filename, sessionID)
	}
	info.Key = key
	return info, nil
}

func (s *Store) DeleteFile(ctx context.Context, sessionID, filename string) error {
	key, err := storage.SessionFileKey(sessionID, filename)
	if err != nil {
		return err
	}
	if err := s.bucket.Remove(ctx, s.objectName(key)); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
		return fmt.Errorf("delete %s for session %s: %w", filename, sessionID, err)
	}
	return nil
}

// DeleteSession lists the session prefix and removes the objects in one
// batch request.
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (int, error) {
	prefix, err := storage.SessionPrefix(sessionID)
	if err != nil {
		return 0, err
	}
	names, err := s.bucket.List(ctx, s.objectName(prefix)+"/")
	if err != nil {
		return 0, fmt.Errorf("list session %s: %w", sessionID, err)
	}
	if len(names) == 0 {
		return 0, nil
	}
	if err := s.bucket.RemoveAll(ctx, names); err != nil {
		return 0, fmt.Errorf("delete session %s: %w", sessionID, err)
	}
	return len(names), nil
}

// HealthCheck reports whether the bucket is reachable and exists.
func (s *Store) HealthCheck(ctx context.Context) error {
	exists, err := s.bucket.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.name, err)
	}
	if !exists {
		return fmt.Errorf("bucket %q does not exist", s.name)
	}
	return nil
}

func (s *Store) ensureBucket(ctx context.Context, region string) error {
	exists, err := s.bucket.Exists(ctx)
	if err != nil {
		return fmt.Errorf("check bucket %q: %w", s.name, err)
	}
	if exists {
		return nil
	}
	if err := s.bucket.Create(ctx, region); err != nil {
		return fmt.Errorf("create bucket %q: %w", s.name, err)
	}
	return nil
}

// objectName places a session key under the configured root. Keys come
// from storage.SessionFileKey/SessionPrefix and are already validated.
func (s *Store) objectName(key string) string {
	if s.root == "" {
		return path.Clean(key)
	}
	return path.Join(s.root, key)
}

func notFoundOr(err error, format string, args ...any) error {
	if errors.Is(err, storage.ErrObjectNotFound) {
		return storage.ErrObjectNotFound
	}
	return fmt.Errorf(format+": %w", append(args, err)...)
}

func cleanRoot(root string) string {
	root = strings.Trim(strings.TrimSpace(root), "/")
	if root == "" {
		return ""
	}
	root = path.Clean(root)
	if root == "." || root == ".." || strings.HasPrefix(root, "../") {
		return ""
	}
	return root
}
