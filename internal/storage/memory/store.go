// Package memory keeps session files in process memory.
package memory

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/tabletalk/tabletalk/internal/storage"
)

type object struct {
	body []byte
	info storage.ObjectInfo
}

type Store struct {
	mu      sync.RWMutex
	objects map[string]object
}

var _ storage.FileStore = (*Store)(nil)

func NewStore() *Store {
	return &Store{objects: map[string]object{}}
}

func (s *Store) PutFile(ctx context.Context, sessionID, filename string, body io.Reader, size int64) (storage.ObjectInfo, error) {
	key, err := storage.SessionFileKey(sessionID, filename)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	raw, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, fmt.Errorf("read %s: %w", key, err)
	}
	if size >= 0 && int64(len(raw)) != size {
		return storage.ObjectInfo{}, fmt.Errorf("%s: read %d bytes, want %d", key, len(raw), size)
	}
	if err := ctx.Err(); err != nil {
		return storage.ObjectInfo{}, err
	}
	sum := md5.Sum(raw)
	info := storage.ObjectInfo{
		Key:          key,
		Size:         int64(len(raw)),
		ETag:         hex.EncodeToString(sum[:]),
		LastModified: time.Now().UTC(),
	}
	s.mu.Lock()
	s.objects[key] = object{body: raw, info: info}
	s.mu.Unlock()
	return info, nil
}

func (s *Store) OpenFile(_ context.Context, sessionID, filename string) (io.ReadCloser, error) {
	obj, err := s.lookup(sessionID, filename)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(obj.body)), nil
}

func (s *Store) StatFile(_ context.Context, sessionID, filename string) (storage.ObjectInfo, error) {
	obj, err := s.lookup(sessionID, filename)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	return obj.info, nil
}

func (s *Store) DeleteFile(_ context.Context, sessionID, filename string) error {
	key, err := storage.SessionFileKey(sessionID, filename)
	if err != nil {
		return err
	}
	s.mu.Lock()
	delete(s.objects, key)
	s.mu.Unlock()
	return nil
}

func (s *Store) DeleteSession(_ context.Context, sessionID string) (int, error) {
	prefix, err := storage.SessionPrefix(sessionID)
	if err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for key := range s.objects {
		if strings.HasPrefix(key, prefix) {
			delete(s.objects, key)
			removed++
		}
	}
	return removed, nil
}

func (s *Store) HealthCheck(context.Context) error {
	return nil
}

func (s *Store) lookup(sessionID, filename string) (object, error) {
	key, err := storage.SessionFileKey(sessionID, filename)
	if err != nil {
		return object{}, err
	}
	s.mu.RLock()
	obj, ok := s.objects[key]
	s.mu.RUnlock()
	if !ok {
		return object{}, storage.ErrObjectNotFound
	}
	return obj, nil
}
