package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/storage"
)

type minioBucket struct {
	client *minio.Client
	name   string
}

func dialMinio(cfg config.ObjectStoreConfig) (*minioBucket, error) {
	endpoint, secure, err := parseEndpoint(cfg.Endpoint, cfg.UseSSL)
	if err != nil {
		return nil, err
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure: secure,
		Region: strings.TrimSpace(cfg.Region),
	})
	if err != nil {
		return nil, fmt.Errorf("create object store client: %w", err)
	}
	return &minioBucket{client: client, name: strings.TrimSpace(cfg.Bucket)}, nil
}

// parseEndpoint accepts host:port or a URL; an https URL forces TLS.
func parseEndpoint(raw string, useSSL bool) (string, bool, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false, fmt.Errorf("endpoint is required")
	}
	if !strings.Contains(raw, "://") {
		return raw, useSSL, nil
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false, fmt.Errorf("parse endpoint URL: %w", err)
	}
	if parsed.Host == "" {
		return "", false, fmt.Errorf("endpoint host is required")
	}
	return parsed.Host, useSSL || parsed.Scheme == "https", nil
}

func (m *minioBucket) Put(ctx context.Context, name string, body io.Reader, size int64, contentType string) (storage.ObjectInfo, error) {
	info, err := m.client.PutObject(ctx, m.name, name, body, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return storage.ObjectInfo{}, translate(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

// Open stats the object first so a missing file fails here rather than on
// the first Read.
func (m *minioBucket) Open(ctx context.Context, name string) (io.ReadCloser, error) {
	obj, err := m.client.GetObject(ctx, m.name, name, minio.GetObjectOptions{})
	if err != nil {
		return nil, translate(err)
	}
	if _, err := obj.Stat(); err != nil {
		_ = obj.Close()
		return nil, translate(err)
	}
	return obj, nil
}

func (m *minioBucket) Stat(ctx context.Context, name string) (storage.ObjectInfo, error) {
	info, err := m.client.StatObject(ctx, m.name, name, minio.StatObjectOptions{})
	if err != nil {
		return storage.ObjectInfo{}, translate(err)
	}
	return storage.ObjectInfo{Key: info.Key, Size: info.Size, ETag: info.ETag, LastModified: info.LastModified}, nil
}

func (m *minioBucket) Remove(ctx context.Context, name string) error {
	return translate(m.client.RemoveObject(ctx, m.name, name, minio.RemoveObjectOptions{}))
}

func (m *minioBucket) List(ctx context.Context, prefix string) ([]string, error) {
	var names []string
	for obj := range m.client.ListObjects(ctx, m.name, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, translate(obj.Err)
		}
		names = append(names, obj.Key)
	}
	return names, nil
}

func (m *minioBucket) RemoveAll(ctx context.Context, names []string) error {
	queue := make(chan minio.ObjectInfo, len(names))
	for _, name := range names {
		queue <- minio.ObjectInfo{Key: name}
	}
	close(queue)

	var errs []error
	for failed := range m.client.RemoveObjects(ctx, m.name, queue, minio.RemoveObjectsOptions{}) {
		if err := translate(failed.Err); err != nil && !errors.Is(err, storage.ErrObjectNotFound) {
			errs = append(errs, fmt.Errorf("%s: %w", failed.ObjectName, err))
		}
	}
	return errors.Join(errs...)
}

func (m *minioBucket) Exists(ctx context.Context) (bool, error) {
	exists, err := m.client.BucketExists(ctx, m.name)
	if err != nil {
		return false, translate(err)
	}
	return exists, nil
}

func (m *minioBucket) Create(ctx context.Context, region string) error {
	return translate(m.client.MakeBucket(ctx, m.name, minio.MakeBucketOptions{Region: region}))
}

func translate(err error) error {
	if err == nil {
		return nil
	}
	switch minio.ToErrorResponse(err).Code {
	case "NoSuchKey", "NoSuchBucket", "NotFound":
		return storage.ErrObjectNotFound
	}
	return err
}
