//go:build integration

package s3

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/storage"
)

// Runs against a real MinIO when TABLETALK_TEST_S3_ENDPOINT is set.
func TestSessionLifecycleAgainstMinIO(t *testing.T) {
	endpoint := strings.TrimSpace(os.Getenv("TABLETALK_TEST_S3_ENDPOINT"))
	if endpoint == "" {
		t.Skip("TABLETALK_TEST_S3_ENDPOINT is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	store, err := Open(ctx, config.ObjectStoreConfig{
		Endpoint:         endpoint,
		Region:           "us-east-1",
		Bucket:           "tabletalk-it",
		AccessKeyID:      "minio",
		SecretAccessKey:  "miniostorage",
		Prefix:           "integration-tests",
		AutoCreateBucket: true,
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if err := store.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck() error = %v", err)
	}

	session := uuid.NewString()
	files := map[string]string{
		"DM.csv": "USUBJID,AGE\n01,34\n",
		"AE.csv": "USUBJID,AETERM\n01,HEADACHE\n",
	}
	for name, body := range files {
		if _, err := store.PutFile(ctx, session, name, strings.NewReader(body), int64(len(body))); err != nil {
			t.Fatalf("PutFile(%s) error = %v", name, err)
		}
	}

	reader, err := store.OpenFile(ctx, session, "DM.csv")
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	body, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil || string(body) != files["DM.csv"] {
		t.Fatalf("OpenFile() body = %q, err = %v", string(body), err)
	}

	removed, err := store.DeleteSession(ctx, session)
	if err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if removed != len(files) {
		t.Fatalf("DeleteSession() = %d, want %d", removed, len(files))
	}
	if _, err := store.StatFile(ctx, session, "AE.csv"); !errors.Is(err, storage.ErrObjectNotFound) {
		t.Fatalf("StatFile() after clear error = %v, want ErrObjectNotFound", err)
	}
}
