package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	catalogmemory "github.com/tabletalk/tabletalk/internal/catalog/memory"
	"github.com/tabletalk/tabletalk/internal/config"
	storagememory "github.com/tabletalk/tabletalk/internal/storage/memory"
	"github.com/tabletalk/tabletalk/internal/tablestore"
)

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["service"] != "tabletalk-api" {
		t.Fatalf("service = %v", body["service"])
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{
		Readiness: NamedCheck("catalog", func(context.Context) error {
			return errors.New("dependency down")
		}),
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	if body["error_code"] != "NOT_READY" || body["message"] != "catalog: dependency down" {
		t.Fatalf("body = %#v", body)
	}
	if body["retryable"] != true {
		t.Fatalf("retryable = %v", body["retryable"])
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(_ context.Context) error {
			order = append(order, 1)
			return nil
		},
		nil,
		func(_ context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(_ context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	err := combined(context.Background())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCreateSessionIssuesID(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/sessions", nil))

	if rr.Code != http.StatusCreated {
		t.Fatalf("status = %d", rr.Code)
	}
	body := decodeBody(t, rr)
	id, _ := body["session_id"].(string)
	if len(id) != 36 {
		t.Fatalf("session_id = %q", id)
	}
}

func TestSessionRoutesRequireHeader(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{Files: newTestStore(nil)})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/files", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decodeBody(t, rr); body["error_code"] != "SESSION_REQUIRED" {
		t.Fatalf("error_code = %v", body["error_code"])
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/files", nil)
	req.Header.Set(sessionHeader, "../etc")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if body := decodeBody(t, rr); body["error_code"] != "INVALID_SESSION" {
		t.Fatalf("error_code = %v", body["error_code"])
	}
}

func TestUnconfiguredDependenciesReturn501(t *testing.T) {
	h := NewHandler(testConfig(t, nil), Dependencies{})
	for _, route := range []struct{ method, path string }{
		{http.MethodGet, "/v1/files"},
		{http.MethodPost, "/v1/query"},
		{http.MethodPost, "/v1/visualize"},
		{http.MethodGet, "/v1/dashboard"},
	} {
		req := httptest.NewRequest(route.method, route.path, strings.NewReader(`{}`))
		req.Header.Set(sessionHeader, "s1")
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("%s %s status = %d", route.method, route.path, rr.Code)
		}
	}
}

func testConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	cfg, err := config.Load("tabletalk-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func newTestStore(opts *tablestore.Options) *tablestore.Store {
	var o tablestore.Options
	if opts != nil {
		o = *opts
	}
	return tablestore.New(catalogmemory.NewRepository(), storagememory.NewStore(), o, nil)
}

func uploadRequest(t *testing.T, sessionID, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close multipart writer: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v1/files", &buf)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if sessionID != "" {
		req.Header.Set(sessionHeader, sessionID)
	}
	return req
}

func sessionRequest(method, path, sessionID, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(sessionHeader, sessionID)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("json decode failed: %v (body=%s)", err, rr.Body.String())
	}
	return body
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}
