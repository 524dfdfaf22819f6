package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tabletalk/tabletalk/internal/config"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/pipeline"
	"github.com/tabletalk/tabletalk/internal/tablestore"
)

type ReadinessCheck func(ctx context.Context) error

// FileStore is the session file surface of the table store.
type FileStore interface {
	Upload(ctx context.Context, sessionID, filename string, body io.Reader) (tablestore.FileInfo, error)
	ListFiles(ctx context.Context, sessionID string) ([]tablestore.FileSummary, error)
	Preview(ctx context.Context, sessionID, filename string) (tablestore.Preview, error)
	RemoveFile(ctx context.Context, sessionID, filename string) error
	ClearSession(ctx context.Context, sessionID string) error
}

type Dashboard interface {
	PinChart(ctx context.Context, sessionID, title string, chart json.RawMessage) (tablestore.PinnedChart, error)
	ListCharts(ctx context.Context, sessionID string) ([]tablestore.PinnedChart, error)
	RemoveChart(ctx context.Context, sessionID, chartID string) (bool, error)
}

// Analyst answers questions and builds charts. Failures come back inside
// the response envelopes.
type Analyst interface {
	Query(ctx context.Context, sessionID, question string) pipeline.QueryResponse
	Visualize(ctx context.Context, sessionID, question, chartType string) pipeline.VisualizeResponse
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Files             FileStore
	Dashboard         Dashboard
	Analyst           Analyst

	limits config.UploadConfig
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	deps.limits = cfg.Upload
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	mux.HandleFunc("POST /v1/sessions", handleCreateSession)

	mux.HandleFunc("POST /v1/files", func(w http.ResponseWriter, r *http.Request) {
		handleUpload(deps, w, r)
	})
	mux.HandleFunc("GET /v1/files", func(w http.ResponseWriter, r *http.Request) {
		handleListFiles(deps, w, r)
	})
	mux.HandleFunc("GET /v1/files/{filename}/preview", func(w http.ResponseWriter, r *http.Request) {
		handlePreview(deps, w, r)
	})
	mux.HandleFunc("DELETE /v1/files/{filename}", func(w http.ResponseWriter, r *http.Request) {
		handleRemoveFile(deps, w, r)
	})
	mux.HandleFunc("DELETE /v1/session", func(w http.ResponseWriter, r *http.Request) {
		handleClearSession(deps, w, r)
	})

	mux.HandleFunc("POST /v1/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	mux.HandleFunc("POST /v1/visualize", func(w http.ResponseWriter, r *http.Request) {
		handleVisualize(deps, w, r)
	})

	mux.HandleFunc("GET /v1/dashboard", func(w http.ResponseWriter, r *http.Request) {
		handleListCharts(deps, w, r)
	})
	mux.HandleFunc("POST /v1/dashboard/pin", func(w http.ResponseWriter, r *http.Request) {
		handlePinChart(deps, w, r)
	})
	mux.HandleFunc("DELETE /v1/dashboard/{chart_id}", func(w http.ResponseWriter, r *http.Request) {
		handleRemoveChart(deps, w, r)
	})

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

// NamedCheck prefixes failures of check with name.
func NamedCheck(name string, check ReadinessCheck) ReadinessCheck {
	if check == nil {
		return nil
	}
	return func(ctx context.Context) error {
		if err := check(ctx); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
