package observability

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/tabletalk/tabletalk/internal/config"
)

func TestNewLoggerCarriesServiceAttributes(t *testing.T) {
	var buf bytes.Buffer
	cfg := config.Config{Profile: config.ProfileDev}
	cfg.Service.Name = "tabletalk-api"
	cfg.Store.Backend = config.StoreBackendMemory
	cfg.AI.Provider = "gemini"
	cfg.Observability.LogJSON = true
	cfg.Observability.LogLevel = slog.LevelInfo

	logger := NewLogger(cfg, &buf)
	ctx := ContextWithTraceID(context.Background(), "trace-9")
	SessionLogger(ctx, logger, "s-1").Info("query answered")

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("unmarshal log record: %v (%q)", err, buf.String())
	}
	want := map[string]string{
		"service":       "tabletalk-api",
		"store_backend": "memory",
		"ai_provider":   "none",
		"session_id":    "s-1",
		"trace_id":      "trace-9",
	}
	for key, value := range want {
		if record[key] != value {
			t.Fatalf("record[%q] = %v, want %q", key, record[key], value)
		}
	}
}
