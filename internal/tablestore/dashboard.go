package tablestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/storage"
)

var ErrNoChart = errors.New("no chart data provided")

type PinnedChart struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Chart     json.RawMessage `json:"chart"`
	Timestamp time.Time       `json:"timestamp"`
}

// PinChart stores a chart document on the session dashboard under a new
// chart_<uuid> id.
func (s *Store) PinChart(ctx context.Context, sessionID, title string, chart json.RawMessage) (PinnedChart, error) {
	if err := storage.ValidateSessionID(sessionID); err != nil {
		return PinnedChart{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	trimmed := strings.TrimSpace(string(chart))
	if trimmed == "" || trimmed == "null" {
		return PinnedChart{}, ErrNoChart
	}
	if !json.Valid(chart) {
		return PinnedChart{}, fmt.Errorf("%w: chart is not valid JSON", ErrNoChart)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = "Chart"
	}
	if _, err := s.repo.EnsureSession(ctx, sessionID); err != nil {
		return PinnedChart{}, err
	}
	created, err := s.repo.CreateChart(ctx, catalog.CreateChartInput{
		ChartID:   "chart_" + uuid.NewString(),
		SessionID: sessionID,
		Title:     title,
		ChartJSON: chart,
	})
	if err != nil {
		return PinnedChart{}, err
	}
	s.logger.InfoContext(ctx, "chart pinned", "session_id", sessionID, "chart_id", created.ChartID)
	return pinned(created), nil
}

func (s *Store) ListCharts(ctx context.Context, sessionID string) ([]PinnedChart, error) {
	charts, err := s.repo.ListCharts(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]PinnedChart, 0, len(charts))
	for _, chart := range charts {
		out = append(out, pinned(chart))
	}
	return out, nil
}

// RemoveChart reports whether a chart was removed.
func (s *Store) RemoveChart(ctx context.Context, sessionID, chartID string) (bool, error) {
	return s.repo.DeleteChart(ctx, sessionID, chartID)
}

func pinned(chart catalog.DashboardChart) PinnedChart {
	return PinnedChart{
		ID:        chart.ChartID,
		Title:     chart.Title,
		Chart:     json.RawMessage(chart.ChartJSON),
		Timestamp: chart.CreatedAt,
	}
}
