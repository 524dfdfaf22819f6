package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/tabletalk/tabletalk/internal/catalog"
)

func (r *Repository) CreateChart(ctx context.Context, in catalog.CreateChartInput) (catalog.DashboardChart, error) {
	if in.ChartID == "" || in.SessionID == "" {
		return catalog.DashboardChart{}, fmt.Errorf("chart id and session id are required")
	}
	chartJSON := in.ChartJSON
	if len(chartJSON) == 0 {
		chartJSON = []byte("{}")
	}

	query := `
INSERT INTO dashboard_chart (chart_id, session_id, title, chart_json)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING created_at`
	var createdAt time.Time
	if err := r.db.QueryRowContext(ctx, query, in.ChartID, in.SessionID, in.Title, string(chartJSON)).Scan(&createdAt); err != nil {
		if isUniqueViolation(err) {
			return catalog.DashboardChart{}, catalog.ErrAlreadyExists
		}
		return catalog.DashboardChart{}, fmt.Errorf("create dashboard chart: %w", err)
	}
	return catalog.DashboardChart{
		ChartID:   in.ChartID,
		SessionID: in.SessionID,
		Title:     in.Title,
		ChartJSON: chartJSON,
		CreatedAt: createdAt,
	}, nil
}

func (r *Repository) ListCharts(ctx context.Context, sessionID string) ([]catalog.DashboardChart, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT chart_id, session_id, title, chart_json, created_at
FROM dashboard_chart
WHERE session_id = $1
ORDER BY created_at ASC, chart_id ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list dashboard charts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	charts := make([]catalog.DashboardChart, 0)
	for rows.Next() {
		var chart catalog.DashboardChart
		if err := rows.Scan(&chart.ChartID, &chart.SessionID, &chart.Title, &chart.ChartJSON, &chart.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan dashboard chart row: %w", err)
		}
		charts = append(charts, chart)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dashboard chart rows: %w", err)
	}
	return charts, nil
}

func (r *Repository) DeleteChart(ctx context.Context, sessionID, chartID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM dashboard_chart
WHERE session_id = $1 AND chart_id = $2`, sessionID, chartID)
	if err != nil {
		return false, fmt.Errorf("delete dashboard chart: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete dashboard chart rows affected: %w", err)
	}
	return affected > 0, nil
}
