// Package catalog records sessions, the files uploaded into them and the
// charts pinned to their dashboards.
package catalog

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound      = errors.New("catalog: not found")
	ErrAlreadyExists = errors.New("catalog: already exists")
	ErrLimitExceeded = errors.New("catalog: file limit reached")
)

type Repository interface {
	HealthCheck(ctx context.Context) error
	EnsureSession(ctx context.Context, sessionID string) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	RegisterFile(ctx context.Context, in RegisterFileInput) (SessionFile, error)
	ListFiles(ctx context.Context, sessionID string) ([]SessionFile, error)
	GetFile(ctx context.Context, sessionID, filename string) (SessionFile, error)
	DeleteFile(ctx context.Context, sessionID, filename string) (bool, error)
	CreateChart(ctx context.Context, in CreateChartInput) (DashboardChart, error)
	ListCharts(ctx context.Context, sessionID string) ([]DashboardChart, error)
	DeleteChart(ctx context.Context, sessionID, chartID string) (bool, error)
}

type Session struct {
	SessionID string
	CreatedAt time.Time
}

// SessionFile describes one uploaded table. Files of a session are ordered
// by Position, which follows upload order.
type SessionFile struct {
	SessionID   string
	Filename    string
	TableName   string
	ObjectKey   string
	Rows        int
	Columns     int
	ColumnNames []string
	DTypes      []string
	SampleJSON  []byte
	SizeBytes   int64
	Position    int
	CreatedAt   time.Time
}

type DashboardChart struct {
	ChartID   string
	SessionID string
	Title     string
	ChartJSON []byte
	CreatedAt time.Time
}

// RegisterFileInput adds a file to an existing session. MaxFiles bounds the
// number of files the session may hold; zero means unbounded. Registering a
// filename or table name the session already has fails with
// ErrAlreadyExists.
type RegisterFileInput struct {
	SessionID   string
	Filename    string
	TableName   string
	ObjectKey   string
	Rows        int
	Columns     int
	ColumnNames []string
	DTypes      []string
	SampleJSON  []byte
	SizeBytes   int64
	MaxFiles    int
}

type CreateChartInput struct {
	ChartID   string
	SessionID string
	Title     string
	ChartJSON []byte
}
