package postgres

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/tabletalk/tabletalk/internal/catalog"
)

func TestEnsureSession(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO session (session_id)
VALUES ($1)
ON CONFLICT (session_id)
DO UPDATE SET session_id = session.session_id
RETURNING created_at`)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	session, err := repo.EnsureSession(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("EnsureSession() error = %v", err)
	}
	if session.SessionID != "session-1" {
		t.Fatalf("SessionID = %q", session.SessionID)
	}
	if !session.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", session.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestGetSessionReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT session_id, created_at
FROM session
WHERE session_id = $1`)).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetSession(context.Background(), "missing")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestDeleteSession(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
DELETE FROM session
WHERE session_id = $1`)).
		WithArgs("session-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteSession(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	assertSQLMock(t, mock)
}

const lockSessionQuery = `
SELECT session_id
FROM session
WHERE session_id = $1
FOR UPDATE`

const listPositionsQuery = `
SELECT filename, table_name, position
FROM session_file
WHERE session_id = $1`

const insertFileQuery = `
INSERT INTO session_file (session_id, filename, table_name, object_key, row_count, column_count, column_names, dtypes, sample_json, size_bytes, position)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb, $10, $11)
RETURNING created_at`

func registerInput() catalog.RegisterFileInput {
	return catalog.RegisterFileInput{
		SessionID:   "session-1",
		Filename:    "VS.csv",
		TableName:   "vs",
		ObjectKey:   "sessions/session-1/VS.csv",
		Rows:        12,
		Columns:     2,
		ColumnNames: []string{"USUBJID", "WEIGHT"},
		DTypes:      []string{"VARCHAR", "DOUBLE"},
		SampleJSON:  []byte(`[{"USUBJID":"01","WEIGHT":70.5}]`),
		SizeBytes:   240,
		MaxFiles:    2,
	}
}

func TestRegisterFileAppendsAfterExistingFiles(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionQuery)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("session-1"))
	mock.ExpectQuery(regexp.QuoteMeta(listPositionsQuery)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"filename", "table_name", "position"}).AddRow("DM.csv", "dm", 1))
	mock.ExpectQuery(regexp.QuoteMeta(insertFileQuery)).
		WithArgs("session-1", "VS.csv", "vs", "sessions/session-1/VS.csv", 12, 2,
			`["USUBJID","WEIGHT"]`, `["VARCHAR","DOUBLE"]`, `[{"USUBJID":"01","WEIGHT":70.5}]`, int64(240), 2).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectCommit()

	file, err := repo.RegisterFile(context.Background(), registerInput())
	if err != nil {
		t.Fatalf("RegisterFile() error = %v", err)
	}
	if file.Position != 2 {
		t.Fatalf("Position = %d, want 2", file.Position)
	}
	if !file.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", file.CreatedAt, now)
	}
	assertSQLMock(t, mock)
}

func TestRegisterFileRejectsWhenSessionIsFull(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionQuery)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("session-1"))
	mock.ExpectQuery(regexp.QuoteMeta(listPositionsQuery)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"filename", "table_name", "position"}).
			AddRow("DM.csv", "dm", 1).
			AddRow("AE.csv", "ae", 2))
	mock.ExpectRollback()

	_, err := repo.RegisterFile(context.Background(), registerInput())
	if !errors.Is(err, catalog.ErrLimitExceeded) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrLimitExceeded)
	}
	assertSQLMock(t, mock)
}

func TestRegisterFileRejectsDuplicateTableName(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionQuery)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("session-1"))
	mock.ExpectQuery(regexp.QuoteMeta(listPositionsQuery)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"filename", "table_name", "position"}).AddRow("vs.CSV", "vs", 1))
	mock.ExpectRollback()

	_, err := repo.RegisterFile(context.Background(), registerInput())
	if !errors.Is(err, catalog.ErrAlreadyExists) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrAlreadyExists)
	}
	assertSQLMock(t, mock)
}

func TestRegisterFileMapsUniqueViolation(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionQuery)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"session_id"}).AddRow("session-1"))
	mock.ExpectQuery(regexp.QuoteMeta(listPositionsQuery)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"filename", "table_name", "position"}))
	mock.ExpectQuery(regexp.QuoteMeta(insertFileQuery)).
		WillReturnError(&pgconn.PgError{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.RegisterFile(context.Background(), registerInput())
	if !errors.Is(err, catalog.ErrAlreadyExists) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrAlreadyExists)
	}
	assertSQLMock(t, mock)
}

func TestRegisterFileUnknownSession(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(lockSessionQuery)).
		WithArgs("session-1").
		WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.RegisterFile(context.Background(), registerInput())
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestListFilesDecodesJSONColumns(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(selectFileColumns+`
WHERE session_id = $1
ORDER BY position ASC`)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{
			"session_id", "filename", "table_name", "object_key", "row_count", "column_count",
			"column_names", "dtypes", "sample_json", "size_bytes", "position", "created_at",
		}).AddRow(
			"session-1", "DM.csv", "dm", "sessions/session-1/DM.csv", 42, 2,
			[]byte(`["USUBJID","AGE"]`), []byte(`["VARCHAR","BIGINT"]`), []byte(`[]`), int64(900), 1, now,
		))

	files, err := repo.ListFiles(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("ListFiles() error = %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("len(files) = %d", len(files))
	}
	if files[0].Rows != 42 || files[0].TableName != "dm" {
		t.Fatalf("file = %+v", files[0])
	}
	if len(files[0].ColumnNames) != 2 || files[0].ColumnNames[1] != "AGE" {
		t.Fatalf("ColumnNames = %v", files[0].ColumnNames)
	}
	if files[0].DTypes[1] != "BIGINT" {
		t.Fatalf("DTypes = %v", files[0].DTypes)
	}
	assertSQLMock(t, mock)
}

func TestGetFileReturnsNotFound(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta(selectFileColumns+`
WHERE session_id = $1 AND filename = $2`)).
		WithArgs("session-1", "missing.csv").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetFile(context.Background(), "session-1", "missing.csv")
	if !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("error = %v, want %v", err, catalog.ErrNotFound)
	}
	assertSQLMock(t, mock)
}

func TestDeleteFileReportsMissing(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
DELETE FROM session_file
WHERE session_id = $1 AND filename = $2`)).
		WithArgs("session-1", "DM.csv").
		WillReturnResult(sqlmock.NewResult(0, 0))

	deleted, err := repo.DeleteFile(context.Background(), "session-1", "DM.csv")
	if err != nil {
		t.Fatalf("DeleteFile() error = %v", err)
	}
	if deleted {
		t.Fatal("expected deleted=false")
	}
	assertSQLMock(t, mock)
}

func TestCreateAndListCharts(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)
	now := time.Now()

	mock.ExpectQuery(regexp.QuoteMeta(`
INSERT INTO dashboard_chart (chart_id, session_id, title, chart_json)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING created_at`)).
		WithArgs("chart_1", "session-1", "Ages", `{"type":"histogram"}`).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT chart_id, session_id, title, chart_json, created_at
FROM dashboard_chart
WHERE session_id = $1
ORDER BY created_at ASC, chart_id ASC`)).
		WithArgs("session-1").
		WillReturnRows(sqlmock.NewRows([]string{"chart_id", "session_id", "title", "chart_json", "created_at"}).
			AddRow("chart_1", "session-1", "Ages", []byte(`{"type":"histogram"}`), now))

	created, err := repo.CreateChart(context.Background(), catalog.CreateChartInput{
		ChartID:   "chart_1",
		SessionID: "session-1",
		Title:     "Ages",
		ChartJSON: []byte(`{"type":"histogram"}`),
	})
	if err != nil {
		t.Fatalf("CreateChart() error = %v", err)
	}
	if !created.CreatedAt.Equal(now) {
		t.Fatalf("CreatedAt = %v, want %v", created.CreatedAt, now)
	}

	charts, err := repo.ListCharts(context.Background(), "session-1")
	if err != nil {
		t.Fatalf("ListCharts() error = %v", err)
	}
	if len(charts) != 1 || string(charts[0].ChartJSON) != `{"type":"histogram"}` {
		t.Fatalf("charts = %+v", charts)
	}
	assertSQLMock(t, mock)
}

func TestDeleteChart(t *testing.T) {
	db, mock := newSQLMock(t)
	repo := NewRepository(db)

	mock.ExpectExec(regexp.QuoteMeta(`
DELETE FROM dashboard_chart
WHERE session_id = $1 AND chart_id = $2`)).
		WithArgs("session-1", "chart_1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	deleted, err := repo.DeleteChart(context.Background(), "session-1", "chart_1")
	if err != nil {
		t.Fatalf("DeleteChart() error = %v", err)
	}
	if !deleted {
		t.Fatal("expected deleted=true")
	}
	assertSQLMock(t, mock)
}

func newSQLMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	if err != nil {
		t.Fatalf("sqlmock.New() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

func assertSQLMock(t *testing.T, mock sqlmock.Sqlmock) {
	t.Helper()
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sql expectations: %v", err)
	}
}
