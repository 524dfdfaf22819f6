// Package tablestore keeps the CSV files uploaded into a session: bytes in
// the object store, descriptors in the catalog.
package tablestore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"path/filepath"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/catalog"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/preprocess"
	"github.com/tabletalk/tabletalk/internal/storage"
	"github.com/tabletalk/tabletalk/internal/table"
)

var (
	ErrInvalidSession      = errors.New("invalid session id")
	ErrUnsupportedFileType = errors.New("only CSV files are supported")
	ErrFileTooLarge        = errors.New("file exceeds the upload size limit")
	ErrTooManyFiles        = errors.New("maximum number of files per session reached")
	ErrDuplicateFile       = errors.New("a file with the same name or table name is already uploaded")
	ErrFileNotFound        = errors.New("file not found")
	ErrInvalidCSV          = errors.New("invalid csv file")
)

const (
	sampleRows  = 5
	previewRows = 10
)

type Options struct {
	MaxFiles int
	MaxBytes int64
}

type Store struct {
	repo    catalog.Repository
	objects storage.FileStore
	opts    Options
	logger  *slog.Logger
}

func New(repo catalog.Repository, objects storage.FileStore, opts Options, logger *slog.Logger) *Store {
	if opts.MaxFiles <= 0 {
		opts.MaxFiles = 2
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = 16 << 20
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Store{repo: repo, objects: objects, opts: opts, logger: logger}
}

// FileInfo is the descriptor returned after an upload.
type FileInfo struct {
	Filename    string            `json:"filename"`
	TableName   string            `json:"table_name"`
	Rows        int               `json:"rows"`
	Columns     int               `json:"columns"`
	ColumnNames []string          `json:"column_names"`
	DataTypes   map[string]string `json:"data_types"`
	SampleData  json.RawMessage   `json:"sample_data"`
	SizeBytes   int64             `json:"size_bytes"`
	UploadedAt  time.Time         `json:"uploaded_at"`
}

type FileSummary struct {
	Filename    string   `json:"filename"`
	TableName   string   `json:"table_name"`
	Rows        int      `json:"rows"`
	Columns     int      `json:"columns"`
	ColumnNames []string `json:"column_names"`
}

type Preview struct {
	Columns []string         `json:"columns"`
	Data    []map[string]any `json:"data"`
}

// Upload validates and stores one CSV file. The descriptor keeps the
// column types found by preprocessing and the first rows as a sample.
func (s *Store) Upload(ctx context.Context, sessionID, filename string, body io.Reader) (FileInfo, error) {
	info, err := s.upload(ctx, sessionID, filename, body)
	if err != nil {
		observability.IncrementUpload("rejected")
		s.logger.WarnContext(ctx, "upload rejected", "session_id", sessionID, "filename", filename, "error", err)
		return FileInfo{}, err
	}
	observability.IncrementUpload("accepted")
	s.logger.InfoContext(ctx, "file uploaded", "session_id", sessionID, "filename", filename, "rows", info.Rows, "columns", info.Columns)
	return info, nil
}

func (s *Store) upload(ctx context.Context, sessionID, filename string, body io.Reader) (FileInfo, error) {
	if err := storage.ValidateSessionID(sessionID); err != nil {
		return FileInfo{}, fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if !strings.EqualFold(filepath.Ext(filename), ".csv") {
		return FileInfo{}, ErrUnsupportedFileType
	}
	if _, err := storage.SessionFileKey(sessionID, filename); err != nil {
		return FileInfo{}, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}

	existing, err := s.repo.ListFiles(ctx, sessionID)
	if err != nil {
		return FileInfo{}, err
	}
	if len(existing) >= s.opts.MaxFiles {
		return FileInfo{}, ErrTooManyFiles
	}
	tableName := table.Identifier(filename)
	for _, file := range existing {
		if file.Filename == filename || file.TableName == tableName {
			return FileInfo{}, ErrDuplicateFile
		}
	}

	raw, err := io.ReadAll(io.LimitReader(body, s.opts.MaxBytes+1))
	if err != nil {
		return FileInfo{}, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(raw)) > s.opts.MaxBytes {
		return FileInfo{}, ErrFileTooLarge
	}
	parsed, err := table.ReadCSV(filename, bytes.NewReader(raw))
	if err != nil {
		return FileInfo{}, fmt.Errorf("%w: %v", ErrInvalidCSV, err)
	}
	typed := preprocess.Table(parsed)
	sample, err := json.Marshal(records(typed, sampleRows))
	if err != nil {
		return FileInfo{}, fmt.Errorf("encode sample: %w", err)
	}

	if _, err := s.repo.EnsureSession(ctx, sessionID); err != nil {
		return FileInfo{}, err
	}
	stored, err := s.objects.PutFile(ctx, sessionID, filename, bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return FileInfo{}, err
	}
	file, err := s.repo.RegisterFile(ctx, catalog.RegisterFileInput{
		SessionID:   sessionID,
		Filename:    filename,
		TableName:   tableName,
		ObjectKey:   stored.Key,
		Rows:        typed.RowCount(),
		Columns:     len(typed.Columns),
		ColumnNames: typed.ColumnNames(),
		DTypes:      typed.DTypes(),
		SampleJSON:  sample,
		SizeBytes:   int64(len(raw)),
		MaxFiles:    s.opts.MaxFiles,
	})
	if err != nil {
		s.discardObject(ctx, sessionID, filename, err)
		switch {
		case errors.Is(err, catalog.ErrLimitExceeded):
			return FileInfo{}, ErrTooManyFiles
		case errors.Is(err, catalog.ErrAlreadyExists):
			return FileInfo{}, ErrDuplicateFile
		default:
			return FileInfo{}, err
		}
	}
	return fileInfo(file), nil
}

// discardObject removes the bytes of a rejected registration unless another
// upload of the same filename won the race and now owns the key.
func (s *Store) discardObject(ctx context.Context, sessionID, filename string, cause error) {
	if errors.Is(cause, catalog.ErrAlreadyExists) {
		if _, err := s.repo.GetFile(ctx, sessionID, filename); err == nil {
			return
		}
	}
	if err := s.objects.DeleteFile(ctx, sessionID, filename); err != nil {
		s.logger.WarnContext(ctx, "discard uploaded object", "session_id", sessionID, "filename", filename, "error", err)
	}
}

func (s *Store) ListFiles(ctx context.Context, sessionID string) ([]FileSummary, error) {
	files, err := s.repo.ListFiles(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]FileSummary, 0, len(files))
	for _, file := range files {
		out = append(out, FileSummary{
			Filename:    file.Filename,
			TableName:   file.TableName,
			Rows:        file.Rows,
			Columns:     file.Columns,
			ColumnNames: file.ColumnNames,
		})
	}
	return out, nil
}

// Preview returns the first rows of one file with typed values.
func (s *Store) Preview(ctx context.Context, sessionID, filename string) (Preview, error) {
	file, err := s.repo.GetFile(ctx, sessionID, filename)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return Preview{}, ErrFileNotFound
		}
		return Preview{}, err
	}
	t, err := s.read(ctx, file)
	if err != nil {
		return Preview{}, err
	}
	typed := preprocess.Table(t)
	return Preview{Columns: typed.ColumnNames(), Data: records(typed, previewRows)}, nil
}

// Load reads every file of the session in upload order. Each call parses
// fresh tables, so callers may change them freely.
func (s *Store) Load(ctx context.Context, sessionID string) ([]*table.Table, error) {
	files, err := s.repo.ListFiles(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	out := make([]*table.Table, 0, len(files))
	for _, file := range files {
		t, err := s.read(ctx, file)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) read(ctx context.Context, file catalog.SessionFile) (*table.Table, error) {
	reader, err := s.objects.OpenFile(ctx, file.SessionID, file.Filename)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file.Filename, err)
	}
	defer func() { _ = reader.Close() }()
	t, err := table.ReadCSV(file.Filename, reader)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", file.Filename, err)
	}
	t.Name = file.TableName
	return t, nil
}

func (s *Store) RemoveFile(ctx context.Context, sessionID, filename string) error {
	_, err := s.repo.GetFile(ctx, sessionID, filename)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return ErrFileNotFound
		}
		return err
	}
	deleted, err := s.repo.DeleteFile(ctx, sessionID, filename)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrFileNotFound
	}
	if err := s.objects.DeleteFile(ctx, sessionID, filename); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "file removed", "session_id", sessionID, "filename", filename)
	return nil
}

// ClearSession drops every file, chart and the session itself. Clearing an
// unknown session is not an error.
func (s *Store) ClearSession(ctx context.Context, sessionID string) error {
	if err := storage.ValidateSessionID(sessionID); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSession, err)
	}
	removed, err := s.objects.DeleteSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if _, err := s.repo.DeleteSession(ctx, sessionID); err != nil {
		return err
	}
	s.logger.InfoContext(ctx, "session cleared", "session_id", sessionID, "objects", removed)
	return nil
}

func fileInfo(file catalog.SessionFile) FileInfo {
	types := make(map[string]string, len(file.ColumnNames))
	for i, name := range file.ColumnNames {
		if i < len(file.DTypes) {
			types[name] = file.DTypes[i]
		}
	}
	return FileInfo{
		Filename:    file.Filename,
		TableName:   file.TableName,
		Rows:        file.Rows,
		Columns:     file.Columns,
		ColumnNames: file.ColumnNames,
		DataTypes:   types,
		SampleData:  json.RawMessage(file.SampleJSON),
		SizeBytes:   file.SizeBytes,
		UploadedAt:  file.CreatedAt,
	}
}

// records renders the first n rows with JSON-safe cells.
func records(t *table.Table, n int) []map[string]any {
	rows := t.Records(n)
	for _, row := range rows {
		for name, value := range row {
			switch typed := value.(type) {
			case time.Time:
				row[name] = typed.Format(time.DateOnly)
			case float64:
				if math.IsInf(typed, 0) {
					row[name] = nil
				}
			}
		}
	}
	return rows
}
