package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/tabletalk/tabletalk/internal/catalog"
)

// RegisterFile locks the session row so that concurrent uploads into one
// session see each other's files before the limit and name checks run.
func (r *Repository) RegisterFile(ctx context.Context, in catalog.RegisterFileInput) (catalog.SessionFile, error) {
	if in.SessionID == "" || in.Filename == "" || in.TableName == "" {
		return catalog.SessionFile{}, fmt.Errorf("session id, filename and table name are required")
	}
	columnNames, err := marshalStrings(in.ColumnNames)
	if err != nil {
		return catalog.SessionFile{}, fmt.Errorf("encode column names: %w", err)
	}
	dtypes, err := marshalStrings(in.DTypes)
	if err != nil {
		return catalog.SessionFile{}, fmt.Errorf("encode dtypes: %w", err)
	}
	sample := in.SampleJSON
	if len(sample) == 0 {
		sample = []byte("[]")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.SessionFile{}, fmt.Errorf("begin register file tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var locked string
	if err := tx.QueryRowContext(ctx, `
SELECT session_id
FROM session
WHERE session_id = $1
FOR UPDATE`, in.SessionID).Scan(&locked); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.SessionFile{}, catalog.ErrNotFound
		}
		return catalog.SessionFile{}, fmt.Errorf("lock session: %w", err)
	}

	rows, err := tx.QueryContext(ctx, `
SELECT filename, table_name, position
FROM session_file
WHERE session_id = $1`, in.SessionID)
	if err != nil {
		return catalog.SessionFile{}, fmt.Errorf("list session files: %w", err)
	}
	count, position := 0, 0
	for rows.Next() {
		var filename, tableName string
		var pos int
		if err := rows.Scan(&filename, &tableName, &pos); err != nil {
			_ = rows.Close()
			return catalog.SessionFile{}, fmt.Errorf("scan session file row: %w", err)
		}
		if filename == in.Filename || tableName == in.TableName {
			_ = rows.Close()
			return catalog.SessionFile{}, catalog.ErrAlreadyExists
		}
		count++
		if pos > position {
			position = pos
		}
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return catalog.SessionFile{}, fmt.Errorf("iterate session file rows: %w", err)
	}
	_ = rows.Close()
	if in.MaxFiles > 0 && count >= in.MaxFiles {
		return catalog.SessionFile{}, catalog.ErrLimitExceeded
	}
	position++

	var createdAt time.Time
	if err := tx.QueryRowContext(ctx, `
INSERT INTO session_file (session_id, filename, table_name, object_key, row_count, column_count, column_names, dtypes, sample_json, size_bytes, position)
VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8::jsonb, $9::jsonb, $10, $11)
RETURNING created_at`,
		in.SessionID, in.Filename, in.TableName, in.ObjectKey, in.Rows, in.Columns,
		columnNames, dtypes, string(sample), in.SizeBytes, position,
	).Scan(&createdAt); err != nil {
		if isUniqueViolation(err) {
			return catalog.SessionFile{}, catalog.ErrAlreadyExists
		}
		return catalog.SessionFile{}, fmt.Errorf("insert session file: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return catalog.SessionFile{}, fmt.Errorf("commit register file tx: %w", err)
	}

	return catalog.SessionFile{
		SessionID:   in.SessionID,
		Filename:    in.Filename,
		TableName:   in.TableName,
		ObjectKey:   in.ObjectKey,
		Rows:        in.Rows,
		Columns:     in.Columns,
		ColumnNames: append([]string(nil), in.ColumnNames...),
		DTypes:      append([]string(nil), in.DTypes...),
		SampleJSON:  sample,
		SizeBytes:   in.SizeBytes,
		Position:    position,
		CreatedAt:   createdAt,
	}, nil
}

const selectFileColumns = `
SELECT session_id, filename, table_name, object_key, row_count, column_count, column_names, dtypes, sample_json, size_bytes, position, created_at
FROM session_file`

func (r *Repository) ListFiles(ctx context.Context, sessionID string) ([]catalog.SessionFile, error) {
	rows, err := r.db.QueryContext(ctx, selectFileColumns+`
WHERE session_id = $1
ORDER BY position ASC`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list session files: %w", err)
	}
	defer func() { _ = rows.Close() }()

	files := make([]catalog.SessionFile, 0)
	for rows.Next() {
		file, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		files = append(files, file)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session file rows: %w", err)
	}
	return files, nil
}

func (r *Repository) GetFile(ctx context.Context, sessionID, filename string) (catalog.SessionFile, error) {
	row := r.db.QueryRowContext(ctx, selectFileColumns+`
WHERE session_id = $1 AND filename = $2`, sessionID, filename)
	file, err := scanFile(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.SessionFile{}, catalog.ErrNotFound
		}
		return catalog.SessionFile{}, err
	}
	return file, nil
}

func (r *Repository) DeleteFile(ctx context.Context, sessionID, filename string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM session_file
WHERE session_id = $1 AND filename = $2`, sessionID, filename)
	if err != nil {
		return false, fmt.Errorf("delete session file: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session file rows affected: %w", err)
	}
	return affected > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanFile(row rowScanner) (catalog.SessionFile, error) {
	var (
		file        catalog.SessionFile
		columnNames []byte
		dtypes      []byte
		sample      []byte
	)
	if err := row.Scan(
		&file.SessionID,
		&file.Filename,
		&file.TableName,
		&file.ObjectKey,
		&file.Rows,
		&file.Columns,
		&columnNames,
		&dtypes,
		&sample,
		&file.SizeBytes,
		&file.Position,
		&file.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.SessionFile{}, err
		}
		return catalog.SessionFile{}, fmt.Errorf("scan session file: %w", err)
	}
	var err error
	if file.ColumnNames, err = unmarshalStrings(columnNames); err != nil {
		return catalog.SessionFile{}, fmt.Errorf("decode column names: %w", err)
	}
	if file.DTypes, err = unmarshalStrings(dtypes); err != nil {
		return catalog.SessionFile{}, fmt.Errorf("decode dtypes: %w", err)
	}
	file.SampleJSON = sample
	return file, nil
}
