package duckdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/tabletalk/tabletalk/internal/query"
)

type Options struct {
	Timeout     time.Duration
	MemoryLimit string
	Threads     int
}

// Engine runs analysis scripts in a private in-memory DuckDB database per
// request. Input tables are loaded first, then file and network access and
// further configuration changes are switched off before any script
// statement runs.
type Engine struct {
	opts Options
}

func NewEngine(opts Options) *Engine {
	return &Engine{opts: opts}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Outcome, error) {
	assignments, err := query.ParseScript(request.Script)
	if err != nil {
		return nil, err
	}
	if e.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.Timeout)
		defer cancel()
	}

	workDir, err := os.MkdirTemp("", "tabletalk-exec-")
	if err != nil {
		return nil, fmt.Errorf("create exec temp dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	defer func() { _ = db.Close() }()

	conn, err := db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("open duckdb connection: %w", err)
	}
	defer func() { _ = conn.Close() }()

	if err := e.applyLimits(ctx, conn); err != nil {
		return nil, err
	}

	inputs := make(map[string]bool, len(request.Tables))
	for index, tbl := range request.Tables {
		if inputs[tbl.Name] {
			return nil, fmt.Errorf("duplicate table name %q", tbl.Name)
		}
		localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(tbl.Name), index))
		if err := loadTable(ctx, conn, localPath, tbl); err != nil {
			return nil, err
		}
		inputs[tbl.Name] = true
	}

	if err := lockDown(ctx, conn); err != nil {
		return nil, err
	}

	var result query.Outcome
	auxiliary := map[string]query.Outcome{}
	for _, assignment := range assignments {
		switch assignment.Kind {
		case query.TargetIntermediate:
			if inputs[assignment.Target] {
				return nil, &query.ScriptError{
					Statement: assignment.Index,
					Message:   fmt.Sprintf("cannot reassign input table %s", assignment.Target),
				}
			}
			stmt := fmt.Sprintf("CREATE OR REPLACE TABLE %s AS %s", quoteIdent(assignment.Target), assignment.Body)
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return nil, statementError(ctx, assignment, err)
			}
		case query.TargetResult:
			outcome, err := capture(ctx, conn, assignment.Body)
			if err != nil {
				return nil, statementError(ctx, assignment, err)
			}
			result = outcome
		case query.TargetAuxiliary:
			outcome, err := capture(ctx, conn, assignment.Body)
			if err != nil {
				return nil, statementError(ctx, assignment, err)
			}
			auxiliary[assignment.Key] = outcome
		}
	}
	if len(auxiliary) == 0 {
		auxiliary = nil
	}
	return withAuxiliary(result, auxiliary), nil
}

func (e *Engine) applyLimits(ctx context.Context, conn *sql.Conn) error {
	settings := []string{}
	if limit := strings.TrimSpace(e.opts.MemoryLimit); limit != "" {
		settings = append(settings, fmt.Sprintf("SET memory_limit = %s", quoteString(limit)))
	}
	if e.opts.Threads > 0 {
		settings = append(settings, fmt.Sprintf("SET threads = %d", e.opts.Threads))
	}
	for _, stmt := range settings {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("configure duckdb (%s): %w", stmt, err)
		}
	}
	return nil
}

func lockDown(ctx context.Context, conn *sql.Conn) error {
	for _, stmt := range []string{
		"SET enable_external_access = false",
		"SET autoinstall_known_extensions = false",
		"SET autoload_known_extensions = false",
		"SET lock_configuration = true",
	} {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("lock down duckdb (%s): %w", stmt, err)
		}
	}
	return nil
}

func capture(ctx context.Context, conn *sql.Conn, body string) (query.Outcome, error) {
	rows, err := conn.QueryContext(ctx, body)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query columns: %w", err)
	}
	columnTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("query column types: %w", err)
	}
	types := make([]string, len(columnTypes))
	for i, columnType := range columnTypes {
		types[i] = columnType.DatabaseTypeName()
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return query.Shape(columns, types, resultRows), nil
}

// statementError names the failing statement and marks deadline overruns so
// callers can tell a timeout from a query error.
func statementError(ctx context.Context, assignment query.Assignment, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
		return fmt.Errorf("statement %d (%s): %w: %w", assignment.Index, assignment.Target, ctxErr, err)
	}
	return fmt.Errorf("statement %d (%s): %w", assignment.Index, assignment.Target, err)
}

func withAuxiliary(outcome query.Outcome, auxiliary map[string]query.Outcome) query.Outcome {
	switch typed := outcome.(type) {
	case query.TableOutcome:
		typed.Auxiliary = auxiliary
		return typed
	case query.SeriesOutcome:
		typed.Auxiliary = auxiliary
		return typed
	case query.ScalarOutcome:
		typed.Auxiliary = auxiliary
		return typed
	case query.MappingOutcome:
		typed.Auxiliary = auxiliary
		return typed
	case query.OpaqueOutcome:
		typed.Auxiliary = auxiliary
		return typed
	default:
		return query.OpaqueOutcome{Auxiliary: auxiliary}
	}
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteString(value string) string {
	return `'` + strings.ReplaceAll(value, `'`, `''`) + `'`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "table"
	}
	return value
}
