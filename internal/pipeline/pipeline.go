// Package pipeline runs the question-to-answer and question-to-chart paths
// over a session's tables. Every failure comes back as an envelope with
// success=false; nothing panics past Query or Visualize.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/tabletalk/tabletalk/internal/chart"
	"github.com/tabletalk/tabletalk/internal/classify"
	"github.com/tabletalk/tabletalk/internal/codegen"
	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/preprocess"
	"github.com/tabletalk/tabletalk/internal/query"
	"github.com/tabletalk/tabletalk/internal/report"
	"github.com/tabletalk/tabletalk/internal/result"
	"github.com/tabletalk/tabletalk/internal/table"
)

type TableLoader interface {
	Load(ctx context.Context, sessionID string) ([]*table.Table, error)
}

type CodeGenerator interface {
	Generate(ctx context.Context, question string, tables []*table.Table) (string, error)
}

type Reporter interface {
	Generate(ctx context.Context, question string, env result.Envelope) string
}

type Code string

const (
	CodeGenerationUnavailable Code = "GENERATION_UNAVAILABLE"
	CodeGenerationEmpty       Code = "GENERATION_EMPTY"
	CodeExecutionFailure      Code = "EXECUTION_FAILURE"
	CodeChartResolution       Code = "CHART_RESOLUTION_FAILURE"
	CodeNoData                Code = "NO_DATA"
	CodeInvalidRequest        Code = "INVALID_REQUEST"
	CodeInternal              Code = "INTERNAL"
)

const (
	msgEmptyQuestion = "Query cannot be empty"
	msgNoData        = "No data uploaded. Please upload CSV files first."
	msgUnavailable   = "Language model API key not configured. Set TABLETALK_AI_API_KEY to enable questions."
	msgEmpty         = "Could not interpret query. Please try rephrasing."
	msgNoChartData   = "Could not extract data for visualization from the query."
)

// Failure is a pipeline stage failure as shown to the caller.
type Failure struct {
	Code    Code
	Message string
	Err     error
}

func (f *Failure) Error() string {
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

type QueryResponse struct {
	Success   bool             `json:"success"`
	Result    *result.Envelope `json:"result"`
	Report    *string          `json:"report"`
	Code      *string          `json:"pandas_code"`
	Error     *string          `json:"error"`
	ErrorCode Code             `json:"error_code,omitempty"`
}

type VisualizeResponse struct {
	Success     bool           `json:"success"`
	Chart       *chart.Spec    `json:"chart"`
	ChartType   chart.Type     `json:"chart_type"`
	DataSummary *chart.Summary `json:"data_summary"`
	Error       *string        `json:"error"`
	ErrorCode   Code           `json:"error_code,omitempty"`
}

type Options struct {
	RowCap int
}

type Service struct {
	tables    TableLoader
	generator CodeGenerator
	engine    query.Engine
	reporter  Reporter
	opts      Options
	logger    *slog.Logger
}

func NewService(tables TableLoader, generator CodeGenerator, engine query.Engine, reporter Reporter, opts Options, logger *slog.Logger) *Service {
	if opts.RowCap <= 0 {
		opts.RowCap = result.DefaultRowCap
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		tables:    tables,
		generator: generator,
		engine:    engine,
		reporter:  reporter,
		opts:      opts,
		logger:    logger,
	}
}

// Query answers question against the session's tables: generate a script,
// run it, normalize the result and write a short report.
func (s *Service) Query(ctx context.Context, sessionID, question string) (resp QueryResponse) {
	ctx, span := observability.StartSpan(ctx, "pipeline.query", attribute.String("session.id", sessionID))
	defer span.End()
	logger := s.requestLogger(ctx, sessionID)

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(ctx, "query panicked", "panic", recovered)
			span.SetStatus(codes.Error, "panic")
			resp = failedQuery(&Failure{Code: CodeInternal, Message: fmt.Sprintf("Error processing query: %v", recovered)}, nil)
		}
		outcome := "success"
		if !resp.Success {
			outcome = strings.ToLower(string(resp.ErrorCode))
		}
		observability.IncrementQuery(outcome)
	}()

	question = strings.TrimSpace(question)
	if question == "" {
		return failedQuery(&Failure{Code: CodeInvalidRequest, Message: msgEmptyQuestion}, nil)
	}

	tables, failure := s.loadTables(ctx, sessionID)
	if failure != nil {
		logger.WarnContext(ctx, "query tables unavailable", "error", failure.Err, "code", failure.Code)
		return failedQuery(failure, nil)
	}

	code, failure := s.generate(ctx, question, tables)
	if failure != nil {
		logger.WarnContext(ctx, "code generation failed", "error", failure.Err, "code", failure.Code)
		span.SetStatus(codes.Error, string(failure.Code))
		return failedQuery(failure, nil)
	}
	logger.DebugContext(ctx, "code generated", "script", code)

	outcome, execFailure := s.execute(ctx, code, tables)
	if execFailure != nil {
		observability.IncrementExecutionFailure(string(execFailure.Category))
		logger.WarnContext(ctx, "execution failed", "category", execFailure.Category, "error", execFailure.Raw)
		span.SetStatus(codes.Error, string(execFailure.Category))
		return failedQuery(&Failure{Code: CodeExecutionFailure, Message: execFailure.Message, Err: execFailure}, &code)
	}

	env := result.NormalizeWithCap(outcome, s.opts.RowCap)
	text := s.writeReport(ctx, question, env)
	logger.DebugContext(ctx, "query answered", "kind", env.Kind)
	return QueryResponse{Success: true, Result: &env, Report: &text, Code: &code}
}

// Visualize renders a chart for question from the session's first table.
// chartType overrides detection when it is not empty.
func (s *Service) Visualize(ctx context.Context, sessionID, question, chartType string) (resp VisualizeResponse) {
	ctx, span := observability.StartSpan(ctx, "pipeline.visualize", attribute.String("session.id", sessionID))
	defer span.End()
	logger := s.requestLogger(ctx, sessionID)

	defer func() {
		if recovered := recover(); recovered != nil {
			logger.ErrorContext(ctx, "visualize panicked", "panic", recovered)
			span.SetStatus(codes.Error, "panic")
			resp = failedChart(resp.ChartType, &Failure{Code: CodeInternal, Message: fmt.Sprintf("Error generating chart: %v", recovered)})
		}
	}()

	question = strings.TrimSpace(question)
	kind := chart.DetectType(question)
	if strings.TrimSpace(chartType) != "" {
		kind = chart.ParseType(chartType)
	}
	span.SetAttributes(attribute.String("chart.type", string(kind)))
	if question == "" {
		return failedChart(kind, &Failure{Code: CodeInvalidRequest, Message: msgEmptyQuestion})
	}

	tables, failure := s.loadTables(ctx, sessionID)
	if failure != nil {
		logger.WarnContext(ctx, "chart tables unavailable", "error", failure.Err, "code", failure.Code)
		return failedChart(kind, failure)
	}
	tbl := tables[0]

	x, y, err := chart.ResolveColumns(tbl, question)
	if err != nil {
		logger.WarnContext(ctx, "chart columns unresolved", "table", tbl.Name, "error", err)
		return failedChart(kind, &Failure{Code: CodeChartResolution, Message: msgNoChartData, Err: err})
	}
	spec, err := chart.Render(kind, tbl, x, y)
	if err != nil {
		logger.WarnContext(ctx, "chart render failed", "type", kind, "x", x, "y", y, "error", err)
		code := CodeInternal
		if errors.Is(err, chart.ErrInsufficientNumericColumns) || errors.Is(err, chart.ErrUnresolvedColumns) {
			code = CodeChartResolution
		}
		return failedChart(kind, &Failure{Code: code, Message: "Error generating chart: " + err.Error(), Err: err})
	}
	summary := chart.Summarize(tbl, x, y)
	observability.IncrementChart(string(kind))
	logger.DebugContext(ctx, "chart rendered", "type", kind, "x", x, "y", y)
	return VisualizeResponse{Success: true, Chart: &spec, ChartType: kind, DataSummary: &summary}
}

func (s *Service) requestLogger(ctx context.Context, sessionID string) *slog.Logger {
	return observability.SessionLogger(ctx, s.logger, sessionID)
}

// loadTables reads the session's tables fresh and applies type coercion.
func (s *Service) loadTables(ctx context.Context, sessionID string) ([]*table.Table, *Failure) {
	ctx, span := observability.StartSpan(ctx, "pipeline.load_tables")
	defer span.End()

	raw, err := s.tables.Load(ctx, sessionID)
	if err != nil {
		span.RecordError(err)
		return nil, &Failure{Code: CodeInternal, Message: "Error processing query: " + err.Error(), Err: err}
	}
	if len(raw) == 0 {
		return nil, &Failure{Code: CodeNoData, Message: msgNoData}
	}
	span.SetAttributes(attribute.Int("tables", len(raw)))
	return preprocess.Tables(raw), nil
}

func (s *Service) generate(ctx context.Context, question string, tables []*table.Table) (string, *Failure) {
	ctx, span := observability.StartSpan(ctx, "pipeline.generate")
	defer span.End()

	start := time.Now()
	code, err := s.generator.Generate(ctx, question, tables)
	observability.ObserveGeneration(time.Since(start))
	switch {
	case err == nil:
		return code, nil
	case errors.Is(err, llm.ErrNoCredential):
		return "", &Failure{Code: CodeGenerationUnavailable, Message: msgUnavailable, Err: err}
	case errors.Is(err, codegen.ErrGenerationEmpty):
		return "", &Failure{Code: CodeGenerationEmpty, Message: msgEmpty, Err: err}
	default:
		span.RecordError(err)
		return "", &Failure{Code: CodeGenerationUnavailable, Message: "Error processing query: " + err.Error(), Err: err}
	}
}

func (s *Service) execute(ctx context.Context, code string, tables []*table.Table) (query.Outcome, *classify.ExecutionFailure) {
	ctx, span := observability.StartSpan(ctx, "pipeline.execute")
	defer span.End()

	start := time.Now()
	outcome, err := s.engine.Execute(ctx, query.Request{Script: code, Tables: tables})
	observability.ObserveExecution(time.Since(start))
	if err != nil {
		span.RecordError(err)
		return nil, classify.Classify(err, code)
	}
	return outcome, nil
}

func (s *Service) writeReport(ctx context.Context, question string, env result.Envelope) string {
	ctx, span := observability.StartSpan(ctx, "pipeline.report")
	defer span.End()
	if s.reporter == nil {
		observability.IncrementReportFallback()
		return report.Fallback(env)
	}
	return s.reporter.Generate(ctx, question, env)
}

func failedQuery(failure *Failure, code *string) QueryResponse {
	message := failure.Message
	return QueryResponse{Success: false, Code: code, Error: &message, ErrorCode: failure.Code}
}

func failedChart(kind chart.Type, failure *Failure) VisualizeResponse {
	message := failure.Message
	return VisualizeResponse{Success: false, ChartType: kind, Error: &message, ErrorCode: failure.Code}
}
