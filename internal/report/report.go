// Package report writes a short prose summary of a query result.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/observability"
	"github.com/tabletalk/tabletalk/internal/result"
)

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Generator struct {
	client llm.Client
	opts   Options
	logger *slog.Logger
}

// NewGenerator accepts a nil client; every report then uses the fallback
// sentence.
func NewGenerator(client llm.Client, opts Options, logger *slog.Logger) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 300
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Generator{client: client, opts: opts, logger: logger}
}

const systemPrompt = "You are a medical data analyst writing clear reports for clinical trial data."

// Generate never fails: collaborator errors and empty answers fall back to
// a deterministic sentence.
func (g *Generator) Generate(ctx context.Context, question string, env result.Envelope) string {
	if g.client == nil {
		observability.IncrementReportFallback()
		return Fallback(env)
	}
	payload, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		observability.IncrementReportFallback()
		return Fallback(env)
	}
	text, err := g.client.Complete(ctx, llm.CompletionRequest{
		Model: g.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: buildPrompt(question, string(payload))},
		},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	text = strings.TrimSpace(text)
	if err != nil || text == "" {
		if err != nil {
			g.logger.WarnContext(ctx, "report_generation_failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("error", err.Error()),
			)
		}
		observability.IncrementReportFallback()
		return Fallback(env)
	}
	return text
}

func buildPrompt(question, payload string) string {
	return fmt.Sprintf(`Generate a clear, concise report based on the following:

Query: %q
Results: %s

Write a natural language report that:
1. Summarizes the findings in plain English
2. Includes relevant statistics and numbers
3. Is easy to understand for non-technical users
4. Highlights key insights
5. Uses appropriate medical/clinical terminology if relevant

Keep the report under 200 words and focus on actionable insights.`, strings.TrimSpace(question), payload)
}

// Fallback is the templated sentence used when no report can be generated.
func Fallback(env result.Envelope) string {
	switch env.Kind {
	case result.KindTable:
		if env.TotalRows != nil {
			return fmt.Sprintf("Analysis completed. Found %d results.", *env.TotalRows)
		}
		return "Analysis completed. Found unknown number of results."
	case "":
		return "Analysis completed. Found unknown number of results."
	default:
		return fmt.Sprintf("Analysis completed. Result type: %s.", env.Kind)
	}
}
