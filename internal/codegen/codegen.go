// Package codegen turns a question and the session's tables into an analysis
// script by prompting the code generation collaborator.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/tabletalk/tabletalk/internal/llm"
	"github.com/tabletalk/tabletalk/internal/table"
)

var ErrGenerationEmpty = errors.New("model returned no usable code")

type Options struct {
	Model       string
	Temperature float64
	MaxTokens   int
}

type Generator struct {
	client llm.Client
	opts   Options
}

func NewGenerator(client llm.Client, opts Options) *Generator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 1000
	}
	return &Generator{client: client, opts: opts}
}

// Generate returns the sanitized script. It fails with llm.ErrNoCredential
// when no collaborator is configured and ErrGenerationEmpty when the model
// answers with nothing usable.
func (g *Generator) Generate(ctx context.Context, question string, tables []*table.Table) (string, error) {
	if g == nil || g.client == nil {
		return "", llm.ErrNoCredential
	}
	text, err := g.client.Complete(ctx, llm.CompletionRequest{
		Model: g.opts.Model,
		Messages: []llm.Message{
			{Role: llm.RoleSystem, Content: systemPrompt},
			{Role: llm.RoleUser, Content: BuildPrompt(question, tables)},
		},
		MaxTokens:   g.opts.MaxTokens,
		Temperature: g.opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	code := Sanitize(text)
	if code == "" {
		return "", ErrGenerationEmpty
	}
	return code, nil
}

var fencePattern = regexp.MustCompile("```[A-Za-z0-9_+-]*[ \t]*\r?\n?")

// Sanitize removes markdown code fences anywhere in the text.
func Sanitize(text string) string {
	return strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))
}

const systemPrompt = "You are a data analyst expert in DuckDB SQL and clinical trial data analysis. " +
	"You answer questions by writing short analysis scripts. Return ONLY the script, no explanations."

// BuildPrompt renders the instruction template for one question.
func BuildPrompt(question string, tables []*table.Table) string {
	names := make([]string, 0, len(tables))
	for _, t := range tables {
		if t.Source != "" {
			names = append(names, fmt.Sprintf("%s -> %s", t.Source, t.Name))
			continue
		}
		names = append(names, t.Name)
	}
	example := "dm"
	if len(tables) > 0 {
		example = tables[0].Name
	}

	var b strings.Builder
	b.WriteString("Convert the following question into an analysis script.\n\n")
	b.WriteString("Available tables:\n")
	b.WriteString(BuildContext(tables))
	fmt.Fprintf(&b, "\nQuestion: %q\n\n", strings.TrimSpace(question))
	b.WriteString("Script format:\n")
	b.WriteString("- The script is a list of assignments: <name> = <one DuckDB SELECT or WITH query>; one per statement, separated by ';'.\n")
	b.WriteString("- Store the final answer in `result`. Every script must assign `result`.\n")
	b.WriteString("- Optional extra answers go in `results.<key>` (for example `results.by_sex = SELECT ...`).\n")
	b.WriteString("- Any other lowercase name stores an intermediate table that later statements can query by that name.\n")
	b.WriteString("- A single value (one row, one column) is reported as a scalar; one row with several columns as a mapping; exactly two columns whose first column is named `key` or `index` as a series (the second column holds the values); anything else as a table.\n\n")
	b.WriteString("Rules:\n")
	fmt.Fprintf(&b, "- Table names are the file name without extension, lowercased, non-alphanumeric characters replaced by '_' (%s).\n", strings.Join(names, ", "))
	b.WriteString("- Use only the tables listed above. Do not read files, call read_csv, ATTACH, COPY, INSTALL, LOAD or SET.\n")
	b.WriteString("- Column names are case-sensitive: wrap them in double quotes exactly as listed. String literals use single quotes.\n")
	b.WriteString("- Missing values are NULL; filter them with IS NOT NULL when they would distort the answer.\n")
	b.WriteString("- Date columns are DATE values; use date_diff, date_part and CURRENT_DATE for ages and intervals.\n")
	b.WriteString("- Cast text to numbers with TRY_CAST before arithmetic; use || or concat only on VARCHAR values.\n\n")
	b.WriteString("Examples:\n")
	fmt.Fprintf(&b, "Correct:   result = SELECT COUNT(*) FROM %s\n", example)
	fmt.Fprintf(&b, "Correct:   result = SELECT \"SEX\" AS key, COUNT(*) AS value FROM %s GROUP BY \"SEX\" ORDER BY key\n", example)
	fmt.Fprintf(&b, "Correct:   adults = SELECT * FROM %s WHERE \"AGE\" >= 18; result = SELECT \"USUBJID\", \"AGE\" FROM adults\n", example)
	fmt.Fprintf(&b, "Incorrect: result = SELECT ['USUBJID', 'AGE'] FROM %s   (a list literal is not a column selection)\n", example)
	fmt.Fprintf(&b, "Incorrect: result = SELECT 'AGE' FROM %s   (single quotes make a string, not a column)\n", example)
	fmt.Fprintf(&b, "Incorrect: result = %s[%s.AGE > 18]   (only SQL queries are allowed)\n", example, example)
	return b.String()
}
