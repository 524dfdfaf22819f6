// Package classify rewrites execution failures into guidance a user can act
// on, keeping the generated code for diagnosis.
package classify

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/tabletalk/tabletalk/internal/query"
)

type Category string

const (
	CategoryMixedTypes    Category = "mixed_type_concatenation"
	CategoryMissingKey    Category = "missing_key"
	CategoryUndefinedName Category = "undefined_name"
	CategoryListSelection Category = "list_column_selection"
	CategoryTextAccessor  Category = "text_accessor"
	CategoryScript        Category = "invalid_script"
	CategoryTimeout       Category = "timeout"
	CategoryUnclassified  Category = "unclassified"
)

type ExecutionFailure struct {
	Category Category
	Message  string
	Raw      string
	Code     string
}

func (f *ExecutionFailure) Error() string {
	return f.Message
}

type rule struct {
	category Category
	patterns []*regexp.Regexp
	guidance func(raw string, match []string) string
}

var (
	quotedName = regexp.MustCompile(`["'` + "`" + `]([^"'` + "`" + `]+)["'` + "`" + `]`)

	rules = []rule{
		{
			category: CategoryTextAccessor,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)no function matches the given name and argument types '(lower|upper|lcase|ucase|trim|ltrim|rtrim|strip_accents|contains|starts_with|ends_with|prefix|suffix|regexp_matches|regexp_replace|replace|substring|substr|left|right|length|strlen|split_part|string_split|like_escape|ilike_escape)\(([^)]*(DOUBLE|INTEGER|BIGINT|FLOAT|DECIMAL|DATE|TIMESTAMP|BOOLEAN)[^)]*)\)'`),
				regexp.MustCompile(`(?i)can only use \.str accessor with string values`),
			},
			guidance: func(string, []string) string {
				return "A text function was applied to a column that is not text. " +
					"Convert the column first, for example CAST(\"COL\" AS VARCHAR), or use a numeric or date function instead."
			},
		},
		{
			category: CategoryMixedTypes,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)cannot concatenate|can only concatenate str`),
				regexp.MustCompile(`(?i)cannot mix types`),
				regexp.MustCompile(`(?i)no function matches the given name and argument types '(\|\||concat|\+|-)\([^)]*VARCHAR[^)]*\)'`),
				regexp.MustCompile(`(?i)could not convert string '[^']*' to (INT|DOUBLE|FLOAT|DECIMAL|BIGINT|HUGEINT)`),
				regexp.MustCompile(`(?i)unsupported operand type\(s\) for \+: '(int|float)' and 'str'`),
			},
			guidance: func(string, []string) string {
				return "The query combined text and numeric values. " +
					"Convert explicitly before combining them: CAST(\"COL\" AS VARCHAR) for text concatenation, or TRY_CAST(\"COL\" AS DOUBLE) for arithmetic."
			},
		},
		{
			category: CategoryListSelection,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)subquery returns (more than 1 column|\d+ columns - expected 1)`),
				regexp.MustCompile(`(?i)cannot be used with a list`),
				regexp.MustCompile(`(?i)unhashable type: 'list'`),
				regexp.MustCompile(`(?i)columns must be same length as key`),
				regexp.MustCompile(`(?i)cannot set a frame with no defined index and a value that cannot be converted`),
			},
			guidance: func(string, []string) string {
				return "Several columns were selected as a single list value. " +
					"List the columns individually, for example SELECT \"USUBJID\", \"AGE\" FROM dm, instead of SELECT ['USUBJID', 'AGE']."
			},
		},
		{
			category: CategoryMissingKey,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)referenced column "?([^"\s]+)"? not found`),
				regexp.MustCompile(`(?i)binder error:.*column "?([^"\s]+)"? (not found|does not exist)`),
				regexp.MustCompile(`(?i)values list "?[^"\s]+"? does not have a column named "?([^"\s]+)"?`),
				regexp.MustCompile(`(?i)KeyError: ['"]?([^'"\]]+)['"]?`),
			},
			guidance: func(_ string, match []string) string {
				name := "referenced"
				if len(match) > 1 && match[1] != "" {
					name = match[1]
				}
				return "Column " + quote(name) + " was not found. " +
					"Check the exact column names listed for the table; names are case-sensitive and must be wrapped in double quotes."
			},
		},
		{
			category: CategoryUndefinedName,
			patterns: []*regexp.Regexp{
				regexp.MustCompile(`(?i)table with name "?([^"\s!]+)"? does not exist`),
				regexp.MustCompile(`(?i)catalog error:.*"?([^"\s!]+)"? does not exist`),
				regexp.MustCompile(`(?i)NameError: name '([^']+)' is not defined`),
				regexp.MustCompile(`(?i)name '([^']+)' is not defined`),
			},
			guidance: func(_ string, match []string) string {
				name := "referenced"
				if len(match) > 1 && match[1] != "" {
					name = match[1]
				}
				return "The name " + quote(name) + " is not a known table or variable. " +
					"Use the table names derived from the uploaded files (lowercase, non-alphanumeric characters replaced by '_') or a name assigned earlier in the script."
			},
		},
	}
)

// Classify matches err against known signatures. The returned message always
// ends with the generated code.
func Classify(err error, code string) *ExecutionFailure {
	if err == nil {
		return nil
	}
	raw := err.Error()
	failure := &ExecutionFailure{Category: CategoryUnclassified, Raw: raw, Code: code}

	var scriptErr *query.ScriptError
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		failure.Category = CategoryTimeout
		failure.Message = withCode("The analysis took too long and was stopped. Try a simpler question or narrow it to fewer rows.", code)
		return failure
	case errors.As(err, &scriptErr):
		failure.Category = CategoryScript
		failure.Message = withCode("The generated code is not a valid analysis script ("+scriptErr.Error()+"). "+
			"Each statement must look like `result = SELECT ...`.", code)
		return failure
	}

	for _, r := range rules {
		for _, pattern := range r.patterns {
			match := pattern.FindStringSubmatch(raw)
			if match == nil {
				continue
			}
			failure.Category = r.category
			failure.Message = withCode(r.guidance(raw, match), code)
			return failure
		}
	}
	failure.Message = withCode("Error executing generated code: "+raw, code)
	return failure
}

func withCode(message, code string) string {
	return message + "\n\nGenerated code:\n" + code
}

func quote(name string) string {
	name = strings.TrimSpace(name)
	if m := quotedName.FindStringSubmatch(name); m != nil {
		name = m[1]
	}
	return "'" + name + "'"
}
