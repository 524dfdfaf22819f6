package query

import (
	"fmt"
	"regexp"
	"strings"
)

type TargetKind int

const (
	TargetIntermediate TargetKind = iota
	TargetResult
	TargetAuxiliary
)

// Assignment is one `name = query` statement of an analysis script.
type Assignment struct {
	Target string
	Kind   TargetKind
	Key    string
	Body   string
	Index  int
}

// ScriptError reports a malformed script. Statement is 1-based, 0 when the
// problem is not tied to one statement.
type ScriptError struct {
	Statement int
	Message   string
}

func (e *ScriptError) Error() string {
	if e.Statement == 0 {
		return "invalid script: " + e.Message
	}
	return fmt.Sprintf("invalid script statement %d: %s", e.Statement, e.Message)
}

var (
	assignmentPattern = regexp.MustCompile(`(?s)^(results\.[A-Za-z_][A-Za-z0-9_]*|[A-Za-z_][A-Za-z0-9_]*)\s*=\s*(.*)$`)
	lineStartPattern  = regexp.MustCompile(`(?i)^[ \t]*(results\.[a-z_][a-z0-9_]*|[a-z_][a-z0-9_]*)[ \t]*=[ \t]*(select|with|from|values|table|summarize|pivot|unpivot|len\s*\()`)
	lenPattern        = regexp.MustCompile(`^len\s*\(\s*([A-Za-z_][A-Za-z0-9_]*)\s*\)$`)
	readOnlyPrefixes  = []string{"select", "with", "from", "values", "table", "summarize", "pivot", "unpivot", "("}
)

// ParseScript splits a script into assignments. Statements end at a
// top-level ';' or where a new line starts another assignment. Comments are
// dropped and every body must be a single read-only query.
func ParseScript(script string) ([]Assignment, error) {
	chunks := splitStatements(script)
	out := make([]Assignment, 0, len(chunks))
	for _, chunk := range chunks {
		index := len(out) + 1
		match := assignmentPattern.FindStringSubmatch(chunk)
		if match == nil {
			return nil, &ScriptError{Statement: index, Message: fmt.Sprintf("expected `name = query`, got %q", abbreviate(chunk))}
		}
		target, body := match[1], strings.TrimSpace(match[2])
		if body == "" {
			return nil, &ScriptError{Statement: index, Message: fmt.Sprintf("assignment to %s has no query", target)}
		}
		if lenMatch := lenPattern.FindStringSubmatch(body); lenMatch != nil {
			body = "SELECT COUNT(*) FROM " + quoteIdent(lenMatch[1])
		}
		if !isReadOnlyQuery(body) {
			return nil, &ScriptError{Statement: index, Message: fmt.Sprintf("%s must be assigned a SELECT or WITH query", target)}
		}

		assignment := Assignment{Target: target, Body: body, Index: index}
		switch {
		case target == ResultName:
			assignment.Kind = TargetResult
		case strings.HasPrefix(target, AuxiliaryPrefix):
			assignment.Kind = TargetAuxiliary
			assignment.Key = strings.TrimPrefix(target, AuxiliaryPrefix)
		case target == "results":
			return nil, &ScriptError{Statement: index, Message: "results is reserved; assign results.<key> instead"}
		default:
			assignment.Kind = TargetIntermediate
		}
		out = append(out, assignment)
	}
	if len(out) == 0 {
		return nil, &ScriptError{Message: "script is empty"}
	}
	return out, nil
}

func isReadOnlyQuery(body string) bool {
	lower := strings.ToLower(strings.TrimSpace(body))
	for _, prefix := range readOnlyPrefixes {
		if !strings.HasPrefix(lower, prefix) {
			continue
		}
		if prefix == "(" {
			return true
		}
		rest := lower[len(prefix):]
		if rest == "" || !isIdentByte(rest[0]) {
			return true
		}
	}
	return false
}

// splitStatements cuts the script at top-level semicolons and at line starts
// that open a new assignment, ignoring anything inside quotes, comments or
// parentheses. Comment text is removed from the returned statements.
func splitStatements(script string) []string {
	var (
		statements []string
		current    strings.Builder
		depth      int
		lineStart  = true
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			statements = append(statements, stmt)
		}
		current.Reset()
	}

	for i := 0; i < len(script); i++ {
		c := script[i]
		if lineStart && depth == 0 && lineStartPattern.MatchString(script[i:]) && strings.TrimSpace(current.String()) != "" {
			flush()
		}
		lineStart = false

		switch {
		case c == '\'' || c == '"':
			end := closingQuote(script, i)
			current.WriteString(script[i:end])
			i = end - 1
		case c == '-' && i+1 < len(script) && script[i+1] == '-':
			for i < len(script) && script[i] != '\n' {
				i++
			}
			i--
		case c == '/' && i+1 < len(script) && script[i+1] == '*':
			end := strings.Index(script[i+2:], "*/")
			if end < 0 {
				i = len(script)
			} else {
				i += end + 3
			}
			current.WriteByte(' ')
		case c == '#' && strings.TrimSpace(lastLine(current.String())) == "":
			for i < len(script) && script[i] != '\n' {
				i++
			}
			i--
		case c == ';' && depth == 0:
			flush()
		default:
			if c == '(' {
				depth++
			} else if c == ')' && depth > 0 {
				depth--
			}
			if c == '\n' {
				lineStart = true
			}
			current.WriteByte(c)
		}
	}
	flush()
	return statements
}

// closingQuote returns the index just past the quoted run starting at start.
// Doubled quote characters are escapes.
func closingQuote(s string, start int) int {
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		if s[i] != quote {
			continue
		}
		if i+1 < len(s) && s[i+1] == quote {
			i++
			continue
		}
		return i + 1
	}
	return len(s)
}

func lastLine(s string) string {
	if idx := strings.LastIndexByte(s, '\n'); idx >= 0 {
		return s[idx+1:]
	}
	return s
}

func isIdentByte(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func abbreviate(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) > 60 {
		return s[:57] + "..."
	}
	return s
}
