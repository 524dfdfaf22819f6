// Package tabletalkctl implements the tabletalkctl command line client for
// the HTTP API.
package tabletalkctl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

type Options struct {
	BaseURL    string
	SessionID  string
	Timeout    time.Duration
	HTTPClient *http.Client
	Stdout     io.Writer
	Stderr     io.Writer
}

// exitError carries a non-zero exit status out of a cobra command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }

type runner struct {
	baseURL   string
	sessionID string
	timeout   time.Duration
	client    *http.Client
	stdout    io.Writer
	stderr    io.Writer
}

// Run executes one tabletalkctl invocation and returns its exit code:
// 0 on success, 1 when the request fails, 2 on usage errors.
func Run(ctx context.Context, args []string, defaults Options) int {
	r := &runner{
		baseURL:   firstNonEmpty(defaults.BaseURL, "http://localhost:8080"),
		sessionID: defaults.SessionID,
		timeout:   durationOr(defaults.Timeout, 30*time.Second),
		client:    defaults.HTTPClient,
		stdout:    defaults.Stdout,
		stderr:    defaults.Stderr,
	}
	if r.stdout == nil {
		r.stdout = io.Discard
	}
	if r.stderr == nil {
		r.stderr = io.Discard
	}

	root := r.rootCommand()
	root.SetArgs(args)
	root.SetOut(r.stdout)
	root.SetErr(r.stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		var exit *exitError
		if errors.As(err, &exit) {
			_, _ = fmt.Fprintln(r.stderr, exit.err)
			return exit.code
		}
		_, _ = fmt.Fprintln(r.stderr, err)
		return 2
	}
	return 0
}

func (r *runner) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "tabletalkctl",
		Short:         "Talk to a tabletalk API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(*cobra.Command, []string) {
			if r.client == nil {
				r.client = &http.Client{Timeout: r.timeout}
			}
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&r.baseURL, "base-url", r.baseURL, "tabletalk API base URL")
	flags.StringVar(&r.sessionID, "session", r.sessionID, "session id sent as X-Session-ID")
	flags.DurationVar(&r.timeout, "timeout", r.timeout, "HTTP timeout (e.g. 30s)")

	root.AddCommand(
		r.simpleCommand("health", "Check liveness", http.MethodGet, "/v1/health", false),
		r.simpleCommand("ready", "Check readiness", http.MethodGet, "/v1/ready", false),
		r.simpleCommand("session", "Create a new session id", http.MethodPost, "/v1/sessions", false),
		r.uploadCommand(),
		r.filesCommand(),
		r.queryCommand(),
		r.visualizeCommand(),
		r.dashboardCommand(),
	)
	return root
}

func (r *runner) simpleCommand(use, short, method, path string, needsSession bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return r.call(cmd.Context(), method, path, needsSession, nil, "")
		},
	}
}

func (r *runner) uploadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "upload <file.csv>",
		Short: "Upload a CSV file into the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, contentType, err := multipartFile(args[0])
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			return r.call(cmd.Context(), http.MethodPost, "/v1/files", true, body, contentType)
		},
	}
}

func (r *runner) filesCommand() *cobra.Command {
	files := r.simpleCommand("files", "List the session's files", http.MethodGet, "/v1/files", true)
	files.AddCommand(
		&cobra.Command{
			Use:   "preview <filename>",
			Short: "Show the first rows of a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.call(cmd.Context(), http.MethodGet, "/v1/files/"+url.PathEscape(args[0])+"/preview", true, nil, "")
			},
		},
		&cobra.Command{
			Use:   "rm <filename>",
			Short: "Remove a file",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return r.call(cmd.Context(), http.MethodDelete, "/v1/files/"+url.PathEscape(args[0]), true, nil, "")
			},
		},
		r.simpleCommand("clear", "Remove every file and chart of the session", http.MethodDelete, "/v1/session", true),
	)
	return files
}

func (r *runner) queryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question about the session's tables",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := jsonBody(map[string]string{"query": strings.Join(args, " ")})
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			return r.call(cmd.Context(), http.MethodPost, "/v1/query", true, body, "application/json")
		},
	}
}

func (r *runner) visualizeCommand() *cobra.Command {
	var chartType string
	cmd := &cobra.Command{
		Use:   "visualize <question>",
		Short: "Render a chart from the session's first table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := jsonBody(map[string]string{"query": strings.Join(args, " "), "chart_type": chartType})
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			return r.call(cmd.Context(), http.MethodPost, "/v1/visualize", true, body, "application/json")
		},
	}
	cmd.Flags().StringVar(&chartType, "type", "", "chart type override: scatter|line|bar|histogram|box|pie|heatmap")
	return cmd
}

func (r *runner) dashboardCommand() *cobra.Command {
	var title string
	dashboard := r.simpleCommand("dashboard", "List pinned charts", http.MethodGet, "/v1/dashboard", true)

	pin := &cobra.Command{
		Use:   "pin <chart.json>",
		Short: "Pin a chart document read from a file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := readInput(cmd.InOrStdin(), args[0])
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			if !json.Valid(raw) {
				return &exitError{code: 1, err: fmt.Errorf("%s is not valid JSON", args[0])}
			}
			body, err := jsonBody(map[string]any{"title": title, "chart": json.RawMessage(raw)})
			if err != nil {
				return &exitError{code: 1, err: err}
			}
			return r.call(cmd.Context(), http.MethodPost, "/v1/dashboard/pin", true, body, "application/json")
		},
	}
	pin.Flags().StringVar(&title, "title", "", "chart title")

	dashboard.AddCommand(pin, &cobra.Command{
		Use:   "rm <chart_id>",
		Short: "Unpin a chart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.call(cmd.Context(), http.MethodDelete, "/v1/dashboard/"+url.PathEscape(args[0]), true, nil, "")
		},
	})
	return dashboard
}

func (r *runner) call(ctx context.Context, method, path string, needsSession bool, body io.Reader, contentType string) error {
	if needsSession && strings.TrimSpace(r.sessionID) == "" {
		return &exitError{code: 2, err: errors.New("--session (or TABLETALK_SESSION_ID) is required")}
	}
	endpoint := strings.TrimRight(r.baseURL, "/") + path
	code, responseBody, err := doRequest(ctx, r.client, method, endpoint, r.sessionID, body, contentType)
	if err != nil {
		return &exitError{code: 1, err: fmt.Errorf("request failed: %w", err)}
	}
	if code >= 400 {
		return &exitError{code: 1, err: fmt.Errorf("http %d: %s", code, strings.TrimSpace(string(responseBody)))}
	}

	if pretty, ok := prettyJSON(responseBody); ok {
		_, _ = fmt.Fprintln(r.stdout, pretty)
	} else if len(responseBody) > 0 {
		_, _ = fmt.Fprintln(r.stdout, string(responseBody))
	}
	if failed(responseBody) {
		return &exitError{code: 1, err: errors.New("request completed with success=false")}
	}
	return nil
}

func doRequest(ctx context.Context, client *http.Client, method, url, sessionID string, body io.Reader, contentType string) (int, []byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.TrimSpace(sessionID) != "" {
		req.Header.Set("X-Session-ID", strings.TrimSpace(sessionID))
	}

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, err
	}
	return resp.StatusCode, raw, nil
}

func multipartFile(path string) (io.Reader, string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, "", err
	}
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, "", err
	}
	if _, err := part.Write(raw); err != nil {
		return nil, "", err
	}
	if err := writer.Close(); err != nil {
		return nil, "", err
	}
	return &buf, writer.FormDataContentType(), nil
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}

func jsonBody(payload any) (io.Reader, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(raw), nil
}

// failed reports whether a pipeline envelope says success=false.
func failed(raw []byte) bool {
	var envelope struct {
		Success *bool `json:"success"`
	}
	if err := json.Unmarshal(raw, &envelope); err != nil || envelope.Success == nil {
		return false
	}
	return !*envelope.Success
}

func prettyJSON(raw []byte) (string, bool) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return "", false
	}
	var anyValue any
	if err := json.Unmarshal(raw, &anyValue); err != nil {
		return "", false
	}
	formatted, err := json.MarshalIndent(anyValue, "", "  ")
	if err != nil {
		return "", false
	}
	return string(formatted), true
}

func firstNonEmpty(a, b string) string {
	if strings.TrimSpace(a) != "" {
		return strings.TrimSpace(a)
	}
	return b
}

func durationOr(v, fallback time.Duration) time.Duration {
	if v > 0 {
		return v
	}
	return fallback
}
