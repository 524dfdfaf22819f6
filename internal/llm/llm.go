// Package llm talks to the external text-generation collaborators used for
// code generation and report writing.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tabletalk/tabletalk/internal/config"
)

var ErrNoCredential = errors.New("language model credential is not configured")

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type CompletionRequest struct {
	Model       string
	Messages    []Message
	MaxTokens   int
	Temperature float64
}

type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

const defaultTimeout = 30 * time.Second

// NewClient builds the configured provider. It returns ErrNoCredential when no
// API key is set.
func NewClient(ctx context.Context, cfg config.AIConfig) (Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrNoCredential
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "", "openai":
		return NewOpenAIClient(OpenAIConfig{
			BaseURL: cfg.BaseURL,
			APIKey:  cfg.APIKey,
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	case "gemini":
		return NewGeminiClient(ctx, GeminiConfig{
			APIKey:  cfg.APIKey,
			BaseURL: geminiBaseURL(cfg.BaseURL),
			Model:   cfg.Model,
			Timeout: cfg.Timeout,
		})
	default:
		return nil, fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

// geminiBaseURL drops the OpenAI default so the genai SDK keeps its own
// endpoint.
func geminiBaseURL(raw string) string {
	if strings.Contains(raw, "api.openai.com") {
		return ""
	}
	return raw
}

func withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

// splitSystem separates system messages from the conversation turns.
func splitSystem(messages []Message) (string, []Message) {
	var system []string
	turns := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		turns = append(turns, msg)
	}
	return strings.Join(system, "\n\n"), turns
}
