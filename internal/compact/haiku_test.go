package compact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/untoldecay/bones/internal/store"
)

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestNewHaikuSummarizer_RequiresAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")

	_, err := NewHaikuSummarizer("")
	if err == nil {
		t.Fatal("expected error when API key is missing")
	}
	if !errors.Is(err, ErrAPIKeyRequired) {
		t.Fatalf("expected ErrAPIKeyRequired, got %v", err)
	}
}

func TestNewHaikuSummarizer_EnvVarUsedWhenNoExplicitKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key-from-env")

	s, err := NewHaikuSummarizer("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected non-nil summarizer")
	}
}

func TestNewHaikuSummarizer_EnvVarOverridesExplicitKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key-from-env")

	s, err := NewHaikuSummarizer("test-key-explicit")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil {
		t.Fatal("expected non-nil summarizer")
	}
}

func TestRenderPrompt(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	s, err := NewHaikuSummarizer("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := store.Item{
		ItemID:      "bn-abc123",
		Title:       "Fix authentication bug",
		Description: "Users can't log in with OAuth",
		Kind:        "bug",
		State:       "doing",
	}
	comments := []store.Comment{
		{Author: "alice", Body: "added error handling to the OAuth flow"},
	}

	prompt, err := s.renderPrompt(item, comments)
	if err != nil {
		t.Fatalf("failed to render prompt: %v", err)
	}

	for _, want := range []string{
		"Fix authentication bug",
		"Users can't log in with OAuth",
		"added error handling to the OAuth flow",
		"**Summary:**",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestRenderPrompt_HandlesNoComments(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	s, err := NewHaikuSummarizer("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := store.Item{Title: "Simple task", Description: "Just a simple task", State: "open"}
	prompt, err := s.renderPrompt(item, nil)
	if err != nil {
		t.Fatalf("failed to render prompt: %v", err)
	}
	if !strings.Contains(prompt, "Simple task") {
		t.Error("prompt should contain title")
	}
}

func TestRenderPrompt_UTF8(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	s, err := NewHaikuSummarizer("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	item := store.Item{
		Title:       "Fix bug with émojis 🎉",
		Description: "Handle UTF-8: café, 日本語, emoji 🚀",
		State:       "open",
	}
	prompt, err := s.renderPrompt(item, nil)
	if err != nil {
		t.Fatalf("failed to render prompt: %v", err)
	}
	for _, want := range []string{"🎉", "café", "日本語", "🚀"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt should preserve %q", want)
		}
	}
}

func TestCallWithRetry_ContextCancellation(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "test-key")
	s, err := NewHaikuSummarizer("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	s.initialBackoff = 100 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.callWithRetry(ctx, "test prompt")
	if err == nil {
		t.Fatal("expected error when context is canceled")
	}
	if err != context.Canceled {
		t.Errorf("expected context.Canceled error, got: %v", err)
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil error", nil, false},
		{"context canceled", context.Canceled, false},
		{"context deadline exceeded", context.DeadlineExceeded, false},
		{"generic error", errors.New("some error"), false},
		{"timeout error", timeoutErr{}, true},
		{"anthropic 429", &anthropic.Error{StatusCode: 429}, true},
		{"anthropic 500", &anthropic.Error{StatusCode: 500}, true},
		{"anthropic 400", &anthropic.Error{StatusCode: 400}, false},
		{"wrapped timeout", fmt.Errorf("wrap: %w", timeoutErr{}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := isRetryable(tt.err)
			if got != tt.expected {
				t.Errorf("isRetryable(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestSelect_NoKeyNoOllamaReturnsNil(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	// Point Ollama at a host nothing answers on so Available() fails fast.
	t.Setenv("OLLAMA_HOST", "127.0.0.1:1")

	if got := Select(context.Background()); got != nil {
		t.Fatalf("expected nil summarizer, got %T", got)
	}
}
