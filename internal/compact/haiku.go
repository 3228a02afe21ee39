// Package compact generates the free-text summary carried by an
// item.compact event (spec §3.2, §4.I). A Summarizer renders an item plus
// its comment trail down to a few sentences; the engine never requires one
// to be configured — callers may always supply the summary text directly.
package compact

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/untoldecay/bones/internal/store"
)

const (
	defaultModel   = "claude-3-5-haiku-20241022"
	maxRetries     = 3
	initialBackoff = 1 * time.Second
)

// ErrAPIKeyRequired is returned when an API key is needed but not provided.
var ErrAPIKeyRequired = errors.New("API key required")

// Summarizer renders an item and its comments into a short compaction
// summary for item.compact's payload.
type Summarizer interface {
	Summarize(ctx context.Context, item store.Item, comments []store.Comment) (string, error)
}

// Select picks a Summarizer by availability: Claude Haiku when
// ANTHROPIC_API_KEY is set, else a local Ollama daemon if one answers on
// its default port, else nil (the caller falls back to a verbatim
// caller-supplied summary).
func Select(ctx context.Context) Summarizer {
	if os.Getenv("ANTHROPIC_API_KEY") != "" {
		if h, err := NewHaikuSummarizer(""); err == nil {
			return h
		}
	}
	if o, err := NewOllamaSummarizer(""); err == nil && o.Available(ctx) {
		return o
	}
	return nil
}

// HaikuSummarizer wraps the Anthropic API for item summarization.
type HaikuSummarizer struct {
	client         anthropic.Client
	model          anthropic.Model
	tmpl           *template.Template
	maxRetries     int
	initialBackoff time.Duration
}

// NewHaikuSummarizer creates a new Haiku API client. Env var
// ANTHROPIC_API_KEY takes precedence over an explicit apiKey.
func NewHaikuSummarizer(apiKey string) (*HaikuSummarizer, error) {
	if envKey := os.Getenv("ANTHROPIC_API_KEY"); envKey != "" {
		apiKey = envKey
	}
	if apiKey == "" {
		return nil, fmt.Errorf("%w: set ANTHROPIC_API_KEY environment variable", ErrAPIKeyRequired)
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))

	tmpl, err := parsePromptTemplate()
	if err != nil {
		return nil, err
	}

	return &HaikuSummarizer{
		client:         client,
		model:          defaultModel,
		tmpl:           tmpl,
		maxRetries:     maxRetries,
		initialBackoff: initialBackoff,
	}, nil
}

// Summarize produces a structured summary of an item (Summary, Key
// Decisions, Resolution) from its current projected state and comment
// trail.
func (h *HaikuSummarizer) Summarize(ctx context.Context, item store.Item, comments []store.Comment) (string, error) {
	prompt, err := h.renderPrompt(item, comments)
	if err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}
	return h.callWithRetry(ctx, prompt)
}

func (h *HaikuSummarizer) callWithRetry(ctx context.Context, prompt string) (string, error) {
	var lastErr error
	params := anthropic.MessageNewParams{
		Model:     h.model,
		MaxTokens: 1024,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	}

	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := h.initialBackoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}

		message, err := h.client.Messages.New(ctx, params)
		if err == nil {
			if len(message.Content) > 0 {
				content := message.Content[0]
				if content.Type == "text" {
					return content.Text, nil
				}
				return "", fmt.Errorf("unexpected response format: not a text block (type=%s)", content.Type)
			}
			return "", fmt.Errorf("unexpected response format: no content blocks")
		}

		lastErr = err
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("non-retryable error: %w", err)
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", h.maxRetries+1, lastErr)
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

type promptData struct {
	Title       string
	Kind        string
	State       string
	Description string
	Comments    []string
}

func (h *HaikuSummarizer) renderPrompt(item store.Item, comments []store.Comment) (string, error) {
	var buf strings.Builder
	if err := h.tmpl.Execute(&buf, buildPromptData(item, comments)); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func parsePromptTemplate() (*template.Template, error) {
	tmpl, err := template.New("compact").Parse(promptTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse compaction template: %w", err)
	}
	return tmpl, nil
}

func buildPromptData(item store.Item, comments []store.Comment) promptData {
	data := promptData{
		Title:       item.Title,
		Kind:        item.Kind,
		State:       item.State,
		Description: item.Description,
	}
	for _, c := range comments {
		data.Comments = append(data.Comments, fmt.Sprintf("[%s] %s", c.Author, c.Body))
	}
	return data
}

const promptTemplate = `You are summarizing a work item for long-term storage. Your goal is to COMPRESS the content - the output MUST be significantly shorter than the input while preserving key technical decisions and outcomes.

**Title:** {{.Title}}
**Kind:** {{.Kind}}
**State:** {{.State}}

**Description:**
{{.Description}}

{{if .Comments}}**Comment trail:**
{{range .Comments}}{{.}}
{{end}}{{end}}
IMPORTANT: Your summary must be shorter than the original. Be concise and eliminate redundancy.

Provide a summary in this exact format:

**Summary:** [2-3 concise sentences covering what this item was about and why]

**Key Decisions:** [Brief bullet points of only the most important technical choices]

**Resolution:** [One sentence on final outcome, or "in progress" if not yet done]`
