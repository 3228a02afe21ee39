package compact

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ollama/ollama/api"

	"github.com/untoldecay/bones/internal/store"
)

const defaultOllamaModel = "llama3.2:3b"

// OllamaSummarizer is the no-API-key fallback: a local Ollama daemon
// reached via its default-environment client.
type OllamaSummarizer struct {
	client *api.Client
	model  string
}

// NewOllamaSummarizer builds a client from the standard OLLAMA_HOST
// environment, defaulting to llama3.2:3b when model is empty.
func NewOllamaSummarizer(model string) (*OllamaSummarizer, error) {
	client, err := api.ClientFromEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	if model == "" {
		model = defaultOllamaModel
	}
	return &OllamaSummarizer{client: client, model: model}, nil
}

// Available reports whether the local daemon answers within a short
// timeout, so Select doesn't block normal engine operations on a down
// Ollama instance.
func (o *OllamaSummarizer) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	_, err := o.client.List(ctx)
	return err == nil
}

func (o *OllamaSummarizer) Summarize(ctx context.Context, item store.Item, comments []store.Comment) (string, error) {
	var buf strings.Builder
	tmpl, err := parsePromptTemplate()
	if err != nil {
		return "", err
	}
	if err := tmpl.Execute(&buf, buildPromptData(item, comments)); err != nil {
		return "", fmt.Errorf("failed to render prompt: %w", err)
	}

	req := &api.GenerateRequest{
		Model:  o.model,
		Prompt: buf.String(),
		Stream: new(bool),
	}

	var respText string
	genErr := o.client.Generate(ctx, req, func(resp api.GenerateResponse) error {
		respText += resp.Response
		return nil
	})
	if genErr != nil {
		return "", fmt.Errorf("ollama generation failed: %w", genErr)
	}
	return strings.TrimSpace(respText), nil
}
