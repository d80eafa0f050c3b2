package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
)

// Ollama provides an implementation of the LLM interface for interacting with Ollama's language models.
// It manages connections to an Ollama server instance and handles streaming chat completions.
type Ollama struct {
	model   string
	params  Parameters
	timeout time.Duration

	client *api.Client

	logger *slog.Logger
}

// NewOllama creates a new Ollama instance with the specified host URL and model name.
// It returns an error if the host is not a valid URL.
func NewOllama(host, model string, params Parameters, logger *slog.Logger) (Ollama, error) {
	u, err := url.Parse(host)
	if err != nil {
		return Ollama{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return Ollama{
		model:   model,
		params:  params,
		timeout: defaultChatTimeout,
		client:  api.NewClient(u, &http.Client{}),
		logger:  logger.With(slog.String("module", "ollama")),
	}, nil
}

// WithTimeout returns a copy of o whose calls are bounded by timeout.
func (o Ollama) WithTimeout(timeout time.Duration) Ollama {
	o.timeout = timeout
	return o
}

// Chat sends a chat message to the Ollama API.
func (o Ollama) Chat(ctx context.Context, messages []string) (string, error) {
	msgs := make([]api.Message, len(messages))
	for i, msg := range messages {
		msgs[i] = api.Message{
			Role:    messageRole(i),
			Content: msg,
		}
	}

	req := o.chatRequest(msgs)

	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	var result strings.Builder

	if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
		result.WriteString(res.Message.Content)
		return nil
	}); err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}

	return result.String(), nil
}

func (o Ollama) chatRequest(messages []api.Message) api.ChatRequest {
	req := api.ChatRequest{
		Model:    o.model,
		Messages: messages,
	}

	opts := make(map[string]any)

	if o.params.Temperature != nil {
		opts["temperature"] = *o.params.Temperature
	}
	if o.params.Seed != nil {
		opts["seed"] = *o.params.Seed
	}
	if o.params.Stop != nil {
		opts["stop"] = o.params.Stop
	}
	if o.params.TopK != nil {
		opts["top_k"] = *o.params.TopK
	}
	if o.params.TopP != nil {
		opts["top_p"] = *o.params.TopP
	}
	if o.params.MaxTokens != nil {
		opts["num_predict"] = *o.params.MaxTokens
	}

	req.Options = opts

	return req
}
