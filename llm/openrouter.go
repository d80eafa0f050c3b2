package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// OpenRouter provides an implementation of the LLM interface for interacting with OpenRouter's language models.
type OpenRouter struct {
	apiKey   string
	model    string
	endpoint string
	timeout  time.Duration

	params Parameters

	client *http.Client
	logger *slog.Logger
}

type openRouterMessage struct {
	Role    string `json:"role"`
	Content string `json:"content,omitempty"`
}

type openRouterChatRequest struct {
	Model    string              `json:"model"`
	Messages []openRouterMessage `json:"messages"`

	Temperature      *float32 `json:"temperature,omitempty"`
	TopP             *float32 `json:"top_p,omitempty"`
	TopK             *int     `json:"top_k,omitempty"`
	FrequencyPenalty *float32 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float32 `json:"presence_penalty,omitempty"`
	Seed             *int     `json:"seed,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	Stop             []string `json:"stop,omitempty"`
}

type openRouterResponse struct {
	Choices []openRouterChoice `json:"choices"`
}

type openRouterChoice struct {
	Message openRouterMessage `json:"message"`
}

const (
	openRouterAPIEndpoint = "https://openrouter.ai/api/v1"
)

// NewOpenRouter creates a new OpenRouter instance.
func NewOpenRouter(apiKey, model string, params Parameters, logger *slog.Logger) OpenRouter {
	return OpenRouter{
		apiKey:   apiKey,
		model:    model,
		endpoint: openRouterAPIEndpoint,
		timeout:  defaultChatTimeout,
		params:   params,
		client:   &http.Client{},
		logger:   logger.With(slog.String("module", "openrouter")),
	}
}

// WithEndpoint returns a copy of o that sends its requests to endpoint.
func (o OpenRouter) WithEndpoint(endpoint string) OpenRouter {
	o.endpoint = endpoint
	return o
}

// WithTimeout returns a copy of o whose calls are bounded by timeout.
func (o OpenRouter) WithTimeout(timeout time.Duration) OpenRouter {
	o.timeout = timeout
	return o
}

// Chat sends a chat message to the OpenRouter API.
func (o OpenRouter) Chat(ctx context.Context, messages []string) (string, error) {
	msgs := make([]openRouterMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = openRouterMessage{
			Role:    messageRole(i),
			Content: msg,
		}
	}

	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	resp, err := o.doRequest(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	var res openRouterResponse
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	if len(res.Choices) == 0 {
		return "", errors.New("no choices found")
	}

	return res.Choices[0].Message.Content, nil
}

func (o OpenRouter) doRequest(ctx context.Context, messages []openRouterMessage) (*http.Response, error) {
	reqBody := openRouterChatRequest{
		Model:    o.model,
		Messages: messages,

		Temperature:      o.params.Temperature,
		TopP:             o.params.TopP,
		TopK:             o.params.TopK,
		FrequencyPenalty: o.params.FrequencyPenalty,
		PresencePenalty:  o.params.PresencePenalty,
		Seed:             o.params.Seed,
		MaxTokens:        o.params.MaxTokens,
		Stop:             o.params.Stop,
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	o.logger.Debug("Request Body", slog.String("body", string(jsonBody)))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		o.endpoint+"/chat/completions", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+o.apiKey)
	req.Header.Set("X-Title", "Retail Store Assistant")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("unexpected status code: %d, body: %s", resp.StatusCode, string(body))
	}

	return resp, nil
}
