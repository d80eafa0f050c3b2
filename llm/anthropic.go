package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Anthropic provides an interface to the Anthropic API for large language model interactions. It implements
// the LLM interface using Claude models.
type Anthropic struct {
	apiKey    string
	model     string
	maxTokens int
	endpoint  string
	timeout   time.Duration

	params Parameters

	client *http.Client
}

type anthropicMessage struct {
	Role    string                    `json:"role"`
	Content []anthropicMessageContent `json:"content"`
}

type anthropicMessageContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

type anthropicChatRequest struct {
	Model     string             `json:"model"`
	Messages  []anthropicMessage `json:"messages"`
	MaxTokens int                `json:"max_tokens"`

	StopSequences []string `json:"stop_sequences,omitempty"`
	Temperature   *float32 `json:"temperature,omitempty"`
	TopK          *int     `json:"top_k,omitempty"`
	TopP          *float32 `json:"top_p,omitempty"`
}

const (
	anthropicAPIEndpoint = "https://api.anthropic.com/v1"

	defaultAnthropicMaxTokens = 1024
)

// NewAnthropic creates a new Anthropic instance with the specified API key, model name, and maximum
// token limit. A maxTokens of zero falls back to a default limit.
func NewAnthropic(apiKey, model string, maxTokens int, params Parameters) Anthropic {
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}
	return Anthropic{
		apiKey:    apiKey,
		model:     model,
		maxTokens: maxTokens,
		endpoint:  anthropicAPIEndpoint,
		timeout:   defaultChatTimeout,
		params:    params,
		client:    &http.Client{},
	}
}

// WithEndpoint returns a copy of a that sends its requests to endpoint.
func (a Anthropic) WithEndpoint(endpoint string) Anthropic {
	a.endpoint = endpoint
	return a
}

// WithTimeout returns a copy of a whose calls are bounded by timeout.
func (a Anthropic) WithTimeout(timeout time.Duration) Anthropic {
	a.timeout = timeout
	return a
}

// Chat sends a chat message to the Anthropic API.
func (a Anthropic) Chat(ctx context.Context, messages []string) (string, error) {
	msgs := make([]anthropicMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = anthropicMessage{
			Role:    messageRole(i),
			Content: []anthropicMessageContent{{Type: "text", Text: msg}},
		}
	}

	ctx, cancel := withTimeout(ctx, a.timeout)
	defer cancel()

	resp, err := a.doRequest(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	var msg anthropicMessage
	if err := json.NewDecoder(resp.Body).Decode(&msg); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	var text strings.Builder
	for _, content := range msg.Content {
		if content.Type == "text" {
			text.WriteString(content.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("empty response content")
	}

	return text.String(), nil
}

func (a Anthropic) doRequest(ctx context.Context, messages []anthropicMessage) (*http.Response, error) {
	reqBody := anthropicChatRequest{
		Model:     a.model,
		Messages:  messages,
		MaxTokens: a.maxTokens,

		StopSequences: a.params.Stop,
		Temperature:   a.params.Temperature,
		TopK:          a.params.TopK,
		TopP:          a.params.TopP,
	}
	if a.params.MaxTokens != nil {
		reqBody.MaxTokens = *a.params.MaxTokens
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		a.endpoint+"/messages", bytes.NewBuffer(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", a.apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	resp, err := a.client.Do(req)
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
