package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAI provides an implementation of the LLM interface for interacting with OpenAI's language models.
type OpenAI struct {
	model   string
	params  Parameters
	timeout time.Duration

	client *goopenai.Client
	logger *slog.Logger
}

// NewOpenAI creates a new OpenAI instance.
func NewOpenAI(apiKey, model string, params Parameters, logger *slog.Logger) OpenAI {
	return OpenAI{
		model:   model,
		params:  params,
		timeout: defaultChatTimeout,
		client:  goopenai.NewClient(apiKey),
		logger:  logger.With(slog.String("module", "openai")),
	}
}

// NewOpenAICompat creates an OpenAI instance that talks to any OpenAI-compatible API served at
// host, such as vLLM, LocalAI or LM Studio.
func NewOpenAICompat(host, apiKey, model string, params Parameters, logger *slog.Logger) OpenAI {
	config := goopenai.DefaultConfig(apiKey)
	config.BaseURL = strings.TrimSuffix(host, "/")

	return OpenAI{
		model:   model,
		params:  params,
		timeout: defaultChatTimeout,
		client:  goopenai.NewClientWithConfig(config),
		logger:  logger.With(slog.String("module", "openaicompat")),
	}
}

// WithTimeout returns a copy of o whose calls are bounded by timeout.
func (o OpenAI) WithTimeout(timeout time.Duration) OpenAI {
	o.timeout = timeout
	return o
}

// Chat sends a chat message to the OpenAI API.
func (o OpenAI) Chat(ctx context.Context, messages []string) (string, error) {
	msgs := make([]goopenai.ChatCompletionMessage, len(messages))
	for i, msg := range messages {
		msgs[i] = goopenai.ChatCompletionMessage{
			Role:    messageRole(i),
			Content: msg,
		}
	}

	req := o.chatRequest(msgs)

	ctx, cancel := withTimeout(ctx, o.timeout)
	defer cancel()

	o.logger.Debug("Sending chat completion", "model", o.model, "messages", len(msgs))

	resp, err := o.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", errors.New("no choices found")
	}

	return resp.Choices[0].Message.Content, nil
}

func (o OpenAI) chatRequest(messages []goopenai.ChatCompletionMessage) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:    o.model,
		Messages: messages,
	}

	if o.params.Temperature != nil {
		req.Temperature = *o.params.Temperature
	}
	if o.params.TopP != nil {
		req.TopP = *o.params.TopP
	}
	if o.params.Stop != nil {
		req.Stop = o.params.Stop
	}
	if o.params.PresencePenalty != nil {
		req.PresencePenalty = *o.params.PresencePenalty
	}
	if o.params.Seed != nil {
		req.Seed = o.params.Seed
	}
	if o.params.FrequencyPenalty != nil {
		req.FrequencyPenalty = *o.params.FrequencyPenalty
	}
	if o.params.MaxTokens != nil {
		req.MaxTokens = *o.params.MaxTokens
	}

	return req
}
