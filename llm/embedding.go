package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ollama/ollama/api"
	goopenai "github.com/sashabaranov/go-openai"
)

// OpenAIEmbedder embeds text with the OpenAI embeddings API, or any API compatible with it.
// Its Embed method satisfies the embedding function expected by the vector storages.
type OpenAIEmbedder struct {
	model   string
	timeout time.Duration

	client *goopenai.Client
}

// OllamaEmbedder embeds text with an embedding model served by Ollama.
type OllamaEmbedder struct {
	model   string
	timeout time.Duration

	client *api.Client
}

// DefaultOpenAIEmbeddingModel is the embedding model used when none is configured.
const DefaultOpenAIEmbeddingModel = string(goopenai.AdaEmbeddingV2)

// NewOpenAIEmbedder creates an OpenAIEmbedder. An empty baseURL targets the OpenAI API, an empty
// model falls back to DefaultOpenAIEmbeddingModel.
func NewOpenAIEmbedder(apiKey, baseURL, model string) OpenAIEmbedder {
	config := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = strings.TrimSuffix(baseURL, "/")
	}
	if model == "" {
		model = DefaultOpenAIEmbeddingModel
	}

	return OpenAIEmbedder{
		model:   model,
		timeout: defaultEmbeddingTimeout,
		client:  goopenai.NewClientWithConfig(config),
	}
}

// Embed returns the embedding vector of text.
func (e OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, goopenai.EmbeddingRequest{
		Input: []string{text},
		Model: goopenai.EmbeddingModel(e.model),
	})
	if err != nil {
		return nil, fmt.Errorf("error sending embedding request: %w", err)
	}

	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, errors.New("no embedding returned")
	}

	return resp.Data[0].Embedding, nil
}

// NewOllamaEmbedder creates an OllamaEmbedder for the server at host.
func NewOllamaEmbedder(host, model string) (OllamaEmbedder, error) {
	u, err := url.Parse(host)
	if err != nil {
		return OllamaEmbedder{}, fmt.Errorf("invalid ollama host %q: %w", host, err)
	}

	return OllamaEmbedder{
		model:   model,
		timeout: defaultEmbeddingTimeout,
		client:  api.NewClient(u, &http.Client{}),
	}, nil
}

// Embed returns the embedding vector of text.
func (e OllamaEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := withTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.Embed(ctx, &api.EmbedRequest{
		Model: e.model,
		Input: text,
	})
	if err != nil {
		return nil, fmt.Errorf("error sending embedding request: %w", err)
	}

	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0]) == 0 {
		return nil, errors.New("no embedding returned")
	}

	return resp.Embeddings[0], nil
}
