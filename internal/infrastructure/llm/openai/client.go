package openai

import (
	"context"
	"fmt"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/medivault/health-record-vault/internal/core/domain"
)

// Client is the hosted-model alternative to the Ollama adapter, for
// deployments without local inference. Same ports, same error kinds.
type Client struct {
	api        *goopenai.Client
	genModel   string
	embedModel goopenai.EmbeddingModel
	dimension  int
	timeout    time.Duration
}

type Config struct {
	APIKey     string
	BaseURL    string
	GenModel   string
	EmbedModel string
	Dimension  int
	Timeout    time.Duration
}

func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai api key is required")
	}
	clientConfig := goopenai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	genModel := cfg.GenModel
	if genModel == "" {
		genModel = goopenai.GPT4oMini
	}
	embedModel := goopenai.EmbeddingModel(cfg.EmbedModel)
	if cfg.EmbedModel == "" {
		embedModel = goopenai.SmallEmbedding3
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		api:        goopenai.NewClientWithConfig(clientConfig),
		genModel:   genModel,
		embedModel: embedModel,
		dimension:  cfg.Dimension,
		timeout:    timeout,
	}, nil
}

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateEmbeddings(callCtx, goopenai.EmbeddingRequest{
		Model: c.embedModel,
		Input: texts,
	})
	if err != nil {
		return nil, domain.WrapError(domain.ErrEmbedding, "openai embed", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, domain.WrapError(domain.ErrEmbedding, "openai embed",
			fmt.Errorf("embeddings/texts mismatch: %d/%d", len(resp.Data), len(texts)))
	}

	// response order follows the Index field, not slice position
	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, domain.WrapError(domain.ErrEmbedding, "openai embed",
				fmt.Errorf("embedding index %d out of range", item.Index))
		}
		out[item.Index] = item.Embedding
	}
	return out, nil
}

func (c *Client) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrEmbedding, "openai embed query", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

func (c *Client) Generate(ctx context.Context, prompt string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(callCtx, goopenai.ChatCompletionRequest{
		Model: c.genModel,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.2,
	})
	if err != nil {
		return "", domain.WrapError(domain.ErrLLM, "openai generate", err)
	}
	if len(resp.Choices) == 0 {
		return "", domain.WrapError(domain.ErrLLM, "openai generate", fmt.Errorf("no choices returned"))
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}
