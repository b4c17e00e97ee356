package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/medivault/health-record-vault/internal/core/domain"
	"github.com/medivault/health-record-vault/internal/infrastructure/resilience"
)

// Client talks to a local Ollama instance for both embedding and answer
// generation. All calls go through the shared rate limiter and the
// resilience executor; the limiter keeps bursts of chunk embeddings from
// starving the latency-sensitive query path.
type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	dimension  int
	httpClient *http.Client
	limiter    *rate.Limiter
	executor   *resilience.Executor
}

type Options struct {
	RequestTimeout time.Duration
	RatePerSecond  float64
	Burst          int
	Executor       *resilience.Executor
}

func New(baseURL, genModel, embedModel string, dimension int, opts Options) *Client {
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	perSecond := opts.RatePerSecond
	if perSecond <= 0 {
		perSecond = 10
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 5
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    rate.NewLimiter(rate.Limit(perSecond), burst),
		executor:   opts.Executor,
	}
}

// Embedder adapts the client to the embedding collaborator port.
type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

func (e *Embedder) Dimension() int { return e.client.dimension }

func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.call(ctx, "embed", "/api/embed", request, &response); err != nil {
		return nil, wrapCollaboratorError(domain.ErrEmbedding, "embed", err)
	}
	if len(response.Embeddings) != len(texts) {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed",
			fmt.Errorf("embeddings/texts mismatch: %d/%d", len(response.Embeddings), len(texts)))
	}
	return response.Embeddings, nil
}

func (e *Embedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query", fmt.Errorf("empty embedding result"))
	}
	return vectors[0], nil
}

// Generator adapts the client to the language model collaborator port.
type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	request := map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt,
		"stream": false,
	}
	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.call(ctx, "generate", "/api/generate", request, &response); err != nil {
		return "", wrapCollaboratorError(domain.ErrLLM, "generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}

func (c *Client) call(ctx context.Context, operation, path string, request, response any) error {
	do := func(callCtx context.Context) error {
		if err := c.limiter.Wait(callCtx); err != nil {
			return err
		}
		return c.postJSON(callCtx, operation, path, request, response)
	}
	if c.executor != nil {
		return c.executor.Execute(ctx, "ollama."+operation, do, classifyError)
	}
	return do(ctx)
}

func (c *Client) postJSON(ctx context.Context, operation, path string, request, response any) error {
	body, err := json.Marshal(request)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			Operation:  operation,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       string(raw),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(response); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}
