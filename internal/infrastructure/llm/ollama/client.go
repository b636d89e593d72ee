package ollama

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/avelichko/kb-pipeline/internal/core/domain"
	"github.com/avelichko/kb-pipeline/internal/infrastructure/resilience"
)

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	httpClient *http.Client
	executor   *resilience.Executor
}

func New(baseURL, genModel, embedModel string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		executor:   executor,
	}
}

// Embedder paces embedding calls with a token bucket so sequential batch
// indexing stays inside the collaborator's quota.
type Embedder struct {
	client  *Client
	limiter *rate.Limiter
}

func NewEmbedder(client *Client, perSecond float64, burst int) *Embedder {
	if perSecond <= 0 {
		perSecond = 2
	}
	if burst <= 0 {
		burst = 1
	}
	return &Embedder{
		client:  client,
		limiter: rate.NewLimiter(rate.Limit(perSecond), burst),
	}
}

func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": []string{text},
	}
	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, wrapCollaborator("embed", err)
	}
	if len(response.Embeddings) == 0 || len(response.Embeddings[0]) == 0 {
		return nil, domain.WrapError(domain.ErrCollaborator, "embed", errors.New("empty embedding result"))
	}
	return response.Embeddings[0], nil
}

// EmbedBatch runs sequential Embed calls; the limiter provides the
// inter-call spacing.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for _, text := range texts {
		vector, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, vector)
	}
	return vectors, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt string) (string, error) {
	text, err := g.client.generate(ctx, prompt, false)
	if err != nil {
		return "", wrapCollaborator("generate", err)
	}
	return text, nil
}

// GenerateStructured asks for JSON-mode output and decodes it through the
// shared structured-payload extraction, so every call site gets the same
// fence stripping and typed parse failures.
func (g *Generator) GenerateStructured(ctx context.Context, prompt string, out any) error {
	raw, err := g.client.generate(ctx, prompt, true)
	if err != nil {
		return wrapCollaborator("generate structured", err)
	}
	return DecodeStructured(raw, out)
}

func (c *Client) generate(ctx context.Context, prompt string, jsonMode bool) (string, error) {
	request := map[string]any{
		"model":  c.genModel,
		"prompt": prompt,
		"stream": false,
	}
	if jsonMode {
		request["format"] = "json"
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := c.postJSON(ctx, "/api/generate", request, &response, "generate"); err != nil {
		return "", err
	}
	return strings.TrimSpace(response.Response), nil
}

func wrapCollaborator(operation string, err error) error {
	if err == nil {
		return nil
	}
	if domain.IsKind(err, domain.ErrCollaborator) {
		return err
	}
	return domain.WrapError(domain.ErrCollaborator, operation, wrapTemporaryIfNeeded(operation, err))
}
