package retrieval

import (
	"context"
	"fmt"
	"net/http"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultEmbeddingModel is the default OpenAI embeddings model. Its 1536
// dimensions match the [Schema] column type.
const DefaultEmbeddingModel = oai.EmbeddingModelTextEmbedding3Small

var _ Embedder = (*OpenAIEmbedder)(nil)

// OpenAIEmbedder implements [Embedder] using the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client oai.Client
	model  string
}

// EmbedderOption configures an OpenAIEmbedder.
type EmbedderOption func(*embedderConfig)

type embedderConfig struct {
	baseURL string
	timeout time.Duration
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) EmbedderOption {
	return func(c *embedderConfig) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) EmbedderOption {
	return func(c *embedderConfig) {
		c.timeout = d
	}
}

// NewOpenAIEmbedder constructs an embedder. If model is empty,
// [DefaultEmbeddingModel] is used.
func NewOpenAIEmbedder(apiKey, model string, opts ...EmbedderOption) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("retrieval: embedder apiKey must not be empty")
	}
	if model == "" {
		model = DefaultEmbeddingModel
	}

	cfg := &embedderConfig{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{Timeout: cfg.timeout}))
	}

	return &OpenAIEmbedder{client: oai.NewClient(reqOpts...), model: model}, nil
}

// Embed implements [Embedder].
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	resp, err := e.client.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: e.model,
		Input: oai.EmbeddingNewParamsInputUnion{
			OfString: param.NewOpt(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval: embed: %w", err)
	}
	if len(resp.Data) == 0 {
		return nil, fmt.Errorf("retrieval: empty embeddings response")
	}

	out := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		out[i] = float32(v)
	}
	return out, nil
}
