// Package ollama implements the local-secondary backend against an Ollama
// server (/api/chat, /api/tags).
package ollama

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/adapters/llm/localhttp"
	"github.com/aescanero/dagent/pkg/domain"
	"go.uber.org/zap"
)

const name = "ollama"

// Endpoint paths of the Ollama API.
const (
	ProbePath = "/"
	TagsPath  = "/api/tags"
	ChatPath  = "/api/chat"
)

// NewEndpoint creates the Ollama credential endpoint.
func NewEndpoint(baseURL, model string, timeout time.Duration, opts credentials.PoolOptions) (*credentials.LocalEndpoint, error) {
	return credentials.NewLocalEndpoint(credentials.LocalEndpointConfig{
		Provider:  credentials.ProviderOllama,
		BaseURL:   baseURL,
		ProbePath: ProbePath,
		ListPath:  TagsPath,
		Format:    credentials.FormatOllama,
		Timeout:   timeout,
		Model:     model,
		Options:   opts,
	})
}

type chatRequest struct {
	Model    string           `json:"model"`
	Messages []domain.Message `json:"messages"`
	Stream   bool             `json:"stream"`
	Format   string           `json:"format,omitempty"`
	Options  *chatOptions     `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature *float64 `json:"temperature,omitempty"`
	NumPredict  int      `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message struct {
		Content string `json:"content"`
	} `json:"message"`
}

// Client is the Ollama backend.
type Client struct {
	endpoint *credentials.LocalEndpoint
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient creates a new Ollama backend
func NewClient(endpoint *credentials.LocalEndpoint, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{endpoint: endpoint, timeout: timeout, logger: logger}
}

// Name returns the backend name.
func (c *Client) Name() string { return name }

// Generate sends a non-streaming chat request.
func (c *Client) Generate(ctx context.Context, model string, messages []domain.Message, cfg *domain.GenerationConfig) (string, error) {
	if model == "" {
		model = c.endpoint.Model()
	}
	if model == "" {
		return "", fmt.Errorf("ollama: no model selected")
	}

	req := chatRequest{Model: model, Messages: messages}
	if cfg != nil {
		if cfg.JSON {
			req.Format = "json"
		}
		if cfg.Temperature != nil || cfg.MaxTokens > 0 {
			req.Options = &chatOptions{Temperature: cfg.Temperature, NumPredict: cfg.MaxTokens}
		}
	}

	var content string
	err := c.endpoint.Do(ctx, func(ctx context.Context, client credentials.LocalClient) error {
		if c.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.timeout)
			defer cancel()
		}
		var resp chatResponse
		if err := localhttp.PostJSON(ctx, name, client, ChatPath, req, &resp); err != nil {
			return err
		}
		content = resp.Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("ollama generate completed",
		zap.String("model", model),
		zap.Int("chars", len(content)))
	return content, nil
}

// IsAvailable probes the server.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.endpoint.HealthCheck(ctx)
	return err == nil
}

// SupportsStructuredOutput is true: Ollama honours format=json.
func (c *Client) SupportsStructuredOutput() bool { return true }

// SupportsFunctionCalling is false for this backend.
func (c *Client) SupportsFunctionCalling() bool { return false }
