// Package lmstudio implements the local-alternate backend against the
// OpenAI-compatible API of LM Studio.
package lmstudio

import (
	"context"
	"fmt"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/adapters/llm/localhttp"
	"github.com/aescanero/dagent/pkg/domain"
	"go.uber.org/zap"
)

const name = "lmstudio"

// Endpoint paths of the OpenAI-compatible API.
const (
	ModelsPath = "/v1/models"
	ChatPath   = "/v1/chat/completions"
)

// NewEndpoint creates the LM Studio credential endpoint.
func NewEndpoint(baseURL, model string, timeout time.Duration, opts credentials.PoolOptions) (*credentials.LocalEndpoint, error) {
	return credentials.NewLocalEndpoint(credentials.LocalEndpointConfig{
		Provider:  credentials.ProviderLMStudio,
		BaseURL:   baseURL,
		ProbePath: ModelsPath,
		ListPath:  ModelsPath,
		Format:    credentials.FormatOpenAI,
		Timeout:   timeout,
		Model:     model,
		Options:   opts,
	})
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string           `json:"model"`
	Messages       []domain.Message `json:"messages"`
	Temperature    *float64         `json:"temperature,omitempty"`
	MaxTokens      int              `json:"max_tokens,omitempty"`
	Stream         bool             `json:"stream"`
	ResponseFormat *responseFormat  `json:"response_format,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// Client is the LM Studio backend.
type Client struct {
	endpoint *credentials.LocalEndpoint
	timeout  time.Duration
	logger   *zap.Logger
}

// NewClient creates a new LM Studio backend
func NewClient(endpoint *credentials.LocalEndpoint, timeout time.Duration, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{endpoint: endpoint, timeout: timeout, logger: logger}
}

// Name returns the backend name.
func (c *Client) Name() string { return name }

// Generate sends a chat completion request.
func (c *Client) Generate(ctx context.Context, model string, messages []domain.Message, cfg *domain.GenerationConfig) (string, error) {
	if model == "" {
		model = c.endpoint.Model()
	}
	if model == "" {
		return "", fmt.Errorf("lmstudio: no model selected")
	}

	req := chatRequest{Model: model, Messages: messages}
	if cfg != nil {
		req.Temperature = cfg.Temperature
		req.MaxTokens = cfg.MaxTokens
		if cfg.JSON {
			req.ResponseFormat = &responseFormat{Type: "json_object"}
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
		if len(resp.Choices) == 0 {
			return &domain.BackendError{Backend: name, Kind: domain.KindProtocol, Err: fmt.Errorf("response has no choices")}
		}
		content = resp.Choices[0].Message.Content
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("lmstudio generate completed", zap.String("model", model))
	return content, nil
}

// IsAvailable probes the model listing endpoint.
func (c *Client) IsAvailable(ctx context.Context) bool {
	_, err := c.endpoint.HealthCheck(ctx)
	return err == nil
}

// SupportsStructuredOutput is true: response_format json_object is honoured.
func (c *Client) SupportsStructuredOutput() bool { return true }

// SupportsFunctionCalling is true for the OpenAI-compatible API.
func (c *Client) SupportsFunctionCalling() bool { return true }
