// Package anthropic implements the hosted-primary backend on the Anthropic
// Messages API. Requests rotate over a pool of API keys.
package anthropic

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/domain"
	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const name = "anthropic"

// Pool is the key pool of the hosted backend.
type Pool = credentials.Pool[anthropicsdk.Client]

// NewPool builds one SDK client per non-empty API key. SDK retries are
// disabled; failover is the pool's job.
func NewPool(keys []credentials.Source, model string, opts credentials.PoolOptions, clientOpts ...option.RequestOption) (*Pool, error) {
	pool, err := credentials.NewPool(credentials.ProviderAnthropic, keys, func(key string) (anthropicsdk.Client, error) {
		reqOpts := append([]option.RequestOption{
			option.WithAPIKey(key),
			option.WithMaxRetries(0),
		}, clientOpts...)
		return anthropicsdk.NewClient(reqOpts...), nil
	}, opts)
	if err != nil {
		return nil, err
	}
	pool.SetModel(model)
	return pool, nil
}

// Config holds hosted backend settings.
type Config struct {
	Timeout           time.Duration
	MaxTokens         int
	Temperature       float64
	RequestsPerSecond float64
}

// Client is the hosted-primary backend.
type Client struct {
	pool    *Pool
	cfg     Config
	limiter *rate.Limiter
	logger  *zap.Logger
}

// NewClient creates a new Anthropic backend
func NewClient(pool *Pool, cfg Config, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 4096
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{pool: pool, cfg: cfg, limiter: limiter, logger: logger}
}

// Name returns the backend name.
func (c *Client) Name() string { return name }

// Generate sends the conversation to the Messages API. Quota and auth
// failures rotate to the next key of the pool.
func (c *Client) Generate(ctx context.Context, model string, messages []domain.Message, cfg *domain.GenerationConfig) (string, error) {
	if model == "" {
		model = c.pool.Model()
	}
	params := c.buildParams(model, messages, cfg)

	var text string
	err := c.pool.Do(ctx, func(ctx context.Context, client anthropicsdk.Client) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return domain.NewBackendError(name, 0, err)
		}
		if c.cfg.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
			defer cancel()
		}

		msg, err := client.Messages.New(ctx, params)
		if err != nil {
			return classify(err)
		}
		text = collectText(msg)
		return nil
	})
	if err != nil {
		return "", err
	}

	c.logger.Debug("anthropic generate completed",
		zap.String("model", model),
		zap.Int("chars", len(text)))
	return text, nil
}

// IsAvailable reports whether an alive key remains. It makes no request.
func (c *Client) IsAvailable(ctx context.Context) bool {
	return c.pool.Available()
}

// SupportsStructuredOutput is false: the API has no JSON mode.
func (c *Client) SupportsStructuredOutput() bool { return false }

// SupportsFunctionCalling is true: the API supports tool use.
func (c *Client) SupportsFunctionCalling() bool { return true }

func (c *Client) buildParams(model string, messages []domain.Message, cfg *domain.GenerationConfig) anthropicsdk.MessageNewParams {
	maxTokens := c.cfg.MaxTokens
	temperature := c.cfg.Temperature
	if cfg != nil {
		if cfg.MaxTokens > 0 {
			maxTokens = cfg.MaxTokens
		}
		if cfg.Temperature != nil {
			temperature = *cfg.Temperature
		}
	}

	var system []string
	turns := make([]anthropicsdk.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case domain.RoleSystem:
			system = append(system, m.Content)
		case domain.RoleAssistant:
			turns = append(turns, anthropicsdk.NewAssistantMessage(anthropicsdk.NewTextBlock(m.Content)))
		default:
			turns = append(turns, anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(m.Content)))
		}
	}
	if cfg != nil && cfg.JSON {
		system = append(system, "Respond with a single JSON object only.")
	}

	params := anthropicsdk.MessageNewParams{
		Model:       anthropicsdk.Model(model),
		MaxTokens:   int64(maxTokens),
		Messages:    turns,
		Temperature: anthropicsdk.Float(temperature),
	}
	if len(system) > 0 {
		params.System = []anthropicsdk.TextBlockParam{{Text: strings.Join(system, "\n\n")}}
	}
	return params
}

func collectText(msg *anthropicsdk.Message) string {
	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String()
}

// classify converts SDK errors into backend errors.
func classify(err error) error {
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		return domain.NewBackendError(name, apiErr.StatusCode, err)
	}
	return domain.NewBackendError(name, 0, err)
}
