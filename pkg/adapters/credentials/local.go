package credentials

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/aescanero/dagent/pkg/domain"
	"github.com/goccy/go-json"
)

// ModelListFormat selects how the model listing endpoint is decoded.
type ModelListFormat int

const (
	// FormatOllama decodes {"models": [{"name": ...}]}.
	FormatOllama ModelListFormat = iota
	// FormatOpenAI decodes {"data": [{"id": ...}]}.
	FormatOpenAI
)

// LocalClient is the handle of a local provider.
type LocalClient struct {
	BaseURL string
	HTTP    *http.Client
}

// URL joins the base URL and path.
func (c LocalClient) URL(path string) string {
	return strings.TrimRight(c.BaseURL, "/") + path
}

// LocalEndpointConfig configures a local provider endpoint.
type LocalEndpointConfig struct {
	Provider  string
	BaseURL   string
	ProbePath string
	ListPath  string
	Format    ModelListFormat
	Timeout   time.Duration
	Model     string
	Options   PoolOptions
}

// LocalEndpoint is a single-endpoint credential with a connectivity probe.
type LocalEndpoint struct {
	*Pool[LocalClient]
	probePath string
	listPath  string
	format    ModelListFormat
}

// NewLocalEndpoint creates the endpoint. An empty BaseURL yields an endpoint
// with no entries, so every lease fails with pool exhaustion.
func NewLocalEndpoint(cfg LocalEndpointConfig) (*LocalEndpoint, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	httpClient := &http.Client{Timeout: timeout}

	pool, err := NewPool(cfg.Provider, []Source{{Label: cfg.BaseURL, Value: cfg.BaseURL}},
		func(value string) (LocalClient, error) {
			return LocalClient{BaseURL: value, HTTP: httpClient}, nil
		}, cfg.Options)
	if err != nil {
		return nil, err
	}
	pool.SetModel(cfg.Model)

	return &LocalEndpoint{
		Pool:      pool,
		probePath: cfg.ProbePath,
		listPath:  cfg.ListPath,
		format:    cfg.Format,
	}, nil
}

// HealthCheck issues the lightweight probe request. A successful probe
// revives the endpoint; a failed one marks it EXHAUSTED.
func (e *LocalEndpoint) HealthCheck(ctx context.Context) (int, error) {
	statuses := e.GetPoolStatus()
	if len(statuses) == 0 {
		return 0, fmt.Errorf("%s: %w", e.Provider(), domain.ErrPoolExhausted)
	}
	client := e.entryClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.URL(e.probePath), nil)
	if err != nil {
		return 0, fmt.Errorf("failed to build probe request: %w", err)
	}

	resp, err := client.HTTP.Do(req)
	if err != nil {
		berr := domain.NewBackendError(e.Provider(), 0, err)
		e.markDown(berr)
		return 0, berr
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		berr := domain.NewBackendError(e.Provider(), resp.StatusCode, fmt.Errorf("probe returned %s", resp.Status))
		e.markDown(berr)
		return resp.StatusCode, berr
	}

	if statuses[0].Status != domain.CredentialAlive {
		e.Reset()
	}
	return resp.StatusCode, nil
}

// ListModels returns the names of the models the endpoint serves.
func (e *LocalEndpoint) ListModels(ctx context.Context) ([]string, error) {
	if e.Len() == 0 {
		return nil, fmt.Errorf("%s: %w", e.Provider(), domain.ErrPoolExhausted)
	}
	client := e.entryClient()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.URL(e.listPath), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build list request: %w", err)
	}
	resp, err := client.HTTP.Do(req)
	if err != nil {
		return nil, domain.NewBackendError(e.Provider(), 0, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, domain.NewBackendError(e.Provider(), resp.StatusCode, fmt.Errorf("list models returned %s", resp.Status))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, domain.NewBackendError(e.Provider(), 0, err)
	}
	return decodeModels(e.format, body)
}

func (e *LocalEndpoint) entryClient() LocalClient {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.entries[0].client
}

func (e *LocalEndpoint) markDown(cause error) {
	e.mark(Lease[LocalClient]{Index: 0, Label: e.GetPoolStatus()[0].Label}, domain.CredentialExhausted, 0, cause)
}

func decodeModels(format ModelListFormat, body []byte) ([]string, error) {
	var names []string
	switch format {
	case FormatOpenAI:
		var payload struct {
			Data []struct {
				ID string `json:"id"`
			} `json:"data"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode model list: %w", err)
		}
		for _, m := range payload.Data {
			names = append(names, m.ID)
		}
	default:
		var payload struct {
			Models []struct {
				Name string `json:"name"`
			} `json:"models"`
		}
		if err := json.Unmarshal(body, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode model list: %w", err)
		}
		for _, m := range payload.Models {
			names = append(names, m.Name)
		}
	}
	return names, nil
}
