package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aescanero/dagent/internal/application/gate"
	"github.com/aescanero/dagent/internal/application/healing"
	"github.com/aescanero/dagent/internal/application/nodes"
	"github.com/aescanero/dagent/internal/application/orchestrator"
	"github.com/aescanero/dagent/internal/application/scheduler"
	"github.com/aescanero/dagent/pkg/adapters/credentials"
	eventsmemory "github.com/aescanero/dagent/pkg/adapters/events/memory"
	storagememory "github.com/aescanero/dagent/pkg/adapters/storage/memory"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticAdvisor struct{}

func (staticAdvisor) EstimateConcurrencyLimit(ctx context.Context, base int) (int, domain.LoadLevel, error) {
	return base * 2, domain.LoadLight, nil
}

type echoBackend struct{}

func (echoBackend) Name() string { return "echo" }
func (echoBackend) Generate(ctx context.Context, model string, messages []domain.Message, cfg *domain.GenerationConfig) (string, error) {
	return "echo: " + messages[len(messages)-1].Content, nil
}
func (echoBackend) IsAvailable(ctx context.Context) bool { return true }
func (echoBackend) SupportsStructuredOutput() bool       { return false }
func (echoBackend) SupportsFunctionCalling() bool        { return false }

type fixture struct {
	handler http.Handler
	creds   *credentials.Manager
	pool    *credentials.Pool[string]
	sched   *scheduler.Scheduler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ollama := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[{"name":"llama3:8b"},{"name":"qwen2:7b"}]}`))
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(ollama.Close)

	pool, err := credentials.NewPool(credentials.ProviderAnthropic,
		[]credentials.Source{{Label: "ANTHROPIC_API_KEY", Value: "k"}},
		func(v string) (string, error) { return v, nil },
		credentials.PoolOptions{})
	require.NoError(t, err)
	pool.SetModel("claude-test")

	local, err := credentials.NewLocalEndpoint(credentials.LocalEndpointConfig{
		Provider:  credentials.ProviderOllama,
		BaseURL:   ollama.URL,
		ProbePath: "/",
		ListPath:  "/api/tags",
		Format:    credentials.FormatOllama,
	})
	require.NoError(t, err)

	creds := credentials.NewManager(nil)
	creds.Register(pool)
	creds.Register(local)

	bus := eventsmemory.NewInMemoryEventBus(nil)
	t.Cleanup(func() { _ = bus.Close() })

	sched := scheduler.New(scheduler.Config{BaseConcurrency: 2}, staticAdvisor{}, healing.NewMiddleware(2, nil), nil, nil, nil)
	builder := nodes.NewBuilder(echoBackend{}, gate.New(gate.DefaultUnsafeTools, nil, nil), nil, nil)
	manager := orchestrator.NewManager(sched, builder, bus, storagememory.NewInMemoryStateStorage(), nil,
		orchestrator.NewValidator(2), nil, time.Minute)
	t.Cleanup(func() { _ = manager.Shutdown(context.Background()) })

	srv := NewServer(&Config{
		Addr:         ":0",
		Orchestrator: manager,
		Scheduler:    sched,
		Credentials:  creds,
		Gatherer:     prometheus.NewRegistry(),
	})

	return &fixture{handler: srv.Handler(), creds: creds, pool: pool, sched: sched}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])

	lease, err := f.pool.GetCurrentClient()
	require.NoError(t, err)
	f.pool.MarkExhausted(lease, errors.New("quota exceeded"))
	// The local endpoint still counts as available.
	rec = f.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestSubmitAndGetRun(t *testing.T) {
	f := newFixture(t)

	body := `{
		"workflow": {
			"name": "echo",
			"entry": "writer",
			"nodes": [{"type": "llm", "name": "writer", "prompt_key": "task"}]
		},
		"inputs": {"task": "hello"}
	}`
	rec := f.do(t, http.MethodPost, "/api/v1/runs", body)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	runID, _ := decode(t, rec)["run_id"].(string)
	require.NotEmpty(t, runID)

	var run map[string]any
	assert.Eventually(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/v1/runs/"+runID, "")
		if rec.Code != http.StatusOK {
			return false
		}
		run = decode(t, rec)
		return run["status"] == string(domain.RunCompleted)
	}, 3*time.Second, 20*time.Millisecond)

	state, _ := run["state"].(map[string]any)
	fields, _ := state["domain"].(map[string]any)
	assert.Equal(t, "echo: hello", fields["writer"])

	rec = f.do(t, http.MethodGet, "/api/v1/runs", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), decode(t, rec)["total"])
}

func TestSubmitRun_Invalid(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/v1/runs", `{"workflow": {"name": "w", "entry": "ghost", "nodes": [{"name": "a", "prompt_key": "p"}]}}`)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "SUBMISSION_FAILED")

	rec = f.do(t, http.MethodPost, "/api/v1/runs", `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetRun_NotFound(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodGet, "/api/v1/runs/missing", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(t, http.MethodPost, "/api/v1/runs/missing/cancel", "").Code)
}

func TestPoolStatusAndReset(t *testing.T) {
	f := newFixture(t)

	lease, err := f.pool.GetCurrentClient()
	require.NoError(t, err)
	f.pool.MarkExhausted(lease, errors.New("quota exceeded"))

	rec := f.do(t, http.MethodGet, "/api/v1/pool", "")
	require.Equal(t, http.StatusOK, rec.Code)
	out := decode(t, rec)
	assert.Equal(t, credentials.ProviderAnthropic, out["active"])
	assert.Contains(t, rec.Body.String(), string(domain.CredentialExhausted))

	rec = f.do(t, http.MethodPost, "/api/v1/pool/reset", `{"provider": "anthropic"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, f.pool.Available())

	rec = f.do(t, http.MethodPost, "/api/v1/pool/reset", `{"provider": "gemini"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSwitchProviderAndModels(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/v1/models?provider=ollama", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"llama3:8b", "qwen2:7b"}, decode(t, rec)["models"])

	rec = f.do(t, http.MethodPost, "/api/v1/provider", `{"provider": "ollama"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	out := decode(t, rec)
	assert.Equal(t, "ollama", out["provider"])
	assert.Equal(t, "llama3:8b", out["model"])

	provider, _ := f.creds.Active()
	assert.Equal(t, credentials.ProviderOllama, provider)

	rec = f.do(t, http.MethodGet, "/api/v1/models", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "llama3:8b", decode(t, rec)["selected"])

	rec = f.do(t, http.MethodPost, "/api/v1/provider", `{"provider": "gemini"}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/v1/models?provider=anthropic", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{"claude-test"}, decode(t, rec)["models"])
}

func TestScaling(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.sched.UpdateScalingPolicy(context.Background()))

	rec := f.do(t, http.MethodGet, "/api/v1/scaling", "")
	require.Equal(t, http.StatusOK, rec.Code)
	policy, _ := decode(t, rec)["policy"].(map[string]any)
	assert.Equal(t, float64(4), policy["max_concurrency"])
	assert.Equal(t, string(domain.LoadLight), policy["load_level"])
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodOptions, "/api/v1/runs", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.True(t, strings.Contains(rec.Header().Get("Access-Control-Allow-Methods"), "POST"))
}
