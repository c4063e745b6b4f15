package ollama

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newServer(t *testing.T, status int) (*httptest.Server, *chatRequest) {
	t.Helper()
	var got chatRequest
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("Ollama is running"))
	})
	mux.HandleFunc("/api/chat", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if status != http.StatusOK {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"busy"}`))
			return
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"{\"status\":\"ok\"}"},"done":true}`))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, &got
}

func newClient(t *testing.T, url string) (*Client, *credentials.LocalEndpoint) {
	t.Helper()
	ep, err := NewEndpoint(url, "llama3:8b", time.Second, credentials.PoolOptions{})
	require.NoError(t, err)
	return NewClient(ep, time.Second, nil), ep
}

func TestGenerate(t *testing.T) {
	srv, got := newServer(t, http.StatusOK)
	c, _ := newClient(t, srv.URL)

	temp := 0.2
	text, err := c.Generate(context.Background(), "", []domain.Message{
		{Role: domain.RoleUser, Content: "ping"},
	}, &domain.GenerationConfig{Temperature: &temp, JSON: true})
	require.NoError(t, err)

	assert.Equal(t, `{"status":"ok"}`, text)
	assert.Equal(t, "llama3:8b", got.Model)
	assert.Equal(t, "json", got.Format)
	assert.False(t, got.Stream)
	require.NotNil(t, got.Options)
	assert.InDelta(t, 0.2, *got.Options.Temperature, 1e-9)
}

func TestGenerate_ServerErrorIsBackendError(t *testing.T) {
	srv, _ := newServer(t, http.StatusInternalServerError)
	c, ep := newClient(t, srv.URL)

	_, err := c.Generate(context.Background(), "", []domain.Message{{Role: domain.RoleUser, Content: "x"}}, nil)
	require.Error(t, err)

	var be *domain.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, domain.KindNetwork, be.Kind)
	assert.Equal(t, http.StatusInternalServerError, be.StatusCode)
	assert.True(t, ep.Available())
}

func TestGenerate_QuotaExhaustsEndpoint(t *testing.T) {
	srv, _ := newServer(t, http.StatusTooManyRequests)
	c, ep := newClient(t, srv.URL)

	_, err := c.Generate(context.Background(), "", []domain.Message{{Role: domain.RoleUser, Content: "x"}}, nil)
	assert.ErrorIs(t, err, domain.ErrPoolExhausted)
	assert.False(t, ep.Available())
}

func TestIsAvailable(t *testing.T) {
	srv, _ := newServer(t, http.StatusOK)
	c, _ := newClient(t, srv.URL)
	assert.True(t, c.IsAvailable(context.Background()))

	srv.Close()
	assert.False(t, c.IsAvailable(context.Background()))
}
