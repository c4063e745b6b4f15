package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/aescanero/dagent/pkg/adapters/credentials"
	"github.com/aescanero/dagent/pkg/adapters/llm/hybrid"
	"github.com/aescanero/dagent/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStack_Single(t *testing.T) {
	stack, err := NewStack(&Config{
		Provider:    credentials.ProviderOllama,
		OllamaURL:   "http://127.0.0.1:11434",
		OllamaModel: "llama3:8b",
	})
	require.NoError(t, err)
	assert.Equal(t, "ollama", stack.Backend.Name())

	provider, model := stack.Credentials.Active()
	assert.Equal(t, credentials.ProviderOllama, provider)
	assert.Equal(t, "llama3:8b", model)
}

func TestNewStack_Hybrid(t *testing.T) {
	stack, err := NewStack(&Config{
		Provider:       ProviderHybrid,
		HybridOrder:    []string{credentials.ProviderAnthropic, credentials.ProviderOllama},
		AnthropicKeys:  []credentials.Source{{Label: "ANTHROPIC_API_KEY", Value: "k"}},
		AnthropicModel: "claude-test",
		OllamaURL:      "http://127.0.0.1:11434",
	})
	require.NoError(t, err)

	composite, ok := stack.Backend.(*hybrid.Backend)
	require.True(t, ok)
	assert.Len(t, composite.Backends(), 2)
	assert.Equal(t, "hybrid(anthropic,ollama)", composite.Name())

	provider, _ := stack.Credentials.Active()
	assert.Equal(t, credentials.ProviderAnthropic, provider)
	assert.Len(t, stack.Credentials.Status(), 2)
}

func TestNewStack_Errors(t *testing.T) {
	_, err := NewStack(&Config{Provider: "gemini"})
	assert.Error(t, err)

	_, err = NewStack(&Config{Provider: credentials.ProviderAnthropic})
	assert.Error(t, err)

	_, err = NewStack(&Config{Provider: ProviderHybrid})
	assert.Error(t, err)
}

func TestNewStack_SwitchRoutesToActiveProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/chat":
			_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"from ollama"}}`))
		default:
			w.WriteHeader(http.StatusOK)
		}
	}))
	defer srv.Close()

	stack, err := NewStack(&Config{
		Provider:       credentials.ProviderAnthropic,
		AnthropicKeys:  []credentials.Source{{Label: "ANTHROPIC_API_KEY", Value: "k"}},
		AnthropicModel: "claude-test",
		OllamaURL:      srv.URL,
		LMStudioURL:    "http://127.0.0.1:1234",
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", stack.Backend.Name())
	assert.Len(t, stack.Credentials.Status(), 3)

	require.NoError(t, stack.Credentials.Switch(context.Background(), credentials.ProviderOllama, "llama3:8b"))
	assert.Equal(t, "ollama", stack.Backend.Name())

	text, err := stack.Backend.Generate(context.Background(), "", []domain.Message{{Role: domain.RoleUser, Content: "hi"}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "from ollama", text)
}
