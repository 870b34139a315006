package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
)

// completionServer answers every chat completion with content and records the
// last request body and Authorization header.
func completionServer(t *testing.T, content string, body *map[string]any, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		if body != nil {
			assert.NoError(t, json.NewDecoder(r.Body).Decode(body))
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestClient_Generate(t *testing.T) {
	t.Setenv("LAB_LLM_KEY", "secret")

	var (
		body map[string]any
		auth string
	)
	srv := completionServer(t, "Overall Score=80. Dimension Scores=[8]", &body, &auth)

	c, err := NewClient(config.LLMConfig{Endpoint: srv.URL + "/v1/", APIKeyEnv: "LAB_LLM_KEY"}, nil)
	require.NoError(t, err)

	out, err := c.Generate(context.Background(), "gpt-4o-mini", "score this", map[string]any{
		"temperature": 0.0,
		"max_tokens":  512,
		"ignored":     "x",
	})
	require.NoError(t, err)
	assert.Equal(t, "Overall Score=80. Dimension Scores=[8]", out)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, 0.0, body["temperature"], "zero temperature is still sent")
	assert.Equal(t, float64(512), body["max_tokens"])
	messages, ok := body["messages"].([]any)
	require.True(t, ok)
	require.Len(t, messages, 1)
	assert.Equal(t, map[string]any{"role": "user", "content": "score this"}, messages[0])
}

func TestClient_GenerateWithoutKey(t *testing.T) {
	var auth string
	srv := completionServer(t, "ok", nil, &auth)

	c, err := NewClient(config.LLMConfig{Endpoint: srv.URL + "/v1", APIKeyEnv: "LAB_LLM_KEY_UNSET"}, nil)
	require.NoError(t, err)

	_, err = c.Generate(context.Background(), "local-model", "ping", nil)
	require.NoError(t, err)
	assert.Empty(t, auth)
}

func TestClient_GenerateErrors(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		wantErr string
	}{
		{
			name: "server error",
			handler: func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "overloaded", http.StatusServiceUnavailable)
			},
			wantErr: "503",
		},
		{
			name: "no choices",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[]}`))
			},
			wantErr: "no choices",
		},
		{
			name: "empty content",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"  "}}]}`))
			},
			wantErr: "empty",
		},
		{
			name: "malformed body",
			handler: func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(`{"choices":`))
			},
			wantErr: "failed to decode response",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(tt.handler)
			defer srv.Close()

			c, err := NewClient(config.LLMConfig{Endpoint: srv.URL}, nil)
			require.NoError(t, err)

			_, err = c.Generate(context.Background(), "m", "p", nil)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(config.LLMConfig{Endpoint: "  "}, nil)
	assert.ErrorContains(t, err, "endpoint is required")

	c, err := NewClient(config.LLMConfig{Endpoint: "localhost:1234/v1/"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1234/v1", c.baseURL)
	assert.Equal(t, DefaultTimeout, c.http.Timeout)

	_, err = c.Generate(context.Background(), "", "p", nil)
	assert.ErrorContains(t, err, "model is required")
}
