package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/finqa/internal/core/domain"
	"github.com/custodia-labs/finqa/internal/core/ports/driven"
)

func newTestLLM(t *testing.T, handler http.HandlerFunc) *LLMService {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	s, err := NewLLMService(LLMConfig{APIKey: "k", BaseURL: srv.URL, Model: "gpt-4"})
	require.NoError(t, err)
	return s
}

func TestNewLLMService(t *testing.T) {
	_, err := NewLLMService(LLMConfig{})
	assert.Error(t, err)

	s, err := NewLLMService(LLMConfig{APIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, DefaultLLMModel, s.ModelName())
	assert.Equal(t, DefaultBaseURL, s.baseURL)
	assert.NoError(t, s.Close())
}

func TestLLMService_Generate(t *testing.T) {
	tests := []struct {
		name       string
		opts       driven.GenerateOptions
		wantFormat bool
	}{
		{"text", driven.GenerateOptions{Temperature: 0, MaxTokens: 50}, false},
		{"json", driven.GenerateOptions{Temperature: 0.1, JSON: true}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw map[string]any
			s := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/chat/completions", r.URL.Path)
				assert.Equal(t, "Bearer k", r.Header.Get("Authorization"))
				assert.NoError(t, json.NewDecoder(r.Body).Decode(&raw))
				_, _ = w.Write([]byte(`{"choices": [{"message": {"content": "answer"}}]}`))
			})

			out, err := s.Generate(context.Background(), "prompt", tt.opts)
			require.NoError(t, err)
			assert.Equal(t, "answer", out)

			assert.Equal(t, "gpt-4", raw["model"])
			assert.Contains(t, raw, "temperature")
			_, hasFormat := raw["response_format"]
			assert.Equal(t, tt.wantFormat, hasFormat)
		})
	}
}

func TestLLMService_GenerateErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		is     error
	}{
		{"rate limited", http.StatusTooManyRequests, `{"error": {"message": "slow down"}}`, domain.ErrRateLimited},
		{"api error", http.StatusBadRequest, `{"error": {"message": "bad model"}}`, nil},
		{"no choices", http.StatusOK, `{"choices": []}`, nil},
		{"garbage", http.StatusBadGateway, `<html>`, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestLLM(t, func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			_, err := s.Generate(context.Background(), "p", driven.GenerateOptions{})
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
		})
	}
}

func TestLLMService_Ping(t *testing.T) {
	s := newTestLLM(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	assert.NoError(t, s.Ping(context.Background()))

	failing := newTestLLM(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusUnauthorized)
	})
	assert.Error(t, failing.Ping(context.Background()))
}
