package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/safety-analyzer/pkg/client"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)

		var req api.ChatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3", req.Model)
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "scene", req.Messages[0].Content)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.ChatResponse{
			Model:   "llama3",
			Message: api.Message{Role: "assistant", Content: `{"risk_score": 10}`},
			Done:    true,
		})
	}))
	defer srv.Close()

	c := NewClient("llama3", 0.1)
	text, err := c.Generate(context.Background(), srv.URL+"/api/chat", "scene")
	require.NoError(t, err)
	assert.Equal(t, `{"risk_score": 10}`, text)
	assert.Equal(t, "ollama", c.Name())
}

func TestGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"model is loading"}`))
	}))
	defer srv.Close()

	_, err := NewClient("llama3", 0).Generate(context.Background(), srv.URL, "scene")
	require.Error(t, err)

	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
}

func TestGenerateEmptyResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(api.ChatResponse{Done: true})
	}))
	defer srv.Close()

	_, err := NewClient("llama3", 0).Generate(context.Background(), srv.URL, "scene")
	assert.True(t, errors.Is(err, client.ErrMalformedResponse))
}

func TestBaseURL(t *testing.T) {
	u, err := baseURL("http://gpu-1:11435/api/chat")
	require.NoError(t, err)
	assert.Equal(t, "http://gpu-1:11435", u.String())

	u, err = baseURL("")
	require.NoError(t, err)
	assert.Equal(t, DefaultHost, u.String())

	_, err = baseURL("not a host")
	assert.Error(t, err)
}
