package gemini

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/safety-analyzer/pkg/client"
)

func TestGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1beta/models/test-model:generateContent", r.URL.Path)
		assert.Equal(t, "key-1", r.Header.Get("x-goog-api-key"))

		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Contents, 1)
		assert.Equal(t, "hello", req.Contents[0].Parts[0].Text)
		assert.Equal(t, 0.2, req.GenerationConfig.Temperature)

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"first"},{"text":"second"}]}}]}`))
	}))
	defer srv.Close()

	c := NewClient(Config{Endpoint: srv.URL + "/", Model: "test-model", Temperature: 0.2})
	text, err := c.Generate(context.Background(), "key-1", "hello")
	require.NoError(t, err)
	assert.Equal(t, "first", text)
	assert.Equal(t, "gemini", c.Name())
}

func TestGenerateStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"quota"}}`))
	}))
	defer srv.Close()

	_, err := NewClient(Config{Endpoint: srv.URL}).Generate(context.Background(), "k", "p")
	require.Error(t, err)

	var se *client.StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusTooManyRequests, se.Code)
	assert.Contains(t, se.Body, "quota")
	assert.NotContains(t, err.Error(), "quota")
}

func TestGenerateMalformedEnvelope(t *testing.T) {
	bodies := []string{`not json`, `{"candidates":[]}`, `{"candidates":[{"content":{"parts":[]}}]}`}
	for _, body := range bodies {
		t.Run(body, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			}))
			defer srv.Close()

			_, err := NewClient(Config{Endpoint: srv.URL}).Generate(context.Background(), "k", "p")
			assert.True(t, errors.Is(err, client.ErrMalformedResponse))
		})
	}
}

func TestGenerateHonoursContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewClient(Config{Endpoint: srv.URL}).Generate(ctx, "k", "p")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
