package ollama

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"
	"github.com/pkg/errors"

	"github.com/menta2k/safety-analyzer/pkg/client"
)

// DefaultHost is used when a call carries no host credential
const DefaultHost = "http://localhost:11434"

// Client generates text through the Ollama chat API. The per-call credential
// is the base URL of an Ollama host, so failover walks a list of hosts.
type Client struct {
	model      string
	options    map[string]any
	httpClient *http.Client
}

// NewClient creates an Ollama backend for the given model
func NewClient(model string, temperature float64) *Client {
	return NewClientWithHTTP(model, temperature, http.DefaultClient)
}

// NewClientWithHTTP creates an Ollama backend over a custom http.Client
func NewClientWithHTTP(model string, temperature float64, httpClient *http.Client) *Client {
	return &Client{
		model:      model,
		options:    map[string]any{"temperature": temperature},
		httpClient: httpClient,
	}
}

// Name identifies the backend in logs
func (c *Client) Name() string {
	return "ollama"
}

// Generate performs a single non-streaming chat turn against host
func (c *Client) Generate(ctx context.Context, host, prompt string) (string, error) {
	base, err := baseURL(host)
	if err != nil {
		return "", err
	}
	cl := api.NewClient(base, c.httpClient)

	streamFalse := false
	req := &api.ChatRequest{
		Model: c.model,
		Messages: []api.Message{
			{
				Role:    "user",
				Content: prompt,
			},
		},
		Stream:  &streamFalse,
		Options: c.options,
	}

	var responseContent string
	err = cl.Chat(ctx, req, func(resp api.ChatResponse) error {
		responseContent += resp.Message.Content
		return nil
	})
	if err != nil {
		var se api.StatusError
		if errors.As(err, &se) {
			return "", errors.Wrap(&client.StatusError{Code: se.StatusCode, Body: se.ErrorMessage}, "ollama")
		}
		return "", errors.Wrap(err, "ollama chat")
	}

	if strings.TrimSpace(responseContent) == "" {
		return "", errors.Wrap(client.ErrMalformedResponse, "ollama: empty response")
	}

	return responseContent, nil
}

// baseURL strips any path such as /api/chat from the host
func baseURL(host string) (*url.URL, error) {
	if host == "" {
		host = DefaultHost
	}
	parsedURL, err := url.Parse(host)
	if err != nil {
		return nil, errors.Wrap(err, "ollama: invalid host")
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, errors.Errorf("ollama: invalid host %q", host)
	}
	return &url.URL{
		Scheme: parsedURL.Scheme,
		Host:   parsedURL.Host,
	}, nil
}
