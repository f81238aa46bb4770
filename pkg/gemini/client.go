// Package gemini is a text-generation backend for the Gemini generateContent API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/safety-analyzer/pkg/client"
)

const (
	DefaultEndpoint = "https://generativelanguage.googleapis.com"
	DefaultModel    = "gemini-1.5-flash"
)

// Config holds the endpoint and generation parameters
type Config struct {
	Endpoint        string
	Model           string
	Temperature     float64
	MaxOutputTokens int
}

// Client calls generateContent with one API key per call
type Client struct {
	config     Config
	httpClient *http.Client
}

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type generationConfig struct {
	Temperature     float64 `json:"temperature"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type generateRequest struct {
	Contents         []content        `json:"contents"`
	GenerationConfig generationConfig `json:"generationConfig"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
}

type generateResponse struct {
	Candidates []candidate `json:"candidates"`
}

// NewClient creates a Gemini client. Timeouts come from the caller's context.
func NewClient(config Config) *Client {
	return NewClientWithHTTP(config, &http.Client{})
}

// NewClientWithHTTP creates a Gemini client over a custom http.Client
func NewClientWithHTTP(config Config, httpClient *http.Client) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	config.Endpoint = strings.TrimSuffix(config.Endpoint, "/")
	return &Client{config: config, httpClient: httpClient}
}

// Name identifies the backend in logs
func (c *Client) Name() string {
	return "gemini"
}

// Generate sends the prompt and returns the first candidate's first text part
func (c *Client) Generate(ctx context.Context, apiKey, prompt string) (string, error) {
	req := generateRequest{
		Contents: []content{{Role: "user", Parts: []part{{Text: prompt}}}},
		GenerationConfig: generationConfig{
			Temperature:     c.config.Temperature,
			MaxOutputTokens: c.config.MaxOutputTokens,
		},
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent", c.config.Endpoint, c.config.Model)
	body, err := c.sendRequest(ctx, endpoint, apiKey, req)
	if err != nil {
		return "", err
	}

	var resp generateResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", errors.Wrap(client.ErrMalformedResponse, "gemini: decode envelope")
	}
	if len(resp.Candidates) == 0 || len(resp.Candidates[0].Content.Parts) == 0 {
		return "", errors.Wrap(client.ErrMalformedResponse, "gemini: no candidates in response")
	}

	return resp.Candidates[0].Content.Parts[0].Text, nil
}

func (c *Client) sendRequest(ctx context.Context, endpoint, apiKey string, payload interface{}) ([]byte, error) {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrap(err, "gemini: marshal request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return nil, errors.Wrap(err, "gemini: create request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "gemini: send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "gemini: read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.Wrap(&client.StatusError{Code: resp.StatusCode, Body: string(body)}, "gemini")
	}

	return body, nil
}
