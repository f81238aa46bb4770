// Package vision adapts a hosted object-detection API (Roboflow-style) to the
// raw detection shape consumed by the detection normalizer.
package vision

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/menta2k/safety-analyzer/pkg/processing"
	"github.com/menta2k/safety-analyzer/pkg/types"
)

// ErrUnavailable means detection could not be performed. It is distinct from
// an empty result, which is a valid "nothing detected" answer.
var ErrUnavailable = errors.New("vision service unavailable")

const (
	DefaultEndpoint     = "https://detect.roboflow.com"
	DefaultTimeout      = 20 * time.Second
	DefaultMaxUploadDim = 1280
	uploadQuality       = 90
)

// Config describes the hosted detection model
type Config struct {
	Endpoint string
	// Model is the "<project>/<version>" path of the hosted model
	Model         string
	APIKey        string
	Timeout       time.Duration
	MaxUploadDim  int
	MinConfidence float64
}

// Client calls the hosted detection API
type Client struct {
	config     Config
	httpClient *http.Client
	processor  *processing.Processor
	logger     *zap.Logger
}

// Option customises a Client
type Option func(*Client)

// WithHTTPClient replaces the default http.Client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger for upstream diagnostics
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

type prediction struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Width      float64 `json:"width"`
	Height     float64 `json:"height"`
	Confidence float64 `json:"confidence"`
	Class      string  `json:"class"`
}

type inferResponse struct {
	Predictions *[]prediction `json:"predictions"`
	Image       struct {
		Width  float64 `json:"width"`
		Height float64 `json:"height"`
	} `json:"image"`
}

// NewClient creates a vision client
func NewClient(config Config, opts ...Option) *Client {
	if config.Endpoint == "" {
		config.Endpoint = DefaultEndpoint
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.MaxUploadDim == 0 {
		config.MaxUploadDim = DefaultMaxUploadDim
	}
	config.Endpoint = strings.TrimSuffix(config.Endpoint, "/")
	config.Model = strings.Trim(config.Model, "/")

	c := &Client{
		config:     config,
		httpClient: &http.Client{},
		processor:  processing.NewProcessor(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether an API key and model are set
func (c *Client) Configured() bool {
	return c.config.APIKey != "" && c.config.Model != ""
}

// Detect uploads the image and returns detections as center-fractional boxes
// together with the original image dimensions
func (c *Client) Detect(ctx context.Context, image []byte) (*types.DetectionSet, error) {
	if !c.Configured() {
		return nil, errors.Wrap(ErrUnavailable, "vision API key or model not configured")
	}

	width, height, _, err := c.processor.Dimensions(image)
	if err != nil {
		return nil, err
	}

	upload, err := c.processor.PrepareForUpload(image, c.config.MaxUploadDim, uploadQuality)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	start := time.Now()
	body, err := c.sendRequest(ctx, upload)
	if err != nil {
		return nil, err
	}

	var resp inferResponse
	if err := json.Unmarshal(body, &resp); err != nil || resp.Predictions == nil {
		c.logger.Warn("vision response malformed", zap.String("body", truncate(string(body))))
		return nil, errors.Wrap(ErrUnavailable, "malformed detection response")
	}

	// pixel predictions are in the coordinate space of the uploaded image;
	// without reported dimensions, all-fractional values are already relative
	refW, refH := resp.Image.Width, resp.Image.Height
	fractional := (refW <= 0 || refH <= 0) && allFractional(*resp.Predictions)
	if fractional {
		refW, refH = 1, 1
	} else if refW <= 0 || refH <= 0 {
		uw, uh, _, err := c.processor.Dimensions(upload)
		if err != nil {
			return nil, errors.Wrap(ErrUnavailable, "cannot determine reference dimensions")
		}
		refW, refH = float64(uw), float64(uh)
	}

	set := &types.DetectionSet{
		Width:      width,
		Height:     height,
		Detections: make([]types.RawDetection, 0, len(*resp.Predictions)),
	}
	for _, p := range *resp.Predictions {
		if p.Confidence < c.config.MinConfidence {
			continue
		}
		set.Detections = append(set.Detections, types.RawDetection{
			Class: p.Class,
			Score: p.Confidence,
			BBox: []float64{
				clamp01(p.X / refW),
				clamp01(p.Y / refH),
				clamp01(p.Width / refW),
				clamp01(p.Height / refH),
			},
			Format: types.FormatCenter,
		})
	}

	c.logger.Debug("vision detection done",
		zap.Int("predictions", len(*resp.Predictions)),
		zap.Int("kept", len(set.Detections)),
		zap.Bool("fractional", fractional),
		zap.Duration("cost", time.Since(start)))
	return set, nil
}

func (c *Client) sendRequest(ctx context.Context, image []byte) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/%s?api_key=%s", c.config.Endpoint, c.config.Model, url.QueryEscape(c.config.APIKey))
	payload := processing.EncodeBase64(image)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(payload))
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, "create request")
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the key, so only the inner transport error is kept
		cause := transportCause(err)
		c.logger.Warn("vision request failed",
			zap.Bool("timeout", ctx.Err() != nil),
			zap.Error(cause))
		return nil, errors.Wrapf(ErrUnavailable, "request failed: %v", cause)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(ErrUnavailable, "read response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Warn("vision upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("body", truncate(string(body))))
		return nil, errors.Wrapf(ErrUnavailable, "upstream status %d", resp.StatusCode)
	}
	return body, nil
}

// transportCause strips the *url.Error wrapper, whose message includes the
// request URL
func transportCause(err error) error {
	var uerr *url.Error
	if errors.As(err, &uerr) && uerr.Err != nil {
		return uerr.Err
	}
	return err
}

func allFractional(preds []prediction) bool {
	if len(preds) == 0 {
		return false
	}
	for _, p := range preds {
		for _, v := range [4]float64{p.X, p.Y, p.Width, p.Height} {
			if v < 0 || v > 1 {
				return false
			}
		}
	}
	return true
}

func clamp01(v float64) float64 {
	if v != v || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func truncate(s string) string {
	const limit = 2048
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
