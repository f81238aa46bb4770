// Package analyzer validates inbound image payloads before detection.
package analyzer

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/menta2k/safety-analyzer/pkg/processing"
)

// ErrInvalidImage is wrapped by every rejection. Callers map it to a client error.
var ErrInvalidImage = errors.New("invalid image")

// ImageAnalyzer checks image payloads against intake limits
type ImageAnalyzer struct {
	config    Config
	processor *processing.Processor
}

// Config holds intake limits
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	MaxImageBytes    int
}

// ImageInfo contains basic image metadata read from the header
type ImageInfo struct {
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Format      string  `json:"format"`
	Bytes       int     `json:"bytes"`
	AspectRatio float64 `json:"aspectRatio"`
}

// DefaultConfig accepts the formats the vision upload path can re-encode
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
		MinImageSize:     32,
		MaxImageBytes:    15 << 20,
	}
}

// New creates an ImageAnalyzer with default limits
func New() *ImageAnalyzer {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates an ImageAnalyzer with custom limits
func NewWithConfig(config Config) *ImageAnalyzer {
	return &ImageAnalyzer{config: config, processor: processing.NewProcessor()}
}

// DecodePayload decodes a base64 (optionally data-URI) payload and inspects it
func (a *ImageAnalyzer) DecodePayload(payload string) ([]byte, ImageInfo, error) {
	data, err := processing.DecodeBase64(payload)
	if err != nil {
		return nil, ImageInfo{}, errors.Wrap(ErrInvalidImage, err.Error())
	}
	info, err := a.Inspect(data)
	if err != nil {
		return nil, ImageInfo{}, err
	}
	return data, info, nil
}

// Inspect reads the image header and applies format, size and byte limits
func (a *ImageAnalyzer) Inspect(data []byte) (ImageInfo, error) {
	if len(data) == 0 {
		return ImageInfo{}, errors.Wrap(ErrInvalidImage, "empty image")
	}
	if a.config.MaxImageBytes > 0 && len(data) > a.config.MaxImageBytes {
		return ImageInfo{}, errors.Wrapf(ErrInvalidImage, "image too large: %d bytes (maximum: %d)", len(data), a.config.MaxImageBytes)
	}

	w, h, format, err := a.processor.Dimensions(data)
	if err != nil {
		return ImageInfo{}, errors.Wrap(ErrInvalidImage, "unrecognised image data")
	}
	if !a.isFormatSupported(format) {
		return ImageInfo{}, errors.Wrapf(ErrInvalidImage, "unsupported image format: %s", format)
	}
	if w < a.config.MinImageSize || h < a.config.MinImageSize {
		return ImageInfo{}, errors.Wrapf(ErrInvalidImage, "image too small: %dx%d (minimum: %d)", w, h, a.config.MinImageSize)
	}

	return ImageInfo{
		Width:       w,
		Height:      h,
		Format:      format,
		Bytes:       len(data),
		AspectRatio: float64(w) / float64(h),
	}, nil
}

func (a *ImageAnalyzer) isFormatSupported(format string) bool {
	for _, supported := range a.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
