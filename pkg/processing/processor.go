// Package processing handles image payload decoding, probing and re-encoding.
package processing

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	_ "golang.org/x/image/webp"
)

// ErrUnsupportedImage is returned when a payload cannot be decoded as an image
var ErrUnsupportedImage = errors.New("image: unknown or unsupported format")

// ErrInvalidPayload is returned for empty or non-base64 image payloads
var ErrInvalidPayload = errors.New("image: invalid base64 payload")

const maxDownloadBytes = 32 << 20

// Processor handles image processing operations
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// StripDataURI drops a leading "data:<mime>;base64," prefix if present
func StripDataURI(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ","); i >= 0 {
			return s[i+1:]
		}
	}
	return s
}

// DecodeBase64 decodes a base64 image payload, with or without a data URI
// prefix and with or without padding
func DecodeBase64(s string) ([]byte, error) {
	s = StripDataURI(s)
	if s == "" {
		return nil, errors.Wrap(ErrInvalidPayload, "empty")
	}
	s = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, s)

	for _, enc := range []*base64.Encoding{base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding} {
		if data, err := enc.DecodeString(s); err == nil && len(data) > 0 {
			return data, nil
		}
	}
	return nil, ErrInvalidPayload
}

// EncodeBase64 is the inverse of DecodeBase64 without a data URI prefix
func EncodeBase64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// Dimensions reads width, height and format from the image header only
func (p *Processor) Dimensions(data []byte) (int, int, string, error) {
	if cfg, format, err := image.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, format, nil
	}
	if cfg, err := webp.DecodeConfig(bytes.NewReader(data)); err == nil {
		return cfg.Width, cfg.Height, "webp", nil
	}
	return 0, 0, "", ErrUnsupportedImage
}

// Decode decodes an image from byte data with WebP support
func (p *Processor) Decode(data []byte) (image.Image, string, error) {
	if img, format, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, format, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, "webp", nil
	}
	return nil, "", ErrUnsupportedImage
}

// PrepareForUpload downscales an image whose longer side exceeds maxDim and
// re-encodes it as JPEG. Images already within bounds are returned unchanged.
func (p *Processor) PrepareForUpload(data []byte, maxDim, quality int) ([]byte, error) {
	if maxDim <= 0 {
		return data, nil
	}
	w, h, format, err := p.Dimensions(data)
	if err != nil {
		return nil, err
	}
	if w <= maxDim && h <= maxDim && format != "webp" {
		return data, nil
	}

	img, _, err := p.Decode(data)
	if err != nil {
		return nil, err
	}
	if w > maxDim || h > maxDim {
		if w >= h {
			img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
		} else {
			img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
		}
	}

	if quality <= 0 || quality > 100 {
		quality = 90
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, errors.Wrap(err, "encode upload image")
	}
	return buf.Bytes(), nil
}

// LoadSource reads raw image bytes from a file path or an http(s) URL
func (p *Processor) LoadSource(ctx context.Context, source string) ([]byte, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.download(ctx, source)
	}
	data, err := os.ReadFile(source)
	if err != nil {
		return nil, errors.Wrapf(err, "read %s", source)
	}
	return data, nil
}

func (p *Processor) download(ctx context.Context, imageURL string) ([]byte, error) {
	if _, err := url.Parse(imageURL); err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("User-Agent", "Safety-Analyzer/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "failed to download image")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "image/") {
		return nil, errors.Errorf("URL does not point to an image (Content-Type: %s)", ct)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDownloadBytes))
	if err != nil {
		return nil, errors.Wrap(err, "failed to read image data")
	}
	return data, nil
}

// SaveImage saves an image to a file with the format implied by its extension
func (p *Processor) SaveImage(img image.Image, path string, quality int) error {
	low := strings.ToLower(path)
	switch {
	case strings.HasSuffix(low, ".webp"):
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Quality: float32(quality)})
	case strings.HasSuffix(low, ".png"):
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		return enc.Encode(f, img)
	default:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}
