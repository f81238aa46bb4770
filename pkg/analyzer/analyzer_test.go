package analyzer

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/safety-analyzer/pkg/processing"
)

func createTestImage(width, height int) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{uint8((x * 255) / width), uint8((y * 255) / height), 128, 255})
		}
	}
	return img
}

func encodePNG(t *testing.T, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, createTestImage(w, h)))
	return buf.Bytes()
}

func TestInspect(t *testing.T) {
	a := New()
	info, err := a.Inspect(encodePNG(t, 200, 100))
	require.NoError(t, err)
	assert.Equal(t, 200, info.Width)
	assert.Equal(t, 100, info.Height)
	assert.Equal(t, "png", info.Format)
	assert.Equal(t, 2.0, info.AspectRatio)
	assert.Positive(t, info.Bytes)
}

func TestInspectRejects(t *testing.T) {
	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, createTestImage(64, 64), nil))

	tests := []struct {
		name   string
		config Config
		data   []byte
	}{
		{"empty", DefaultConfig(), nil},
		{"garbage", DefaultConfig(), []byte("hello world")},
		{"too small", DefaultConfig(), encodePNG(t, 10, 100)},
		{"too large", Config{SupportedFormats: []string{"png"}, MaxImageBytes: 10}, encodePNG(t, 64, 64)},
		{"unsupported format", Config{SupportedFormats: []string{"png"}}, jpg.Bytes()},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewWithConfig(tt.config).Inspect(tt.data)
			assert.True(t, errors.Is(err, ErrInvalidImage))
		})
	}
}

func TestDecodePayload(t *testing.T) {
	raw := encodePNG(t, 64, 48)
	data, info, err := New().DecodePayload("data:image/png;base64," + processing.EncodeBase64(raw))
	require.NoError(t, err)
	assert.Equal(t, raw, data)
	assert.Equal(t, 48, info.Height)

	_, _, err = New().DecodePayload("")
	assert.True(t, errors.Is(err, ErrInvalidImage))
	_, _, err = New().DecodePayload("%%%")
	assert.True(t, errors.Is(err, ErrInvalidImage))
}
