package detection

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

const eps = 1e-6

func TestNew(t *testing.T) {
	n := New()
	require.NotNil(t, n)
	assert.Equal(t, 0.5, n.config.DefaultConfidence)
}

func TestNormalizeCenterFractional(t *testing.T) {
	n := New()

	human := n.Normalize(types.RawDetection{Class: "person", Score: 0.9, BBox: []any{0.5, 0.5, 0.2, 0.4}}, 1000, 1000)
	assert.Equal(t, types.Human, human.Category)
	assert.InDelta(t, 400, human.BBox.X, eps)
	assert.InDelta(t, 300, human.BBox.Y, eps)
	assert.InDelta(t, 200, human.BBox.Width, eps)
	assert.InDelta(t, 400, human.BBox.Height, eps)
	assert.InDelta(t, 500, human.Center.X, eps)
	assert.InDelta(t, 500, human.Center.Y, eps)
	assert.Equal(t, 0.9, human.Confidence)

	machine := n.Normalize(types.RawDetection{Class: "excavator", BBox: []any{0.52, 0.52, 0.3, 0.3}}, 1000, 1000)
	assert.Equal(t, types.Machinery, machine.Category)
	assert.InDelta(t, 370, machine.BBox.X, eps)
	assert.InDelta(t, 370, machine.BBox.Y, eps)
	assert.InDelta(t, 300, machine.BBox.Width, eps)
	assert.InDelta(t, 300, machine.BBox.Height, eps)
	assert.InDelta(t, 520, machine.Center.X, eps)
	assert.InDelta(t, 520, machine.Center.Y, eps)
}

func TestNormalizePixelPassThrough(t *testing.T) {
	n := New()
	d := n.Normalize(types.RawDetection{Class: "forklift", Score: 0.7, BBox: []float64{10, 20, 100, 50}}, 640, 480)

	assert.Equal(t, types.Box{X: 10, Y: 20, Width: 100, Height: 50}, d.BBox)
	assert.Equal(t, types.Point{X: 60, Y: 45}, d.Center)
}

func TestNormalizeExplicitFormat(t *testing.T) {
	n := New()

	// small pixel values would be read as fractions without the explicit format
	d := n.Normalize(types.RawDetection{Class: "person", BBox: []any{0.0, 1.0, 1.0, 1.0}, Format: types.FormatPixel}, 100, 100)
	assert.Equal(t, types.Box{X: 0, Y: 1, Width: 1, Height: 1}, d.BBox)

	d = n.Normalize(types.RawDetection{Class: "person", BBox: []any{0.5, 0.5, 1.0, 1.0}, Format: types.FormatCenter}, 100, 100)
	assert.Equal(t, types.Box{X: 0, Y: 0, Width: 100, Height: 100}, d.BBox)

	// the same tiny pixel box without a format is taken as fractional
	d = n.Normalize(types.RawDetection{Class: "person", BBox: []any{0.0, 0.0, 1.0, 1.0}}, 100, 100)
	assert.Equal(t, types.Box{X: 0, Y: 0, Width: 100, Height: 100}, d.BBox)
}

func TestNormalizeClamping(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		bbox any
		want types.Box
	}{
		{"negative origin", []any{-50.0, -20.0, 100.0, 100.0}, types.Box{X: 0, Y: 0, Width: 100, Height: 100}},
		{"overflowing extent", []any{150.0, 180.0, 100.0, 100.0}, types.Box{X: 150, Y: 180, Width: 50, Height: 20}},
		{"origin past the edge", []any{500.0, 500.0, 10.0, 10.0}, types.Box{X: 199, Y: 199, Width: 1, Height: 1}},
		{"negative extent", []any{10.0, 10.0, -5.0, -5.0}, types.Box{X: 10, Y: 10, Width: 0, Height: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := n.Normalize(types.RawDetection{Class: "person", BBox: tt.bbox}, 200, 200)
			assert.Equal(t, tt.want, d.BBox)
		})
	}
}

func TestNormalizeMalformedBoxDegradesToZero(t *testing.T) {
	n := New()

	tests := []struct {
		name string
		bbox any
	}{
		{"nil", nil},
		{"wrong length", []any{1.0, 2.0, 3.0}},
		{"non numeric", []any{"a", 2.0, 3.0, 4.0}},
		{"object", map[string]any{"x": 1}},
		{"nan", []float64{math.NaN(), 0, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := n.Normalize(types.RawDetection{Class: "person", Score: 0.8, BBox: tt.bbox}, 640, 480)
			assert.Equal(t, types.Box{}, d.BBox)
			assert.Equal(t, types.Point{}, d.Center)
			assert.Equal(t, types.Human, d.Category)
			assert.Equal(t, 0.8, d.Confidence)
		})
	}
}

func TestNormalizeConfidence(t *testing.T) {
	n := NewWithConfig(Config{DefaultConfidence: 0.5}, nil)
	box := []any{0.5, 0.5, 0.1, 0.1}

	assert.Equal(t, 0.5, n.Normalize(types.RawDetection{BBox: box}, 10, 10).Confidence)
	assert.Equal(t, 0.5, n.Normalize(types.RawDetection{BBox: box, Score: "high"}, 10, 10).Confidence)
	assert.Equal(t, 0.25, n.Normalize(types.RawDetection{BBox: box, Score: json.Number("0.25")}, 10, 10).Confidence)
	assert.Equal(t, 1.0, n.Normalize(types.RawDetection{BBox: box, Score: 87.0}, 10, 10).Confidence)
}

func TestNormalizeCategoryHint(t *testing.T) {
	n := New()
	d := n.Normalize(types.RawDetection{Class: "unit-7", Category: "machinery", BBox: []any{0.5, 0.5, 0.1, 0.1}}, 10, 10)
	assert.Equal(t, types.Machinery, d.Category)
	assert.Equal(t, "unit-7", d.Class)
}

func TestNormalizeDecodedJSON(t *testing.T) {
	var raws []types.RawDetection
	body := `[{"class":"person","score":0.91,"bbox":[0.5,0.5,0.2,0.4]},{"class":"crane","bbox":"oops"}]`
	require.NoError(t, json.Unmarshal([]byte(body), &raws))

	dets := New().NormalizeAll(raws, 1000, 1000)
	require.Len(t, dets, 2)
	assert.InDelta(t, 400, dets[0].BBox.X, eps)
	assert.Equal(t, types.Box{}, dets[1].BBox)
	assert.Equal(t, 0.5, dets[1].Confidence)
}

func TestNormalizeAllKeepsBoxesInsideImage(t *testing.T) {
	n := New()
	raws := []types.RawDetection{
		{Class: "person", BBox: []any{0.99, 0.99, 0.5, 0.5}},
		{Class: "person", BBox: []any{0.0, 0.0, 1.0, 1.0}},
		{Class: "truck", BBox: []any{-300.0, 900.0, 5000.0, 5000.0}},
		{Class: "fire", BBox: []any{639.0, 479.0, 2.0, 2.0}},
	}

	for _, d := range n.NormalizeAll(raws, 640, 480) {
		assert.GreaterOrEqual(t, d.BBox.X, 0.0)
		assert.GreaterOrEqual(t, d.BBox.Y, 0.0)
		assert.LessOrEqual(t, d.BBox.X+d.BBox.Width, 640.0+eps)
		assert.LessOrEqual(t, d.BBox.Y+d.BBox.Height, 480.0+eps)
	}
}

func TestNormalizeAllEmpty(t *testing.T) {
	dets := New().NormalizeAll(nil, 640, 480)
	assert.NotNil(t, dets)
	assert.Empty(t, dets)
}
