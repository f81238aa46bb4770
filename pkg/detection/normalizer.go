// Package detection converts raw detector output into canonical detections.
package detection

import (
	"encoding/json"
	"math"

	"github.com/menta2k/safety-analyzer/pkg/category"
	"github.com/menta2k/safety-analyzer/pkg/types"
)

// Config holds normalizer settings
type Config struct {
	// DefaultConfidence is used when a raw record carries no numeric score
	DefaultConfidence float64
}

// DefaultConfig returns the normalizer defaults
func DefaultConfig() Config {
	return Config{DefaultConfidence: 0.5}
}

// Normalizer turns raw detections into canonical pixel-space records
type Normalizer struct {
	config Config
	mapper *category.Mapper
}

// New creates a Normalizer with the default config and category table
func New() *Normalizer {
	return NewWithConfig(DefaultConfig(), nil)
}

// NewWithConfig creates a Normalizer. A nil mapper selects the built-in table.
func NewWithConfig(config Config, mapper *category.Mapper) *Normalizer {
	if mapper == nil {
		mapper = category.New(nil)
	}
	return &Normalizer{config: config, mapper: mapper}
}

// Normalize converts one raw detection for an image of imgW x imgH pixels.
// A malformed bbox degrades to an all-zero box instead of failing.
func (n *Normalizer) Normalize(raw types.RawDetection, imgW, imgH int) types.CanonicalDetection {
	vals, ok := parseBox(raw.BBox)
	if !ok {
		vals = [4]float64{}
	}

	var box types.Box
	switch resolveFormat(raw.Format, vals) {
	case types.FormatCenter:
		box = centerToPixels(vals, imgW, imgH)
	default:
		box = types.Box{X: vals[0], Y: vals[1], Width: vals[2], Height: vals[3]}
	}
	box = clampBox(box, imgW, imgH)

	return types.CanonicalDetection{
		Class:      raw.Class,
		Category:   n.mapper.Resolve(raw.Category, raw.Class),
		Confidence: n.confidence(raw.Score),
		BBox:       box,
		Center:     box.Center(),
	}
}

// NormalizeAll normalizes detections in input order
func (n *Normalizer) NormalizeAll(raws []types.RawDetection, imgW, imgH int) []types.CanonicalDetection {
	out := make([]types.CanonicalDetection, 0, len(raws))
	for _, raw := range raws {
		out = append(out, n.Normalize(raw, imgW, imgH))
	}
	return out
}

func (n *Normalizer) confidence(score any) float64 {
	v, ok := toFloat(score)
	if !ok {
		return n.config.DefaultConfidence
	}
	return clamp(v, 0, 1)
}

func resolveFormat(f types.BoxFormat, vals [4]float64) types.BoxFormat {
	if f == types.FormatCenter || f == types.FormatPixel {
		return f
	}
	for _, v := range vals {
		if v < 0 || v > 1 {
			return types.FormatPixel
		}
	}
	return types.FormatCenter
}

func centerToPixels(v [4]float64, imgW, imgH int) types.Box {
	fw, fh := float64(imgW), float64(imgH)
	return types.Box{
		X:      (v[0] - v[2]/2) * fw,
		Y:      (v[1] - v[3]/2) * fh,
		Width:  v[2] * fw,
		Height: v[3] * fh,
	}
}

// clampBox keeps the box inside the image: the origin is clamped first and
// the extent is then limited by what remains to the right and bottom.
func clampBox(b types.Box, imgW, imgH int) types.Box {
	fw, fh := float64(imgW), float64(imgH)
	x := clamp(b.X, 0, math.Max(fw-1, 0))
	y := clamp(b.Y, 0, math.Max(fh-1, 0))
	return types.Box{
		X:      x,
		Y:      y,
		Width:  clamp(b.Width, 0, fw-x),
		Height: clamp(b.Height, 0, fh-y),
	}
}

// parseBox reads exactly four finite numbers
func parseBox(raw any) ([4]float64, bool) {
	var out [4]float64
	var items []any
	switch v := raw.(type) {
	case []any:
		items = v
	case []float64:
		for _, f := range v {
			items = append(items, f)
		}
	case [4]float64:
		return v, finite(v)
	case []int:
		for _, i := range v {
			items = append(items, i)
		}
	default:
		return out, false
	}
	if len(items) != 4 {
		return out, false
	}
	for i, item := range items {
		f, ok := toFloat(item)
		if !ok {
			return [4]float64{}, false
		}
		out[i] = f
	}
	return out, true
}

func toFloat(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		var err error
		if f, err = n.Float64(); err != nil {
			return 0, false
		}
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func finite(v [4]float64) bool {
	for _, f := range v {
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
