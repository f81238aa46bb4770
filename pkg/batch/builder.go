// Package batch groups canonical detections into the percentage-coordinate
// summary that is embedded in the reasoning prompt.
package batch

import (
	"math"

	"github.com/menta2k/safety-analyzer/pkg/category"
	"github.com/menta2k/safety-analyzer/pkg/types"
)

// Build groups detections into persons, machines, tools and hazards, in input
// order. Ids are 1-based and unique only within their bucket.
func Build(dets []types.CanonicalDetection, imgW, imgH int) types.StructuredDetectionBatch {
	b := types.StructuredDetectionBatch{
		Persons:  make([]types.BatchEntry, 0),
		Machines: make([]types.BatchEntry, 0),
		Tools:    make([]types.BatchEntry, 0),
		Hazards:  make([]types.BatchEntry, 0),
	}

	for _, d := range dets {
		bucket := bucketFor(&b, d.Category)
		*bucket = append(*bucket, types.BatchEntry{
			ID:          len(*bucket) + 1,
			Class:       d.Class,
			Location:    Quadrant(d.Center, imgW, imgH),
			Confidence:  d.Confidence,
			BBoxPercent: ToPercent(d.BBox, imgW, imgH),
		})
	}

	b.TotalPersonCount = len(b.Persons)
	return b
}

func bucketFor(b *types.StructuredDetectionBatch, c types.Category) *[]types.BatchEntry {
	switch c {
	case types.Human:
		return &b.Persons
	case types.Machinery:
		return &b.Machines
	case types.Hazard, category.Environmental:
		return &b.Hazards
	default:
		return &b.Tools
	}
}

// ToPercent expresses a pixel box as [x, y, w, h] integer percentages of the
// image. Each value is rounded and then clamped to [0,100] on its own.
func ToPercent(box types.Box, imgW, imgH int) [4]int {
	fw, fh := float64(imgW), float64(imgH)
	return [4]int{
		percent(box.X, fw),
		percent(box.Y, fh),
		percent(box.Width, fw),
		percent(box.Height, fh),
	}
}

// ToPixels is the inverse of ToPercent, up to rounding
func ToPixels(p [4]int, imgW, imgH int) types.Box {
	fw, fh := float64(imgW), float64(imgH)
	return types.Box{
		X:      float64(p[0]) * fw / 100,
		Y:      float64(p[1]) * fh / 100,
		Width:  float64(p[2]) * fw / 100,
		Height: float64(p[3]) * fh / 100,
	}
}

func percent(v, dim float64) int {
	if dim <= 0 {
		return 0
	}
	p := int(math.Round(v / dim * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Quadrant labels the image quadrant holding a center point. The vertical
// half is decided first.
func Quadrant(c types.Point, imgW, imgH int) types.Location {
	top := c.Y < float64(imgH)/2
	left := c.X < float64(imgW)/2
	switch {
	case top && left:
		return types.TopLeft
	case top:
		return types.TopRight
	case left:
		return types.BottomLeft
	default:
		return types.BottomRight
	}
}
