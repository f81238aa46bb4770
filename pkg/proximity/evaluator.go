// Package proximity flags humans that stand too close to machinery.
package proximity

import (
	"math"

	"github.com/menta2k/safety-analyzer/pkg/types"
)

// DefaultThresholdUnit is the default sensitivity scalar
const DefaultThresholdUnit = 3.0

// Evaluator pairs every human with every machine in a frame
type Evaluator struct {
	unit float64
}

// New creates an Evaluator with the default threshold unit
func New() *Evaluator {
	return NewWithUnit(DefaultThresholdUnit)
}

// NewWithUnit creates an Evaluator with a custom threshold unit
func NewWithUnit(unit float64) *Evaluator {
	return &Evaluator{unit: unit}
}

// Threshold returns the danger distance in pixels for an image width.
// It scales linearly with width so results do not depend on resolution.
func (e *Evaluator) Threshold(imageWidth int) int {
	return int(math.Round(e.unit / 5 * float64(imageWidth) * 0.2))
}

// Evaluate returns one hazard per (human, machine) pair, humans in outer
// order and machines in inner order. Pairs are never deduplicated.
func (e *Evaluator) Evaluate(dets []types.CanonicalDetection, imageWidth int) []types.ProximityHazard {
	var humans, machines []types.CanonicalDetection
	for _, d := range dets {
		switch d.Category {
		case types.Human:
			humans = append(humans, d)
		case types.Machinery:
			machines = append(machines, d)
		}
	}

	threshold := e.Threshold(imageWidth)
	out := make([]types.ProximityHazard, 0, len(humans)*len(machines))
	for _, h := range humans {
		for _, m := range machines {
			dist := int(math.Round(h.Center.Distance(m.Center)))
			out = append(out, types.ProximityHazard{
				Human:     h,
				Machine:   m,
				Distance:  dist,
				Threshold: threshold,
				IsDanger:  dist < threshold,
			})
		}
	}
	return out
}

// Dangerous filters hazards down to the flagged pairs
func Dangerous(hazards []types.ProximityHazard) []types.ProximityHazard {
	out := make([]types.ProximityHazard, 0, len(hazards))
	for _, h := range hazards {
		if h.IsDanger {
			out = append(out, h)
		}
	}
	return out
}
