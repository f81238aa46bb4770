package types

import "math"

// Category is the semantic bucket a detected object belongs to
type Category string

const (
	Human     Category = "human"
	Machinery Category = "machinery"
	Equipment Category = "equipment"
	Hazard    Category = "hazard"
	Object    Category = "object"
)

// BoxFormat tells the normalizer how the four bbox numbers are laid out
type BoxFormat string

const (
	// FormatAuto infers the layout: four values in [0,1] are read as
	// center-fractional. A tiny pixel box such as [0, 0, 1, 1] is read that way
	// too, so pixel producers should set FormatPixel explicitly.
	FormatAuto BoxFormat = ""
	// FormatCenter is [xCenter, yCenter, width, height] as fractions of the image
	FormatCenter BoxFormat = "center"
	// FormatPixel is [x, y, width, height] in pixels, top-left origin
	FormatPixel BoxFormat = "pixel"
)

// Point is a pixel-space coordinate
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Box is a pixel-space bounding box with top-left origin
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Center returns the center point of the box
func (b Box) Center() Point {
	return Point{X: b.X + b.Width/2, Y: b.Y + b.Height/2}
}

// Distance returns the Euclidean distance between two points
func (p Point) Distance(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// RawDetection is one detection as produced by a detector, before normalization.
// BBox and Score are left untyped so a malformed record can be degraded
// instead of failing the whole request body.
type RawDetection struct {
	Class    string    `json:"class"`
	Category string    `json:"category,omitempty"`
	Score    any       `json:"score,omitempty"`
	BBox     any       `json:"bbox"`
	Format   BoxFormat `json:"format,omitempty"`
}

// DetectionSet is the output of a detector for a single image
type DetectionSet struct {
	Width      int            `json:"imageWidth"`
	Height     int            `json:"imageHeight"`
	Detections []RawDetection `json:"detections"`
}

// CanonicalDetection is a normalized, category-tagged, pixel-space detection
type CanonicalDetection struct {
	Class      string   `json:"class"`
	Category   Category `json:"category"`
	Confidence float64  `json:"confidence"`
	BBox       Box      `json:"bbox"`
	Center     Point    `json:"center"`
}

// ProximityHazard pairs one human with one machine
type ProximityHazard struct {
	Human     CanonicalDetection `json:"human"`
	Machine   CanonicalDetection `json:"machine"`
	Distance  int                `json:"distance"`
	Threshold int                `json:"threshold"`
	IsDanger  bool               `json:"isDanger"`
}

// Location is the coarse image quadrant of a detection center
type Location string

const (
	TopLeft     Location = "top-left"
	TopRight    Location = "top-right"
	BottomLeft  Location = "bottom-left"
	BottomRight Location = "bottom-right"
)

// BatchEntry is one detection as presented to the reasoning model
type BatchEntry struct {
	ID          int      `json:"id"`
	Class       string   `json:"class"`
	Location    Location `json:"approximate_location"`
	Confidence  float64  `json:"confidence"`
	BBoxPercent [4]int   `json:"bbox_percent"`
}

// StructuredDetectionBatch is the categorized, percentage-coordinate scene summary
type StructuredDetectionBatch struct {
	Persons          []BatchEntry `json:"persons"`
	Machines         []BatchEntry `json:"machines"`
	Tools            []BatchEntry `json:"tools"`
	Hazards          []BatchEntry `json:"hazards"`
	TotalPersonCount int          `json:"total_person_count"`
}

// Len returns the number of entries across all buckets
func (b StructuredDetectionBatch) Len() int {
	return len(b.Persons) + len(b.Machines) + len(b.Tools) + len(b.Hazards)
}

// RiskLevel is the coarse risk grade returned by the reasoning service
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Violation is a single safety finding
type Violation struct {
	Type           string `json:"type"`
	Category       string `json:"category,omitempty"`
	Severity       string `json:"severity"`
	Description    string `json:"description"`
	Regulation     string `json:"regulation,omitempty"`
	Recommendation string `json:"recommendation"`
	WorkerID       int    `json:"worker_id,omitempty"`
}

// WorkerAssessment is the per-worker breakdown
type WorkerAssessment struct {
	ID         int       `json:"id"`
	PPEWorn    []string  `json:"ppe_detected"`
	PPEMissing []string  `json:"ppe_missing"`
	RiskLevel  RiskLevel `json:"risk_level"`
	Notes      string    `json:"notes,omitempty"`
}

// SafetyAnalysisReport is the report contract the reasoning service must return
type SafetyAnalysisReport struct {
	RiskScore         int                `json:"risk_score"`
	RiskLevel         RiskLevel          `json:"risk_level"`
	WorkersCount      int                `json:"workers_count"`
	MachineryCount    int                `json:"machinery_count"`
	PPEComplianceRate float64            `json:"ppe_compliance_rate"`
	Violations        []Violation        `json:"violations"`
	Summary           string             `json:"summary"`
	Workers           []WorkerAssessment `json:"workers,omitempty"`
	ProximityWarnings []string           `json:"proximity_warnings,omitempty"`
	Recommendations   []string           `json:"recommendations,omitempty"`
}
