package handler

import (
	safetyanalyzer "github.com/menta2k/safety-analyzer"
	"github.com/menta2k/safety-analyzer/pkg/category"
	"github.com/menta2k/safety-analyzer/pkg/types"
)

// ImageRequest is the body of /api/detect and /api/analyze
type ImageRequest struct {
	ImageBase64  string `json:"imageBase64" binding:"required"`
	AnalysisMode string `json:"analysisMode"`
}

// ReasonRequest is the body of /api/reason
type ReasonRequest struct {
	Detections   []types.RawDetection `json:"detections" binding:"required"`
	AnalysisMode string               `json:"analysisMode"`
	ImageWidth   int                  `json:"imageWidth" binding:"gte=0"`
	ImageHeight  int                  `json:"imageHeight" binding:"gte=0"`
}

// DetectResponse is returned by /api/detect
type DetectResponse struct {
	Success     bool                 `json:"success"`
	Detections  []types.RawDetection `json:"detections"`
	ImageWidth  int                  `json:"imageWidth"`
	ImageHeight int                  `json:"imageHeight"`
}

// ReasonResponse is returned by /api/reason
type ReasonResponse struct {
	Success            bool                           `json:"success"`
	Analysis           *types.SafetyAnalysisReport    `json:"analysis"`
	ViolationBreakdown map[category.ViolationKind]int `json:"violationBreakdown"`
	Hazards            []types.ProximityHazard        `json:"hazards"`
	Structured         types.StructuredDetectionBatch `json:"structured"`
}

// AnalyzeResponse is returned by /api/analyze: the detect shape plus the
// derived scene and the report
type AnalyzeResponse struct {
	DetectResponse
	Objects            []types.CanonicalDetection     `json:"objects"`
	Hazards            []types.ProximityHazard        `json:"hazards"`
	Structured         types.StructuredDetectionBatch `json:"structured"`
	Analysis           *types.SafetyAnalysisReport    `json:"analysis"`
	ViolationBreakdown map[category.ViolationKind]int `json:"violationBreakdown"`
}

// ErrorResponse carries a short generic message only
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// ConfigResponse exposes non-secret runtime settings
type ConfigResponse struct {
	Version          string   `json:"version"`
	DetectionBackend string   `json:"detectionBackend"`
	Provider         string   `json:"provider"`
	Model            string   `json:"model"`
	Credentials      int      `json:"credentials"`
	AnalysisModes    []string `json:"analysisModes"`
	ThresholdUnit    float64  `json:"thresholdUnit"`
	CacheEnabled     bool     `json:"cacheEnabled"`
}

func detectResponse(res *safetyanalyzer.DetectResult) DetectResponse {
	return DetectResponse{
		Success:     true,
		Detections:  res.Detections,
		ImageWidth:  res.Width,
		ImageHeight: res.Height,
	}
}
