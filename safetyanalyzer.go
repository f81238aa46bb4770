// Package safetyanalyzer turns a still frame of a work site into a safety
// report.
//
// An image is validated, sent to a detector (a hosted vision API or an
// in-process SSD model), and the raw detections are normalized into
// pixel-space records with a category each. From those the package derives
// human/machinery proximity hazards and a compact, percentage-coordinate
// batch that is handed to a text-generation model. The model answers with a
// JSON safety report; several credentials are tried in order until one
// produces a parsable report.
//
// Basic usage:
//
//	gen := gemini.NewClient(gemini.Config{Model: "gemini-1.5-flash"})
//	gw := reasoning.New(gen, reasoning.Config{Credentials: keys})
//	a := safetyanalyzer.New(safetyanalyzer.Config{}, vision.NewClient(visionCfg), gw)
//
//	res, err := a.Analyze(ctx, imageBase64, "ppe")
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(res.Analysis.RiskLevel, res.Analysis.Summary)
package safetyanalyzer

import (
	"context"

	"github.com/pkg/errors"

	"github.com/menta2k/safety-analyzer/pkg/analyzer"
	"github.com/menta2k/safety-analyzer/pkg/batch"
	"github.com/menta2k/safety-analyzer/pkg/category"
	"github.com/menta2k/safety-analyzer/pkg/client"
	"github.com/menta2k/safety-analyzer/pkg/detection"
	"github.com/menta2k/safety-analyzer/pkg/proximity"
	"github.com/menta2k/safety-analyzer/pkg/reasoning"
	"github.com/menta2k/safety-analyzer/pkg/types"
)

// Version of the safety analyzer library
const Version = "1.0.0"

var (
	// ErrInvalidInput marks request problems the caller can fix
	ErrInvalidInput = errors.New("invalid input")
	// ErrNoDetector means no detection backend was configured
	ErrNoDetector = errors.New("no detection backend configured")
)

// Config gathers the tunables of the in-process pipeline stages
type Config struct {
	Intake analyzer.Config
	// Normalizer nil selects detection.DefaultConfig
	Normalizer    *detection.Config
	Categories    map[string]string
	ThresholdUnit float64
	// CanvasWidth and CanvasHeight are used when a caller supplies
	// detections without image dimensions
	CanvasWidth  int
	CanvasHeight int
}

func (c Config) withDefaults() Config {
	if len(c.Intake.SupportedFormats) == 0 {
		c.Intake = analyzer.DefaultConfig()
	}
	if c.Normalizer == nil {
		def := detection.DefaultConfig()
		c.Normalizer = &def
	}
	if c.ThresholdUnit <= 0 {
		c.ThresholdUnit = proximity.DefaultThresholdUnit
	}
	if c.CanvasWidth <= 0 {
		c.CanvasWidth = 1000
	}
	if c.CanvasHeight <= 0 {
		c.CanvasHeight = 1000
	}
	return c
}

// Analyzer runs the detection and reasoning pipeline
type Analyzer struct {
	config     Config
	intake     *analyzer.ImageAnalyzer
	detector   client.Detector
	normalizer *detection.Normalizer
	evaluator  *proximity.Evaluator
	gateway    *reasoning.Gateway
}

// New wires the pipeline. detector and gateway may be nil; the operations
// that need them then fail with ErrNoDetector or reasoning.ErrNoCredentials.
func New(config Config, detector client.Detector, gateway *reasoning.Gateway) *Analyzer {
	config = config.withDefaults()
	return &Analyzer{
		config:     config,
		intake:     analyzer.NewWithConfig(config.Intake),
		detector:   detector,
		normalizer: detection.NewWithConfig(*config.Normalizer, category.New(config.Categories)),
		evaluator:  proximity.NewWithUnit(config.ThresholdUnit),
		gateway:    gateway,
	}
}

// Scene is everything derived locally from one detection set
type Scene struct {
	Objects    []types.CanonicalDetection     `json:"objects"`
	Hazards    []types.ProximityHazard        `json:"hazards"`
	Structured types.StructuredDetectionBatch `json:"structured"`
}

// DetectResult is the outcome of running the detector on an image
type DetectResult struct {
	Info analyzer.ImageInfo `json:"info"`
	types.DetectionSet
}

// ReasonRequest carries caller-supplied detections to Reason
type ReasonRequest struct {
	Detections []types.RawDetection
	Width      int
	Height     int
	Mode       string
}

// ReasonResult is a parsed report and the batch it was produced from
type ReasonResult struct {
	Scene
	Analysis           *types.SafetyAnalysisReport    `json:"analysis"`
	ViolationBreakdown map[category.ViolationKind]int `json:"violationBreakdown"`
}

// AnalysisResult is the full pipeline output for one image
type AnalysisResult struct {
	DetectResult
	ReasonResult
}

// Detect validates a base64 image payload and runs the detector on it
func (a *Analyzer) Detect(ctx context.Context, imageBase64 string) (*DetectResult, error) {
	data, info, err := a.intake.DecodePayload(imageBase64)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}
	return a.detect(ctx, data, info)
}

// DetectBytes is Detect for raw image bytes
func (a *Analyzer) DetectBytes(ctx context.Context, data []byte) (*DetectResult, error) {
	info, err := a.intake.Inspect(data)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}
	return a.detect(ctx, data, info)
}

func (a *Analyzer) detect(ctx context.Context, data []byte, info analyzer.ImageInfo) (*DetectResult, error) {
	if a.detector == nil {
		return nil, ErrNoDetector
	}
	set, err := a.detector.Detect(ctx, data)
	if err != nil {
		return nil, errors.Wrap(err, "detect")
	}
	if set.Width <= 0 || set.Height <= 0 {
		set.Width, set.Height = info.Width, info.Height
	}
	if set.Detections == nil {
		set.Detections = []types.RawDetection{}
	}
	return &DetectResult{Info: info, DetectionSet: *set}, nil
}

// Evaluate normalizes raw detections and derives hazards and the batch.
// Non-positive dimensions fall back to the configured canvas.
func (a *Analyzer) Evaluate(raws []types.RawDetection, width, height int) Scene {
	if width <= 0 || height <= 0 {
		width, height = a.config.CanvasWidth, a.config.CanvasHeight
	}
	objects := a.normalizer.NormalizeAll(raws, width, height)
	return Scene{
		Objects:    objects,
		Hazards:    a.evaluator.Evaluate(objects, width),
		Structured: batch.Build(objects, width, height),
	}
}

// Reason runs the reasoning gateway over caller-supplied detections
func (a *Analyzer) Reason(ctx context.Context, req ReasonRequest) (*ReasonResult, error) {
	mode, err := reasoning.ParseMode(req.Mode)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}
	return a.reason(ctx, a.Evaluate(req.Detections, req.Width, req.Height), mode)
}

func (a *Analyzer) reason(ctx context.Context, scene Scene, mode reasoning.Mode) (*ReasonResult, error) {
	if a.gateway == nil {
		return nil, reasoning.ErrNoCredentials
	}
	report, err := a.gateway.Analyze(ctx, scene.Structured, mode)
	if err != nil {
		return nil, err
	}
	return &ReasonResult{
		Scene:              scene,
		Analysis:           report,
		ViolationBreakdown: category.Breakdown(report.Violations),
	}, nil
}

// Analyze detects, evaluates and reasons about one base64 image
func (a *Analyzer) Analyze(ctx context.Context, imageBase64, mode string) (*AnalysisResult, error) {
	m, err := reasoning.ParseMode(mode)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}
	det, err := a.Detect(ctx, imageBase64)
	if err != nil {
		return nil, err
	}
	return a.analyze(ctx, det, m)
}

// AnalyzeBytes is Analyze for raw image bytes
func (a *Analyzer) AnalyzeBytes(ctx context.Context, data []byte, mode string) (*AnalysisResult, error) {
	m, err := reasoning.ParseMode(mode)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidInput, err.Error())
	}
	det, err := a.DetectBytes(ctx, data)
	if err != nil {
		return nil, err
	}
	return a.analyze(ctx, det, m)
}

func (a *Analyzer) analyze(ctx context.Context, det *DetectResult, mode reasoning.Mode) (*AnalysisResult, error) {
	scene := a.Evaluate(det.Detections, det.Width, det.Height)
	rr, err := a.reason(ctx, scene, mode)
	if err != nil {
		return nil, err
	}
	return &AnalysisResult{DetectResult: *det, ReasonResult: *rr}, nil
}
