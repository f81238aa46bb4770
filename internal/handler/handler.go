package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	safetyanalyzer "github.com/menta2k/safety-analyzer"
	"github.com/menta2k/safety-analyzer/internal/middleware"
	"github.com/menta2k/safety-analyzer/internal/utils"
	"github.com/menta2k/safety-analyzer/pkg/analyzer"
	"github.com/menta2k/safety-analyzer/pkg/localmodel"
	"github.com/menta2k/safety-analyzer/pkg/reasoning"
	"github.com/menta2k/safety-analyzer/pkg/vision"
)

// Handler serves the /api endpoints
type Handler struct {
	analyzer *safetyanalyzer.Analyzer
	info     ConfigResponse
}

func NewHandler(a *safetyanalyzer.Analyzer, info ConfigResponse) *Handler {
	return &Handler{analyzer: a, info: info}
}

// Register mounts the routes on an engine
func (h *Handler) Register(r gin.IRouter) {
	api := r.Group("/api")
	{
		api.GET("/health", h.Health)
		api.GET("/config", h.Config)
		api.POST("/detect", h.Detect)
		api.POST("/reason", h.Reason)
		api.POST("/analyze", h.Analyze)
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, h.info)
}

// Detect runs the detector on a base64 image
func (h *Handler) Detect(c *gin.Context) {
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.analyzer.Detect(c.Request.Context(), req.ImageBase64)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, detectResponse(res))
}

// Reason asks the reasoning service for a report on caller-supplied detections
func (h *Handler) Reason(c *gin.Context) {
	var req ReasonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.analyzer.Reason(c.Request.Context(), safetyanalyzer.ReasonRequest{
		Detections: req.Detections,
		Width:      req.ImageWidth,
		Height:     req.ImageHeight,
		Mode:       req.AnalysisMode,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, ReasonResponse{
		Success:            true,
		Analysis:           res.Analysis,
		ViolationBreakdown: res.ViolationBreakdown,
		Hazards:            res.Hazards,
		Structured:         res.Structured,
	})
}

// Analyze runs detection and reasoning on a base64 image
func (h *Handler) Analyze(c *gin.Context) {
	var req ImageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, err)
		return
	}

	res, err := h.analyzer.Analyze(c.Request.Context(), req.ImageBase64, req.AnalysisMode)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, AnalyzeResponse{
		DetectResponse:     detectResponse(&res.DetectResult),
		Objects:            res.Objects,
		Hazards:            res.Hazards,
		Structured:         res.Structured,
		Analysis:           res.Analysis,
		ViolationBreakdown: res.ViolationBreakdown,
	})
}

func (h *Handler) badRequest(c *gin.Context, err error) {
	_ = c.Error(err)
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
}

// fail logs the internal error and answers with a generic message
func (h *Handler) fail(c *gin.Context, err error) {
	status, msg := classify(err)
	_ = c.Error(err)

	fields := []zap.Field{
		zap.String("request_id", c.GetString(middleware.RequestIDKey)),
		zap.String("path", c.Request.URL.Path),
		zap.Int("status", status),
		zap.Error(err),
	}
	var exhausted *reasoning.ExhaustedError
	if errors.As(err, &exhausted) {
		fields = append(fields,
			zap.Int("attempts", exhausted.Attempts),
			zap.String("failure_kind", string(exhausted.Kind())))
	}
	if status >= http.StatusInternalServerError {
		utils.Logger.Error("request failed", fields...)
	} else {
		utils.Logger.Warn("request rejected", fields...)
	}

	c.JSON(status, ErrorResponse{Error: msg})
}

func classify(err error) (int, string) {
	var exhausted *reasoning.ExhaustedError
	switch {
	case errors.Is(err, safetyanalyzer.ErrInvalidInput), errors.Is(err, analyzer.ErrInvalidImage):
		return http.StatusBadRequest, "invalid input"
	case errors.Is(err, reasoning.ErrNoCredentials):
		return http.StatusInternalServerError, "reasoning service is not configured"
	case errors.Is(err, safetyanalyzer.ErrNoDetector):
		return http.StatusInternalServerError, "detection backend is not configured"
	case errors.Is(err, vision.ErrUnavailable), errors.Is(err, localmodel.ErrUnavailable):
		return http.StatusBadGateway, "detection service unavailable"
	case errors.As(err, &exhausted):
		return http.StatusBadGateway, "reasoning service unavailable"
	default:
		return http.StatusInternalServerError, "internal error"
	}
}
