package main

import (
	"context"
	"image"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	safetyanalyzer "github.com/menta2k/safety-analyzer"
	"github.com/menta2k/safety-analyzer/internal/config"
	"github.com/menta2k/safety-analyzer/internal/handler"
	"github.com/menta2k/safety-analyzer/internal/utils"
	"github.com/menta2k/safety-analyzer/pkg/analyzer"
	"github.com/menta2k/safety-analyzer/pkg/chatcompletion"
	"github.com/menta2k/safety-analyzer/pkg/client"
	"github.com/menta2k/safety-analyzer/pkg/detection"
	"github.com/menta2k/safety-analyzer/pkg/gemini"
	"github.com/menta2k/safety-analyzer/pkg/localmodel"
	"github.com/menta2k/safety-analyzer/pkg/ollama"
	"github.com/menta2k/safety-analyzer/pkg/reasoning"
	"github.com/menta2k/safety-analyzer/pkg/vision"
)

// app holds the wired pipeline and whatever must be released on exit
type app struct {
	analyzer *safetyanalyzer.Analyzer
	info     handler.ConfigResponse
	closers  []func() error
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			utils.Logger.Warn("close failed", zap.Error(err))
		}
	}
}

func newGenerator(cfg config.ReasoningConfig) (client.TextGenerator, []string) {
	creds := cfg.APIKeys
	switch cfg.Provider {
	case "chatcompletion":
		return chatcompletion.NewClient(cfg.Endpoint, cfg.Model, cfg.Temperature, cfg.MaxOutputTokens), creds
	case "ollama":
		if len(creds) == 0 {
			creds = []string{ollama.DefaultHost}
		}
		return ollama.NewClient(cfg.Model, cfg.Temperature), creds
	default:
		return gemini.NewClient(gemini.Config{
			Endpoint:        cfg.Endpoint,
			Model:           cfg.Model,
			Temperature:     cfg.Temperature,
			MaxOutputTokens: cfg.MaxOutputTokens,
		}), creds
	}
}

func newDetector(ctx context.Context, cfg *config.Config) (client.Detector, func() error, error) {
	if cfg.Detection.Backend == "local" {
		m, err := localmodel.Load(ctx, localmodel.Config{
			ModelPath:           cfg.LocalModel.ModelPath,
			ConfigPath:          cfg.LocalModel.ConfigPath,
			InputSize:           image.Pt(cfg.LocalModel.InputSize, cfg.LocalModel.InputSize),
			ConfidenceThreshold: float32(cfg.LocalModel.ConfidenceThreshold),
		})
		if err != nil {
			return nil, nil, errors.Wrap(err, "load local model")
		}
		return m, m.Close, nil
	}

	vc := vision.NewClient(vision.Config{
		Endpoint:      cfg.Vision.Endpoint,
		Model:         cfg.Vision.Model,
		APIKey:        cfg.Vision.APIKey,
		Timeout:       cfg.Vision.Timeout,
		MaxUploadDim:  cfg.Vision.MaxUploadDim,
		MinConfidence: cfg.Vision.MinConfidence,
	}, vision.WithLogger(utils.Logger))
	if !vc.Configured() {
		utils.Logger.Warn("vision API key not configured, detection requests will fail")
	}
	return vc, nil, nil
}

func newCache(ctx context.Context, cfg config.CacheConfig) (*reasoning.RedisCache, bool) {
	if !cfg.Enabled {
		return nil, false
	}
	rc := reasoning.NewRedisCache(redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}), cfg.TTL)
	if err := rc.Ping(ctx); err != nil {
		utils.Logger.Warn("redis connection failed, cache disabled", zap.Error(err))
		_ = rc.Close()
		return nil, false
	}
	utils.Logger.Info("redis connected successfully", zap.String("addr", cfg.Addr))
	return rc, true
}

func build(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}

	detector, closeDetector, err := newDetector(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if closeDetector != nil {
		a.closers = append(a.closers, closeDetector)
	}

	gen, creds := newGenerator(cfg.Reasoning)
	if len(creds) == 0 {
		utils.Logger.Warn("no reasoning credentials configured, reasoning requests will fail")
	}
	opts := []reasoning.Option{reasoning.WithLogger(utils.Logger)}
	cache, cacheOn := newCache(ctx, cfg.Cache)
	if cacheOn {
		opts = append(opts, reasoning.WithCache(cache))
		a.closers = append(a.closers, cache.Close)
	}
	gw := reasoning.New(gen, reasoning.Config{
		Credentials: creds,
		Model:       cfg.Reasoning.Model,
		Timeout:     cfg.Reasoning.Timeout,
		MaxAttempts: cfg.Reasoning.MaxAttempts,
		Language:    cfg.Reasoning.Language,
	}, opts...)

	intake := analyzer.DefaultConfig()
	intake.MinImageSize = cfg.Detection.MinImageSize
	intake.MaxImageBytes = int(cfg.Server.MaxBodyBytes)

	a.analyzer = safetyanalyzer.New(safetyanalyzer.Config{
		Intake:        intake,
		Normalizer:    &detection.Config{DefaultConfidence: cfg.Detection.DefaultConfidence},
		Categories:    cfg.Detection.CategoryOverrides,
		ThresholdUnit: cfg.Detection.ThresholdUnit,
		CanvasWidth:   cfg.Detection.CanvasWidth,
		CanvasHeight:  cfg.Detection.CanvasHeight,
	}, detector, gw)

	modes := make([]string, 0, len(reasoning.Modes()))
	for _, m := range reasoning.Modes() {
		modes = append(modes, string(m))
	}
	a.info = handler.ConfigResponse{
		Version:          Version,
		DetectionBackend: cfg.Detection.Backend,
		Provider:         gw.Provider(),
		Model:            cfg.Reasoning.Model,
		Credentials:      gw.Credentials(),
		AnalysisModes:    modes,
		ThresholdUnit:    cfg.Detection.ThresholdUnit,
		CacheEnabled:     cacheOn,
	}
	return a, nil
}
