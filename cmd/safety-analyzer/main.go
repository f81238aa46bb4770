package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	safetyanalyzer "github.com/menta2k/safety-analyzer"
	"github.com/menta2k/safety-analyzer/internal/config"
	"github.com/menta2k/safety-analyzer/internal/handler"
	"github.com/menta2k/safety-analyzer/internal/utils"
	"github.com/menta2k/safety-analyzer/pkg/processing"
)

var (
	Version   = safetyanalyzer.Version
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "serve" {
		os.Exit(serve(os.Args[2:]))
	}
	os.Exit(oneShot(os.Args[1:]))
}

func setup(configPath string) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if err := utils.InitLogger(cfg.Server.Mode); err != nil {
		return nil, err
	}
	return cfg, nil
}

func serve(args []string) int {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file (optional)")
	_ = fs.Parse(args)

	cfg, err := setup(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer utils.Sync()

	utils.Logger.Info("starting safety-analyzer server",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := build(ctx, cfg)
	if err != nil {
		utils.Logger.Error("failed to build pipeline", zap.Error(err))
		return 1
	}
	defer a.Close()

	gin.SetMode(cfg.Server.Mode)
	srv := &http.Server{
		Addr:         cfg.Server.Port,
		Handler:      handler.NewRouter(handler.NewHandler(a.analyzer, a.info), cfg.Server.MaxBodyBytes),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		utils.Logger.Info("server starting", zap.String("port", cfg.Server.Port))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			utils.Logger.Error("server failed", zap.Error(err))
			return 1
		}
	case <-ctx.Done():
		utils.Logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			utils.Logger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}
	return 0
}

func oneShot(args []string) int {
	fs := flag.NewFlagSet("safety-analyzer", flag.ExitOnError)
	var (
		in, out, mode, configPath string
		detectOnly, overlay       bool
		quality                   int
	)
	fs.StringVar(&in, "in", "", "input image path, directory or URL (jpg/png/gif/webp)")
	fs.StringVar(&out, "out", "", "output directory for reports and overlays (default: print to stdout)")
	fs.StringVar(&mode, "mode", "comprehensive", "analysis mode: comprehensive|ppe|proximity")
	fs.StringVar(&configPath, "config", "", "YAML config file (optional)")
	fs.BoolVar(&detectOnly, "detect-only", false, "skip the reasoning step")
	fs.BoolVar(&overlay, "overlay", false, "write an overlay image with boxes and flagged pairs (requires -out)")
	fs.IntVar(&quality, "quality", 90, "JPEG/WebP overlay quality (1-100)")
	_ = fs.Parse(args)

	if in == "" {
		fmt.Fprintf(os.Stderr, "usage: %s -in photo.jpg|dir|URL [-mode ppe] [-out dir] [-overlay] [-detect-only]\n       %s serve [-config config.yaml]\n",
			filepath.Base(os.Args[0]), filepath.Base(os.Args[0]))
		return 2
	}

	cfg, err := setup(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		return 1
	}
	defer utils.Sync()

	ctx := context.Background()
	a, err := build(ctx, cfg)
	if err != nil {
		utils.Logger.Error("failed to build pipeline", zap.Error(err))
		return 1
	}
	defer a.Close()

	inputs := []string{in}
	if info, err := os.Stat(in); err == nil && info.IsDir() {
		if inputs, err = utils.ListImageFiles(in); err != nil {
			utils.Logger.Error("failed to list images", zap.String("dir", in), zap.Error(err))
			return 1
		}
	}
	if out != "" {
		if err := utils.EnsureDir(out); err != nil {
			utils.Logger.Error("failed to create output directory", zap.Error(err))
			return 1
		}
	}

	r := runner{analyzer: a.analyzer, processor: processing.NewProcessor(), out: out, mode: mode,
		detectOnly: detectOnly, overlay: overlay && out != "", quality: quality}
	failed := 0
	for _, path := range inputs {
		if err := r.run(ctx, path); err != nil {
			utils.Logger.Error("analysis failed", zap.String("input", path), zap.Error(err))
			failed++
		}
	}
	if failed > 0 {
		return 1
	}
	return 0
}

type runner struct {
	analyzer   *safetyanalyzer.Analyzer
	processor  *processing.Processor
	out        string
	mode       string
	detectOnly bool
	overlay    bool
	quality    int
}

func (r runner) run(ctx context.Context, path string) error {
	data, err := r.processor.LoadSource(ctx, path)
	if err != nil {
		return err
	}
	utils.Logger.Info("analyzing", zap.String("input", path), zap.String("image_md5", utils.BytesMD5(data)))

	var (
		result any
		scene  safetyanalyzer.Scene
	)
	if r.detectOnly {
		det, err := r.analyzer.DetectBytes(ctx, data)
		if err != nil {
			return err
		}
		scene = r.analyzer.Evaluate(det.Detections, det.Width, det.Height)
		result = struct {
			*safetyanalyzer.DetectResult
			safetyanalyzer.Scene
		}{det, scene}
	} else {
		res, err := r.analyzer.AnalyzeBytes(ctx, data, r.mode)
		if err != nil {
			return err
		}
		scene = res.Scene
		result = res
	}

	js, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}
	if r.out == "" {
		fmt.Println(string(js))
	} else {
		reportPath := utils.OutputFilename(path, r.out, "_report", "json")
		if err := os.WriteFile(reportPath, js, 0o644); err != nil {
			return err
		}
		utils.Logger.Info("wrote report", zap.String("path", reportPath))
	}

	if r.overlay {
		img, _, err := r.processor.Decode(data)
		if err != nil {
			return err
		}
		overlayPath := utils.OutputFilename(path, r.out, "_overlay", "jpg")
		if err := r.processor.SaveImage(r.processor.DrawOverlay(img, scene.Objects, scene.Hazards), overlayPath, r.quality); err != nil {
			return err
		}
		utils.Logger.Info("wrote overlay", zap.String("path", overlayPath))
	}
	return nil
}
