package main

import (
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/menta2k/cropmatrix"
	"github.com/menta2k/cropmatrix/internal/config"
	"github.com/menta2k/cropmatrix/internal/utils"
	"github.com/menta2k/cropmatrix/pkg/client"
	"github.com/menta2k/cropmatrix/pkg/cropper"
	"github.com/menta2k/cropmatrix/pkg/detection"
	"github.com/menta2k/cropmatrix/pkg/llamacpp"
	"github.com/menta2k/cropmatrix/pkg/ollama"
	"github.com/menta2k/cropmatrix/pkg/types"
)

type options struct {
	in         string
	outDir     string
	configPath string
	saveConfig string
	frames     string
	backend    string
	url        string
	model      string
	cascade    string
	scaleType  string
	ext        string
	fps        int
	overlay    bool
	debug      bool
}

func main() {
	var opts options

	flag.StringVar(&opts.in, "in", "", "input image path, URL or directory (jpg/png/webp)")
	flag.StringVar(&opts.outDir, "out", "", "output directory (default from config)")
	flag.StringVar(&opts.configPath, "config", "", "configuration file (default "+config.GetConfigPath()+" when present)")
	flag.StringVar(&opts.saveConfig, "save-config", "", "write the effective configuration to this path and exit")
	flag.StringVar(&opts.frames, "frames", "", "comma separated viewport sizes, e.g. 1080x1920,1200x630")
	flag.StringVar(&opts.backend, "backend", "", "face detector: none|pigo|ollama|llamacpp")
	flag.StringVar(&opts.url, "url", "", "vision model server URL")
	flag.StringVar(&opts.model, "model", "", "vision model name")
	flag.StringVar(&opts.cascade, "cascade", "", "pigo cascade file")
	flag.StringVar(&opts.scaleType, "scale-type", "", "fallback scale type: "+strings.Join(scaleTypeNames(), "|"))
	flag.StringVar(&opts.ext, "ext", "", "output format: jpg|png|webp")
	flag.IntVar(&opts.fps, "fps", -1, "render animation frames at this rate, 0 renders start/end only")
	flag.BoolVar(&opts.overlay, "overlay", false, "write debug overlays with faces and visible area")
	flag.BoolVar(&opts.debug, "debug", false, "enable debug logging")
	flag.Parse()

	logger := initLogger(opts.debug)

	if err := run(context.Background(), opts, logger); err != nil {
		logger.WithError(err).Fatal("cropmatrix failed")
	}
}

func initLogger(debugMode bool) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)

	if debugMode {
		logger.SetLevel(logrus.DebugLevel)
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
			ForceColors:   true,
		})
		logger.Debug("Debug logging enabled")
	} else {
		logger.SetLevel(logrus.InfoLevel)
		logger.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}

	return logger
}

func run(ctx context.Context, opts options, logger *logrus.Logger) error {
	cfg, err := loadConfig(opts, logger)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if opts.saveConfig != "" {
		if err := cfg.SaveToFile(opts.saveConfig); err != nil {
			return err
		}
		logger.WithField("path", opts.saveConfig).Info("Configuration written")
		return nil
	}

	if opts.in == "" {
		return fmt.Errorf("usage: %s -in input.jpg|URL|dir [-frames 1080x1920] [-backend pigo|ollama|llamacpp|none] [-fps 30] [-overlay]", filepath.Base(os.Args[0]))
	}

	frames, err := parseFrames(opts.frames)
	if err != nil {
		return err
	}
	cropCfg, err := cfg.Crop.ToCropConfig()
	if err != nil {
		return err
	}
	bg, err := config.ParseColor(cfg.Render.Background)
	if err != nil {
		return err
	}

	detector, err := buildDetector(cfg, logger)
	if err != nil {
		return err
	}

	engine := cropmatrix.NewWithConfig(cropmatrix.Config{
		Crop:      cropCfg,
		ScaleType: cfg.Crop.ScaleType,
		Detector:  detector,
		Logger:    logger,
	})

	if err := os.MkdirAll(cfg.Output.OutputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	inputs := []string{opts.in}
	if utils.IsDir(opts.in) {
		if inputs, err = utils.ListImageFiles(opts.in); err != nil {
			return fmt.Errorf("failed to list %s: %w", opts.in, err)
		}
		logger.WithFields(logrus.Fields{"dir": opts.in, "images": len(inputs)}).Info("Batch mode")
	}

	p := &pipeline{
		engine: engine,
		cfg:    cfg,
		frames: frames,
		bg:     bg,
		log:    logger,
	}

	failed := 0
	for _, input := range inputs {
		if err := p.process(ctx, input); err != nil {
			failed++
			logger.WithError(err).WithField("input", input).Error("Image failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d images failed", failed, len(inputs))
	}
	return nil
}

// loadConfig reads the config file and applies command-line overrides
func loadConfig(opts options, logger *logrus.Logger) (*config.Config, error) {
	cfg := config.Default()
	path := opts.configPath
	if path == "" {
		if _, err := os.Stat(config.GetConfigPath()); err == nil {
			path = config.GetConfigPath()
		}
	}
	if path != "" {
		loaded, err := config.LoadFromFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
		logger.WithField("path", path).Debug("Configuration loaded")
	}

	if opts.outDir != "" {
		cfg.Output.OutputDir = opts.outDir
	}
	if opts.backend != "" {
		cfg.Detection.Backend = opts.backend
	}
	if opts.url != "" {
		cfg.Detection.URL = opts.url
	}
	if opts.model != "" {
		cfg.Detection.Model = opts.model
	}
	if opts.cascade != "" {
		cfg.Detection.CascadeFile = opts.cascade
	}
	if opts.ext != "" {
		cfg.Output.DefaultFormat = strings.ToLower(opts.ext)
	}
	if opts.fps >= 0 {
		cfg.Render.FPS = opts.fps
	}
	if opts.overlay {
		cfg.Output.DebugOverlay = true
	}
	if opts.scaleType != "" {
		st, err := cropper.ParseScaleType(opts.scaleType)
		if err != nil {
			return nil, err
		}
		cfg.Crop.ScaleType = st
	}
	return cfg, nil
}

func buildDetector(cfg *config.Config, logger *logrus.Logger) (detection.FaceDetector, error) {
	maxFaces := cfg.Crop.MaxFaces
	var (
		inner detection.FaceDetector
		err   error
	)

	switch cfg.Detection.Backend {
	case config.BackendNone:
		return nil, nil
	case config.BackendPigo:
		inner, err = detection.LoadCascadeDetector(cfg.Detection.CascadeFile, cfg.Detection.CascadeOptions(maxFaces), logger)
	case config.BackendOllama, config.BackendLlamaCPP:
		var vc client.VisionClient
		if vc, err = visionClient(cfg.Detection.Backend, cfg.Detection.URL); err == nil {
			inner = detection.NewVisionDetector(vc, cfg.Detection.VisionOptions(maxFaces), logger)
		}
	default:
		err = fmt.Errorf("unknown backend: %s", cfg.Detection.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s detector: %w", cfg.Detection.Backend, err)
	}

	logger.WithField("backend", cfg.Detection.Backend).Info("Face detector ready")
	return &timeoutDetector{
		inner:   detection.NewCachedDetector(inner, detection.NewFaceCache(cfg.Detection.CacheSize)),
		timeout: cfg.Detection.Timeout(),
	}, nil
}

func visionClient(backend, url string) (client.VisionClient, error) {
	if backend == config.BackendOllama {
		return ollama.NewClient(url)
	}
	return llamacpp.NewClient(url)
}

// timeoutDetector bounds every detection call
type timeoutDetector struct {
	inner   detection.FaceDetector
	timeout time.Duration
}

func (d *timeoutDetector) Detect(ctx context.Context, img image.Image) ([]types.Face, error) {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	return d.inner.Detect(ctx, img)
}

type pipeline struct {
	engine *cropmatrix.Engine
	cfg    *config.Config
	frames []types.Size
	bg     color.Color
	log    *logrus.Logger
}

func (p *pipeline) process(ctx context.Context, input string) error {
	proc := p.engine.Processor()
	out := p.cfg.Output

	img, err := proc.LoadImageSmart(input)
	if err != nil {
		return err
	}
	b := img.Bounds()
	log := p.log.WithFields(logrus.Fields{
		"input": input,
		"size":  fmt.Sprintf("%dx%d", b.Dx(), b.Dy()),
	})

	var plans []cropmatrix.Plan
	for _, frame := range p.frames {
		label := frameLabel(frame)
		plan, err := p.engine.Plan(ctx, img, frame)
		if err != nil {
			return fmt.Errorf("frame %s: %w", label, err)
		}
		plans = append(plans, plan)

		flog := log.WithFields(logrus.Fields{
			"frame":    label,
			"faces":    len(plan.Faces),
			"cropped":  plan.Cropped,
			"animated": plan.Animated(),
		})

		start, end, err := p.engine.RenderPlan(img, plan, p.bg)
		if err != nil {
			return err
		}
		if plan.Animated() {
			if err := p.save(start, input, label+"_start"); err != nil {
				return err
			}
		}
		if err := p.save(end, input, label); err != nil {
			return err
		}

		if plan.Animated() && p.cfg.Render.FPS > 0 {
			frames, err := p.engine.RenderAnimation(ctx, img, frame, p.cfg.Render.FPS, p.bg)
			if err != nil {
				return fmt.Errorf("frame %s animation: %w", label, err)
			}
			for i, f := range frames {
				if err := p.save(f, input, fmt.Sprintf("%s_%04d", label, i)); err != nil {
					return err
				}
			}
			flog = flog.WithField("animation_frames", len(frames))
		}

		if out.DebugOverlay {
			dbg := proc.CreateDebugOverlay(img, plan.Faces, frame, plan.End)
			path := utils.OutputFilename(input, out.OutputDir, out.Prefix, "_debug", label, "png")
			if err := proc.SaveImage(dbg, path, "png", out.Quality, false); err != nil {
				flog.WithError(err).Warn("Debug overlay save failed")
			}
		}

		flog.WithField("end", plan.End.String()).Info("Crop rendered")
	}

	planPath := utils.OutputFilename(input, out.OutputDir, out.Prefix, out.Suffix, "plan", "json")
	return utils.WriteJSON(planPath, plans)
}

func (p *pipeline) save(img image.Image, input, label string) error {
	out := p.cfg.Output
	path := utils.OutputFilename(input, out.OutputDir, out.Prefix, out.Suffix, label, out.DefaultFormat)
	if err := p.engine.Processor().SaveImage(img, path, out.DefaultFormat, out.Quality, out.Lossless); err != nil {
		return fmt.Errorf("failed to save %s: %w", path, err)
	}
	if info, err := os.Stat(path); err == nil {
		p.log.WithFields(logrus.Fields{
			"path": path,
			"size": humanize.IBytes(uint64(info.Size())),
		}).Debug("Wrote image")
	}
	return nil
}

func scaleTypeNames() []string {
	var names []string
	for st := cropper.Center; st <= cropper.None; st++ {
		names = append(names, st.String())
	}
	return names
}
