package config

import (
	"encoding/json"
	"fmt"
	"image/color"
	"os"
	"path/filepath"
	"time"

	"github.com/menta2k/cropmatrix/pkg/animation"
	"github.com/menta2k/cropmatrix/pkg/cropper"
	"github.com/menta2k/cropmatrix/pkg/detection"
)

// Detection backends
const (
	BackendNone     = "none"
	BackendPigo     = "pigo"
	BackendOllama   = "ollama"
	BackendLlamaCPP = "llamacpp"
)

// Config holds the application configuration
type Config struct {
	Crop      CropConfig      `json:"crop"`
	Detection DetectionConfig `json:"detection"`
	Render    RenderConfig    `json:"render"`
	Output    OutputConfig    `json:"output"`
}

// CropConfig is the file form of cropper.CropConfig
type CropConfig struct {
	ScaleType         cropper.ScaleType `json:"scale_type"`
	AutoFaceDetection bool              `json:"auto_face_detection"`
	MinConfidence     float64           `json:"min_confidence"`
	MaxFaces          int               `json:"max_faces"`

	PreScale      *float64 `json:"pre_scale,omitempty"`
	PreTranslateX float64  `json:"pre_translate_x"`
	PreTranslateY float64  `json:"pre_translate_y"`
	Scale         *float64 `json:"scale,omitempty"`
	TranslateX    float64  `json:"translate_x"`
	TranslateY    float64  `json:"translate_y"`
	OffsetX       *float64 `json:"offset_x,omitempty"`
	OffsetY       *float64 `json:"offset_y,omitempty"`

	DetectionFlags cropper.Flags `json:"detection_flags"`
	MatrixFlags    cropper.Flags `json:"matrix_flags"`

	AnimationDurationMs int    `json:"animation_duration_ms"`
	Cyclic              bool   `json:"cyclic"`
	Interpolator        string `json:"interpolator"`
}

// DetectionConfig selects and tunes the face detector
type DetectionConfig struct {
	Backend   string `json:"backend"`
	CacheSize int    `json:"cache_size"`

	// pigo
	CascadeFile      string  `json:"cascade_file"`
	MinSize          int     `json:"min_size"`
	MaxSize          int     `json:"max_size"`
	ShiftFactor      float64 `json:"shift_factor"`
	ScaleFactor      float64 `json:"scale_factor"`
	IoUThreshold     float64 `json:"iou_threshold"`
	QualityThreshold float32 `json:"quality_threshold"`

	// vision model backends
	URL            string `json:"url"`
	Model          string `json:"model"`
	ImageFormat    string `json:"image_format"`
	MaxDimension   int    `json:"max_dimension"`
	ImageQuality   int    `json:"image_quality"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// RenderConfig controls rendered output frames
type RenderConfig struct {
	Background string `json:"background"`
	FPS        int    `json:"fps"`
}

// OutputConfig holds configuration for output generation
type OutputConfig struct {
	DefaultFormat string `json:"default_format"`
	OutputDir     string `json:"output_dir"`
	Prefix        string `json:"prefix"`
	Suffix        string `json:"suffix"`
	Quality       int    `json:"quality"`
	Lossless      bool   `json:"lossless"`
	DebugOverlay  bool   `json:"debug_overlay"`
}

// Default returns a configuration with default values
func Default() *Config {
	cascade := detection.DefaultCascadeOptions()
	vision := detection.DefaultVisionOptions()

	return &Config{
		Crop: CropConfig{
			ScaleType:           cropper.CenterCrop,
			AutoFaceDetection:   true,
			MinConfidence:       0,
			MaxFaces:            detection.DefaultMaxFaces,
			AnimationDurationMs: 1000,
			Interpolator:        "linear",
		},
		Detection: DetectionConfig{
			Backend:          BackendPigo,
			CacheSize:        detection.DefaultCacheSize,
			CascadeFile:      "cascade/facefinder",
			MinSize:          cascade.MinSize,
			MaxSize:          cascade.MaxSize,
			ShiftFactor:      cascade.ShiftFactor,
			ScaleFactor:      cascade.ScaleFactor,
			IoUThreshold:     cascade.IoUThreshold,
			QualityThreshold: cascade.QualityThreshold,
			URL:              "http://localhost:11434",
			Model:            vision.Model,
			ImageFormat:      vision.Format,
			MaxDimension:     vision.MaxSize,
			ImageQuality:     vision.Quality,
			TimeoutSeconds:   120,
		},
		Render: RenderConfig{
			Background: "#000000",
			FPS:        0,
		},
		Output: OutputConfig{
			DefaultFormat: "jpg",
			OutputDir:     "./output",
			Prefix:        "",
			Suffix:        "_crop",
			Quality:       90,
		},
	}
}

// LoadFromFile loads configuration from a JSON file. Missing fields keep
// their default values.
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Crop.MinConfidence < 0 || c.Crop.MinConfidence > 1 {
		return fmt.Errorf("crop.min_confidence must be between 0 and 1")
	}

	if c.Crop.MaxFaces < 0 {
		return fmt.Errorf("crop.max_faces cannot be negative")
	}

	if c.Crop.AnimationDurationMs < 0 {
		return fmt.Errorf("crop.animation_duration_ms cannot be negative")
	}

	if _, err := animation.Lookup(c.Crop.Interpolator); err != nil {
		return fmt.Errorf("crop.interpolator: %w", err)
	}

	switch c.Detection.Backend {
	case BackendNone, BackendPigo, BackendOllama, BackendLlamaCPP:
	default:
		return fmt.Errorf("detection.backend must be one of none, pigo, ollama, llamacpp")
	}

	if c.Detection.Backend == BackendPigo && c.Detection.CascadeFile == "" {
		return fmt.Errorf("detection.cascade_file is required for the pigo backend")
	}

	if (c.Detection.Backend == BackendOllama || c.Detection.Backend == BackendLlamaCPP) && c.Detection.URL == "" {
		return fmt.Errorf("detection.url is required for the %s backend", c.Detection.Backend)
	}

	if c.Detection.ImageQuality < 1 || c.Detection.ImageQuality > 100 {
		return fmt.Errorf("detection.image_quality must be between 1 and 100")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}

	if c.Render.FPS < 0 {
		return fmt.Errorf("render.fps cannot be negative")
	}

	if _, err := ParseColor(c.Render.Background); err != nil {
		return fmt.Errorf("render.background: %w", err)
	}

	return nil
}

// ToCropConfig converts the file form into the calculator configuration
func (c CropConfig) ToCropConfig() (cropper.CropConfig, error) {
	interp, err := animation.Lookup(c.Interpolator)
	if err != nil {
		return cropper.CropConfig{}, err
	}

	return cropper.CropConfig{
		AutoFaceDetection: c.AutoFaceDetection,
		MinConfidence:     c.MinConfidence,
		MaxFaces:          c.MaxFaces,
		PreScale:          c.PreScale,
		PreTranslateX:     c.PreTranslateX,
		PreTranslateY:     c.PreTranslateY,
		Scale:             c.Scale,
		TranslateX:        c.TranslateX,
		TranslateY:        c.TranslateY,
		OffsetX:           c.OffsetX,
		OffsetY:           c.OffsetY,
		DetectionFlags:    c.DetectionFlags,
		MatrixFlags:       c.MatrixFlags,
		AnimationDuration: time.Duration(c.AnimationDurationMs) * time.Millisecond,
		Cyclic:            c.Cyclic,
		Interpolator:      interp,
	}, nil
}

// CascadeOptions returns the pigo settings
func (d DetectionConfig) CascadeOptions(maxFaces int) detection.CascadeOptions {
	return detection.CascadeOptions{
		MinSize:          d.MinSize,
		MaxSize:          d.MaxSize,
		ShiftFactor:      d.ShiftFactor,
		ScaleFactor:      d.ScaleFactor,
		IoUThreshold:     d.IoUThreshold,
		QualityThreshold: d.QualityThreshold,
		MaxFaces:         maxFaces,
	}
}

// VisionOptions returns the vision model settings
func (d DetectionConfig) VisionOptions(maxFaces int) detection.VisionOptions {
	return detection.VisionOptions{
		Model:    d.Model,
		Format:   d.ImageFormat,
		MaxSize:  d.MaxDimension,
		Quality:  d.ImageQuality,
		MaxFaces: maxFaces,
	}
}

// Timeout returns the per-image detection timeout
func (d DetectionConfig) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// ParseColor parses "#rrggbb" or "#rrggbbaa"
func ParseColor(s string) (color.NRGBA, error) {
	c := color.NRGBA{A: 0xff}
	var err error
	switch len(s) {
	case 7:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x", &c.R, &c.G, &c.B)
	case 9:
		_, err = fmt.Sscanf(s, "#%02x%02x%02x%02x", &c.R, &c.G, &c.B, &c.A)
	default:
		err = fmt.Errorf("invalid color %q", s)
	}
	if err != nil {
		return color.NRGBA{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return c, nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "cropmatrix", "config.json")
}
