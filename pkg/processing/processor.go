package processing

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"math"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/cropmatrix/pkg/matrix"
	"github.com/menta2k/cropmatrix/pkg/types"
)

// Processor handles image I/O and rendering through crop matrices
type Processor struct {
	httpClient *http.Client
}

// NewProcessor creates a new image processor
func NewProcessor() *Processor {
	return &Processor{httpClient: &http.Client{Timeout: 30 * time.Second}}
}

// LoadImageFromURL downloads and decodes an image
func (p *Processor) LoadImageFromURL(imageURL string) (image.Image, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequest(http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "cropmatrix/1.0")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %s", resp.Status)
	}
	if contentType := resp.Header.Get("Content-Type"); !strings.HasPrefix(contentType, "image/") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return p.DecodeImage(data)
}

// LoadImage loads an image from a file path with WebP support
func (p *Processor) LoadImage(path string) (image.Image, error) {
	if img, err := imaging.Open(path); err == nil {
		return img, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	img, err := p.DecodeImage(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return img, nil
}

// LoadImageSmart loads an image from either a file path or URL
func (p *Processor) LoadImageSmart(source string) (image.Image, error) {
	if strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://") {
		return p.LoadImageFromURL(source)
	}
	return p.LoadImage(source)
}

// DecodeImage decodes registered formats, falling back to the libwebp decoder
func (p *Processor) DecodeImage(data []byte) (image.Image, error) {
	if img, _, err := image.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}
	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// PrepareImageForModel downsizes an image so its long side is at most maxDim
// and returns it base64 encoded for a vision model. It also returns the factor
// from the sent image back to the original pixels.
func (p *Processor) PrepareImageForModel(img image.Image, format string, maxDim int, quality int) (string, float64, error) {
	ratio := 1.0
	if maxDim > 0 {
		b := img.Bounds()
		w, h := b.Dx(), b.Dy()
		if w > maxDim || h > maxDim {
			if w >= h {
				img = imaging.Resize(img, maxDim, 0, imaging.Lanczos)
				ratio = float64(w) / float64(img.Bounds().Dx())
			} else {
				img = imaging.Resize(img, 0, maxDim, imaging.Lanczos)
				ratio = float64(h) / float64(img.Bounds().Dy())
			}
		}
	}

	var buf bytes.Buffer
	switch strings.ToLower(format) {
	case "png":
		enc := png.Encoder{CompressionLevel: png.BestCompression}
		if err := enc.Encode(&buf, img); err != nil {
			return "", 0, err
		}
	default:
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return "", 0, err
		}
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), ratio, nil
}

// Render draws img into a frame-sized canvas through m, which maps image
// pixels to frame pixels. Uncovered areas are filled with bg.
func (p *Processor) Render(img image.Image, frame types.Size, m matrix.Matrix, bg color.Color) (*image.NRGBA, error) {
	if !frame.Valid() {
		return nil, fmt.Errorf("invalid frame size %.0fx%.0f", frame.Width, frame.Height)
	}
	w := int(math.Round(frame.Width))
	h := int(math.Round(frame.Height))
	dst := image.NewNRGBA(image.Rect(0, 0, w, h))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)

	src := img.Bounds()
	s2d := m.Mul(matrix.NewTranslate(-float64(src.Min.X), -float64(src.Min.Y)))
	if _, ok := s2d.Invert(); !ok {
		return dst, nil
	}
	draw.CatmullRom.Transform(dst, s2d.Aff3(), img, src, draw.Over, nil)
	return dst, nil
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		return webp.Encode(f, img, &webp.Options{Lossless: lossless, Quality: float32(quality)})
	case "png":
		return imaging.Save(img, path)
	default:
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateDebugOverlay marks the detected faces on img and outlines the part of
// the image that m leaves visible inside frame.
func (p *Processor) CreateDebugOverlay(img image.Image, faces []types.Face, frame types.Size, m matrix.Matrix) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	green := color.NRGBA{0, 255, 0, 255}
	gold := color.NRGBA{255, 204, 0, 255}
	red := color.NRGBA{255, 0, 0, 255}
	stroke := int(math.Max(2, 0.004*float64(min(w, h))))
	cross := int(math.Max(4, 0.01*float64(min(w, h))))

	for _, face := range faces {
		if face.Bounds.W > 0 && face.Bounds.H > 0 {
			drawBox(nrgba, boxToPixels(face.Bounds, w, h), green, stroke)
		}
		if x, y, ok := face.MidPoint(); ok {
			px, py := int(math.Round(x)), int(math.Round(y))
			drawHLine(nrgba, py, px-cross, px+cross, red)
			drawVLine(nrgba, px, py-cross, py+cross, red)
		}
	}

	if visible, ok := VisibleRect(frame, m); ok {
		drawBox(nrgba, visible.Intersect(nrgba.Bounds()), gold, stroke)
	}
	return nrgba
}

// VisibleRect returns the image-space rectangle shown inside frame under m
func VisibleRect(frame types.Size, m matrix.Matrix) (image.Rectangle, bool) {
	inv, ok := m.Invert()
	if !ok || !frame.Valid() {
		return image.Rectangle{}, false
	}
	x0, y0 := inv.Apply(0, 0)
	x1, y1 := inv.Apply(frame.Width, frame.Height)
	return image.Rect(
		int(math.Round(math.Min(x0, x1))), int(math.Round(math.Min(y0, y1))),
		int(math.Round(math.Max(x0, x1))), int(math.Round(math.Max(y0, y1))),
	), true
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func boxToPixels(box types.Box, w, h int) image.Rectangle {
	x0 := int(clamp(box.X, 0, 1)*float64(w) + 0.5)
	y0 := int(clamp(box.Y, 0, 1)*float64(h) + 0.5)
	x1 := int(clamp(box.X+box.W, 0, 1)*float64(w) + 0.5)
	y1 := int(clamp(box.Y+box.H, 0, 1)*float64(h) + 0.5)
	if x1 <= x0 {
		x1 = x0 + 1
	}
	if y1 <= y0 {
		y1 = y0 + 1
	}
	return image.Rect(x0, y0, x1, y1)
}

func drawBox(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	if r.Empty() {
		return
	}
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	b := img.Bounds()
	if y < b.Min.Y || y >= b.Max.Y {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	x0 = max(x0, b.Min.X)
	x1 = min(x1, b.Max.X)
	for x := x0; x < x1; x++ {
		img.SetNRGBA(x, y, c)
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	b := img.Bounds()
	if x < b.Min.X || x >= b.Max.X {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	y0 = max(y0, b.Min.Y)
	y1 = min(y1, b.Max.Y)
	for y := y0; y < y1; y++ {
		img.SetNRGBA(x, y, c)
	}
}
