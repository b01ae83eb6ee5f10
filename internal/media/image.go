package media

import (
	"bytes"
	"image"
	"image/jpeg"
	"strings"

	// Register decoders for image.Decode
	_ "image/gif"
	_ "image/png"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"vortexx/internal/models"
)

const (
	DefaultMaxDimension = 2048
	JPEGQuality         = 82
	WebPQuality         = 70
)

// Processor downscales oversized still images before upload.
type Processor struct {
	maxDimension int
	format       string
}

// NewProcessor creates a Processor. format is "jpeg" or "webp".
func NewProcessor(maxDimension int, format string) *Processor {
	if maxDimension <= 0 {
		maxDimension = DefaultMaxDimension
	}
	format = strings.ToLower(strings.TrimSpace(format))
	if format != "webp" {
		format = "jpeg"
	}
	return &Processor{maxDimension: maxDimension, format: format}
}

// Normalize re-encodes still images whose longest side exceeds the configured
// dimension. GIFs, videos, audio and images already within bounds are returned unchanged.
func (p *Processor) Normalize(f File) (File, error) {
	switch f.Type() {
	case "image/jpeg", "image/png", "image/webp":
	default:
		return f, nil
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(f.Data))
	if err != nil {
		return File{}, models.NewValidationError("Invalid image file")
	}
	if cfg.Width <= p.maxDimension && cfg.Height <= p.maxDimension {
		return f, nil
	}

	decoded, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return File{}, models.NewValidationError("Invalid image file")
	}
	resized := resizeToFit(decoded, p.maxDimension, p.maxDimension)

	var (
		encoded     []byte
		contentType string
	)
	if p.format == "webp" {
		encoded, err = encodeWebP(resized, WebPQuality)
		contentType = "image/webp"
	} else {
		encoded, err = encodeJPEG(resized, JPEGQuality)
		contentType = "image/jpeg"
	}
	if err != nil {
		return File{}, models.NewInternalError(err)
	}

	return File{
		Name:        replaceExt(f.Name, Extension(contentType)),
		ContentType: contentType,
		Data:        encoded,
	}, nil
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	newW := max(int(float64(w)*scale), 1)
	newH := max(int(float64(h)*scale), 1)

	dst := image.NewRGBA(image.Rect(0, 0, newW, newH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func replaceExt(name, ext string) string {
	if name == "" {
		return "file." + ext
	}
	if i := strings.LastIndexByte(name, '.'); i > 0 {
		name = name[:i]
	}
	return name + "." + ext
}
