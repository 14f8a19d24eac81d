package inference

import (
	"bytes"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"math"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	MaxImageDimension = 512
	jpegQuality       = 90
)

// ResizeDimensions fits w×h inside max×max keeping the aspect ratio. Images
// already within bounds are returned unchanged.
func ResizeDimensions(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w > h {
		return max, roundHalfUp(float64(h) * float64(max) / float64(w))
	}
	return roundHalfUp(float64(w) * float64(max) / float64(h)), max
}

func roundHalfUp(v float64) int {
	return int(math.Floor(v + 0.5))
}

// DecodeImage decodes JPEG, PNG, GIF or WebP bytes.
func DecodeImage(data []byte) (image.Image, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// PrepareImage downsizes img to at most MaxImageDimension on each side and
// round-trips it through JPEG at quality 90, so the model always sees the
// same kind of input whatever the source format.
func PrepareImage(img image.Image) (image.Image, error) {
	b := img.Bounds()
	w, h := ResizeDimensions(b.Dx(), b.Dy(), MaxImageDimension)
	if w < 1 || h < 1 {
		return nil, fmt.Errorf("invalid image dimensions %dx%d", b.Dx(), b.Dy())
	}

	canvas := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(canvas, canvas.Bounds(), img, b, draw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, canvas, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	out, err := jpeg.Decode(&buf)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return out, nil
}
